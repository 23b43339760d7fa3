package reconciliation

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/fatflowers/tipy/internal/models"
	"github.com/fatflowers/tipy/internal/platform/mercadopago"
	"github.com/fatflowers/tipy/pkg/logctx"
)

type PaymentStatusView struct {
	Payment *models.Payment                    `json:"payment"`
	Gateway *mercadopago.PaymentStatusSnapshot `json:"gateway,omitempty"`
}

// GetPaymentStatus returns the stored payment and, when its gateway id is
// known, the live gateway snapshot. Nothing is written.
func (s *Service) GetPaymentStatus(ctx context.Context, ref, gatewayPaymentID string) (*PaymentStatusView, error) {
	if ref == "" && gatewayPaymentID == "" {
		return nil, fmt.Errorf("%w: reference or payment_id is required", ErrValidation)
	}
	var (
		p   *models.Payment
		err error
	)
	if ref != "" {
		p, err = s.store.GetPaymentByExternalReference(ctx, ref)
	} else {
		p, err = s.store.GetPaymentByGatewayID(ctx, gatewayPaymentID)
	}
	if err != nil && !(isNotFound(err) && gatewayPaymentID != "") {
		return nil, storeErr("failed to get payment", err)
	}

	view := &PaymentStatusView{Payment: p}
	if gatewayPaymentID == "" && p != nil && p.MercadoPagoPaymentID != nil {
		gatewayPaymentID = *p.MercadoPagoPaymentID
	}
	if gatewayPaymentID == "" {
		return view, nil
	}
	snap, err := s.gw.GetPaymentStatus(ctx, gatewayPaymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get gateway payment: %w", err)
	}
	view.Gateway = snap
	return view, nil
}

// SyncPaymentStatus is called by the checkout return pages. The status implied
// by the page is ignored; the gateway is asked and its answer goes through the
// same transition as webhooks.
func (s *Service) SyncPaymentStatus(ctx context.Context, ref, gatewayPaymentID string) (*PaymentStatusView, error) {
	if ref == "" && gatewayPaymentID == "" {
		return nil, fmt.Errorf("%w: reference or payment_id is required", ErrValidation)
	}
	log := logctx.FromCtx(ctx, s.log)

	var snap *mercadopago.PaymentStatusSnapshot
	if gatewayPaymentID != "" {
		got, err := s.gw.GetPaymentStatus(ctx, gatewayPaymentID)
		if err != nil {
			return nil, fmt.Errorf("failed to get gateway payment: %w", err)
		}
		if ref != "" && got.ExternalReference != ref {
			return nil, fmt.Errorf("%w: payment %s does not belong to reference %s", ErrValidation, gatewayPaymentID, ref)
		}
		snap = got
	} else {
		p, err := s.store.GetPaymentByExternalReference(ctx, ref)
		if err != nil {
			return nil, storeErr("failed to get payment", err)
		}
		if p.MercadoPagoPaymentID != nil && *p.MercadoPagoPaymentID != "" {
			if snap, err = s.gw.GetPaymentStatus(ctx, *p.MercadoPagoPaymentID); err != nil {
				return nil, fmt.Errorf("failed to get gateway payment: %w", err)
			}
		} else {
			found, err := s.gw.SearchByExternalReference(ctx, ref)
			if err != nil {
				return nil, fmt.Errorf("failed to search gateway payments: %w", err)
			}
			if len(found) == 0 {
				// The payer has not completed checkout yet.
				return &PaymentStatusView{Payment: p}, nil
			}
			snap = lo.MaxBy(found, func(a, b *mercadopago.PaymentStatusSnapshot) bool {
				return a.Status == string(models.PaymentStatusApproved) && b.Status != string(models.PaymentStatusApproved)
			})
		}
	}
	if snap.ExternalReference == "" {
		return nil, fmt.Errorf("%w: payment %s", ErrIncompletePaymentData, snap.ID)
	}

	tr, err := s.store.ApplyPaymentStatus(ctx, snap.ExternalReference, models.PaymentStatus(snap.Status), snap.ID)
	if err != nil {
		return nil, storeErr("failed to apply payment status", err)
	}
	observeTransition(tr)
	log.Infow("payment_status_synced", "external_reference", snap.ExternalReference, "payment_id", snap.ID, "from", tr.From, "to", tr.To)

	p, err := s.store.GetPaymentByExternalReference(ctx, snap.ExternalReference)
	if err != nil {
		return nil, storeErr("failed to reload payment", err)
	}
	return &PaymentStatusView{Payment: p, Gateway: snap}, nil
}
