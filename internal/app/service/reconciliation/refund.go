package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/fatflowers/tipy/internal/models"
	"github.com/fatflowers/tipy/internal/platform/mercadopago"
	"github.com/fatflowers/tipy/pkg/logctx"
)

type RefundRequest struct {
	GatewayPaymentID  string `json:"payment_id"`
	ExternalReference string `json:"external_reference"`
	RecommendationID  string `json:"recommendation_id"`
	// Amount requests a partial refund. Partial refunds leave the payment
	// approved at the gateway, so the local status is not changed.
	Amount *decimal.Decimal `json:"amount,omitempty" swaggertype:"number"`
	// DJID restricts the refund to payments owned by that DJ when set.
	DJID string `json:"-"`
}

type RefundOutcome struct {
	GatewayPaymentID      string                    `json:"payment_id"`
	ExternalReference     string                    `json:"external_reference,omitempty"`
	ResolvedBy            string                    `json:"resolved_by"`
	Refund                *mercadopago.RefundResult `json:"refund,omitempty"`
	RecommendationDeleted bool                      `json:"recommendation_deleted"`
}

const (
	resolvedByRequest = "request"
	resolvedByPayment = "payment"
	resolvedByWebhook = "webhook_log"
	resolvedBySearch  = "gateway_search"
)

// resolveGatewayID finds the gateway payment id for a refund. The local
// payment is returned too when it exists.
func (s *Service) resolveGatewayID(ctx context.Context, req *RefundRequest) (string, string, *models.Payment, error) {
	if req.GatewayPaymentID != "" {
		p, err := s.store.GetPaymentByGatewayID(ctx, req.GatewayPaymentID)
		if err != nil && !isNotFound(err) {
			return "", "", nil, storeErr("failed to get payment", err)
		}
		return req.GatewayPaymentID, resolvedByRequest, p, nil
	}

	ref := req.ExternalReference
	p, err := s.store.GetPaymentByExternalReference(ctx, ref)
	switch {
	case err == nil:
		if p.MercadoPagoPaymentID != nil && *p.MercadoPagoPaymentID != "" {
			return *p.MercadoPagoPaymentID, resolvedByPayment, p, nil
		}
	case isNotFound(err):
		p = nil
	default:
		return "", "", nil, storeErr("failed to get payment", err)
	}

	w, err := s.store.LatestWebhookForReference(ctx, ref)
	switch {
	case err == nil && w.PaymentID != "":
		return w.PaymentID, resolvedByWebhook, p, nil
	case err != nil && !isNotFound(err):
		return "", "", nil, storeErr("failed to read webhook log", err)
	}

	found, err := s.gw.SearchByExternalReference(ctx, ref)
	if err != nil {
		return "", "", nil, fmt.Errorf("%w: search by external reference: %w", ErrPaymentNotFound, err)
	}
	if len(found) == 0 {
		return "", "", nil, fmt.Errorf("%w: external reference %s", ErrPaymentNotFound, ref)
	}
	pick, ok := lo.Find(found, func(it *mercadopago.PaymentStatusSnapshot) bool {
		return it.Status == string(models.PaymentStatusApproved)
	})
	if !ok {
		pick = found[0]
	}
	return pick.ID, resolvedBySearch, p, nil
}

// paymentForGatewayID finds the local payment of a gateway id that has not
// been stored yet, through the external reference the gateway reports. It
// returns nil when no local payment matches.
func (s *Service) paymentForGatewayID(ctx context.Context, gatewayID string) (*models.Payment, error) {
	snap, err := s.gw.GetPaymentStatus(ctx, gatewayID)
	if err != nil {
		if re, ok := mercadopago.IsRequestError(err); ok && re.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: payment %s", ErrPaymentNotFound, gatewayID)
		}
		return nil, fmt.Errorf("%w %s: %w", ErrGatewayFetch, gatewayID, err)
	}
	if snap.ExternalReference == "" {
		return nil, nil
	}
	p, err := s.store.GetPaymentByExternalReference(ctx, snap.ExternalReference)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, storeErr("failed to get payment", err)
	}
	return p, nil
}

// RefundPayment refunds a tip at the gateway and removes the suggestion it
// paid for. The recommendation is deleted even when the gateway rejects the
// refund; the refund error is still returned. Nothing is touched when no
// gateway payment id can be resolved, or when req.DJID is set and the payment
// is not a local payment of that DJ.
//
// A successful full refund is recorded through the same status transition as
// webhooks, so the DJ balance is debited once whichever path sees the
// refund first.
func (s *Service) RefundPayment(ctx context.Context, req *RefundRequest) (*RefundOutcome, error) {
	if req == nil || (req.GatewayPaymentID == "" && req.ExternalReference == "") {
		return nil, fmt.Errorf("%w: payment_id or external_reference is required", ErrValidation)
	}
	if req.Amount != nil && !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: refund amount must be greater than zero", ErrValidation)
	}
	log := logctx.FromCtx(ctx, s.log)

	if req.DJID != "" && req.RecommendationID != "" {
		rec, err := s.store.GetRecommendation(ctx, req.RecommendationID)
		if err != nil {
			return nil, storeErr("failed to get recommendation", err)
		}
		if rec.DJID != req.DJID {
			return nil, fmt.Errorf("recommendation %s: %w", req.RecommendationID, ErrNotFound)
		}
	}

	gatewayID, resolvedBy, p, err := s.resolveGatewayID(ctx, req)
	if err != nil {
		log.Warnw("refund_resolve_failed", "external_reference", req.ExternalReference, "error", err)
		return nil, err
	}
	if req.DJID != "" {
		if p == nil {
			if p, err = s.paymentForGatewayID(ctx, gatewayID); err != nil {
				log.Warnw("refund_owner_lookup_failed", "payment_id", gatewayID, "error", err)
				return nil, err
			}
		}
		if p == nil || p.DJID != req.DJID {
			log.Warnw("refund_not_owned", "payment_id", gatewayID, "dj_id", req.DJID)
			return nil, fmt.Errorf("payment %s: %w", gatewayID, ErrNotFound)
		}
	}

	out := &RefundOutcome{GatewayPaymentID: gatewayID, ExternalReference: req.ExternalReference, ResolvedBy: resolvedBy}
	if p != nil {
		out.ExternalReference = p.ExternalReference
	}

	var errs []error
	refund, err := s.gw.IssueRefund(ctx, gatewayID, req.Amount)
	if err != nil {
		log.Errorw("refund_gateway_failed", "payment_id", gatewayID, "resolved_by", resolvedBy, "error", err)
		errs = append(errs, fmt.Errorf("%w: payment %s: %w", ErrRefund, gatewayID, err))
	} else {
		out.Refund = refund
		log.Infow("refund_issued", "payment_id", gatewayID, "refund_id", refund.RefundID, "resolved_by", resolvedBy)
		if err := s.recordRefund(ctx, out.ExternalReference, gatewayID, req.Amount == nil); err != nil {
			log.Errorw("refund_record_failed", "payment_id", gatewayID, "external_reference", out.ExternalReference, "error", err)
			errs = append(errs, err)
		}
	}

	if req.RecommendationID != "" {
		switch err := s.store.DeleteRecommendation(ctx, req.RecommendationID); {
		case err == nil:
			out.RecommendationDeleted = true
		case isNotFound(err):
			log.Infow("refund_recommendation_already_deleted", "recommendation_id", req.RecommendationID)
		default:
			log.Errorw("refund_recommendation_delete_failed", "recommendation_id", req.RecommendationID, "error", err)
			errs = append(errs, storeErr("failed to delete recommendation", err))
		}
	}

	return out, errors.Join(errs...)
}

func (s *Service) recordRefund(ctx context.Context, ref, gatewayID string, full bool) error {
	if ref == "" {
		return nil
	}
	if !full {
		if err := s.store.SetGatewayPaymentID(ctx, ref, gatewayID); err != nil {
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		return nil
	}
	tr, err := s.store.ApplyPaymentStatus(ctx, ref, models.PaymentStatusRefunded, gatewayID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	observeTransition(tr)
	return nil
}
