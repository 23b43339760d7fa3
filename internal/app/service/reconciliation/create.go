package reconciliation

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/tipy/internal/models"
	"github.com/fatflowers/tipy/internal/platform/mercadopago"
	"github.com/fatflowers/tipy/pkg/logctx"
	"github.com/fatflowers/tipy/pkg/tool"
)

type CreatePaymentRequest struct {
	Amount           decimal.Decimal `json:"amount" swaggertype:"number"`
	DJID             string          `json:"dj_id"`
	RecommendationID string          `json:"recommendation_id"`
	ClientName       string          `json:"client_name"`
	// ExternalReference is set only when retrying a creation whose local
	// insert failed; the gateway then deduplicates on it.
	ExternalReference string `json:"external_reference,omitempty"`
}

type CreatePaymentResult struct {
	PaymentID          string `json:"payment_id,omitempty"`
	PreferenceID       string `json:"preference_id"`
	ExternalReference  string `json:"external_reference"`
	CheckoutURL        string `json:"init_point"`
	SandboxCheckoutURL string `json:"sandbox_init_point"`
}

func (r *CreatePaymentRequest) validate() error {
	if r == nil {
		return fmt.Errorf("%w: empty request", ErrValidation)
	}
	if r.DJID == "" || r.RecommendationID == "" {
		return fmt.Errorf("%w: dj_id and recommendation_id are required", ErrValidation)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrValidation)
	}
	if r.ExternalReference != "" && !tool.IsUUID(r.ExternalReference) {
		return fmt.Errorf("%w: external_reference must be a uuid", ErrValidation)
	}
	return nil
}

func (s *Service) backURL(outcome, ref string) string {
	base := strings.TrimRight(s.cfg.App.PublicURL, "/")
	return fmt.Sprintf("%s/tip/%s?reference=%s", base, outcome, url.QueryEscape(ref))
}

// CreatePayment opens a checkout at the gateway and records the pending
// payment. The local row is written only after the gateway accepted the
// request. When that write fails the result is still returned together with
// an ErrPersistence error, so the caller can retry with the same external
// reference without creating a second gateway intent.
func (s *Service) CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*CreatePaymentResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	log := logctx.FromCtx(ctx, s.log)

	dj, err := s.store.GetDJ(ctx, req.DJID)
	if err != nil {
		return nil, storeErr("failed to get dj", err)
	}
	if req.Amount.LessThan(dj.MinTipAmount) {
		return nil, fmt.Errorf("%w: amount %s is below the minimum tip of %s", ErrValidation, req.Amount, dj.MinTipAmount)
	}
	rec, err := s.store.GetRecommendation(ctx, req.RecommendationID)
	if err != nil {
		return nil, storeErr("failed to get recommendation", err)
	}
	if rec.DJID != dj.ID {
		return nil, fmt.Errorf("%w: recommendation does not belong to dj", ErrValidation)
	}

	ref := req.ExternalReference
	if ref == "" {
		ref = tool.NewExternalReference()
	}

	pref, err := s.gw.CreatePaymentRequest(ctx, &mercadopago.PaymentRequest{
		Title:             fmt.Sprintf("Propina para %s", dj.DisplayName),
		Amount:            req.Amount,
		Quantity:          1,
		ExternalReference: ref,
		SuccessURL:        s.backURL("success", ref),
		FailureURL:        s.backURL("failure", ref),
		PendingURL:        s.backURL("pending", ref),
	})
	if err != nil {
		log.Errorw("payment_create_gateway_failed", "external_reference", ref, "dj_id", dj.ID, "error", err)
		return nil, fmt.Errorf("failed to create payment request: %w", err)
	}

	res := &CreatePaymentResult{
		PreferenceID:       pref.ID,
		ExternalReference:  ref,
		CheckoutURL:        pref.CheckoutURL,
		SandboxCheckoutURL: pref.SandboxCheckoutURL,
	}

	p, created, err := s.store.InsertPayment(ctx, &models.Payment{
		ID:                tool.GenerateUUIDV7(),
		DJID:              dj.ID,
		RecommendationID:  &rec.ID,
		Amount:            req.Amount,
		ExternalReference: ref,
		Status:            models.PaymentStatusPending,
	})
	if err != nil {
		log.Errorw("payment_create_insert_failed", "external_reference", ref, "preference_id", pref.ID, "error", err)
		return res, fmt.Errorf("failed to record payment %s: %w: %w", ref, ErrPersistence, err)
	}
	if !created && (p.DJID != dj.ID || !p.Amount.Equal(req.Amount)) {
		return nil, fmt.Errorf("%w: external_reference belongs to another payment", ErrValidation)
	}
	res.PaymentID = p.ID

	log.Infow("payment_created",
		"payment_id", p.ID,
		"external_reference", ref,
		"preference_id", pref.ID,
		"dj_id", dj.ID,
		"amount", req.Amount.String(),
		"retry", !created,
	)
	return res, nil
}
