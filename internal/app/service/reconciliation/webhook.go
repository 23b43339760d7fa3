package reconciliation

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strconv"

	"gorm.io/datatypes"

	"github.com/fatflowers/tipy/internal/models"
	"github.com/fatflowers/tipy/pkg/logctx"
	"github.com/fatflowers/tipy/pkg/metrics"
)

const (
	notificationTypePayment = "payment"
	// selfTestPaymentID is the data.id the gateway uses for connectivity checks.
	selfTestPaymentID = "123456"
)

type WebhookOutcome string

const (
	WebhookOutcomeSelfTest  WebhookOutcome = "self_test"
	WebhookOutcomeIgnored   WebhookOutcome = "ignored"
	WebhookOutcomeProcessed WebhookOutcome = "processed"
)

type WebhookResult struct {
	Outcome           WebhookOutcome       `json:"outcome"`
	Type              string               `json:"type,omitempty"`
	PaymentID         string               `json:"payment_id,omitempty"`
	ExternalReference string               `json:"external_reference,omitempty"`
	Status            models.PaymentStatus `json:"status,omitempty"`
	Transitioned      bool                 `json:"transitioned"`
	// Superseded marks a notification for a gateway payment other than the
	// approved one already recorded for the reference.
	Superseded bool `json:"superseded,omitempty"`
}

// flexibleID accepts both "123" and 123.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("non-integer id %s", n)
	}
	*f = flexibleID(n.String())
	return nil
}

type webhookPayload struct {
	Type     string `json:"type"`
	Topic    string `json:"topic"`
	Action   string `json:"action"`
	LiveMode *bool  `json:"live_mode"`
	Data     struct {
		ID flexibleID `json:"id"`
	} `json:"data"`
}

func (p *webhookPayload) isSelfTest() bool {
	return (p.LiveMode != nil && !*p.LiveMode) || string(p.Data.ID) == selfTestPaymentID
}

func (p *webhookPayload) notificationType() string {
	if p.Type != "" {
		return p.Type
	}
	return p.Topic
}

func (s *Service) secretMatches(header string) bool {
	secret := s.cfg.MercadoPago.WebhookSecret
	if secret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(header)) == 1
}

// HandleWebhook reconciles one gateway notification. It never trusts the
// status in the body: the payment is re-fetched from the gateway and the
// result is applied through the store's atomic transition, so redelivered or
// reordered notifications move the DJ balance at most once per transition.
//
// Errors wrapping ErrPersistence happen after the audit write and should be
// answered with a 5xx so the gateway redelivers; all earlier errors are final.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, secretHeader string) (res *WebhookResult, err error) {
	log := logctx.FromCtx(ctx, s.log)
	defer func() {
		switch {
		case err != nil:
			metrics.IncWebhookOutcome("failed")
		case res != nil:
			metrics.IncWebhookOutcome(string(res.Outcome))
		}
	}()

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	if payload.isSelfTest() {
		log.Infow("webhook_mercadopago_self_test", "type", payload.notificationType(), "data_id", payload.Data.ID)
		return &WebhookResult{Outcome: WebhookOutcomeSelfTest, Type: payload.notificationType()}, nil
	}
	if !s.secretMatches(secretHeader) {
		log.Warnw("webhook_mercadopago_unauthorized", "type", payload.notificationType())
		return nil, ErrUnauthorized
	}
	if payload.notificationType() != notificationTypePayment {
		log.Infow("webhook_mercadopago_ignored", "type", payload.notificationType(), "action", payload.Action)
		return &WebhookResult{Outcome: WebhookOutcomeIgnored, Type: payload.notificationType()}, nil
	}
	paymentID := string(payload.Data.ID)
	if paymentID == "" {
		return nil, fmt.Errorf("%w: missing data.id", ErrMalformedPayload)
	}

	snap, err := s.gw.GetPaymentStatus(ctx, paymentID)
	if err != nil {
		log.Errorw("webhook_mercadopago_fetch_failed", "payment_id", paymentID, "error", err)
		return nil, fmt.Errorf("%w %s: %w", ErrGatewayFetch, paymentID, err)
	}
	if snap.ExternalReference == "" {
		log.Errorw("webhook_mercadopago_incomplete", "payment_id", paymentID, "status", snap.Status)
		return nil, fmt.Errorf("%w: payment %s", ErrIncompletePaymentData, paymentID)
	}
	status := models.PaymentStatus(snap.Status)

	if err := s.store.AppendWebhook(ctx, &models.MercadoPagoWebhook{
		PaymentID:         paymentID,
		ExternalReference: snap.ExternalReference,
		Status:            snap.Status,
		WebhookData:       datatypes.JSON(body),
		TraceID:           logctx.TraceID(ctx),
	}); err != nil {
		log.Errorw("webhook_mercadopago_audit_failed", "payment_id", paymentID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	tr, err := s.store.ApplyPaymentStatus(ctx, snap.ExternalReference, status, paymentID)
	if err != nil {
		// A missing row usually means the creation insert has not landed yet;
		// the gateway will redeliver.
		log.Errorw("webhook_mercadopago_apply_failed", "payment_id", paymentID, "external_reference", snap.ExternalReference, "not_found", isNotFound(err), "error", err)
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	observeTransition(tr)

	log.Infow("webhook_mercadopago_processed",
		"payment_id", paymentID,
		"external_reference", snap.ExternalReference,
		"from", tr.From,
		"to", tr.To,
		"delta", tr.BalanceDelta().String(),
	)
	return &WebhookResult{
		Outcome:           WebhookOutcomeProcessed,
		Type:              notificationTypePayment,
		PaymentID:         paymentID,
		ExternalReference: snap.ExternalReference,
		Status:            status,
		Transitioned:      tr.Changed(),
		Superseded:        tr.Superseded,
	}, nil
}
