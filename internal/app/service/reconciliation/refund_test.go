package reconciliation

import (
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/tipy/internal/models"
	"github.com/fatflowers/tipy/internal/platform/mercadopago"
)

func TestRefundPayment_UsesStoredGatewayID(t *testing.T) {
	store := newMemStore()
	store.addDJ("dj-1", 100, 500)
	store.addRecommendation("rec-1", "dj-1")
	store.addPayment("ref-1", "dj-1", 500, models.PaymentStatusApproved, lo.ToPtr("9001"))
	gw := newFakeGateway()
	svc := newTestService(t, store, gw)

	out, err := svc.RefundPayment(context.Background(), &RefundRequest{ExternalReference: "ref-1", RecommendationID: "rec-1", DJID: "dj-1"})
	require.NoError(t, err)
	require.Equal(t, "9001", out.GatewayPaymentID)
	require.Equal(t, resolvedByPayment, out.ResolvedBy)
	require.True(t, out.RecommendationDeleted)
	require.Equal(t, []string{"9001"}, gw.refunds)
	require.Zero(t, gw.searchCalls)

	require.Equal(t, models.PaymentStatusRefunded, store.payment("ref-1").Status)
	require.NotContains(t, store.recommendations, "rec-1")
	require.True(t, store.dj("dj-1").Balance.IsZero())
}

func TestRefundPayment_ThenRefundWebhookDebitsOnce(t *testing.T) {
	store := newMemStore()
	store.addDJ("dj-1", 100, 500)
	store.addPayment("ref-1", "dj-1", 500, models.PaymentStatusApproved, lo.ToPtr("9001"))
	gw := newFakeGateway()
	svc := newTestService(t, store, gw)

	_, err := svc.RefundPayment(context.Background(), &RefundRequest{GatewayPaymentID: "9001"})
	require.NoError(t, err)

	gw.setStatus("9001", "ref-1", models.PaymentStatusRefunded)
	res, err := svc.HandleWebhook(context.Background(), paymentWebhook("9001"), "s3cret")
	require.NoError(t, err)
	require.False(t, res.Transitioned)

	dj := store.dj("dj-1")
	require.True(t, dj.Balance.IsZero())
	require.True(t, dj.GananciasTotales.IsZero())
}

func TestRefundPayment_FallsBackToWebhookLog(t *testing.T) {
	store := newMemStore()
	store.addDJ("dj-1", 100, 0)
	store.addPayment("ref-1", "dj-1", 500, models.PaymentStatusApproved, nil)
	store.webhooks = append(store.webhooks,
		&models.MercadoPagoWebhook{PaymentID: "8000", ExternalReference: "ref-1", Status: "pending"},
		&models.MercadoPagoWebhook{PaymentID: "8001", ExternalReference: "ref-1", Status: "approved"},
	)
	gw := newFakeGateway()
	svc := newTestService(t, store, gw)

	out, err := svc.RefundPayment(context.Background(), &RefundRequest{ExternalReference: "ref-1"})
	require.NoError(t, err)
	require.Equal(t, "8001", out.GatewayPaymentID)
	require.Equal(t, resolvedByWebhook, out.ResolvedBy)
	require.Zero(t, gw.searchCalls)
	require.Equal(t, "8001", *store.payment("ref-1").MercadoPagoPaymentID)
}

func TestRefundPayment_FallsBackToGatewaySearch(t *testing.T) {
	store := newMemStore()
	store.addDJ("dj-1", 100, 0)
	store.addPayment("ref-1", "dj-1", 500, models.PaymentStatusPending, nil)
	gw := newFakeGateway()
	gw.search["ref-1"] = []*mercadopago.PaymentStatusSnapshot{
		{ID: "7001", ExternalReference: "ref-1", Status: "rejected"},
		{ID: "7002", ExternalReference: "ref-1", Status: "approved"},
	}
	svc := newTestService(t, store, gw)

	out, err := svc.RefundPayment(context.Background(), &RefundRequest{ExternalReference: "ref-1"})
	require.NoError(t, err)
	require.Equal(t, "7002", out.GatewayPaymentID)
	require.Equal(t, resolvedBySearch, out.ResolvedBy)
	require.Equal(t, 1, gw.searchCalls)
}

func TestRefundPayment_NothingResolvesMutatesNothing(t *testing.T) {
	store := newMemStore()
	store.addDJ("dj-1", 100, 500)
	store.addRecommendation("rec-1", "dj-1")
	store.addPayment("ref-1", "dj-1", 500, models.PaymentStatusApproved, nil)
	gw := newFakeGateway()
	svc := newTestService(t, store, gw)

	out, err := svc.RefundPayment(context.Background(), &RefundRequest{ExternalReference: "ref-1", RecommendationID: "rec-1"})
	require.Nil(t, out)
	require.ErrorIs(t, err, ErrPaymentNotFound)
	require.Equal(t, 1, gw.searchCalls)
	require.Empty(t, gw.refunds)
	require.Zero(t, store.writeCount())
	require.Contains(t, store.recommendations, "rec-1")
	require.Equal(t, models.PaymentStatusApproved, store.payment("ref-1").Status)
	require.Equal(t, "500", store.dj("dj-1").Balance.String())
}

func TestRefundPayment_GatewayFailureStillDeletesRecommendation(t *testing.T) {
	store := newMemStore()
	store.addDJ("dj-1", 100, 500)
	store.addRecommendation("rec-1", "dj-1")
	store.addPayment("ref-1", "dj-1", 500, models.PaymentStatusApproved, lo.ToPtr("9001"))
	gw := newFakeGateway()
	gw.refundErr = &mercadopago.RequestError{Op: "refund", StatusCode: 400, Body: `{"message":"insufficient funds"}`}
	svc := newTestService(t, store, gw)

	out, err := svc.RefundPayment(context.Background(), &RefundRequest{ExternalReference: "ref-1", RecommendationID: "rec-1"})
	require.ErrorIs(t, err, ErrRefund)
	require.ErrorIs(t, err, mercadopago.ErrGatewayRequest)
	require.NotNil(t, out)
	require.True(t, out.RecommendationDeleted)
	require.NotContains(t, store.recommendations, "rec-1")

	require.Equal(t, models.PaymentStatusApproved, store.payment("ref-1").Status)
	require.Equal(t, "500", store.dj("dj-1").Balance.String())
}

func TestRefundPayment_PartialKeepsStatus(t *testing.T) {
	store := newMemStore()
	store.addDJ("dj-1", 100, 500)
	store.addPayment("ref-1", "dj-1", 500, models.PaymentStatusApproved, lo.ToPtr("9001"))
	gw := newFakeGateway()
	svc := newTestService(t, store, gw)

	amount := decimal.NewFromInt(200)
	out, err := svc.RefundPayment(context.Background(), &RefundRequest{ExternalReference: "ref-1", Amount: &amount})
	require.NoError(t, err)
	require.Equal(t, "200", out.Refund.Amount.String())
	require.Equal(t, models.PaymentStatusApproved, store.payment("ref-1").Status)
	require.Equal(t, "500", store.dj("dj-1").Balance.String())
}

func TestRefundPayment_Validation(t *testing.T) {
	store := newMemStore()
	store.addDJ("dj-1", 100, 0)
	store.addDJ("dj-2", 100, 0)
	store.addRecommendation("rec-2", "dj-2")
	store.addPayment("ref-2", "dj-2", 500, models.PaymentStatusApproved, lo.ToPtr("9002"))
	svc := newTestService(t, store, newFakeGateway())
	ctx := context.Background()

	_, err := svc.RefundPayment(ctx, &RefundRequest{})
	require.ErrorIs(t, err, ErrValidation)

	zero := decimal.Zero
	_, err = svc.RefundPayment(ctx, &RefundRequest{GatewayPaymentID: "9002", Amount: &zero})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.RefundPayment(ctx, &RefundRequest{ExternalReference: "ref-2", DJID: "dj-1"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.RefundPayment(ctx, &RefundRequest{ExternalReference: "ref-2", RecommendationID: "rec-2", DJID: "dj-1"})
	require.ErrorIs(t, err, ErrNotFound)
	require.Contains(t, store.recommendations, "rec-2")
}

func TestRefundPayment_DJCannotRefundUnstoredGatewayIDOfAnotherDJ(t *testing.T) {
	store := newMemStore()
	store.addDJ("dj-1", 100, 500)
	store.addDJ("dj-2", 100, 0)
	store.addPayment("ref-1", "dj-1", 500, models.PaymentStatusApproved, nil)
	gw := newFakeGateway()
	gw.setStatus("9001", "ref-1", models.PaymentStatusApproved)
	svc := newTestService(t, store, gw)

	out, err := svc.RefundPayment(context.Background(), &RefundRequest{GatewayPaymentID: "9001", DJID: "dj-2"})
	require.Nil(t, out)
	require.ErrorIs(t, err, ErrNotFound)
	require.Empty(t, gw.refunds)
	require.Zero(t, store.writeCount())
	require.Equal(t, "500", store.dj("dj-1").Balance.String())
}

func TestRefundPayment_DJRefundsOwnUnstoredGatewayID(t *testing.T) {
	store := newMemStore()
	store.addDJ("dj-1", 100, 500)
	store.addPayment("ref-1", "dj-1", 500, models.PaymentStatusApproved, nil)
	gw := newFakeGateway()
	gw.setStatus("9001", "ref-1", models.PaymentStatusApproved)
	svc := newTestService(t, store, gw)

	out, err := svc.RefundPayment(context.Background(), &RefundRequest{GatewayPaymentID: "9001", DJID: "dj-1"})
	require.NoError(t, err)
	require.Equal(t, "ref-1", out.ExternalReference)
	require.Equal(t, []string{"9001"}, gw.refunds)
	require.Equal(t, models.PaymentStatusRefunded, store.payment("ref-1").Status)
	require.True(t, store.dj("dj-1").Balance.IsZero())
}

func TestRefundPayment_DJScopedRequiresLocalPayment(t *testing.T) {
	store := newMemStore()
	store.addDJ("dj-1", 100, 0)
	gw := newFakeGateway()
	gw.search["ref-x"] = []*mercadopago.PaymentStatusSnapshot{{ID: "7001", ExternalReference: "ref-x", Status: "approved"}}
	svc := newTestService(t, store, gw)
	ctx := context.Background()

	_, err := svc.RefundPayment(ctx, &RefundRequest{ExternalReference: "ref-x", DJID: "dj-1"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.RefundPayment(ctx, &RefundRequest{GatewayPaymentID: "unknown", DJID: "dj-1"})
	require.ErrorIs(t, err, ErrPaymentNotFound)
	require.Empty(t, gw.refunds)
}
