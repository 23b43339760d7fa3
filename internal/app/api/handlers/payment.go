package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/tipy/internal/app/service/reconciliation"
	"github.com/fatflowers/tipy/pkg/logctx"
	"github.com/fatflowers/tipy/pkg/response"
)

const WebhookSecretHeader = "X-Webhook-Secret"

// PaymentService is the reconciliation surface used by the HTTP layer.
type PaymentService interface {
	CreatePayment(ctx context.Context, req *reconciliation.CreatePaymentRequest) (*reconciliation.CreatePaymentResult, error)
	GetPaymentStatus(ctx context.Context, ref, gatewayPaymentID string) (*reconciliation.PaymentStatusView, error)
	SyncPaymentStatus(ctx context.Context, ref, gatewayPaymentID string) (*reconciliation.PaymentStatusView, error)
	HandleWebhook(ctx context.Context, body []byte, secretHeader string) (*reconciliation.WebhookResult, error)
	RefundPayment(ctx context.Context, req *reconciliation.RefundRequest) (*reconciliation.RefundOutcome, error)
}

type SyncPaymentRequest struct {
	ExternalReference string `json:"external_reference" form:"external_reference"`
	PaymentID         string `json:"payment_id" form:"payment_id"`
}

// @Summary      Create Payment
// @Description  Opens a Mercado Pago checkout for a tip and records the pending payment. When the checkout was created but the local write failed, the response is 500 and data still carries the checkout; retry with the same external_reference.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body reconciliation.CreatePaymentRequest true "Tip to create"
// @Success      200  {object}  handlers.RespCreatePayment
// @Failure      400  {object}  handlers.RespOK
// @Failure      500  {object}  handlers.RespCreatePayment
// @Failure      503  {object}  handlers.RespOK
// @Router       /api/v1/payments [post]
func ApiCreatePayment(svc PaymentService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reconciliation.CreatePaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.CreatePayment(c.Request.Context(), &req)
		if err != nil {
			if errors.Is(err, reconciliation.ErrPersistence) && res != nil {
				writeErrorData(c, log, "payment_create_failed", err, res)
				return
			}
			writeError(c, log, "payment_create_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Get Payment Status
// @Description  Returns the stored payment and, when its gateway id is known, the live gateway status. Nothing is written.
// @Tags         Payment
// @Produce      json
// @Param        external_reference query string false "External reference"
// @Param        payment_id query string false "Mercado Pago payment id"
// @Success      200  {object}  handlers.RespPaymentStatus
// @Router       /api/v1/payments/status [get]
func ApiGetPaymentStatus(svc PaymentService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.GetPaymentStatus(c.Request.Context(), c.Query("external_reference"), c.Query("payment_id"))
		if err != nil {
			writeError(c, log, "payment_status_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Sync Payment Status
// @Description  Called by the checkout return pages. Fetches the authoritative status from the gateway and applies it like a webhook would.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body handlers.SyncPaymentRequest true "Payment to sync"
// @Success      200  {object}  handlers.RespPaymentStatus
// @Router       /api/v1/payments/sync [post]
func ApiSyncPaymentStatus(svc PaymentService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SyncPaymentRequest
		if err := c.ShouldBind(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.SyncPaymentStatus(c.Request.Context(), req.ExternalReference, req.PaymentID)
		if err != nil {
			writeError(c, log, "payment_sync_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Mercado Pago Webhook
// @Description  Receives Mercado Pago payment notifications. 4xx answers are final; 5xx answers ask Mercado Pago to redeliver.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        X-Webhook-Secret header string false "Shared webhook secret"
// @Param        payload body object true "Mercado Pago notification"
// @Success      200  {object}  handlers.RespWebhook
// @Failure      400  {object}  handlers.RespOK
// @Failure      401  {object}  handlers.RespOK
// @Failure      424  {object}  handlers.RespOK
// @Failure      500  {object}  handlers.RespOK
// @Router       /api/v1/webhooks/mercadopago [post]
func ApiMercadoPagoWebhook(svc PaymentService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		l := logctx.FromGin(c, log)
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			badRequest(c, err)
			return
		}
		l.Infow("webhook_mercadopago_received", "bytes", len(body))

		secret := c.GetHeader(WebhookSecretHeader)
		if secret == "" {
			secret = c.Query("secret")
		}
		res, err := svc.HandleWebhook(c.Request.Context(), body, secret)
		if err != nil {
			writeError(c, log, "webhook_mercadopago_handle_error", err)
			return
		}
		l.Infow("webhook_mercadopago_handled", "outcome", res.Outcome, "transitioned", res.Transitioned)
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Refund Payment (DJ)
// @Description  Refunds a tip and deletes the suggestion it paid for. The suggestion is deleted even when the refund fails.
// @Tags         DJ
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body reconciliation.RefundRequest true "Refund request"
// @Success      200  {object}  handlers.RespRefund
// @Failure      502  {object}  handlers.RespRefund
// @Router       /api/v1/dj/refunds [post]
func ApiRefundPayment(svc PaymentService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req reconciliation.RefundRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		req.DJID = djID(c)
		res, err := svc.RefundPayment(c.Request.Context(), &req)
		if err != nil {
			if res != nil {
				writeErrorData(c, log, "refund_failed", err, res)
				return
			}
			writeError(c, log, "refund_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterPaymentRoutes(r gin.IRouter, svc PaymentService, log *zap.SugaredLogger) {
	r.POST("/payments", ApiCreatePayment(svc, log))
	r.GET("/payments/status", ApiGetPaymentStatus(svc, log))
	r.POST("/payments/sync", ApiSyncPaymentStatus(svc, log))
	r.POST("/webhooks/mercadopago", ApiMercadoPagoWebhook(svc, log))
}

func RegisterDJPaymentRoutes(r gin.IRouter, svc PaymentService, log *zap.SugaredLogger) {
	r.POST("/refunds", ApiRefundPayment(svc, log))
}
