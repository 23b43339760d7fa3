package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/tipy/internal/app/service/admin"
	"github.com/fatflowers/tipy/internal/app/service/suggestion"
	"github.com/fatflowers/tipy/internal/models"
	"github.com/fatflowers/tipy/pkg/response"
)

type AdminScanner interface {
	ScanPayments(ctx context.Context, req *admin.ScanRequest) (*admin.ScanResponse[models.Payment], error)
	ScanWebhooks(ctx context.Context, req *admin.ScanRequest) (*admin.ScanResponse[models.MercadoPagoWebhook], error)
}

type BalanceRebuilder interface {
	RebuildBalances(ctx context.Context) (int64, error)
}

type SuggestionExpirer interface {
	ExpireSuggestions(ctx context.Context, now time.Time) (*suggestion.ExpireResult, error)
}

type WithdrawalProcessor interface {
	ProcessWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error)
}

type ProcessWithdrawalRequest struct {
	WithdrawalID string `json:"withdrawal_id" binding:"required"`
}

type RebuildBalancesResponse struct {
	Updated int64 `json:"updated"`
}

// @Summary      List Payments (Admin)
// @Description  Retrieves a paginated and filterable list of payments.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     AdminToken
// @Param        request body admin.ScanRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespAdminPayments
// @Router       /api/v1/admin/list_payments [post]
func ApiAdminListPayments(svc AdminScanner, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req admin.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.ScanPayments(c.Request.Context(), &req)
		if err != nil {
			writeError(c, log, "admin_list_payments_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List Webhooks (Admin)
// @Description  Retrieves the Mercado Pago notification audit log.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     AdminToken
// @Param        request body admin.ScanRequest true "Filters, pagination and sorting"
// @Success      200  {object}  handlers.RespAdminWebhooks
// @Router       /api/v1/admin/list_webhooks [post]
func ApiAdminListWebhooks(svc AdminScanner, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req admin.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.ScanWebhooks(c.Request.Context(), &req)
		if err != nil {
			writeError(c, log, "admin_list_webhooks_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Rebuild Balances (Admin)
// @Description  Recomputes every DJ's balance and lifetime earnings from approved payments and withdrawals.
// @Tags         Admin
// @Produce      json
// @Security     AdminToken
// @Success      200  {object}  handlers.RespRebuildBalances
// @Router       /api/v1/admin/rebuild_balances [post]
func ApiAdminRebuildBalances(svc BalanceRebuilder, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := svc.RebuildBalances(c.Request.Context())
		if err != nil {
			writeError(c, log, "admin_rebuild_balances_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&RebuildBalancesResponse{Updated: n}))
	}
}

// @Summary      Expire Suggestions (Admin)
// @Description  Marks expired suggestions and rejects them for DJs with auto rejection enabled.
// @Tags         Admin
// @Produce      json
// @Security     AdminToken
// @Success      200  {object}  handlers.RespExpireSuggestions
// @Router       /api/v1/admin/expire_suggestions [post]
func ApiAdminExpireSuggestions(svc SuggestionExpirer, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.ExpireSuggestions(c.Request.Context(), time.Now())
		if err != nil {
			writeError(c, log, "admin_expire_suggestions_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Process Withdrawal (Admin)
// @Description  Marks a pending withdrawal as paid out.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     AdminToken
// @Param        request body handlers.ProcessWithdrawalRequest true "Withdrawal to process"
// @Success      200  {object}  handlers.RespWithdrawal
// @Router       /api/v1/admin/process_withdrawal [post]
func ApiAdminProcessWithdrawal(svc WithdrawalProcessor, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProcessWithdrawalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.ProcessWithdrawal(c.Request.Context(), req.WithdrawalID)
		if err != nil {
			writeError(c, log, "admin_process_withdrawal_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, scan AdminScanner, rebuild BalanceRebuilder, expire SuggestionExpirer, wd WithdrawalProcessor, log *zap.SugaredLogger) {
	r.POST("/list_payments", ApiAdminListPayments(scan, log))
	r.POST("/list_webhooks", ApiAdminListWebhooks(scan, log))
	r.POST("/rebuild_balances", ApiAdminRebuildBalances(rebuild, log))
	r.POST("/expire_suggestions", ApiAdminExpireSuggestions(expire, log))
	r.POST("/process_withdrawal", ApiAdminProcessWithdrawal(wd, log))
}
