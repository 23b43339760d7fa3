package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/tipy/internal/app/service/earnings"
	"github.com/fatflowers/tipy/internal/app/service/withdrawal"
	"github.com/fatflowers/tipy/internal/models"
	"github.com/fatflowers/tipy/pkg/response"
)

type EarningsService interface {
	EarningsSummary(ctx context.Context, djID string, now time.Time) (*earnings.Summary, error)
	DailyEarnings(ctx context.Context, djID string, now time.Time, days int) ([]earnings.DailyEarningsItem, error)
	ListPayments(ctx context.Context, djID string, req *earnings.ListPaymentsRequest) (*earnings.ListPaymentsResponse, error)
}

type WithdrawalService interface {
	Preview(ctx context.Context, djID string) (*withdrawal.Quote, error)
	RequestWithdrawal(ctx context.Context, djID string, req *withdrawal.RequestWithdrawalRequest) (*models.Withdrawal, error)
	ListWithdrawals(ctx context.Context, djID string) ([]*models.Withdrawal, error)
}

type EarningsResponse struct {
	Summary *earnings.Summary            `json:"summary"`
	Daily   []earnings.DailyEarningsItem `json:"daily"`
}

type WithdrawalsResponse struct {
	Quote *withdrawal.Quote    `json:"quote"`
	Items []*models.Withdrawal `json:"items"`
}

// @Summary      Get Earnings (DJ)
// @Description  Approved tip totals overall, this week, this month and last month, plus daily totals.
// @Tags         DJ
// @Produce      json
// @Security     BearerAuth
// @Param        days query int false "Days of daily totals (default 30)"
// @Success      200  {object}  handlers.RespEarnings
// @Router       /api/v1/dj/earnings [get]
func ApiGetEarnings(svc EarningsService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		days := 0
		if v := c.Query("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, "invalid days"))
				return
			}
			days = n
		}
		now := time.Now()
		summary, err := svc.EarningsSummary(c.Request.Context(), djID(c), now)
		if err != nil {
			writeError(c, log, "earnings_summary_failed", err)
			return
		}
		daily, err := svc.DailyEarnings(c.Request.Context(), djID(c), now, days)
		if err != nil {
			writeError(c, log, "earnings_daily_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&EarningsResponse{Summary: summary, Daily: daily}))
	}
}

// @Summary      List Payments (DJ)
// @Tags         DJ
// @Produce      json
// @Security     BearerAuth
// @Param        status query string false "pending, approved, rejected or refunded"
// @Param        from query int false "Offset"
// @Param        size query int false "Page size (default 20, max 100)"
// @Success      200  {object}  handlers.RespDJPayments
// @Router       /api/v1/dj/payments [get]
func ApiListDJPayments(svc EarningsService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req earnings.ListPaymentsRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.ListPayments(c.Request.Context(), djID(c), &req)
		if err != nil {
			writeError(c, log, "dj_payments_list_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List Withdrawals (DJ)
// @Description  Lists past withdrawals together with a quote of what can be withdrawn now.
// @Tags         DJ
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespWithdrawals
// @Router       /api/v1/dj/withdrawals [get]
func ApiListWithdrawals(svc WithdrawalService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		quote, err := svc.Preview(c.Request.Context(), djID(c))
		if err != nil {
			writeError(c, log, "withdrawal_preview_failed", err)
			return
		}
		items, err := svc.ListWithdrawals(c.Request.Context(), djID(c))
		if err != nil {
			writeError(c, log, "withdrawal_list_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(&WithdrawalsResponse{Quote: quote, Items: items}))
	}
}

// @Summary      Request Withdrawal (DJ)
// @Description  Withdraws the whole available balance minus the platform fee.
// @Tags         DJ
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body withdrawal.RequestWithdrawalRequest true "Bank details"
// @Success      200  {object}  handlers.RespWithdrawal
// @Router       /api/v1/dj/withdrawals [post]
func ApiRequestWithdrawal(svc WithdrawalService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req withdrawal.RequestWithdrawalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.RequestWithdrawal(c.Request.Context(), djID(c), &req)
		if err != nil {
			writeError(c, log, "withdrawal_request_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterDJRoutes(r gin.IRouter, earn EarningsService, wd WithdrawalService, log *zap.SugaredLogger) {
	r.GET("/earnings", ApiGetEarnings(earn, log))
	r.GET("/payments", ApiListDJPayments(earn, log))
	r.GET("/withdrawals", ApiListWithdrawals(wd, log))
	r.POST("/withdrawals", ApiRequestWithdrawal(wd, log))
}
