package handlers

import (
	"github.com/fatflowers/tipy/internal/app/service/admin"
	"github.com/fatflowers/tipy/internal/app/service/earnings"
	"github.com/fatflowers/tipy/internal/app/service/reconciliation"
	"github.com/fatflowers/tipy/internal/app/service/suggestion"
	"github.com/fatflowers/tipy/internal/models"
	"github.com/fatflowers/tipy/pkg/response"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

type RespCreatePayment struct {
	Code    response.APIResponseCode           `json:"code"`
	Message string                             `json:"message"`
	Data    reconciliation.CreatePaymentResult `json:"data"`
}

type RespPaymentStatus struct {
	Code    response.APIResponseCode         `json:"code"`
	Message string                           `json:"message"`
	Data    reconciliation.PaymentStatusView `json:"data"`
}

type RespWebhook struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    reconciliation.WebhookResult `json:"data"`
}

type RespRefund struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    reconciliation.RefundOutcome `json:"data"`
}

type RespQRCode struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    suggestion.QRCodeView    `json:"data"`
}

type RespRecommendation struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Recommendation    `json:"data"`
}

type RespSuggestions struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    []*suggestion.SuggestionItem `json:"data"`
}

type RespReject struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    suggestion.RejectResult  `json:"data"`
}

type RespSuggestionConfig struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.SuggestionConfig  `json:"data"`
}

type RespEarnings struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    EarningsResponse         `json:"data"`
}

type RespDJPayments struct {
	Code    response.APIResponseCode      `json:"code"`
	Message string                        `json:"message"`
	Data    earnings.ListPaymentsResponse `json:"data"`
}

type RespWithdrawals struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    WithdrawalsResponse      `json:"data"`
}

type RespWithdrawal struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.Withdrawal        `json:"data"`
}

type RespAdminPayments struct {
	Code    response.APIResponseCode           `json:"code"`
	Message string                             `json:"message"`
	Data    admin.ScanResponse[models.Payment] `json:"data"`
}

type RespAdminWebhooks struct {
	Code    response.APIResponseCode                      `json:"code"`
	Message string                                        `json:"message"`
	Data    admin.ScanResponse[models.MercadoPagoWebhook] `json:"data"`
}

type RespRebuildBalances struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    RebuildBalancesResponse  `json:"data"`
}

type RespExpireSuggestions struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    suggestion.ExpireResult  `json:"data"`
}
