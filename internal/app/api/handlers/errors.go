package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/tipy/internal/app/service/admin"
	"github.com/fatflowers/tipy/internal/app/service/earnings"
	"github.com/fatflowers/tipy/internal/app/service/reconciliation"
	"github.com/fatflowers/tipy/internal/app/service/suggestion"
	"github.com/fatflowers/tipy/internal/app/service/withdrawal"
	"github.com/fatflowers/tipy/internal/platform/mercadopago"
	"github.com/fatflowers/tipy/pkg/logctx"
	"github.com/fatflowers/tipy/pkg/response"
)

type errorMapping struct {
	targets []error
	// match, when set, is checked after targets.
	match  func(error) bool
	status int
	code   response.APIResponseCode
}

// terminalGatewayError matches a gateway answer that repeating the call will
// not change, such as a rejected preference.
func terminalGatewayError(err error) bool {
	re, ok := mercadopago.IsRequestError(err)
	return ok && !re.Retryable()
}

// errorMappings is evaluated in order; the first match wins.
var errorMappings = []errorMapping{
	{targets: []error{reconciliation.ErrUnauthorized}, status: http.StatusUnauthorized, code: response.APIResponseCodeUnauthorized},
	{targets: []error{
		reconciliation.ErrValidation,
		reconciliation.ErrMalformedPayload,
		reconciliation.ErrIncompletePaymentData,
		suggestion.ErrValidation,
		withdrawal.ErrValidation,
		withdrawal.ErrBelowMinimum,
		admin.ErrInvalidSort,
		admin.ErrInvalidFilter,
		mercadopago.ErrInvalidPaymentID,
	}, status: http.StatusBadRequest, code: response.APIResponseCodeBadRequest},
	{targets: []error{
		reconciliation.ErrNotFound,
		reconciliation.ErrPaymentNotFound,
		suggestion.ErrNotFound,
		withdrawal.ErrNotFound,
		earnings.ErrNotFound,
	}, status: http.StatusNotFound, code: response.APIResponseCodeNotFound},
	{targets: []error{suggestion.ErrQRCodeInactive, withdrawal.ErrAlreadyProcessed}, status: http.StatusConflict, code: response.APIResponseCodeConflict},
	{targets: []error{reconciliation.ErrGatewayFetch}, status: http.StatusFailedDependency, code: response.APIResponseCodeUnavailable},
	{targets: []error{reconciliation.ErrRefund}, match: terminalGatewayError, status: http.StatusBadGateway, code: response.APIResponseCodeUnavailable},
	{targets: []error{
		mercadopago.ErrGatewayConfig,
		mercadopago.ErrGatewayRequest,
		mercadopago.ErrGatewayResponse,
	}, status: http.StatusServiceUnavailable, code: response.APIResponseCodeUnavailable},
}

// httpError maps a service error to its HTTP status and envelope code.
func httpError(err error) (int, response.APIResponseCode) {
	for _, m := range errorMappings {
		for _, target := range m.targets {
			if errors.Is(err, target) {
				return m.status, m.code
			}
		}
		if m.match != nil && m.match(err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.APIResponseCodeError
}

func writeError(c *gin.Context, log *zap.SugaredLogger, event string, err error) {
	writeErrorData[any](c, log, event, err, nil)
}

// writeErrorData answers with the mapped status. data, when set, replaces
// the error message in the envelope.
func writeErrorData[T any](c *gin.Context, log *zap.SugaredLogger, event string, err error, data *T) {
	status, code := httpError(err)
	l := logctx.FromGin(c, log)
	if status >= http.StatusInternalServerError {
		l.Errorw(event, "status", status, "error", err)
	} else {
		l.Infow(event, "status", status, "error", err)
	}
	if data != nil {
		c.JSON(status, &response.APIResponse[*T]{Code: code, Message: err.Error(), Data: data})
		return
	}
	c.JSON(status, response.ErrorT[any](code, err.Error()))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
}

func djID(c *gin.Context) string {
	return c.GetString(logctx.GinDJIDKey)
}
