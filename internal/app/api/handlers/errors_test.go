package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fatflowers/tipy/internal/app/service/admin"
	"github.com/fatflowers/tipy/internal/app/service/earnings"
	"github.com/fatflowers/tipy/internal/app/service/reconciliation"
	"github.com/fatflowers/tipy/internal/platform/mercadopago"
)

func TestHttpError(t *testing.T) {
	rejected := &mercadopago.RequestError{Op: "create_preference", StatusCode: 400, Body: `{"message":"invalid items"}`}
	unavailable := &mercadopago.RequestError{Op: "create_preference", StatusCode: 502, Body: "bad gateway"}
	transport := &mercadopago.RequestError{Op: "create_preference", Err: errors.New("dial tcp: timeout")}

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"terminal gateway rejection", fmt.Errorf("failed to create payment request: %w", rejected), http.StatusBadGateway},
		{"retryable gateway status", fmt.Errorf("failed to create payment request: %w", unavailable), http.StatusServiceUnavailable},
		{"transport failure", fmt.Errorf("failed to create payment request: %w", transport), http.StatusServiceUnavailable},
		{"fetch failure wins over rejection", fmt.Errorf("%w 9001: %w", reconciliation.ErrGatewayFetch, rejected), http.StatusFailedDependency},
		{"refund rejected", fmt.Errorf("%w: payment 9001: %w", reconciliation.ErrRefund, unavailable), http.StatusBadGateway},
		{"gateway not configured", mercadopago.ErrGatewayConfig, http.StatusServiceUnavailable},
		{"unknown dj earnings", fmt.Errorf("dj dj-1: %w", earnings.ErrNotFound), http.StatusNotFound},
		{"invalid filter", fmt.Errorf("%w: field %q", admin.ErrInvalidFilter, "amount"), http.StatusBadRequest},
		{"unmapped", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _ := httpError(tc.err)
			require.Equal(t, tc.want, status)
		})
	}
}
