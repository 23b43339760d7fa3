package mercadopago

import (
	"errors"
	"fmt"
)

var (
	// ErrGatewayConfig means no access token is configured.
	ErrGatewayConfig = errors.New("mercadopago: gateway not configured")
	// ErrGatewayRequest matches every *RequestError.
	ErrGatewayRequest = errors.New("mercadopago: request failed")
	// ErrGatewayResponse means a 2xx response lacked required fields.
	ErrGatewayResponse  = errors.New("mercadopago: incomplete response")
	ErrInvalidPaymentID = errors.New("mercadopago: invalid payment id")
)

// RequestError is a non-2xx answer from the gateway, or a transport failure
// when StatusCode is zero.
type RequestError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("mercadopago %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("mercadopago %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Is(target error) bool { return target == ErrGatewayRequest }

// Retryable reports whether repeating the call may succeed.
func (e *RequestError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}
