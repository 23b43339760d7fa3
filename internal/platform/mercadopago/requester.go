package mercadopago

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/mercadopago/sdk-go/pkg/requester"
)

const IdempotencyHeader = "X-Idempotency-Key"

type idempotencyCtxKey struct{}
type exchangeCtxKey struct{}

// exchange captures the last raw response seen for one SDK call.
type exchange struct {
	statusCode int
	body       []byte
}

func (e *exchange) failed() bool {
	return e.statusCode != 0 && (e.statusCode < 200 || e.statusCode > 299)
}

func withIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyCtxKey{}, key)
}

func withExchange(ctx context.Context) (context.Context, *exchange) {
	ex := &exchange{}
	return context.WithValue(ctx, exchangeCtxKey{}, ex), ex
}

// transport sits between the SDK and the HTTP client. It pins the
// idempotency key chosen by the caller and records the raw response so
// failures keep their status code and body.
type transport struct {
	next requester.Requester
}

func newTransport(next requester.Requester) *transport {
	if next == nil {
		next = http.DefaultClient
	}
	return &transport{next: next}
}

func (t *transport) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if key, ok := ctx.Value(idempotencyCtxKey{}).(string); ok && key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	resp, err := t.next.Do(req)
	if err != nil || resp == nil {
		return resp, err
	}
	ex, ok := ctx.Value(exchangeCtxKey{}).(*exchange)
	if !ok {
		return resp, nil
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	ex.statusCode = resp.StatusCode
	ex.body = body
	return resp, nil
}
