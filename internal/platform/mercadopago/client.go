package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	mpconfig "github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/mercadopago/sdk-go/pkg/refund"
	"github.com/mercadopago/sdk-go/pkg/requester"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	cfgpkg "github.com/fatflowers/tipy/pkg/config"
	"github.com/fatflowers/tipy/pkg/logctx"
	"github.com/fatflowers/tipy/pkg/metrics"
	"github.com/fatflowers/tipy/pkg/tool"
)

const (
	autoReturnApproved  = "approved"
	excludedPaymentType = "atm"
	metricType          = "mercadopago"
)

// Settings are the static parameters sent with every preference.
type Settings struct {
	AccessToken         string
	NotificationURL     string
	CurrencyID          string
	StatementDescriptor string
	RequestTimeout      time.Duration
}

// PaymentRequest describes one checkout preference.
type PaymentRequest struct {
	Title             string
	Amount            decimal.Decimal
	Quantity          int
	ExternalReference string
	SuccessURL        string
	FailureURL        string
	PendingURL        string
}

type Preference struct {
	ID                 string `json:"id"`
	CheckoutURL        string `json:"checkout_url"`
	SandboxCheckoutURL string `json:"sandbox_checkout_url"`
	ExternalReference  string `json:"external_reference"`
}

// PaymentStatusSnapshot is the authoritative state of a payment at the gateway.
type PaymentStatusSnapshot struct {
	ID                string          `json:"id"`
	Status            string          `json:"status"`
	ExternalReference string          `json:"external_reference"`
	Amount            decimal.Decimal `json:"amount"`
	RawPayload        json.RawMessage `json:"raw_payload"`
}

type RefundResult struct {
	RefundID  string          `json:"refund_id"`
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// Client wraps the Mercado Pago SDK. A Client built without an access token
// is valid but every call fails with ErrGatewayConfig.
type Client struct {
	settings    Settings
	preferences preference.Client
	payments    payment.Client
	refunds     refund.Client
	log         *zap.SugaredLogger
	now         func() time.Time
}

func NewClient(cfg *cfgpkg.Config, log *zap.SugaredLogger) (*Client, error) {
	s := Settings{
		AccessToken:         cfg.MercadoPago.AccessToken,
		NotificationURL:     cfg.WebhookURL(),
		CurrencyID:          cfg.MercadoPago.CurrencyID,
		StatementDescriptor: cfg.MercadoPago.StatementDescriptor,
		RequestTimeout:      cfg.MercadoPago.RequestTimeout,
	}
	c, err := New(s, &http.Client{Timeout: s.RequestTimeout}, log)
	if err != nil {
		return nil, err
	}
	if s.AccessToken == "" {
		log.Warnw("mercadopago_not_configured")
	} else {
		log.Infow("mercadopago_client_initialized", "currency", s.CurrencyID, "notification_url", s.NotificationURL)
	}
	return c, nil
}

// New builds a Client on top of an arbitrary HTTP requester.
func New(s Settings, httpClient requester.Requester, log *zap.SugaredLogger) (*Client, error) {
	c := &Client{settings: s, log: log, now: time.Now}
	if s.AccessToken == "" {
		return c, nil
	}
	sdkCfg, err := mpconfig.New(s.AccessToken, mpconfig.WithHTTPClient(newTransport(httpClient)))
	if err != nil {
		return nil, fmt.Errorf("failed to create mercadopago config: %w", err)
	}
	c.preferences = preference.NewClient(sdkCfg)
	c.payments = payment.NewClient(sdkCfg)
	c.refunds = refund.NewClient(sdkCfg)
	return c, nil
}

func (c *Client) configured() bool {
	return c != nil && c.preferences != nil && c.payments != nil && c.refunds != nil
}

func (c *Client) call(ctx context.Context) (context.Context, context.CancelFunc, *exchange) {
	if c.settings.RequestTimeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, c.settings.RequestTimeout)
		ctx, ex := withExchange(ctx)
		return ctx, cancel, ex
	}
	ctx, ex := withExchange(ctx)
	return ctx, func() {}, ex
}

func requestError(op string, ex *exchange, err error) error {
	if ex != nil && ex.failed() {
		return &RequestError{Op: op, StatusCode: ex.statusCode, Body: string(ex.body), Err: err}
	}
	return &RequestError{Op: op, Err: err}
}

// CreatePaymentRequest creates a checkout preference. The external reference
// doubles as the idempotency key, so retrying with the same reference never
// creates a second intent at the gateway.
func (c *Client) CreatePaymentRequest(ctx context.Context, req *PaymentRequest) (*Preference, error) {
	if !c.configured() {
		return nil, ErrGatewayConfig
	}
	if req == nil || req.ExternalReference == "" {
		return nil, fmt.Errorf("create preference: missing external reference")
	}
	start := time.Now()
	defer metrics.ObserveBusinessProcess(metricType, "create_preference", start)

	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	body := preference.Request{
		Items: []preference.ItemRequest{{
			ID:         req.ExternalReference,
			Title:      req.Title,
			Quantity:   quantity,
			UnitPrice:  req.Amount.InexactFloat64(),
			CurrencyID: c.settings.CurrencyID,
		}},
		BackURLs: &preference.BackURLsRequest{
			Success: req.SuccessURL,
			Failure: req.FailureURL,
			Pending: req.PendingURL,
		},
		AutoReturn:          autoReturnApproved,
		ExternalReference:   req.ExternalReference,
		NotificationURL:     c.settings.NotificationURL,
		StatementDescriptor: c.settings.StatementDescriptor,
		PaymentMethods: &preference.PaymentMethodsRequest{
			ExcludedPaymentTypes: []preference.ExcludedPaymentTypeRequest{{ID: excludedPaymentType}},
			Installments:         1,
		},
	}

	ctx, cancel, ex := c.call(withIdempotencyKey(ctx, req.ExternalReference))
	defer cancel()
	res, err := c.preferences.Create(ctx, body)
	if err != nil {
		logctx.FromCtx(ctx, c.log).Errorw("mercadopago_create_preference_failed", "external_reference", req.ExternalReference, "status", ex.statusCode, "error", err)
		return nil, requestError("create_preference", ex, err)
	}
	if res == nil || res.ID == "" || res.InitPoint == "" {
		return nil, fmt.Errorf("%w: preference without id or init_point", ErrGatewayResponse)
	}

	ref := res.ExternalReference
	if ref == "" {
		ref = req.ExternalReference
	}
	logctx.FromCtx(ctx, c.log).Infow("mercadopago_preference_created", "preference_id", res.ID, "external_reference", ref)
	return &Preference{
		ID:                 res.ID,
		CheckoutURL:        res.InitPoint,
		SandboxCheckoutURL: res.SandboxInitPoint,
		ExternalReference:  ref,
	}, nil
}

// GetPaymentStatus fetches the current state of a gateway payment.
func (c *Client) GetPaymentStatus(ctx context.Context, gatewayPaymentID string) (*PaymentStatusSnapshot, error) {
	if !c.configured() {
		return nil, ErrGatewayConfig
	}
	id, err := parsePaymentID(gatewayPaymentID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer metrics.ObserveBusinessProcess(metricType, "get_payment", start)

	ctx, cancel, ex := c.call(ctx)
	defer cancel()
	res, err := c.payments.Get(ctx, id)
	if err != nil {
		logctx.FromCtx(ctx, c.log).Errorw("mercadopago_get_payment_failed", "payment_id", gatewayPaymentID, "status", ex.statusCode, "error", err)
		return nil, requestError("get_payment", ex, err)
	}
	if res == nil || res.ID == 0 {
		return nil, fmt.Errorf("%w: payment without id", ErrGatewayResponse)
	}
	return snapshotOf(res, ex.body), nil
}

// SearchByExternalReference lists gateway payments carrying ref, newest first.
func (c *Client) SearchByExternalReference(ctx context.Context, ref string) ([]*PaymentStatusSnapshot, error) {
	if !c.configured() {
		return nil, ErrGatewayConfig
	}
	start := time.Now()
	defer metrics.ObserveBusinessProcess(metricType, "search_payment", start)

	ctx, cancel, ex := c.call(ctx)
	defer cancel()
	res, err := c.payments.Search(ctx, payment.SearchRequest{
		Limit: 10,
		Filters: map[string]string{
			"external_reference": ref,
			"sort":               "date_created",
			"criteria":           "desc",
		},
	})
	if err != nil {
		logctx.FromCtx(ctx, c.log).Errorw("mercadopago_search_payment_failed", "external_reference", ref, "status", ex.statusCode, "error", err)
		return nil, requestError("search_payment", ex, err)
	}
	if res == nil {
		return nil, nil
	}
	out := make([]*PaymentStatusSnapshot, 0, len(res.Results))
	for i := range res.Results {
		if res.Results[i].ID == 0 {
			continue
		}
		raw, _ := json.Marshal(res.Results[i])
		out = append(out, snapshotOf(&res.Results[i], raw))
	}
	return out, nil
}

// IssueRefund refunds a gateway payment in full, or partially when amount is
// set. Every call uses a fresh idempotency key.
func (c *Client) IssueRefund(ctx context.Context, gatewayPaymentID string, amount *decimal.Decimal) (*RefundResult, error) {
	if !c.configured() {
		return nil, ErrGatewayConfig
	}
	id, err := parsePaymentID(gatewayPaymentID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	defer metrics.ObserveBusinessProcess(metricType, "refund", start)

	key := tool.RefundIdempotencyKey(gatewayPaymentID, c.now())
	ctx, cancel, ex := c.call(withIdempotencyKey(ctx, key))
	defer cancel()

	var res *refund.Response
	if amount != nil && amount.IsPositive() {
		res, err = c.refunds.CreatePartialRefund(ctx, id, amount.InexactFloat64())
	} else {
		res, err = c.refunds.Create(ctx, id)
	}
	if err != nil {
		logctx.FromCtx(ctx, c.log).Errorw("mercadopago_refund_failed", "payment_id", gatewayPaymentID, "status", ex.statusCode, "error", err)
		return nil, requestError("refund", ex, err)
	}
	if res == nil || res.ID == 0 {
		return nil, fmt.Errorf("%w: refund without id", ErrGatewayResponse)
	}
	logctx.FromCtx(ctx, c.log).Infow("mercadopago_refund_created", "payment_id", gatewayPaymentID, "refund_id", res.ID, "idempotency_key", key)

	paymentID := gatewayPaymentID
	if res.PaymentID != 0 {
		paymentID = strconv.Itoa(res.PaymentID)
	}
	return &RefundResult{
		RefundID:  strconv.Itoa(res.ID),
		PaymentID: paymentID,
		Amount:    decimal.NewFromFloat(res.Amount),
	}, nil
}

func parsePaymentID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPaymentID, s)
	}
	return id, nil
}

func snapshotOf(res *payment.Response, raw []byte) *PaymentStatusSnapshot {
	return &PaymentStatusSnapshot{
		ID:                strconv.Itoa(res.ID),
		Status:            res.Status,
		ExternalReference: res.ExternalReference,
		Amount:            decimal.NewFromFloat(res.TransactionAmount),
		RawPayload:        json.RawMessage(raw),
	}
}

// IsRequestError reports whether err carries a gateway status code.
func IsRequestError(err error) (*RequestError, bool) {
	var re *RequestError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
