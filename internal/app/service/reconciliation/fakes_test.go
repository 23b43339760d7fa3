package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/tipy/internal/models"
	"github.com/fatflowers/tipy/internal/platform/mercadopago"
	"github.com/fatflowers/tipy/pkg/config"
)

// memStore keeps everything in maps behind one mutex, which makes
// ApplyPaymentStatus atomic like the row-locking implementation.
type memStore struct {
	mu              sync.Mutex
	djs             map[string]*models.DJ
	recommendations map[string]*models.Recommendation
	payments        map[string]*models.Payment
	webhooks        []*models.MercadoPagoWebhook
	writes          int

	insertErr error
	appendErr error
}

func newMemStore() *memStore {
	return &memStore{
		djs:             map[string]*models.DJ{},
		recommendations: map[string]*models.Recommendation{},
		payments:        map[string]*models.Payment{},
	}
}

func (m *memStore) addDJ(id string, minTip, balance int64) *models.DJ {
	dj := &models.DJ{
		ID:               id,
		DisplayName:      "DJ " + id,
		MinTipAmount:     decimal.NewFromInt(minTip),
		Balance:          decimal.NewFromInt(balance),
		GananciasTotales: decimal.NewFromInt(balance),
	}
	m.djs[id] = dj
	return dj
}

func (m *memStore) addRecommendation(id, djID string) {
	m.recommendations[id] = &models.Recommendation{ID: id, DJID: djID, ClientID: "client-1"}
}

func (m *memStore) addPayment(ref, djID string, amount int64, status models.PaymentStatus, gatewayID *string) {
	m.payments[ref] = &models.Payment{
		ID:                   "pay-" + ref,
		DJID:                 djID,
		Amount:               decimal.NewFromInt(amount),
		ExternalReference:    ref,
		MercadoPagoPaymentID: gatewayID,
		Status:               status,
	}
}

func (m *memStore) dj(id string) models.DJ {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.djs[id]
}

func (m *memStore) payment(ref string) *models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[ref]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, gorm.ErrRecordNotFound)
}

func (m *memStore) GetDJ(_ context.Context, id string) (*models.DJ, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dj, ok := m.djs[id]
	if !ok {
		return nil, notFound("dj")
	}
	cp := *dj
	return &cp, nil
}

func (m *memStore) GetRecommendation(_ context.Context, id string) (*models.Recommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recommendations[id]
	if !ok {
		return nil, notFound("recommendation")
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) InsertPayment(_ context.Context, p *models.Payment) (*models.Payment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return nil, false, m.insertErr
	}
	if existing, ok := m.payments[p.ExternalReference]; ok {
		cp := *existing
		return &cp, false, nil
	}
	m.writes++
	cp := *p
	m.payments[p.ExternalReference] = &cp
	return p, true, nil
}

func (m *memStore) GetPaymentByExternalReference(_ context.Context, ref string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[ref]
	if !ok {
		return nil, notFound("payment")
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetPaymentByGatewayID(_ context.Context, gatewayPaymentID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.MercadoPagoPaymentID != nil && *p.MercadoPagoPaymentID == gatewayPaymentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, notFound("payment")
}

func (m *memStore) ApplyPaymentStatus(_ context.Context, ref string, status models.PaymentStatus, gatewayPaymentID string) (*models.StatusTransition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[ref]
	if !ok {
		return nil, notFound("payment")
	}
	tr := &models.StatusTransition{PaymentID: p.ID, DJID: p.DJID, ExternalReference: ref, Amount: p.Amount, From: p.Status, To: status}
	if p.SupersededBy(gatewayPaymentID) {
		tr.To = p.Status
		tr.Superseded = true
		return tr, nil
	}
	m.writes++
	p.Status = status
	if gatewayPaymentID != "" {
		id := gatewayPaymentID
		p.MercadoPagoPaymentID = &id
	}
	if dj, ok := m.djs[p.DJID]; ok {
		delta := tr.BalanceDelta()
		dj.GananciasTotales = decimal.Max(decimal.Zero, dj.GananciasTotales.Add(delta))
		dj.Balance = decimal.Max(decimal.Zero, dj.Balance.Add(delta))
	}
	return tr, nil
}

func (m *memStore) SetGatewayPaymentID(_ context.Context, ref, gatewayPaymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.payments[ref]; ok && p.MercadoPagoPaymentID == nil {
		m.writes++
		id := gatewayPaymentID
		p.MercadoPagoPaymentID = &id
	}
	return nil
}

func (m *memStore) AppendWebhook(_ context.Context, w *models.MercadoPagoWebhook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.writes++
	w.CreatedAt = time.Now()
	m.webhooks = append(m.webhooks, w)
	return nil
}

func (m *memStore) LatestWebhookForReference(_ context.Context, ref string) (*models.MercadoPagoWebhook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.webhooks) - 1; i >= 0; i-- {
		if m.webhooks[i].ExternalReference == ref {
			return m.webhooks[i], nil
		}
	}
	return nil, notFound("webhook")
}

func (m *memStore) DeleteRecommendation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recommendations[id]; !ok {
		return notFound("recommendation")
	}
	m.writes++
	delete(m.recommendations, id)
	return nil
}

// fakeGateway behaves like the gateway with respect to idempotency keys:
// creating twice with one external reference yields one preference.
type fakeGateway struct {
	mu          sync.Mutex
	preferences map[string]*mercadopago.Preference
	createCalls int
	lastCreate  *mercadopago.PaymentRequest
	statuses    map[string]*mercadopago.PaymentStatusSnapshot
	search      map[string][]*mercadopago.PaymentStatusSnapshot
	searchCalls int
	refunds     []string
	statusCalls int

	createErr error
	statusErr error
	refundErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		preferences: map[string]*mercadopago.Preference{},
		statuses:    map[string]*mercadopago.PaymentStatusSnapshot{},
		search:      map[string][]*mercadopago.PaymentStatusSnapshot{},
	}
}

func (g *fakeGateway) setStatus(id, ref string, status models.PaymentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[id] = &mercadopago.PaymentStatusSnapshot{ID: id, ExternalReference: ref, Status: string(status)}
}

func (g *fakeGateway) CreatePaymentRequest(_ context.Context, req *mercadopago.PaymentRequest) (*mercadopago.Preference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	g.lastCreate = req
	if g.createErr != nil {
		return nil, g.createErr
	}
	if p, ok := g.preferences[req.ExternalReference]; ok {
		return p, nil
	}
	p := &mercadopago.Preference{
		ID:                fmt.Sprintf("pref-%d", len(g.preferences)+1),
		CheckoutURL:       "https://mp.example/checkout/" + req.ExternalReference,
		ExternalReference: req.ExternalReference,
	}
	g.preferences[req.ExternalReference] = p
	return p, nil
}

func (g *fakeGateway) GetPaymentStatus(_ context.Context, id string) (*mercadopago.PaymentStatusSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls++
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	s, ok := g.statuses[id]
	if !ok {
		return nil, &mercadopago.RequestError{Op: "get_payment", StatusCode: 404, Body: `{"message":"Payment not found"}`}
	}
	cp := *s
	return &cp, nil
}

func (g *fakeGateway) SearchByExternalReference(_ context.Context, ref string) ([]*mercadopago.PaymentStatusSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.searchCalls++
	return g.search[ref], nil
}

func (g *fakeGateway) IssueRefund(_ context.Context, id string, amount *decimal.Decimal) (*mercadopago.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, id)
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	res := &mercadopago.RefundResult{RefundID: fmt.Sprintf("r-%d", len(g.refunds)), PaymentID: id}
	if amount != nil {
		res.Amount = *amount
	}
	return res, nil
}

func newTestService(t *testing.T, store *memStore, gw *fakeGateway) *Service {
	t.Helper()
	cfg := &config.Config{
		App:         config.AppConfig{PublicURL: "https://tipy.example.com"},
		MercadoPago: config.MercadoPagoConfig{WebhookSecret: "s3cret"},
	}
	return New(store, gw, cfg, zap.NewNop().Sugar())
}

var errBoom = errors.New("boom")
