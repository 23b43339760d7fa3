package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/tipy/internal/models"
	"github.com/fatflowers/tipy/internal/platform/db"
	"github.com/fatflowers/tipy/internal/platform/mercadopago"
	"github.com/fatflowers/tipy/pkg/config"
	"github.com/fatflowers/tipy/pkg/metrics"
)

// Gateway is the subset of the payment gateway the engine relies on.
type Gateway interface {
	CreatePaymentRequest(ctx context.Context, req *mercadopago.PaymentRequest) (*mercadopago.Preference, error)
	GetPaymentStatus(ctx context.Context, gatewayPaymentID string) (*mercadopago.PaymentStatusSnapshot, error)
	SearchByExternalReference(ctx context.Context, ref string) ([]*mercadopago.PaymentStatusSnapshot, error)
	IssueRefund(ctx context.Context, gatewayPaymentID string, amount *decimal.Decimal) (*mercadopago.RefundResult, error)
}

// Store persists payments, recommendations and the webhook audit log. Lookups
// must wrap gorm.ErrRecordNotFound when nothing matches. ApplyPaymentStatus
// must compare and write atomically.
type Store interface {
	GetDJ(ctx context.Context, id string) (*models.DJ, error)
	GetRecommendation(ctx context.Context, id string) (*models.Recommendation, error)
	InsertPayment(ctx context.Context, p *models.Payment) (*models.Payment, bool, error)
	GetPaymentByExternalReference(ctx context.Context, ref string) (*models.Payment, error)
	GetPaymentByGatewayID(ctx context.Context, gatewayPaymentID string) (*models.Payment, error)
	ApplyPaymentStatus(ctx context.Context, ref string, status models.PaymentStatus, gatewayPaymentID string) (*models.StatusTransition, error)
	SetGatewayPaymentID(ctx context.Context, ref, gatewayPaymentID string) error
	AppendWebhook(ctx context.Context, w *models.MercadoPagoWebhook) error
	LatestWebhookForReference(ctx context.Context, ref string) (*models.MercadoPagoWebhook, error)
	DeleteRecommendation(ctx context.Context, id string) error
}

// Service drives a tip payment from checkout to settlement or refund.
type Service struct {
	store Store
	gw    Gateway
	cfg   *config.Config
	log   *zap.SugaredLogger
	now   func() time.Time
}

func New(store Store, gw Gateway, cfg *config.Config, log *zap.SugaredLogger) *Service {
	return &Service{store: store, gw: gw, cfg: cfg, log: log, now: time.Now}
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// storeErr maps a store failure to ErrNotFound or ErrPersistence.
func storeErr(what string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", what, ErrPersistence, err)
}

func observeTransition(tr *models.StatusTransition) {
	if tr == nil || !tr.Changed() {
		return
	}
	direction := "none"
	switch d := tr.BalanceDelta(); {
	case d.IsPositive():
		direction = "credit"
	case d.IsNegative():
		direction = "debit"
	}
	metrics.IncBalanceTransition(string(tr.From), string(tr.To), direction)
}

var Module = fx.Options(
	fx.Provide(
		func(s *db.Store) Store { return s },
		func(c *mercadopago.Client) Gateway { return c },
		New,
	),
)
