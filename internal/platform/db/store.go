package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/tipy/internal/models"
	"github.com/fatflowers/tipy/pkg/logctx"
	"github.com/fatflowers/tipy/pkg/tool"
)

// Store is the payment persistence used by reconciliation. Lookups return a
// wrapped gorm.ErrRecordNotFound when nothing matches.
type Store struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewStore(db *gorm.DB, log *zap.SugaredLogger) *Store {
	return &Store{db: db, log: log}
}

func (s *Store) GetDJ(ctx context.Context, id string) (*models.DJ, error) {
	var dj models.DJ
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&dj).Error; err != nil {
		return nil, fmt.Errorf("failed to get dj %s: %w", id, err)
	}
	return &dj, nil
}

func (s *Store) GetRecommendation(ctx context.Context, id string) (*models.Recommendation, error) {
	var rec models.Recommendation
	if err := s.db.WithContext(ctx).Preload("Payments").Where("id = ?", id).Take(&rec).Error; err != nil {
		return nil, fmt.Errorf("failed to get recommendation %s: %w", id, err)
	}
	return &rec, nil
}

// InsertPayment stores p unless a payment with the same external reference
// already exists, in which case the existing row is returned untouched.
func (s *Store) InsertPayment(ctx context.Context, p *models.Payment) (*models.Payment, bool, error) {
	if p.ID == "" {
		p.ID = tool.GenerateUUIDV7()
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_reference"}}, DoNothing: true}).
		Create(p)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to insert payment: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return p, true, nil
	}
	existing, err := s.GetPaymentByExternalReference(ctx, p.ExternalReference)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *Store) GetPaymentByExternalReference(ctx context.Context, ref string) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).Where("external_reference = ?", ref).Take(&p).Error; err != nil {
		return nil, fmt.Errorf("failed to get payment by external reference: %w", err)
	}
	return &p, nil
}

func (s *Store) GetPaymentByGatewayID(ctx context.Context, gatewayPaymentID string) (*models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).Where("mercadopago_payment_id = ?", gatewayPaymentID).Take(&p).Error; err != nil {
		return nil, fmt.Errorf("failed to get payment by gateway id: %w", err)
	}
	return &p, nil
}

// ApplyPaymentStatus writes status (and the gateway id when known) to the
// payment identified by ref and applies the resulting DJ balance delta in the
// same transaction. The payment row is locked first, so concurrent deliveries
// for one payment serialize and only the first observes the transition.
// Statuses of a gateway payment other than the recorded approved one are
// ignored.
func (s *Store) ApplyPaymentStatus(ctx context.Context, ref string, status models.PaymentStatus, gatewayPaymentID string) (*models.StatusTransition, error) {
	var tr *models.StatusTransition
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Payment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("external_reference = ?", ref).Take(&p).Error; err != nil {
			return fmt.Errorf("failed to lock payment: %w", err)
		}
		tr = &models.StatusTransition{
			PaymentID:         p.ID,
			DJID:              p.DJID,
			ExternalReference: p.ExternalReference,
			Amount:            p.Amount,
			From:              p.Status,
			To:                status,
		}
		if p.SupersededBy(gatewayPaymentID) {
			tr.To = p.Status
			tr.Superseded = true
			return nil
		}

		now := time.Now()
		updates := map[string]any{}
		if tr.Changed() {
			updates["status"] = status
		}
		if gatewayPaymentID != "" && (p.MercadoPagoPaymentID == nil || *p.MercadoPagoPaymentID != gatewayPaymentID) {
			updates["mercadopago_payment_id"] = gatewayPaymentID
		}
		if len(updates) > 0 {
			updates["updated_at"] = now
			if err := tx.Model(&models.Payment{}).Where("id = ?", p.ID).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update payment: %w", err)
			}
		}

		delta := tr.BalanceDelta()
		if delta.IsZero() {
			return nil
		}
		res := tx.Model(&models.DJ{}).Where("id = ?", p.DJID).Updates(map[string]any{
			"balance":           gorm.Expr("GREATEST(0, balance + ?)", delta),
			"ganancias_totales": gorm.Expr("GREATEST(0, ganancias_totales + ?)", delta),
			"updated_at":        now,
		})
		if res.Error != nil {
			return fmt.Errorf("failed to apply balance delta: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("failed to apply balance delta: dj %s: %w", p.DJID, gorm.ErrRecordNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if tr.Superseded {
		logctx.FromCtx(ctx, s.log).Warnw("payment_status_superseded",
			"external_reference", ref,
			"payment_id", gatewayPaymentID,
			"status", status,
		)
		return tr, nil
	}
	logctx.FromCtx(ctx, s.log).Infow("payment_status_applied",
		"external_reference", ref,
		"from", tr.From,
		"to", tr.To,
		"delta", tr.BalanceDelta().String(),
	)
	return tr, nil
}

// SetGatewayPaymentID stores the gateway id without touching the status.
func (s *Store) SetGatewayPaymentID(ctx context.Context, ref, gatewayPaymentID string) error {
	res := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("external_reference = ? AND mercadopago_payment_id IS NULL", ref).
		Updates(map[string]any{"mercadopago_payment_id": gatewayPaymentID, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("failed to set gateway payment id: %w", res.Error)
	}
	return nil
}

func (s *Store) AppendWebhook(ctx context.Context, w *models.MercadoPagoWebhook) error {
	if err := s.db.WithContext(ctx).Create(w).Error; err != nil {
		return fmt.Errorf("failed to append webhook: %w", err)
	}
	return nil
}

func (s *Store) LatestWebhookForReference(ctx context.Context, ref string) (*models.MercadoPagoWebhook, error) {
	var w models.MercadoPagoWebhook
	err := s.db.WithContext(ctx).
		Where("external_reference = ? AND payment_id <> ''", ref).
		Order("created_at DESC").Order("id DESC").
		Take(&w).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get latest webhook: %w", err)
	}
	return &w, nil
}

// DeleteRecommendation removes the suggestion. Linked payments survive with
// recommendation_id set to NULL.
func (s *Store) DeleteRecommendation(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Recommendation{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete recommendation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to delete recommendation %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}
