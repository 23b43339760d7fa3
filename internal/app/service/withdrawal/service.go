package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/tipy/internal/models"
	"github.com/fatflowers/tipy/pkg/config"
	"github.com/fatflowers/tipy/pkg/logctx"
	"github.com/fatflowers/tipy/pkg/metrics"
	"github.com/fatflowers/tipy/pkg/tool"
)

var (
	ErrValidation       = errors.New("invalid withdrawal request")
	ErrNotFound         = errors.New("withdrawal not found")
	ErrAlreadyProcessed = errors.New("withdrawal already processed")
)

type RequestWithdrawalRequest struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
}

func (r *RequestWithdrawalRequest) validate() error {
	if r == nil || strings.TrimSpace(r.BankName) == "" || strings.TrimSpace(r.AccountNumber) == "" {
		return fmt.Errorf("%w: bank_name and account_number are required", ErrValidation)
	}
	return nil
}

type Service struct {
	db  *gorm.DB
	cfg *config.Config
	log *zap.SugaredLogger
	now func() time.Time
}

func NewService(db *gorm.DB, cfg *config.Config, log *zap.SugaredLogger) *Service {
	return &Service{db: db, cfg: cfg, log: log, now: time.Now}
}

func pendingTotal(tx *gorm.DB, djID string) (decimal.Decimal, error) {
	var row struct{ Total decimal.Decimal }
	err := tx.Model(&models.Withdrawal{}).
		Where("dj_id = ? AND status = ?", djID, models.WithdrawalStatusPending).
		Select("COALESCE(SUM(amount), 0) AS total").
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum pending withdrawals: %w", err)
	}
	return row.Total, nil
}

// Preview quotes a withdrawal without writing anything. A quote below the
// minimum is returned with CanWithdraw false.
func (s *Service) Preview(ctx context.Context, djID string) (*Quote, error) {
	var dj models.DJ
	if err := s.db.WithContext(ctx).Where("id = ?", djID).Take(&dj).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("dj %s: %w", djID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get dj: %w", err)
	}
	pending, err := pendingTotal(s.db.WithContext(ctx), djID)
	if err != nil {
		return nil, err
	}
	q, err := QuoteWithdrawal(dj.Balance, s.cfg.Withdrawal.Fee(), s.cfg.Withdrawal.Min())
	if err != nil && !errors.Is(err, ErrBelowMinimum) {
		return nil, err
	}
	q.Pending = pending
	return q, nil
}

// RequestWithdrawal creates a pending withdrawal of the whole balance and
// debits it in the same transaction. The DJ row is locked so two concurrent
// requests cannot both spend the same balance.
func (s *Service) RequestWithdrawal(ctx context.Context, djID string, req *RequestWithdrawalRequest) (*models.Withdrawal, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer metrics.ObserveBusinessProcess("withdrawal", "request", start)

	var out *models.Withdrawal
	var quote *Quote
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dj models.DJ
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", djID).Take(&dj).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("dj %s: %w", djID, ErrNotFound)
			}
			return fmt.Errorf("failed to lock dj: %w", err)
		}
		var err error
		quote, err = QuoteWithdrawal(dj.Balance, s.cfg.Withdrawal.Fee(), s.cfg.Withdrawal.Min())
		if err != nil {
			return err
		}

		now := s.now()
		w := &models.Withdrawal{
			ID:          tool.GenerateUUIDV7(),
			DJID:        djID,
			Amount:      quote.Net,
			GrossAmount: quote.Available,
			Status:      models.WithdrawalStatusPending,
			CreatedAt:   now,
		}
		if err := tx.Create(w).Error; err != nil {
			return fmt.Errorf("failed to create withdrawal: %w", err)
		}
		bank := &models.BankDetails{
			ID:            tool.GenerateUUIDV7(),
			WithdrawalID:  w.ID,
			DJID:          djID,
			BankName:      strings.TrimSpace(req.BankName),
			AccountNumber: strings.TrimSpace(req.AccountNumber),
			CreatedAt:     now,
		}
		if err := tx.Create(bank).Error; err != nil {
			return fmt.Errorf("failed to create bank details: %w", err)
		}
		res := tx.Model(&models.DJ{}).Where("id = ?", djID).Updates(map[string]any{
			"balance":    gorm.Expr("GREATEST(0, balance - ?)", quote.Available),
			"updated_at": now,
		})
		if res.Error != nil {
			return fmt.Errorf("failed to debit balance: %w", res.Error)
		}
		w.BankDetails = bank
		out = w
		return nil
	})
	if err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("withdrawal_request_failed", "dj_id", djID, "error", err)
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("withdrawal_requested",
		"dj_id", djID,
		"withdrawal_id", out.ID,
		"available", quote.Available.String(),
		"net", quote.Net.String(),
	)
	return out, nil
}

// ProcessWithdrawal marks a pending withdrawal as paid out.
func (s *Service) ProcessWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Withdrawal{}).
		Where("id = ? AND status = ?", id, models.WithdrawalStatusPending).
		Updates(map[string]any{"status": models.WithdrawalStatusProcessed, "processed_at": now})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to process withdrawal: %w", res.Error)
	}

	var w models.Withdrawal
	if err := s.db.WithContext(ctx).Preload("BankDetails").Where("id = ?", id).Take(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("withdrawal %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	if res.RowsAffected == 0 {
		return &w, fmt.Errorf("withdrawal %s: %w", id, ErrAlreadyProcessed)
	}
	logctx.FromCtx(ctx, s.log).Infow("withdrawal_processed", "withdrawal_id", id, "dj_id", w.DJID, "amount", w.Amount.String())
	return &w, nil
}

func (s *Service) ListWithdrawals(ctx context.Context, djID string) ([]*models.Withdrawal, error) {
	var rows []*models.Withdrawal
	err := s.db.WithContext(ctx).
		Preload("BankDetails").
		Where("dj_id = ?", djID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	return rows, nil
}

var Module = fx.Options(
	fx.Provide(NewService),
)
