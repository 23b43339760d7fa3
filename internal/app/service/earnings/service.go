package earnings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/tipy/internal/models"
	"github.com/fatflowers/tipy/pkg/logctx"
)

var ErrNotFound = errors.New("dj not found")

type Summary struct {
	DJID               string          `json:"dj_id"`
	Total              decimal.Decimal `json:"total"`
	ThisWeek           decimal.Decimal `json:"this_week"`
	ThisMonth          decimal.Decimal `json:"this_month"`
	LastMonth          decimal.Decimal `json:"last_month"`
	ApprovedCount      int64           `json:"approved_count"`
	PendingWithdrawals decimal.Decimal `json:"pending_withdrawals"`
	Balance            decimal.Decimal `json:"balance"`
	GananciasTotales   decimal.Decimal `json:"ganancias_totales"`
}

type DailyEarningsItem struct {
	Date  string          `json:"date"`
	Value decimal.Decimal `json:"value"`
	Count int64           `json:"count"`
}

type ListPaymentsRequest struct {
	Status models.PaymentStatus `form:"status" json:"status"`
	From   int                  `form:"from" json:"from"`
	Size   int                  `form:"size" json:"size"`
}

type ListPaymentsResponse struct {
	Items []*models.Payment `json:"items"`
	Total int64             `json:"total"`
}

// Service reports DJ earnings and repairs the denormalized balances.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

type sumRow struct {
	Total decimal.Decimal
	Count int64
}

func (s *Service) sumApproved(ctx context.Context, djID string, p *Period) (*sumRow, error) {
	var row sumRow
	q := s.db.WithContext(ctx).Model(&models.Payment{}).
		Select("COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Where("dj_id = ? AND status = ?", djID, models.PaymentStatusApproved)
	if p != nil {
		q = q.Where("created_at >= ? AND created_at < ?", p.From, p.To)
	}
	if err := q.Scan(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// EarningsSummary aggregates approved tips for the DJ over the standard
// windows around now. Windows are computed concurrently.
func (s *Service) EarningsSummary(ctx context.Context, djID string, now time.Time) (*Summary, error) {
	var dj models.DJ
	if err := s.db.WithContext(ctx).Where("id = ?", djID).Take(&dj).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("dj %s: %w", djID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get dj: %w", err)
	}

	periods := Periods(now)
	keys := []PeriodType{"", PeriodThisWeek, PeriodThisMonth, PeriodLastMonth}

	var wg sync.WaitGroup
	errChan := make(chan error, len(keys))
	resChan := make(chan *lo.Entry[PeriodType, *sumRow], len(keys))
	for _, key := range keys {
		wg.Add(1)
		go func(k PeriodType) {
			defer wg.Done()
			var p *Period
			if k != "" {
				p = lo.ToPtr(periods[k])
			}
			row, err := s.sumApproved(ctx, djID, p)
			if err != nil {
				errChan <- fmt.Errorf("failed to sum %q earnings: %w", k, err)
				return
			}
			resChan <- &lo.Entry[PeriodType, *sumRow]{Key: k, Value: row}
		}(key)
	}
	wg.Wait()
	close(errChan)
	close(resChan)

	if err, ok := <-errChan; ok {
		return nil, err
	}

	out := &Summary{DJID: djID, Balance: dj.Balance, GananciasTotales: dj.GananciasTotales}
	for entry := range resChan {
		switch entry.Key {
		case "":
			out.Total = entry.Value.Total
			out.ApprovedCount = entry.Value.Count
		case PeriodThisWeek:
			out.ThisWeek = entry.Value.Total
		case PeriodThisMonth:
			out.ThisMonth = entry.Value.Total
		case PeriodLastMonth:
			out.LastMonth = entry.Value.Total
		}
	}

	var pending struct{ Total decimal.Decimal }
	err := s.db.WithContext(ctx).Model(&models.Withdrawal{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("dj_id = ? AND status = ?", djID, models.WithdrawalStatusPending).
		Scan(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum pending withdrawals: %w", err)
	}
	out.PendingWithdrawals = pending.Total
	return out, nil
}

// DailyEarnings returns approved totals per day for the last days days.
func (s *Service) DailyEarnings(ctx context.Context, djID string, now time.Time, days int) ([]DailyEarningsItem, error) {
	if days <= 0 {
		days = 30
	}
	var results []DailyEarningsItem
	q := s.db.WithContext(ctx).Model(&models.Payment{}).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, COALESCE(SUM(amount), 0) as value, COUNT(*) as count").
		Where("dj_id = ? AND status = ?", djID, models.PaymentStatusApproved).
		Where("created_at >= ?", now.AddDate(0, 0, -days)).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order(clause.OrderByColumn{Column: clause.Column{Name: "date"}, Desc: true})
	if err := q.Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to get daily earnings: %w", err)
	}
	return results, nil
}

func (s *Service) ListPayments(ctx context.Context, djID string, req *ListPaymentsRequest) (*ListPaymentsResponse, error) {
	if req == nil {
		req = &ListPaymentsRequest{}
	}
	if req.Size <= 0 || req.Size > 100 {
		req.Size = 20
	}
	if req.From < 0 {
		req.From = 0
	}

	tx := s.db.WithContext(ctx).Model(&models.Payment{}).Where("dj_id = ?", djID)
	if req.Status != "" {
		tx = tx.Where("status = ?", req.Status)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count payments: %w", err)
	}
	var rows []*models.Payment
	if err := tx.Order("created_at DESC").Offset(req.From).Limit(req.Size).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return &ListPaymentsResponse{Items: rows, Total: total}, nil
}

const rebuildBalancesSQL = `
UPDATE djs
SET ganancias_totales = COALESCE(earned.total, 0),
    balance = GREATEST(0, COALESCE(earned.total, 0) - COALESCE(withdrawn.total, 0)),
    updated_at = NOW()
FROM djs d
LEFT JOIN (
    SELECT dj_id, SUM(amount) AS total
    FROM payments
    WHERE status = 'approved'
    GROUP BY dj_id
) AS earned ON earned.dj_id = d.id
LEFT JOIN (
    SELECT dj_id, SUM(gross_amount) AS total
    FROM withdrawals
    GROUP BY dj_id
) AS withdrawn ON withdrawn.dj_id = d.id
WHERE djs.id = d.id`

// RebuildBalances recomputes both accumulators of every DJ from approved
// payments and withdrawal debits. It returns the number of DJs updated.
func (s *Service) RebuildBalances(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Exec(rebuildBalancesSQL)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to rebuild balances: %w", res.Error)
	}
	logctx.FromCtx(ctx, s.log).Infow("balances_rebuilt", "djs", res.RowsAffected)
	return res.RowsAffected, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
