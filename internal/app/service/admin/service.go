package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/tipy/internal/models"
	"github.com/fatflowers/tipy/pkg/types"
)

var (
	ErrInvalidSort   = errors.New("invalid sort column")
	ErrInvalidFilter = errors.New("invalid filter")
)

type ScanRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanResponse[T any] struct {
	Items []*T  `json:"items"`
	Total int64 `json:"total"`
}

var (
	paymentSortColumns = []string{"created_at", "updated_at", "amount", "status", "dj_id"}
	webhookSortColumns = []string{"created_at", "id", "status", "payment_id"}
)

// Service backs the admin listing endpoints.
type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

func (s *Service) ScanPayments(ctx context.Context, req *ScanRequest) (*ScanResponse[models.Payment], error) {
	return scan[models.Payment](ctx, s.db, req, paymentSortColumns, "payments")
}

func (s *Service) ScanWebhooks(ctx context.Context, req *ScanRequest) (*ScanResponse[models.MercadoPagoWebhook], error) {
	return scan[models.MercadoPagoWebhook](ctx, s.db, req, webhookSortColumns, "webhooks")
}

func scan[T any](ctx context.Context, db *gorm.DB, req *ScanRequest, sortable []string, what string) (*ScanResponse[T], error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.From < 0 {
		req.From = 0
	}
	if req.SortBy != "" && !lo.Contains(sortable, req.SortBy) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSort, req.SortBy)
	}

	if bad, ok := lo.Find(req.Filters, func(f *types.CommonFilter) bool { return !f.Valid() }); ok {
		field := ""
		if bad != nil {
			field = bad.Field
		}
		return nil, fmt.Errorf("%w: field %q", ErrInvalidFilter, field)
	}

	tx := db.WithContext(ctx).Model(new(T))
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{types.FiltersWhere(req.Filters)}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", what, err)
	}

	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"}}})

	var rows []*T
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", what, err)
	}
	return &ScanResponse[T]{Items: rows, Total: total}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
