package suggestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/tipy/internal/app/service/reconciliation"
	"github.com/fatflowers/tipy/internal/models"
	"github.com/fatflowers/tipy/pkg/config"
	"github.com/fatflowers/tipy/pkg/logctx"
	"github.com/fatflowers/tipy/pkg/tool"
)

// Refunder is the part of the reconciliation engine used to reject paid
// suggestions.
type Refunder interface {
	RefundPayment(ctx context.Context, req *reconciliation.RefundRequest) (*reconciliation.RefundOutcome, error)
}

type QRCodeView struct {
	Code     string `json:"code"`
	DJID     string `json:"dj_id"`
	DJName   string `json:"dj_name"`
	Active   bool   `json:"active"`
	MinTip   string `json:"min_tip_amount"`
	Username string `json:"username"`
}

type SuggestionItem struct {
	*models.Recommendation
	Paid bool `json:"paid"`
}

type RejectResult struct {
	ID       string                        `json:"id"`
	Refunded bool                          `json:"refunded"`
	Refund   *reconciliation.RefundOutcome `json:"refund,omitempty"`
}

type ExpireResult struct {
	Expired  int64 `json:"expired"`
	Rejected int   `json:"rejected"`
	Failed   int   `json:"failed"`
}

type Service struct {
	db      *gorm.DB
	refunds Refunder
	cfg     *config.Config
	log     *zap.SugaredLogger
	now     func() time.Time
}

func New(db *gorm.DB, refunds Refunder, cfg *config.Config, log *zap.SugaredLogger) *Service {
	return &Service{db: db, refunds: refunds, cfg: cfg, log: log, now: time.Now}
}

func notFound(what, id string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

func (s *Service) ResolveQRCode(ctx context.Context, code string) (*QRCodeView, error) {
	var qr models.QRCode
	err := s.db.WithContext(ctx).Preload("DJ").Where("code = ?", code).Take(&qr).Error
	if err != nil {
		return nil, notFound("qr code", code, err)
	}
	if qr.DJ == nil {
		return nil, fmt.Errorf("dj for qr code %s: %w", code, ErrNotFound)
	}
	active := qr.Active && (qr.ExpiresAt == nil || s.now().Before(*qr.ExpiresAt))
	return &QRCodeView{
		Code:     qr.Code,
		DJID:     qr.DJID,
		DJName:   qr.DJ.DisplayName,
		Username: qr.DJ.Username,
		Active:   active,
		MinTip:   qr.DJ.MinTipAmount.StringFixed(2),
	}, nil
}

// configFor returns the DJ's suggestion config, or the configured default
// when the DJ never saved one.
func (s *Service) configFor(tx *gorm.DB, djID string) (*models.SuggestionConfig, error) {
	var sc models.SuggestionConfig
	err := tx.Where("dj_id = ?", djID).Take(&sc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.SuggestionConfig{
			DJID:              djID,
			ExpirationTime:    s.cfg.Suggestion.DefaultExpirationSeconds,
			AutoRejectExpired: true,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get suggestion config: %w", err)
	}
	return &sc, nil
}

// CreateSuggestion stores the attendee and the suggestion in one
// transaction. Priority suggestions are accepted immediately.
func (s *Service) CreateSuggestion(ctx context.Context, req *CreateSuggestionRequest) (*models.Recommendation, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	qr, err := s.ResolveQRCode(ctx, req.QRCode)
	if err != nil {
		return nil, err
	}
	if !qr.Active {
		return nil, fmt.Errorf("%w: %s", ErrQRCodeInactive, req.QRCode)
	}

	now := s.now()
	rec := &models.Recommendation{
		ID:         tool.GenerateUUIDV7(),
		DJID:       qr.DJID,
		IsPriority: req.Kind == KindPriority,
		Accepted:   req.Kind == KindPriority,
		CreatedAt:  now,
	}
	if req.Kind == KindSpotify {
		rec.SpotifyLink = lo.ToPtr(req.SpotifyLink)
	} else {
		rec.Message = lo.ToPtr(req.Message)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client := &models.Client{ID: tool.GenerateUUIDV7(), Name: req.ClientName, Phone: req.ClientPhone, CreatedAt: now}
		if err := tx.Create(client).Error; err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}
		rec.ClientID = client.ID

		sc, err := s.configFor(tx, qr.DJID)
		if err != nil {
			return err
		}
		rec.ExpiresAt = sc.ExpiresAt(now)
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("failed to create recommendation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("suggestion_created", "recommendation_id", rec.ID, "dj_id", rec.DJID, "kind", req.Kind)
	return rec, nil
}

func (s *Service) markExpired(ctx context.Context, djID string, now time.Time) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Recommendation{}).
		Where("is_expired = ? AND expires_at IS NOT NULL AND expires_at <= ?", false, now)
	if djID != "" {
		q = q.Where("dj_id = ?", djID)
	}
	res := q.Update("is_expired", true)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark expired suggestions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ListSuggestions returns the DJ's suggestions newest first. Expiry is
// refreshed before reading.
func (s *Service) ListSuggestions(ctx context.Context, djID string, filter Filter) ([]*SuggestionItem, error) {
	if _, err := s.markExpired(ctx, djID, s.now()); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Preload("Client").Preload("Payments").
		Where("dj_id = ?", djID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true})
	switch filter {
	case FilterPending, "":
		q = q.Where("accepted = ? AND is_expired = ?", false, false)
	case FilterAccepted:
		q = q.Where("accepted = ?", true)
	}
	var rows []*models.Recommendation
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	return lo.Map(rows, func(r *models.Recommendation, _ int) *SuggestionItem {
		return &SuggestionItem{Recommendation: r, Paid: r.IsPaid()}
	}), nil
}

func (s *Service) AcceptSuggestion(ctx context.Context, djID, id string) error {
	res := s.db.WithContext(ctx).Model(&models.Recommendation{}).
		Where("id = ? AND dj_id = ?", id, djID).
		Update("accepted", true)
	if res.Error != nil {
		return fmt.Errorf("failed to accept suggestion: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("suggestion %s: %w", id, ErrNotFound)
	}
	logctx.FromCtx(ctx, s.log).Infow("suggestion_accepted", "recommendation_id", id, "dj_id", djID)
	return nil
}

// RejectSuggestion deletes the suggestion. A paid suggestion is rejected
// through the refund flow, which deletes it even when the refund fails.
func (s *Service) RejectSuggestion(ctx context.Context, djID, id string) (*RejectResult, error) {
	var rec models.Recommendation
	err := s.db.WithContext(ctx).Preload("Payments").Where("id = ? AND dj_id = ?", id, djID).Take(&rec).Error
	if err != nil {
		return nil, notFound("suggestion", id, err)
	}
	return s.reject(ctx, &rec)
}

func (s *Service) reject(ctx context.Context, rec *models.Recommendation) (*RejectResult, error) {
	log := logctx.FromCtx(ctx, s.log)
	out := &RejectResult{ID: rec.ID}

	if paid := rec.ApprovedPayment(); paid != nil {
		req := &reconciliation.RefundRequest{
			ExternalReference: paid.ExternalReference,
			RecommendationID:  rec.ID,
			DJID:              rec.DJID,
		}
		if paid.MercadoPagoPaymentID != nil {
			req.GatewayPaymentID = *paid.MercadoPagoPaymentID
		}
		outcome, err := s.refunds.RefundPayment(ctx, req)
		out.Refund = outcome
		out.Refunded = outcome != nil && outcome.Refund != nil
		if err != nil {
			log.Warnw("suggestion_reject_refund_failed", "recommendation_id", rec.ID, "error", err)
			return out, err
		}
		log.Infow("suggestion_rejected", "recommendation_id", rec.ID, "refunded", out.Refunded)
		return out, nil
	}

	res := s.db.WithContext(ctx).Where("id = ? AND dj_id = ?", rec.ID, rec.DJID).Delete(&models.Recommendation{})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to delete suggestion: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("suggestion %s: %w", rec.ID, ErrNotFound)
	}
	log.Infow("suggestion_rejected", "recommendation_id", rec.ID, "refunded", false)
	return out, nil
}

// ExpireSuggestions marks every suggestion past its expiry and rejects the
// unaccepted ones of DJs that enabled auto rejection.
func (s *Service) ExpireSuggestions(ctx context.Context, now time.Time) (*ExpireResult, error) {
	expired, err := s.markExpired(ctx, "", now)
	if err != nil {
		return nil, err
	}
	out := &ExpireResult{Expired: expired}

	var rows []*models.Recommendation
	err = s.db.WithContext(ctx).Preload("Payments").
		Where("is_expired = ? AND accepted = ?", true, false).
		Where("dj_id IN (?)", s.db.Model(&models.SuggestionConfig{}).Select("dj_id").Where("auto_reject_expired = ?", true)).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired suggestions: %w", err)
	}
	for _, rec := range rows {
		if _, err := s.reject(ctx, rec); err != nil {
			out.Failed++
			continue
		}
		out.Rejected++
	}
	logctx.FromCtx(ctx, s.log).Infow("suggestions_expired", "expired", out.Expired, "rejected", out.Rejected, "failed", out.Failed)
	return out, nil
}

func (s *Service) GetSuggestionConfig(ctx context.Context, djID string) (*models.SuggestionConfig, error) {
	return s.configFor(s.db.WithContext(ctx), djID)
}

func (s *Service) UpdateSuggestionConfig(ctx context.Context, djID string, req *UpdateConfigRequest) (*models.SuggestionConfig, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	var out *models.SuggestionConfig
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sc, err := s.configFor(tx, djID)
		if err != nil {
			return err
		}
		if sc.ID == "" {
			sc.ID = tool.GenerateUUIDV7()
		}
		if req.ExpirationTime != nil {
			sc.ExpirationTime = *req.ExpirationTime
		}
		if req.AutoRejectExpired != nil {
			sc.AutoRejectExpired = *req.AutoRejectExpired
		}
		sc.UpdatedAt = s.now()
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dj_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"expiration_time", "auto_reject_expired", "updated_at"}),
		}).Create(sc).Error
		if err != nil {
			return fmt.Errorf("failed to save suggestion config: %w", err)
		}
		out = sc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var Module = fx.Options(
	fx.Provide(
		func(s *reconciliation.Service) Refunder { return s },
		New,
	),
)
