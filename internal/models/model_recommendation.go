package models

import (
	"time"

	"github.com/samber/lo"
)

// Recommendation is a song suggestion submitted through a DJ's QR code.
// Exactly one of Message and SpotifyLink is set.
type Recommendation struct {
	ID          string     `gorm:"column:id;type:uuid;primary_key" json:"id"`
	DJID        string     `gorm:"column:dj_id;type:uuid;not null;index:idx_recommendation_dj_created,priority:1" json:"dj_id"`
	ClientID    string     `gorm:"column:client_id;type:varchar(64);not null" json:"client_id"`
	Message     *string    `gorm:"column:message;type:text" json:"message"`
	SpotifyLink *string    `gorm:"column:spotify_link;type:text" json:"spotify_link"`
	IsPriority  bool       `gorm:"column:is_priority;not null;default:false" json:"is_priority"`
	Accepted    bool       `gorm:"column:accepted;not null;default:false" json:"accepted"`
	ExpiresAt   *time.Time `gorm:"column:expires_at;default:null" json:"expires_at"`
	IsExpired   bool       `gorm:"column:is_expired;not null;default:false" json:"is_expired"`
	CreatedAt   time.Time  `gorm:"index:idx_recommendation_dj_created,priority:2,sort:desc" json:"created_at"`

	Client   *Client   `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Payments []Payment `gorm:"foreignKey:RecommendationID;constraint:OnDelete:SET NULL" json:"payments,omitempty"`
}

func (Recommendation) TableName() string { return "recommendations" }

// IsPaid reports whether any linked payment has been approved.
func (r *Recommendation) IsPaid() bool {
	if r == nil {
		return false
	}
	return lo.ContainsBy(r.Payments, func(p Payment) bool { return p.Status == PaymentStatusApproved })
}

// ApprovedPayment returns the first approved payment, if any.
func (r *Recommendation) ApprovedPayment() *Payment {
	if r == nil {
		return nil
	}
	p, ok := lo.Find(r.Payments, func(p Payment) bool { return p.Status == PaymentStatusApproved })
	if !ok {
		return nil
	}
	return &p
}

// ExpiredAt reports whether the suggestion is past its expiry at now.
func (r *Recommendation) ExpiredAt(now time.Time) bool {
	if r == nil || r.ExpiresAt == nil {
		return false
	}
	return !now.Before(*r.ExpiresAt)
}

// Client is the attendee who submitted a suggestion.
type Client struct {
	ID        string    `gorm:"column:id;type:varchar(64);primary_key" json:"id"`
	Name      string    `gorm:"column:name;type:varchar(128);not null" json:"name"`
	Phone     string    `gorm:"column:phone;type:varchar(32);not null" json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

func (Client) TableName() string { return "clients" }

// QRCode maps a printed code to its DJ. Inactive codes pause new suggestions.
type QRCode struct {
	ID        string     `gorm:"column:id;type:uuid;primary_key" json:"id"`
	DJID      string     `gorm:"column:dj_id;type:uuid;not null;index" json:"dj_id"`
	Code      string     `gorm:"column:code;type:varchar(64);not null;uniqueIndex" json:"code"`
	Active    bool       `gorm:"column:active;not null;default:true" json:"active"`
	ExpiresAt *time.Time `gorm:"column:expires_at;default:null" json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`

	DJ *DJ `gorm:"foreignKey:DJID" json:"dj,omitempty"`
}

func (QRCode) TableName() string { return "qr_codes" }

// SuggestionConfig holds per-DJ expiry rules. ExpirationTime is in seconds;
// zero means suggestions never expire.
type SuggestionConfig struct {
	ID                string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	DJID              string    `gorm:"column:dj_id;type:uuid;not null;uniqueIndex" json:"dj_id"`
	ExpirationTime    int       `gorm:"column:expiration_time;not null" json:"expiration_time"`
	AutoRejectExpired bool      `gorm:"column:auto_reject_expired;not null" json:"auto_reject_expired"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (SuggestionConfig) TableName() string { return "suggestion_config" }

// ExpiresAt computes the expiry of a suggestion created at createdAt.
func (c *SuggestionConfig) ExpiresAt(createdAt time.Time) *time.Time {
	if c == nil || c.ExpirationTime <= 0 {
		return nil
	}
	return lo.ToPtr(createdAt.Add(time.Duration(c.ExpirationTime) * time.Second))
}
