package suggestion

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrValidation     = errors.New("invalid suggestion request")
	ErrNotFound       = errors.New("suggestion not found")
	ErrQRCodeInactive = errors.New("qr code is paused")
)

// Kind selects how the suggestion is submitted.
type Kind string

const (
	KindNormal   Kind = "normal"
	KindSpotify  Kind = "spotify"
	KindPriority Kind = "priority"
)

type Filter string

const (
	FilterPending  Filter = "pending"
	FilterAccepted Filter = "accepted"
	FilterAll      Filter = "all"
)

// ParseFilter maps an empty value to pending.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterPending, nil
	case FilterPending, FilterAccepted, FilterAll:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown filter %q", ErrValidation, s)
	}
}

type CreateSuggestionRequest struct {
	QRCode      string `json:"qr_code"`
	ClientName  string `json:"client_name"`
	ClientPhone string `json:"client_phone"`
	Kind        Kind   `json:"kind"`
	Message     string `json:"message"`
	SpotifyLink string `json:"spotify_link"`
}

// normalize trims the request and checks that exactly one of message and
// spotify link is present for the requested kind.
func (r *CreateSuggestionRequest) normalize() error {
	if r == nil {
		return fmt.Errorf("%w: empty request", ErrValidation)
	}
	r.QRCode = strings.TrimSpace(r.QRCode)
	r.ClientName = strings.TrimSpace(r.ClientName)
	r.ClientPhone = strings.TrimSpace(r.ClientPhone)
	r.Message = strings.TrimSpace(r.Message)
	r.SpotifyLink = strings.TrimSpace(r.SpotifyLink)
	if r.Kind == "" {
		r.Kind = KindNormal
	}

	if r.QRCode == "" {
		return fmt.Errorf("%w: qr_code is required", ErrValidation)
	}
	if r.ClientName == "" || r.ClientPhone == "" {
		return fmt.Errorf("%w: client_name and client_phone are required", ErrValidation)
	}
	if r.Message != "" && r.SpotifyLink != "" {
		return fmt.Errorf("%w: message and spotify_link are mutually exclusive", ErrValidation)
	}

	switch r.Kind {
	case KindNormal, KindPriority:
		if r.Message == "" {
			return fmt.Errorf("%w: message is required", ErrValidation)
		}
	case KindSpotify:
		if r.SpotifyLink == "" {
			return fmt.Errorf("%w: spotify_link is required", ErrValidation)
		}
		u, err := url.Parse(r.SpotifyLink)
		if err != nil || u.Scheme != "https" || !strings.HasSuffix(u.Hostname(), "spotify.com") {
			return fmt.Errorf("%w: spotify_link must be an https spotify.com link", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrValidation, r.Kind)
	}
	return nil
}

type UpdateConfigRequest struct {
	ExpirationTime    *int  `json:"expiration_time"`
	AutoRejectExpired *bool `json:"auto_reject_expired"`
}

func (r *UpdateConfigRequest) validate() error {
	if r == nil || (r.ExpirationTime == nil && r.AutoRejectExpired == nil) {
		return fmt.Errorf("%w: nothing to update", ErrValidation)
	}
	if r.ExpirationTime != nil && *r.ExpirationTime < 0 {
		return fmt.Errorf("%w: expiration_time must not be negative", ErrValidation)
	}
	return nil
}
