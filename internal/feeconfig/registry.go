// Package feeconfig holds per-recipient custom fee settings and supplies the
// effective fee configuration at tip time.
package feeconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tip-settlement/internal/domain"
	"tip-settlement/internal/feesplit"
	"tip-settlement/internal/logging"
	"tip-settlement/internal/observability"
	"tip-settlement/internal/storage"
)

// FeeUpdate is a request to change a recipient's custom fee.
// An empty ContentID sets the recipient-wide default.
type FeeUpdate struct {
	RecipientID  string
	ContentID    string
	BasisPoints  int64
	FeeRecipient string
}

// Registry is the keyed fee configuration store. Reads take an explicit
// recipient/content key; writes are authorized by the owning recipient.
type Registry struct {
	store          storage.FeeSettingStore
	platformFeeBps int64
	logger         logrus.FieldLogger
	metrics        *observability.Metrics
	now            func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithClock overrides the clock used to timestamp updates.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry applying platformFeeBps to every config.
// The platform fee is validated against a zero custom fee.
func NewRegistry(store storage.FeeSettingStore, platformFeeBps int64, opts ...Option) (*Registry, error) {
	if err := feesplit.ValidateConfig(domain.FeeConfig{PlatformFeeBps: platformFeeBps}); err != nil {
		return nil, err
	}
	r := &Registry{
		store:          store,
		platformFeeBps: platformFeeBps,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDiscard(r.logger)
	return r, nil
}

// PlatformFeeBps returns the platform fee applied to every tip.
func (r *Registry) PlatformFeeBps() int64 {
	return r.platformFeeBps
}

// SetCustomFee persists a custom fee for (RecipientID, ContentID) on behalf
// of actor. Settled tips are unaffected.
//
// Errors:
//   - ErrUnauthorized if actor is empty or is not the recipient
//   - ErrFeeOutOfBounds if BasisPoints is outside [0, MaxCustomFeeBps]
//   - ErrFeeConfigInvalid if the fee would leave nothing for the creator
func (r *Registry) SetCustomFee(ctx context.Context, actor string, u FeeUpdate) (*domain.FeeSetting, error) {
	log := r.logger.WithFields(logrus.Fields{
		"recipient_id": u.RecipientID,
		"content_id":   u.ContentID,
		"bps":          u.BasisPoints,
	})

	actor = strings.TrimSpace(actor)
	if actor == "" || actor != u.RecipientID {
		r.metrics.RecordFeeUpdate("unauthorized")
		log.WithField("actor", actor).Warn("fee update rejected: actor is not the recipient")
		return nil, domain.ErrUnauthorized
	}

	cfg := domain.FeeConfig{PlatformFeeBps: r.platformFeeBps, CustomFeeBps: u.BasisPoints}
	if err := feesplit.ValidateConfig(cfg); err != nil {
		r.metrics.RecordFeeUpdate(domain.ErrorCode(err))
		log.WithError(err).Info("fee update rejected")
		return nil, err
	}

	updatedAt := r.now().UnixMilli()
	stored, err := r.store.Put(ctx, &domain.FeeSetting{
		RecipientID:  u.RecipientID,
		ContentID:    u.ContentID,
		BasisPoints:  u.BasisPoints,
		FeeRecipient: strings.TrimSpace(u.FeeRecipient),
		UpdatedAt:    updatedAt,
		UpdatedBy:    actor,
	})
	if err != nil {
		r.metrics.RecordFeeUpdate("error")
		return nil, fmt.Errorf("store fee setting: %w", err)
	}

	// The store keeps the newer of two settings.
	if stored.UpdatedAt > updatedAt {
		r.metrics.RecordFeeUpdate("stale")
		log.WithFields(logrus.Fields{
			"version":    stored.Version,
			"updated_at": stored.UpdatedAt,
		}).Info("stale fee update ignored")
		return stored, nil
	}

	r.metrics.RecordFeeUpdate("accepted")
	log.WithField("version", stored.Version).Info("custom fee updated")
	return stored, nil
}

// GetEffectiveConfig returns the platform fee merged with the custom fee
// for (recipientID, contentID). A content item without its own setting uses
// the recipient-wide default; no setting at all means no custom fee.
func (r *Registry) GetEffectiveConfig(ctx context.Context, recipientID, contentID string) (domain.FeeConfig, error) {
	cfg := domain.FeeConfig{
		PlatformFeeBps: r.platformFeeBps,
		RecipientID:    recipientID,
		ContentID:      contentID,
	}
	if recipientID == "" {
		return cfg, nil
	}

	fs, err := r.lookup(ctx, recipientID, contentID)
	if err != nil {
		return domain.FeeConfig{}, err
	}
	if fs != nil {
		cfg.CustomFeeBps = fs.BasisPoints
		cfg.CustomFeeRecipient = fs.FeeRecipient
		cfg.Version = fs.Version
	}
	return cfg, nil
}

// Settings lists every stored setting of a recipient.
func (r *Registry) Settings(ctx context.Context, recipientID string) ([]*domain.FeeSetting, error) {
	settings, err := r.store.ListByRecipient(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("list fee settings: %w", err)
	}
	return settings, nil
}

func (r *Registry) lookup(ctx context.Context, recipientID, contentID string) (*domain.FeeSetting, error) {
	keys := []string{contentID}
	if contentID != "" {
		keys = append(keys, "")
	}
	for _, key := range keys {
		fs, err := r.store.Get(ctx, recipientID, key)
		if err == nil {
			return fs, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("get fee setting: %w", err)
		}
	}
	return nil, nil
}
