package feeconfig

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tip-settlement/internal/domain"
	"tip-settlement/internal/observability"
	"tip-settlement/internal/storage"
	"tip-settlement/internal/storage/memory"
)

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *memory.FeeSettingStore) {
	t.Helper()
	store := memory.NewFeeSettingStore()
	clock := &stepClock{t: time.UnixMilli(1_700_000_000_000)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	r, err := NewRegistry(store, domain.DefaultPlatformFeeBps, opts...)
	require.NoError(t, err)
	return r, store
}

func TestNewRegistry_RejectsInvalidPlatformFee(t *testing.T) {
	for _, bps := range []int64{-1, 10000, 10001} {
		_, err := NewRegistry(memory.NewFeeSettingStore(), bps)
		assert.ErrorIs(t, err, domain.ErrFeeConfigInvalid, "bps=%d", bps)
	}
}

func TestGetEffectiveConfig_DefaultsToNoCustomFee(t *testing.T) {
	r, _ := newTestRegistry(t)

	cfg, err := r.GetEffectiveConfig(context.Background(), "creator-1", "video-1")
	require.NoError(t, err)
	assert.Equal(t, domain.FeeConfig{
		PlatformFeeBps: 300,
		RecipientID:    "creator-1",
		ContentID:      "video-1",
	}, cfg)

	cfg, err = r.GetEffectiveConfig(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cfg.CustomFeeBps)
}

func TestSetCustomFee_AppliesToContent(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	fs, err := r.SetCustomFee(ctx, "creator-1", FeeUpdate{
		RecipientID:  "creator-1",
		ContentID:    "video-1",
		BasisPoints:  1000,
		FeeRecipient: " collab ",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), fs.Version)
	assert.Equal(t, "creator-1", fs.UpdatedBy)
	assert.Equal(t, "collab", fs.FeeRecipient)

	cfg, err := r.GetEffectiveConfig(ctx, "creator-1", "video-1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), cfg.PlatformFeeBps)
	assert.Equal(t, int64(1000), cfg.CustomFeeBps)
	assert.Equal(t, "collab", cfg.CustomFeeRecipient)
	assert.Equal(t, int64(1), cfg.Version)

	other, err := r.GetEffectiveConfig(ctx, "creator-1", "video-2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), other.CustomFeeBps)
}

func TestGetEffectiveConfig_FallsBackToRecipientDefault(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.SetCustomFee(ctx, "creator-1", FeeUpdate{RecipientID: "creator-1", BasisPoints: 500})
	require.NoError(t, err)
	_, err = r.SetCustomFee(ctx, "creator-1", FeeUpdate{RecipientID: "creator-1", ContentID: "video-1", BasisPoints: 0})
	require.NoError(t, err)

	cfg, err := r.GetEffectiveConfig(ctx, "creator-1", "video-9")
	require.NoError(t, err)
	assert.Equal(t, int64(500), cfg.CustomFeeBps)

	// An explicit zero on the content item overrides the default.
	cfg, err = r.GetEffectiveConfig(ctx, "creator-1", "video-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cfg.CustomFeeBps)
	assert.Equal(t, int64(1), cfg.Version)
}

func TestSetCustomFee_BoundsRejectionLeavesStoreUnchanged(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics("test", reg)
	r, store := newTestRegistry(t, WithMetrics(m))
	ctx := context.Background()

	_, err := r.SetCustomFee(ctx, "creator-1", FeeUpdate{RecipientID: "creator-1", ContentID: "video-1", BasisPoints: 1000})
	require.NoError(t, err)

	for _, bps := range []int64{5001, -1} {
		_, err := r.SetCustomFee(ctx, "creator-1", FeeUpdate{RecipientID: "creator-1", ContentID: "video-1", BasisPoints: bps})
		assert.ErrorIs(t, err, domain.ErrFeeOutOfBounds, "bps=%d", bps)
	}

	fs, err := store.Get(ctx, "creator-1", "video-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), fs.BasisPoints)
	assert.Equal(t, int64(1), fs.Version)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.FeeUpdates.WithLabelValues("fee_out_of_bounds")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FeeUpdates.WithLabelValues("accepted")))
}

func TestSetCustomFee_BoundaryValuesAccepted(t *testing.T) {
	r, _ := newTestRegistry(t)
	for _, bps := range []int64{0, 5000} {
		_, err := r.SetCustomFee(context.Background(), "creator-1", FeeUpdate{RecipientID: "creator-1", BasisPoints: bps})
		assert.NoError(t, err, "bps=%d", bps)
	}
}

func TestSetCustomFee_Unauthorized(t *testing.T) {
	r, store := newTestRegistry(t)
	ctx := context.Background()

	for _, actor := range []string{"", "  ", "creator-2"} {
		_, err := r.SetCustomFee(ctx, actor, FeeUpdate{RecipientID: "creator-1", BasisPoints: 100})
		assert.ErrorIs(t, err, domain.ErrUnauthorized, "actor=%q", actor)
	}

	_, err := store.Get(ctx, "creator-1", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSetCustomFee_LeavesNothingForCreator(t *testing.T) {
	store := memory.NewFeeSettingStore()
	r, err := NewRegistry(store, 9000)
	require.NoError(t, err)

	_, err = r.SetCustomFee(context.Background(), "creator-1", FeeUpdate{RecipientID: "creator-1", BasisPoints: 1000})
	assert.ErrorIs(t, err, domain.ErrFeeConfigInvalid)
}

func TestSetCustomFee_LastWriterWins(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, bps := range []int64{100, 200, 300} {
		_, err := r.SetCustomFee(ctx, "creator-1", FeeUpdate{RecipientID: "creator-1", ContentID: "v", BasisPoints: bps})
		require.NoError(t, err)
	}

	cfg, err := r.GetEffectiveConfig(ctx, "creator-1", "v")
	require.NoError(t, err)
	assert.Equal(t, int64(300), cfg.CustomFeeBps)
	assert.Equal(t, int64(3), cfg.Version)

	settings, err := r.Settings(ctx, "creator-1")
	require.NoError(t, err)
	assert.Len(t, settings, 1)
}

func TestSetCustomFee_StaleWriteReported(t *testing.T) {
	store := memory.NewFeeSettingStore()
	m := observability.NewMetrics("test", prometheus.NewRegistry())
	ctx := context.Background()

	at := func(ms int64) func() time.Time {
		return func() time.Time { return time.UnixMilli(ms) }
	}
	fresh, err := NewRegistry(store, domain.DefaultPlatformFeeBps, WithClock(at(2_000)), WithMetrics(m))
	require.NoError(t, err)
	lagging, err := NewRegistry(store, domain.DefaultPlatformFeeBps, WithClock(at(1_000)), WithMetrics(m))
	require.NoError(t, err)

	_, err = fresh.SetCustomFee(ctx, "creator-1", FeeUpdate{RecipientID: "creator-1", ContentID: "v", BasisPoints: 500})
	require.NoError(t, err)

	got, err := lagging.SetCustomFee(ctx, "creator-1", FeeUpdate{RecipientID: "creator-1", ContentID: "v", BasisPoints: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.BasisPoints)
	assert.Equal(t, int64(2_000), got.UpdatedAt)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.FeeUpdates.WithLabelValues("accepted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FeeUpdates.WithLabelValues("stale")))

	cfg, err := fresh.GetEffectiveConfig(ctx, "creator-1", "v")
	require.NoError(t, err)
	assert.Equal(t, int64(500), cfg.CustomFeeBps)
}

type failingStore struct{ storage.FeeSettingStore }

func (failingStore) Get(context.Context, string, string) (*domain.FeeSetting, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Put(context.Context, *domain.FeeSetting) (*domain.FeeSetting, error) {
	return nil, errors.New("connection refused")
}

func TestRegistry_StoreErrorsPropagate(t *testing.T) {
	r, err := NewRegistry(failingStore{}, 300)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = r.GetEffectiveConfig(ctx, "creator-1", "video-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrNotFound)

	_, err = r.SetCustomFee(ctx, "creator-1", FeeUpdate{RecipientID: "creator-1", BasisPoints: 10})
	require.Error(t, err)
}
