package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/listenpath/internal/persistence/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClock struct {
	now time.Time
}

func (m *mockClock) Now() time.Time { return m.now }

func TestBreakerTripsOnDistinctURLs(t *testing.T) {
	ctx := context.Background()
	b := NewNotFoundBreaker()

	assert.False(t, b.RecordNotFound(ctx, "https://cdn/a"))
	assert.False(t, b.RecordNotFound(ctx, "https://cdn/a"), "repeat url does not extend streak")
	assert.False(t, b.RecordNotFound(ctx, "https://cdn/b"))
	assert.True(t, b.Allow())

	assert.True(t, b.RecordNotFound(ctx, "https://cdn/c"))
	assert.False(t, b.Allow())
	assert.Equal(t, StateDisabled, b.State())

	assert.False(t, b.RecordNotFound(ctx, "https://cdn/d"), "already disabled")
}

func TestBreakerSuccessResetsStreak(t *testing.T) {
	ctx := context.Background()
	b := NewNotFoundBreaker()

	b.RecordNotFound(ctx, "a")
	b.RecordNotFound(ctx, "b")
	b.RecordSuccess()
	assert.Equal(t, 0, b.Status().Streak)

	b.RecordNotFound(ctx, "c")
	b.RecordNotFound(ctx, "d")
	assert.True(t, b.Allow())
}

func TestBreakerPersistsAndResets(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	clock := &mockClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	b := NewNotFoundBreaker(WithStore(store, ""), WithClock(clock), WithThreshold(2))
	b.RecordNotFound(ctx, "a")
	require.True(t, b.RecordNotFound(ctx, "b"))

	raw, ok, err := store.Get(ctx, DefaultFlagKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2026-03-01T12:00:00Z", raw)

	restored := NewNotFoundBreaker(WithStore(store, ""))
	require.NoError(t, restored.Load(ctx))
	assert.False(t, restored.Allow())
	assert.Equal(t, clock.now, restored.Status().DisabledAt)

	require.NoError(t, restored.Reset(ctx))
	assert.True(t, restored.Allow())
	_, ok, err = store.Get(ctx, DefaultFlagKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

type failingStore struct{ *kv.MemoryStore }

func (f *failingStore) Set(context.Context, string, string) error { return errors.New("disk full") }

func TestBreakerTripsEvenWhenPersistFails(t *testing.T) {
	ctx := context.Background()
	b := NewNotFoundBreaker(WithStore(&failingStore{kv.NewMemoryStore()}, "k"), WithThreshold(1))

	assert.True(t, b.RecordNotFound(ctx, "a"))
	assert.False(t, b.Allow())
}
