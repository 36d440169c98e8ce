package prefs

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/listenpath/internal/media"
	"github.com/ManuGH/listenpath/internal/persistence/kv"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.5, ClampRate(0.1))
	assert.Equal(t, 3.0, ClampRate(8))
	assert.Equal(t, 1.0, ClampRate(0))
	assert.Equal(t, 1.0, ClampRate(math.NaN()))
	assert.Equal(t, 1.25, ClampRate(1.25))
	assert.Equal(t, 0.0, ClampVolume(-1))
	assert.Equal(t, 1.0, ClampVolume(2))
	assert.Equal(t, 0.3, ClampVolume(0.3))
}

func TestLanguageAndQuality(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, kv.NewMemoryStore())

	_, ok := s.Language(ctx)
	assert.False(t, ok)
	require.NoError(t, s.SetLanguage(ctx, "de"))
	lang, ok := s.Language(ctx)
	assert.True(t, ok)
	assert.Equal(t, "de", lang)

	require.NoError(t, s.SetQuality(ctx, "de", media.MakeVariantID(media.CodecAAC, 128)))
	id, ok := s.Quality(ctx, "de")
	assert.True(t, ok)
	assert.Equal(t, media.VariantID("aac-128"), id)
	_, ok = s.Quality(ctx, "en")
	assert.False(t, ok)
}

func TestQualityIgnoresGarbage(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	require.NoError(t, store.Set(ctx, qualityKey("en"), "flac"))
	s := New(ctx, store)

	_, ok := s.Quality(ctx, "en")
	assert.False(t, ok)
}

func TestRateDebouncedAndFlushed(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	s := New(ctx, store, WithDebounce(30*time.Millisecond))

	s.SetPlaybackRate(1.5)
	s.SetPlaybackRate(2.0)
	assert.Equal(t, 2.0, s.PlaybackRate(), "applied immediately")

	_, ok, _ := store.Get(ctx, keyRate)
	assert.False(t, ok, "not persisted before the quiet period")

	require.Eventually(t, func() bool {
		v, ok, _ := store.Get(ctx, keyRate)
		return ok && v == "2"
	}, time.Second, 5*time.Millisecond)

	reloaded := New(ctx, store)
	assert.Equal(t, 2.0, reloaded.PlaybackRate())
}

func TestFlushWritesPendingVolume(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	s := New(ctx, store, WithDebounce(time.Hour))

	assert.Equal(t, 1.0, s.SetVolume(1.7))
	s.SetVolume(0.4)
	s.Close(ctx)

	v, ok, err := store.Get(ctx, keyVolume)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "0.4", v)

	s.SetVolume(0.9)
	assert.Equal(t, 0.9, s.Volume())
	v, _, _ = store.Get(ctx, keyVolume)
	assert.Equal(t, "0.4", v, "closed store schedules nothing")
}

func TestProgressThrottled(t *testing.T) {
	ctx := context.Background()
	s := New(ctx, kv.NewMemoryStore(), WithProgressInterval(time.Hour))

	assert.True(t, s.SaveProgress(ctx, "ep1", 10))
	assert.False(t, s.SaveProgress(ctx, "ep1", 15))
	assert.True(t, s.SaveProgress(ctx, "ep2", 3), "throttle is per episode")

	pos, ok := s.Position(ctx, "ep1")
	assert.True(t, ok)
	assert.Equal(t, 10.0, pos)

	require.NoError(t, s.SavePosition(ctx, "ep1", 20))
	pos, _ = s.Position(ctx, "ep1")
	assert.Equal(t, 20.0, pos)
}
