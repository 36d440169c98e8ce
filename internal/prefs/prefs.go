// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package prefs persists the playback scalars a listener expects to
// survive restarts: language, quality per language, speed, volume and
// per-episode position.
package prefs

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	lplog "github.com/ManuGH/listenpath/internal/log"
	"github.com/ManuGH/listenpath/internal/media"
	"github.com/ManuGH/listenpath/internal/persistence/kv"
)

const (
	keyPrefix   = "listenpath:pref:"
	keyLanguage = keyPrefix + "language"
	keyRate     = keyPrefix + "rate"
	keyVolume   = keyPrefix + "volume"

	MinRate     = 0.5
	MaxRate     = 3.0
	DefaultRate = 1.0

	DefaultDebounce         = 400 * time.Millisecond
	DefaultProgressInterval = 5 * time.Second
)

func qualityKey(language string) string { return keyPrefix + "quality:" + language }
func positionKey(episode string) string { return keyPrefix + "position:" + episode }

// Store reads and writes preferences through a kv.Store. Rate and volume
// live in memory and are persisted after a quiet period.
type Store struct {
	kv       kv.Store
	debounce time.Duration

	mu        sync.Mutex
	rate      float64
	volume    float64
	timers    map[string]*time.Timer
	progress  map[string]*rate.Limiter
	progEvery time.Duration
	closed    bool
}

// Option configures a Store.
type Option func(*Store)

// WithDebounce overrides the rate/volume persistence delay.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

// WithProgressInterval overrides the minimum spacing of progress saves.
func WithProgressInterval(d time.Duration) Option {
	return func(s *Store) { s.progEvery = d }
}

// New loads rate and volume from store.
func New(ctx context.Context, store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:        store,
		debounce:  DefaultDebounce,
		rate:      DefaultRate,
		volume:    1,
		timers:    make(map[string]*time.Timer),
		progress:  make(map[string]*rate.Limiter),
		progEvery: DefaultProgressInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if v, ok := s.loadFloat(ctx, keyRate); ok {
		s.rate = ClampRate(v)
	}
	if v, ok := s.loadFloat(ctx, keyVolume); ok {
		s.volume = ClampVolume(v)
	}
	return s
}

// ClampRate limits r to the supported speed range.
func ClampRate(r float64) float64 {
	switch {
	case r != r || r <= 0:
		return DefaultRate
	case r < MinRate:
		return MinRate
	case r > MaxRate:
		return MaxRate
	}
	return r
}

// ClampVolume limits v to [0, 1].
func ClampVolume(v float64) float64 {
	switch {
	case v != v || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func (s *Store) loadFloat(ctx context.Context, key string) (float64, bool) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		logger := lplog.WithComponent("prefs")
		logger.Warn().Err(err).Str("key", key).Msg("failed to read preference")
		return 0, false
	}
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (s *Store) Language(ctx context.Context) (string, bool) {
	v, ok, err := s.kv.Get(ctx, keyLanguage)
	if err != nil || !ok || v == "" {
		return "", false
	}
	return v, true
}

func (s *Store) SetLanguage(ctx context.Context, code string) error {
	return s.kv.Set(ctx, keyLanguage, code)
}

// Quality returns the last variant chosen for language.
func (s *Store) Quality(ctx context.Context, language string) (media.VariantID, bool) {
	v, ok, err := s.kv.Get(ctx, qualityKey(language))
	if err != nil || !ok {
		return "", false
	}
	if _, _, perr := media.ParseVariantID(media.VariantID(v)); perr != nil {
		return "", false
	}
	return media.VariantID(v), true
}

func (s *Store) SetQuality(ctx context.Context, language string, id media.VariantID) error {
	return s.kv.Set(ctx, qualityKey(language), string(id))
}

func (s *Store) PlaybackRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// SetPlaybackRate clamps r, applies it immediately and persists it after
// the debounce period. It returns the effective rate.
func (s *Store) SetPlaybackRate(r float64) float64 {
	r = ClampRate(r)
	s.mu.Lock()
	s.rate = r
	s.schedule(keyRate, r)
	s.mu.Unlock()
	return r
}

func (s *Store) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// SetVolume clamps v, applies it immediately and persists it after the
// debounce period.
func (s *Store) SetVolume(v float64) float64 {
	v = ClampVolume(v)
	s.mu.Lock()
	s.volume = v
	s.schedule(keyVolume, v)
	s.mu.Unlock()
	return v
}

// schedule must be called with mu held.
func (s *Store) schedule(key string, value float64) {
	if s.closed {
		return
	}
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	raw := strconv.FormatFloat(value, 'f', -1, 64)
	s.timers[key] = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		s.write(context.Background(), key, raw)
	})
}

func (s *Store) write(ctx context.Context, key, raw string) {
	if err := s.kv.Set(ctx, key, raw); err != nil {
		logger := lplog.WithComponent("prefs")
		logger.Warn().Err(err).Str("key", key).Msg("failed to persist preference")
	}
}

// Position returns the saved position for episode.
func (s *Store) Position(ctx context.Context, episode string) (float64, bool) {
	v, ok := s.loadFloat(ctx, positionKey(episode))
	if !ok || v < 0 {
		return 0, false
	}
	return v, true
}

// SavePosition writes the position for episode immediately.
func (s *Store) SavePosition(ctx context.Context, episode string, seconds float64) error {
	if seconds < 0 {
		seconds = 0
	}
	return s.kv.Set(ctx, positionKey(episode), strconv.FormatFloat(seconds, 'f', 3, 64))
}

// SaveProgress writes the position for episode unless a progress save for
// the same episode happened within the progress interval. It reports
// whether a write was attempted.
func (s *Store) SaveProgress(ctx context.Context, episode string, seconds float64) bool {
	s.mu.Lock()
	lim, ok := s.progress[episode]
	if !ok {
		lim = rate.NewLimiter(rate.Every(s.progEvery), 1)
		s.progress[episode] = lim
	}
	s.mu.Unlock()

	if !lim.Allow() {
		return false
	}
	if err := s.SavePosition(ctx, episode, seconds); err != nil {
		logger := lplog.WithComponentFromContext(ctx, "prefs")
		logger.Warn().Err(err).
			Str(lplog.FieldEpisodeID, episode).Msg("failed to save progress")
	}
	return true
}

// Flush writes pending rate and volume changes now.
func (s *Store) Flush(ctx context.Context) {
	s.mu.Lock()
	pending := make(map[string]string, len(s.timers))
	for key, t := range s.timers {
		if t.Stop() {
			switch key {
			case keyRate:
				pending[key] = strconv.FormatFloat(s.rate, 'f', -1, 64)
			case keyVolume:
				pending[key] = strconv.FormatFloat(s.volume, 'f', -1, 64)
			}
		}
		delete(s.timers, key)
	}
	s.mu.Unlock()

	for key, raw := range pending {
		s.write(ctx, key, raw)
	}
}

// Close flushes pending writes and stops scheduling new ones. The
// underlying kv.Store is not closed.
func (s *Store) Close(ctx context.Context) {
	s.Flush(ctx)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
