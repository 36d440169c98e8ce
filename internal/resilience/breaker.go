// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resilience holds the probe circuit breaker that disables the
// lightweight existence tiers after repeated false negatives.
package resilience

import (
	"context"
	"sync"
	"time"

	lplog "github.com/ManuGH/listenpath/internal/log"
	"github.com/ManuGH/listenpath/internal/metrics"
)

// State represents the breaker state.
type State string

const (
	// StateEnabled allows the HEAD and ranged GET tiers.
	StateEnabled State = "enabled"
	// StateDisabled sends every probe straight to the media tier.
	StateDisabled State = "disabled"
)

const (
	DefaultThreshold = 3
	DefaultFlagKey   = "listenpath:probe:breaker"
)

// FlagStore persists the disabled flag across restarts. kv.Store satisfies it.
type FlagStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// clock abstracts time operations for testability.
type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Status is a point-in-time view of the breaker.
type Status struct {
	State      State     `json:"state"`
	Streak     int       `json:"streak"`
	Threshold  int       `json:"threshold"`
	DisabledAt time.Time `json:"disabled_at,omitempty"`
}

// NotFoundBreaker counts consecutive not-found answers on distinct URLs.
type NotFoundBreaker struct {
	mu         sync.Mutex
	state      State
	threshold  int
	streak     map[string]struct{}
	disabledAt time.Time
	store      FlagStore
	key        string
	clock      clock
}

// Option configures a NotFoundBreaker.
type Option func(*NotFoundBreaker)

func WithThreshold(n int) Option {
	return func(b *NotFoundBreaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithStore persists the disabled flag under key. An empty key uses DefaultFlagKey.
func WithStore(store FlagStore, key string) Option {
	return func(b *NotFoundBreaker) {
		b.store = store
		if key != "" {
			b.key = key
		}
	}
}

func WithClock(c clock) Option {
	return func(b *NotFoundBreaker) { b.clock = c }
}

// NewNotFoundBreaker creates an enabled breaker.
func NewNotFoundBreaker(opts ...Option) *NotFoundBreaker {
	b := &NotFoundBreaker{
		state:     StateEnabled,
		threshold: DefaultThreshold,
		streak:    make(map[string]struct{}),
		key:       DefaultFlagKey,
		clock:     realClock{},
	}
	for _, opt := range opts {
		opt(b)
	}
	metrics.SetBreakerState(string(b.state))
	return b
}

// Load restores a persisted disabled flag.
func (b *NotFoundBreaker) Load(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	raw, ok, err := b.store.Get(ctx, b.key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.disabledAt, _ = time.Parse(time.RFC3339, raw)
	b.transitionTo(StateDisabled)
	return nil
}

// Allow reports whether the lightweight tiers may be used.
func (b *NotFoundBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateEnabled
}

// RecordNotFound registers a lightweight-tier 404 for url and reports
// whether this call tripped the breaker. Repeats of a URL already in the
// streak do not extend it.
func (b *NotFoundBreaker) RecordNotFound(ctx context.Context, url string) bool {
	b.mu.Lock()
	if b.state == StateDisabled {
		b.mu.Unlock()
		return false
	}
	b.streak[url] = struct{}{}
	if len(b.streak) < b.threshold {
		b.mu.Unlock()
		return false
	}

	b.disabledAt = b.clock.Now()
	b.streak = make(map[string]struct{})
	b.transitionTo(StateDisabled)
	stamp := b.disabledAt.UTC().Format(time.RFC3339)
	b.mu.Unlock()

	metrics.RecordBreakerTrip("not_found_streak")
	logger := lplog.WithComponentFromContext(ctx, "probe")
	logger.Warn().
		Str(lplog.FieldEvent, "probe.breaker_tripped").
		Str(lplog.FieldURL, url).
		Int("threshold", b.threshold).
		Msg("lightweight probe tiers disabled after repeated not-found answers")

	if b.store != nil {
		if err := b.store.Set(ctx, b.key, stamp); err != nil {
			logger.Warn().Err(err).Str(lplog.FieldEvent, "probe.breaker_persist_failed").Msg("breaker flag not persisted")
		}
	}
	return true
}

// RecordSuccess clears the not-found streak.
func (b *NotFoundBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streak) > 0 {
		b.streak = make(map[string]struct{})
	}
}

// Reset re-enables the lightweight tiers and removes the persisted flag.
func (b *NotFoundBreaker) Reset(ctx context.Context) error {
	b.mu.Lock()
	b.streak = make(map[string]struct{})
	b.disabledAt = time.Time{}
	b.transitionTo(StateEnabled)
	b.mu.Unlock()

	logger := lplog.WithComponentFromContext(ctx, "probe")
	logger.Info().
		Str(lplog.FieldEvent, "probe.breaker_reset").
		Msg("probe breaker reset")

	if b.store == nil {
		return nil
	}
	return b.store.Delete(ctx, b.key)
}

// State returns the current state.
func (b *NotFoundBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Status returns the current state and streak.
func (b *NotFoundBreaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		State:      b.state,
		Streak:     len(b.streak),
		Threshold:  b.threshold,
		DisabledAt: b.disabledAt,
	}
}

// transitionTo updates state and metrics. Caller must hold lock.
func (b *NotFoundBreaker) transitionTo(s State) {
	if b.state == s {
		return
	}
	b.state = s
	metrics.SetBreakerState(string(s))
}
