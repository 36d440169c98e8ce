// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fallback walks the codec fallback chain opus -> aac -> mp3 when
// a source fails to load or to start.
package fallback

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	lplog "github.com/ManuGH/listenpath/internal/log"
	"github.com/ManuGH/listenpath/internal/media"
	"github.com/ManuGH/listenpath/internal/metrics"
	"github.com/ManuGH/listenpath/internal/notify"
	"github.com/ManuGH/listenpath/internal/switching"
)

// DefaultWindow suppresses repeated fallbacks for the same source.
const DefaultWindow = 15 * time.Second

// Trigger names what started a fallback.
type Trigger string

const (
	TriggerLoadError    Trigger = "load_error"
	TriggerTimeout      Trigger = "timeout"
	TriggerNotStarted   Trigger = "play_not_started"
	TriggerPlaybackFail Trigger = "playback_error"
)

// Outcome of handling one failure.
type Outcome string

const (
	OutcomeSwitched   Outcome = "switched"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeExhausted  Outcome = "exhausted"
	OutcomeFailed     Outcome = "failed"
)

var next = map[media.Codec][]media.Codec{
	media.CodecOpus: {media.CodecAAC, media.CodecMP3},
	media.CodecAAC:  {media.CodecMP3},
}

// NextCandidate returns the variant to try after current fails. It prefers
// a playable variant of the next codec with the same bitrate, then the best
// playable variant of that codec, before moving further down the chain.
func NextCandidate(current media.Variant, variants []media.Variant) (media.Variant, bool) {
	for _, codec := range next[current.Codec] {
		var pool []media.Variant
		for _, v := range variants {
			if v.Codec == codec && v.Playable() && v.ID != current.ID {
				pool = append(pool, v)
			}
		}
		if len(pool) == 0 {
			continue
		}
		for _, v := range pool {
			if v.Bitrate == current.Bitrate {
				return v, true
			}
		}
		sort.SliceStable(pool, func(i, j int) bool {
			if pool[i].Bitrate != pool[j].Bitrate {
				return pool[i].Bitrate > pool[j].Bitrate
			}
			if pool[i].Confidence != pool[j].Confidence {
				return pool[i].Confidence > pool[j].Confidence
			}
			return pool[i].ID < pool[j].ID
		})
		return pool[0], true
	}
	return media.Variant{}, false
}

// Switcher starts a source switch.
type Switcher interface {
	Switch(ctx context.Context, req switching.Request) switching.Result
}

// Failure describes the source that failed.
type Failure struct {
	EpisodeID  string
	Language   string
	Variant    media.Variant
	Variants   []media.Variant
	Position   float64
	WasPlaying bool
	Trigger    Trigger
	Err        error
}

func (f Failure) key() string {
	return f.EpisodeID + "|" + f.Language + "|" + string(f.Variant.ID)
}

// Chain handles failures. It is safe for concurrent use.
type Chain struct {
	switcher Switcher
	notifier notify.Notifier
	window   time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// Option configures a Chain.
type Option func(*Chain)

// WithWindow overrides the dedupe window.
func WithWindow(d time.Duration) Option {
	return func(c *Chain) { c.window = d }
}

// WithNow injects a clock.
func WithNow(now func() time.Time) Option {
	return func(c *Chain) { c.now = now }
}

// WithNotifier sets the notification sink.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Chain) { c.notifier = n }
}

// NewChain returns a chain that switches through s.
func NewChain(s Switcher, opts ...Option) *Chain {
	c := &Chain{
		switcher: s,
		notifier: notify.NotifierFunc(func(context.Context, notify.Notification) {}),
		window:   DefaultWindow,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle reacts to f. A source may trigger at most one fallback per window.
func (c *Chain) Handle(ctx context.Context, f Failure) Outcome {
	logger := lplog.WithComponentFromContext(ctx, "fallback").With().
		Str(lplog.FieldEpisodeID, f.EpisodeID).
		Str(lplog.FieldLanguage, f.Language).
		Str(lplog.FieldVariantID, string(f.Variant.ID)).
		Str("trigger", string(f.Trigger)).
		Logger()

	if !c.admit(f.key()) {
		logger.Debug().Msg("fallback suppressed")
		metrics.RecordFallback(string(f.Trigger), string(OutcomeSuppressed))
		return OutcomeSuppressed
	}

	cand, ok := NextCandidate(f.Variant, f.Variants)
	if !ok {
		logger.Warn().Err(f.Err).Msg("no fallback candidate left")
		metrics.RecordFallback(string(f.Trigger), string(OutcomeExhausted))
		c.notifier.Notify(ctx, notify.Notification{
			Message:  "No alternative audio format is available",
			Severity: notify.SeverityWarning,
			Code:     notify.CodeNoFallback,
		})
		return OutcomeExhausted
	}

	logger.Info().
		Str("candidate", string(cand.ID)).
		Float64(lplog.FieldPosition, f.Position).
		Msg("falling back")
	c.notifier.Notify(ctx, notify.Notification{
		Message:  fmt.Sprintf("Switched to %s %dkbps", cand.Codec, cand.Bitrate),
		Severity: notify.SeverityInfo,
		Code:     notify.CodeFallback,
	})

	pos := f.Position
	res := c.switcher.Switch(ctx, switching.Request{
		Variant:     cand,
		Reason:      switching.ReasonFallback,
		Language:    f.Language,
		DesiredTime: &pos,
		ForcePlay:   f.WasPlaying,
	})
	outcome := OutcomeSwitched
	if res.Outcome == switching.OutcomeFailed {
		outcome = OutcomeFailed
	}
	metrics.RecordFallback(string(f.Trigger), string(outcome))
	return outcome
}

func (c *Chain) admit(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if at, ok := c.last[key]; ok && now.Sub(at) < c.window {
		return false
	}
	for k, at := range c.last {
		if now.Sub(at) >= c.window {
			delete(c.last, k)
		}
	}
	c.last[key] = now
	return true
}
