// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package switching replaces the active playback source while preserving
// position and play intent.
package switching

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/listenpath/internal/continuity"
	"github.com/ManuGH/listenpath/internal/media"
)

var (
	// ErrSwitchTimeout is reported when a source never became ready.
	ErrSwitchTimeout = errors.New("switching: source did not become ready")
	// ErrLoad wraps load errors reported by the element.
	ErrLoad = errors.New("switching: source failed to load")
	// ErrSuperseded is reported to callers whose attempt was replaced.
	ErrSuperseded = errors.New("switching: superseded by a newer switch")
)

// Phase of the controller.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSwitching Phase = "switching"
	PhaseReady     Phase = "ready"
	PhaseFailed    Phase = "failed"
)

// Reason tags why a switch started.
type Reason string

const (
	ReasonInitial        Reason = "initial"
	ReasonLanguageChange Reason = "language_change"
	ReasonQualityChange  Reason = "quality_change"
	ReasonEpisodeChange  Reason = "episode_change"
	ReasonFallback       Reason = "fallback"
)

// Outcome of one switch attempt.
type Outcome string

const (
	OutcomeReady     Outcome = "ready"
	OutcomeReadySoft Outcome = "ready_soft"
	OutcomeFailed    Outcome = "failed"
	OutcomeStale     Outcome = "stale"
)

// Timeouts bound the switch and seek waits.
type Timeouts struct {
	Soft              time.Duration
	Hard              time.Duration
	Poll              time.Duration
	Watchdog          time.Duration
	MetadataWait      time.Duration
	MetadataRetryWait time.Duration
	SeekConfirm       time.Duration
	// SeekTolerance is the accepted distance in seconds between a seek
	// target and the landed position.
	SeekTolerance float64
	// EndMargin keeps resolved positions strictly before the end.
	EndMargin float64
}

// DefaultTimeouts returns the production values.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Soft:              9 * time.Second,
		Hard:              10 * time.Second,
		Poll:              250 * time.Millisecond,
		Watchdog:          12 * time.Second,
		MetadataWait:      8 * time.Second,
		MetadataRetryWait: 4 * time.Second,
		SeekConfirm:       900 * time.Millisecond,
		SeekTolerance:     0.75,
		EndMargin:         0.25,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Soft <= 0 {
		t.Soft = d.Soft
	}
	if t.Hard <= 0 {
		t.Hard = d.Hard
	}
	if t.Soft > t.Hard {
		t.Soft = t.Hard
	}
	if t.Poll <= 0 {
		t.Poll = d.Poll
	}
	if t.Watchdog <= 0 {
		t.Watchdog = d.Watchdog
	}
	if t.MetadataWait <= 0 {
		t.MetadataWait = d.MetadataWait
	}
	if t.MetadataRetryWait <= 0 {
		t.MetadataRetryWait = d.MetadataRetryWait
	}
	if t.SeekConfirm <= 0 {
		t.SeekConfirm = d.SeekConfirm
	}
	if t.SeekTolerance <= 0 {
		t.SeekTolerance = d.SeekTolerance
	}
	if t.EndMargin <= 0 {
		t.EndMargin = d.EndMargin
	}
	return t
}

// Settings supplies per-session values reapplied after every switch.
type Settings interface {
	PlaybackRate() float64
	Volume() float64
	SavePosition(ctx context.Context, seconds float64)
}

// Request describes one switch.
type Request struct {
	Variant  media.Variant
	Reason   Reason
	Language string
	// DesiredTime overrides the captured position when no seek is pending.
	DesiredTime *float64
	// ForcePlay resumes playback even if the user had paused.
	ForcePlay bool
}

// Result reports how a switch ended.
type Result struct {
	Generation continuity.Generation
	Variant    media.Variant
	Outcome    Outcome
	Position   float64
	Err        error
}

// Failure is handed to the FailureFunc when a current attempt fails.
type Failure struct {
	Variant    media.Variant
	Language   string
	Position   float64
	WasPlaying bool
	Reason     string
	Err        error
}

// FailureFunc reacts to a failed switch, typically by starting a fallback.
type FailureFunc func(ctx context.Context, f Failure)

// SeekOptions controls what happens after a seek lands.
type SeekOptions struct {
	ResumeIfPlaying bool
	ForcePlay       bool
	Persist         bool
}

// SeekResult reports where a seek landed. Deferred seeks are applied by the
// switch in flight.
type SeekResult struct {
	Position  float64
	Deferred  bool
	Confirmed bool
}

func clampPosition(t, duration float64, known bool, margin float64) float64 {
	if t < 0 {
		t = 0
	}
	if known && duration > 0 && t > duration-margin {
		t = duration - margin
		if t < 0 {
			t = 0
		}
	}
	return t
}
