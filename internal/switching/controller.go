// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package switching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/listenpath/internal/continuity"
	lplog "github.com/ManuGH/listenpath/internal/log"
	"github.com/ManuGH/listenpath/internal/media"
	"github.com/ManuGH/listenpath/internal/metrics"
	"github.com/ManuGH/listenpath/internal/notify"
	"github.com/ManuGH/listenpath/internal/playback"
	"github.com/ManuGH/listenpath/internal/telemetry"
)

// Controller owns the playback element. Every element mutation goes through
// elMu and is preceded by a generation check, so a superseded attempt can
// never touch the element again.
type Controller struct {
	el       playback.Element
	state    *continuity.State
	settings Settings
	notifier notify.Notifier
	timeouts Timeouts
	gesture  bool
	tracer   trace.Tracer

	elMu sync.Mutex

	mu        sync.Mutex
	phase     Phase
	current   media.Variant
	busy      bool
	watchdog  *time.Timer
	onFailure FailureFunc
	closed    bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithTimeouts overrides the timing constants.
func WithTimeouts(t Timeouts) Option {
	return func(c *Controller) { c.timeouts = t.withDefaults() }
}

// WithNotifier sets the user notification sink.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithGestureMode enables the strict user-gesture platform path: play is
// issued right after attaching and the seek is applied once metadata arrives.
func WithGestureMode(enabled bool) Option {
	return func(c *Controller) { c.gesture = enabled }
}

// WithFailureFunc sets the handler invoked for failed current attempts.
func WithFailureFunc(f FailureFunc) Option {
	return func(c *Controller) { c.onFailure = f }
}

// New creates a controller for el.
func New(el playback.Element, state *continuity.State, settings Settings, opts ...Option) *Controller {
	c := &Controller{
		el:       el,
		state:    state,
		settings: settings,
		notifier: notify.NotifierFunc(func(context.Context, notify.Notification) {}),
		timeouts: DefaultTimeouts(),
		phase:    PhaseIdle,
		tracer:   telemetry.Tracer("github.com/ManuGH/listenpath/internal/switching"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetFailureFunc replaces the failure handler.
func (c *Controller) SetFailureFunc(f FailureFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFailure = f
}

// Element returns the controlled element.
func (c *Controller) Element() playback.Element { return c.el }

// State returns the continuity state.
func (c *Controller) State() *continuity.State { return c.state }

// Timeouts returns the effective timing constants.
func (c *Controller) Timeouts() Timeouts { return c.timeouts }

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Current returns the variant of the last successful switch.
func (c *Controller) Current() media.Variant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Busy reports whether the host should show a loading state.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Close stops the watchdog. The element is left attached.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
	c.busy = false
}

// Switch replaces the active source with req.Variant. It blocks until the
// attempt is finalized, failed or superseded.
func (c *Controller) Switch(ctx context.Context, req Request) Result {
	start := time.Now()
	url := req.Variant.URL

	c.elMu.Lock()
	before := c.state.Position()
	if c.el.Source() != "" && !c.state.SwitchInProgress() && c.Phase() == PhaseReady {
		before = c.el.CurrentTime()
		c.state.SetPosition(before)
	}
	gen, superseded := c.state.BeginSwitch()
	wasPlaying := c.state.UserWantsPlaying()

	ctx, span := c.tracer.Start(ctx, "switch.source",
		trace.WithAttributes(telemetry.SwitchAttributes(uint64(gen), string(req.Reason), req.Language)...),
		trace.WithAttributes(telemetry.VariantAttributes(req.Variant)...))
	defer span.End()

	logger := lplog.WithComponentFromContext(ctx, "switching").With().
		Str(lplog.FieldGeneration, gen.Token()).
		Str(lplog.FieldVariantID, string(req.Variant.ID)).
		Str(lplog.FieldReason, string(req.Reason)).
		Logger()

	events, unsubscribe := c.el.Subscribe()
	defer unsubscribe()

	c.el.Pause()
	c.el.Detach()
	c.el.Attach(url, req.Variant.MIME)
	c.el.Load()
	c.beginBusy(gen)
	if c.gesture && (wasPlaying || req.ForcePlay) {
		if err := c.el.Play(ctx); err != nil {
			logger.Debug().Err(err).Msg("eager play rejected")
		}
	}
	c.elMu.Unlock()

	logger.Info().
		Str(lplog.FieldEvent, "switch.start").
		Float64(lplog.FieldPosition, before).
		Bool("was_playing", wasPlaying).
		Msg("switching source")

	outcome, err := c.await(ctx, gen, url, events, superseded)
	switch outcome {
	case OutcomeStale:
		span.SetAttributes(attribute.String("switch.outcome", string(outcome)))
		metrics.RecordSwitch(string(req.Reason), string(outcome), time.Since(start).Seconds())
		logger.Debug().Str(lplog.FieldEvent, "switch.stale").Msg("switch superseded")
		if err == nil {
			err = ErrSuperseded
		} else {
			c.abandon(gen)
		}
		return Result{Generation: gen, Variant: req.Variant, Outcome: outcome, Err: err}
	case OutcomeFailed:
		return c.fail(ctx, span, logger, start, gen, req, before, wasPlaying, err)
	}

	res := c.finalize(ctx, gen, req, before)
	if res.Outcome == OutcomeStale {
		metrics.RecordSwitch(string(req.Reason), string(OutcomeStale), time.Since(start).Seconds())
		return res
	}
	res.Outcome = outcome
	span.SetAttributes(attribute.String("switch.outcome", string(outcome)), attribute.Float64("switch.position", res.Position))
	metrics.RecordSwitch(string(req.Reason), string(outcome), time.Since(start).Seconds())
	logger.Info().
		Str(lplog.FieldEvent, "switch.ready").
		Str("outcome", string(outcome)).
		Float64(lplog.FieldPosition, res.Position).
		Dur("elapsed", time.Since(start)).
		Msg("source ready")
	return res
}

// await blocks until the attempt becomes ready, fails or is superseded.
func (c *Controller) await(ctx context.Context, gen continuity.Generation, url string, events <-chan playback.Event, superseded <-chan struct{}) (Outcome, error) {
	soft := time.NewTimer(c.timeouts.Soft)
	defer soft.Stop()
	hard := time.NewTimer(c.timeouts.Hard)
	defer hard.Stop()
	poll := time.NewTicker(c.timeouts.Poll)
	defer poll.Stop()

	sawActivity := false
	for {
		select {
		case <-superseded:
			return OutcomeStale, nil
		case <-ctx.Done():
			return OutcomeStale, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return OutcomeStale, nil
			}
			if ev.Source != "" && ev.Source != url {
				continue
			}
			switch {
			case ev.Readiness():
				return OutcomeReady, nil
			case ev.Kind == playback.EventError:
				return OutcomeFailed, fmt.Errorf("%w: %v", ErrLoad, ev.Err)
			default:
				sawActivity = true
			}
		case <-poll.C:
			if c.el.ReadyState() >= playback.HaveMetadata && c.el.Source() == url {
				return OutcomeReady, nil
			}
		case <-soft.C:
			_, hasDuration := c.el.Duration()
			if sawActivity || hasDuration || c.el.ReadyState() > playback.HaveNothing {
				return OutcomeReadySoft, nil
			}
		case <-hard.C:
			return OutcomeFailed, ErrSwitchTimeout
		}
	}
}

func (c *Controller) finalize(ctx context.Context, gen continuity.Generation, req Request, before float64) Result {
	c.elMu.Lock()
	defer c.elMu.Unlock()

	if !c.state.IsCurrent(gen) {
		return Result{Generation: gen, Variant: req.Variant, Outcome: OutcomeStale, Err: ErrSuperseded}
	}

	duration, known := c.el.Duration()
	target, wantsPlaying, ok := c.state.Finalize(gen, func(pending *float64) float64 {
		t := before
		switch {
		case pending != nil:
			t = *pending
		case req.DesiredTime != nil:
			t = *req.DesiredTime
		}
		return clampPosition(t, duration, known, c.timeouts.EndMargin)
	})
	if !ok {
		return Result{Generation: gen, Variant: req.Variant, Outcome: OutcomeStale, Err: ErrSuperseded}
	}

	c.el.SetCurrentTime(target)
	if c.settings != nil {
		c.el.SetPlaybackRate(c.settings.PlaybackRate())
		c.el.SetVolume(c.settings.Volume())
	}

	shouldPlay := wantsPlaying || req.ForcePlay
	if req.ForcePlay {
		c.state.SetUserWantsPlaying(true)
	}
	switch {
	case shouldPlay && c.el.Paused():
		if err := c.el.Play(ctx); err != nil {
			logger := lplog.WithComponentFromContext(ctx, "switching")
			logger.Warn().Err(err).
				Str(lplog.FieldGeneration, gen.Token()).Msg("resume after switch rejected")
		}
	case !shouldPlay && !c.el.Paused():
		c.el.Pause()
	}

	c.mu.Lock()
	c.phase = PhaseReady
	c.current = req.Variant
	c.endBusyLocked()
	c.mu.Unlock()

	if c.settings != nil {
		c.settings.SavePosition(ctx, target)
	}
	return Result{Generation: gen, Variant: req.Variant, Position: target}
}

func (c *Controller) fail(ctx context.Context, span trace.Span, logger zerolog.Logger, start time.Time, gen continuity.Generation, req Request, before float64, wasPlaying bool, cause error) Result {
	c.elMu.Lock()
	if !c.state.Fail(gen) {
		c.elMu.Unlock()
		metrics.RecordSwitch(string(req.Reason), string(OutcomeStale), time.Since(start).Seconds())
		return Result{Generation: gen, Variant: req.Variant, Outcome: OutcomeStale, Err: ErrSuperseded}
	}
	c.mu.Lock()
	c.phase = PhaseFailed
	c.endBusyLocked()
	handler := c.onFailure
	c.mu.Unlock()
	c.elMu.Unlock()

	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())
	span.SetAttributes(attribute.String("switch.outcome", string(OutcomeFailed)))
	metrics.RecordSwitch(string(req.Reason), string(OutcomeFailed), time.Since(start).Seconds())

	reason := "load_error"
	if errors.Is(cause, ErrSwitchTimeout) {
		reason = "timeout"
	}
	logger.Warn().Err(cause).
		Str(lplog.FieldEvent, "switch.failed").
		Str("failure", reason).
		Float64(lplog.FieldPosition, before).
		Msg("source switch failed")

	c.notifier.Notify(ctx, notify.Notification{
		Message:  fmt.Sprintf("Could not load %s %dkbps", req.Variant.Codec, req.Variant.Bitrate),
		Severity: notify.SeverityWarning,
		Code:     notify.CodeSwitchFailed,
	})

	if handler != nil {
		handler(ctx, Failure{
			Variant:    req.Variant,
			Language:   req.Language,
			Position:   before,
			WasPlaying: wasPlaying || req.ForcePlay,
			Reason:     reason,
			Err:        cause,
		})
	}
	return Result{Generation: gen, Variant: req.Variant, Outcome: OutcomeFailed, Position: before, Err: cause}
}

func (c *Controller) beginBusy(gen continuity.Generation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = PhaseSwitching
	c.busy = true
	if c.closed {
		return
	}
	if c.watchdog != nil {
		c.watchdog.Stop()
	}
	c.watchdog = time.AfterFunc(c.timeouts.Watchdog, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.busy {
			logger := lplog.WithComponent("switching")
			logger.Warn().
				Str(lplog.FieldGeneration, gen.Token()).
				Msg("watchdog cleared busy state")
		}
		c.busy = false
	})
}

func (c *Controller) endBusyLocked() {
	c.busy = false
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
}

// abandon ends a current attempt whose caller gave up, without fallback.
func (c *Controller) abandon(gen continuity.Generation) {
	c.elMu.Lock()
	defer c.elMu.Unlock()
	if !c.state.Fail(gen) {
		return
	}
	c.mu.Lock()
	c.phase = PhaseFailed
	c.endBusyLocked()
	c.mu.Unlock()
}

// Detach releases the element source, for example when an episode has no
// playable format.
func (c *Controller) Detach() {
	c.elMu.Lock()
	defer c.elMu.Unlock()
	c.el.Pause()
	c.el.Detach()
	c.mu.Lock()
	c.phase = PhaseIdle
	c.current = media.Variant{}
	c.endBusyLocked()
	c.mu.Unlock()
}

// WithElement runs fn under the element lock if gen is still current.
func (c *Controller) WithElement(gen continuity.Generation, fn func(el playback.Element)) bool {
	c.elMu.Lock()
	defer c.elMu.Unlock()
	if !c.state.IsCurrent(gen) || c.state.SwitchInProgress() {
		return false
	}
	fn(c.el)
	return true
}
