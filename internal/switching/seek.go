// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package switching

import (
	"context"
	"math"
	"time"

	"github.com/ManuGH/listenpath/internal/continuity"
	lplog "github.com/ManuGH/listenpath/internal/log"
	"github.com/ManuGH/listenpath/internal/metrics"
	"github.com/ManuGH/listenpath/internal/playback"
)

const confirmPoll = 50 * time.Millisecond

// Seek moves playback to target seconds. While a switch is in flight the
// target becomes the pending seek and is applied when that switch lands.
func (c *Controller) Seek(ctx context.Context, target float64, opts SeekOptions) SeekResult {
	if target < 0 {
		target = 0
	}
	if c.state.DeferSeek(target) {
		metrics.RecordSeek("deferred")
		if opts.ForcePlay {
			c.state.SetUserWantsPlaying(true)
		}
		return SeekResult{Position: target, Deferred: true}
	}

	logger := lplog.WithComponentFromContext(ctx, "switching")
	gen := c.state.Current()

	c.waitMetadata(ctx, gen, c.timeouts.MetadataWait)
	landed, clamped, ok := c.seekOnce(gen, target)
	if !ok {
		return c.redirectSeek(target)
	}
	confirmed := c.confirm(ctx, gen, clamped, &landed)
	outcome := "confirmed"
	if !confirmed {
		logger.Debug().
			Float64("target", clamped).
			Float64(lplog.FieldPosition, landed).
			Msg("seek landed outside tolerance, retrying")
		c.waitMetadata(ctx, gen, c.timeouts.MetadataRetryWait)
		landed, clamped, ok = c.seekOnce(gen, target)
		if !ok {
			return c.redirectSeek(target)
		}
		confirmed = c.confirm(ctx, gen, clamped, &landed)
		outcome = "retried"
		if !confirmed {
			outcome = "unconfirmed"
		}
	}
	metrics.RecordSeek(outcome)

	if !c.state.SetPosition(landed) {
		return c.redirectSeek(target)
	}
	if opts.Persist && c.settings != nil {
		c.settings.SavePosition(ctx, landed)
	}
	if opts.ForcePlay {
		c.state.SetUserWantsPlaying(true)
	}
	if opts.ForcePlay || (opts.ResumeIfPlaying && c.state.UserWantsPlaying()) {
		c.WithElement(gen, func(el playback.Element) {
			if el.Paused() {
				if err := el.Play(ctx); err != nil {
					logger.Warn().Err(err).Msg("resume after seek rejected")
				}
			}
		})
	}
	return SeekResult{Position: landed, Confirmed: confirmed}
}

// redirectSeek hands a seek to a switch that started while it ran.
func (c *Controller) redirectSeek(target float64) SeekResult {
	if c.state.DeferSeek(target) {
		metrics.RecordSeek("deferred")
		return SeekResult{Position: target, Deferred: true}
	}
	metrics.RecordSeek("unconfirmed")
	return SeekResult{Position: c.state.Position()}
}

func (c *Controller) seekOnce(gen continuity.Generation, target float64) (landed, clamped float64, ok bool) {
	ok = c.WithElement(gen, func(el playback.Element) {
		duration, known := el.Duration()
		clamped = clampPosition(target, duration, known, c.timeouts.EndMargin)
		el.SetCurrentTime(clamped)
		landed = el.CurrentTime()
	})
	return landed, clamped, ok
}

// confirm waits up to SeekConfirm for the position to land within tolerance.
func (c *Controller) confirm(ctx context.Context, gen continuity.Generation, target float64, landed *float64) bool {
	within := func(p float64) bool { return math.Abs(p-target) <= c.timeouts.SeekTolerance }
	if within(*landed) {
		return true
	}
	deadline := time.NewTimer(c.timeouts.SeekConfirm)
	defer deadline.Stop()
	tick := time.NewTicker(confirmPoll)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-tick.C:
			if !c.state.IsCurrent(gen) {
				return false
			}
			*landed = c.el.CurrentTime()
			if within(*landed) {
				return true
			}
		}
	}
}

// waitMetadata returns once the element reports metadata, d elapses, or
// the generation changes.
func (c *Controller) waitMetadata(ctx context.Context, gen continuity.Generation, d time.Duration) bool {
	if c.el.ReadyState() >= playback.HaveMetadata {
		return true
	}
	events, unsubscribe := c.el.Subscribe()
	defer unsubscribe()

	timer := time.NewTimer(d)
	defer timer.Stop()
	poll := time.NewTicker(c.timeouts.Poll)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if ev.Readiness() {
				return true
			}
		case <-poll.C:
			if !c.state.IsCurrent(gen) {
				return false
			}
			if c.el.ReadyState() >= playback.HaveMetadata {
				return true
			}
		}
	}
}
