// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ManuGH/listenpath/internal/continuity"
	"github.com/ManuGH/listenpath/internal/decision"
	"github.com/ManuGH/listenpath/internal/fallback"
	lplog "github.com/ManuGH/listenpath/internal/log"
	"github.com/ManuGH/listenpath/internal/media"
	"github.com/ManuGH/listenpath/internal/playback"
)

// monitor consumes steady-state element events: position updates, start
// confirmations and playback errors outside of switches.
func (e *Engine) monitor(events <-chan playback.Event) {
	for {
		select {
		case <-e.life.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.handleEvent(ev)
		}
	}
}

func (e *Engine) handleEvent(ev playback.Event) {
	current := e.ctrl.Current()
	if current.URL == "" || (ev.Source != "" && ev.Source != current.URL) {
		return
	}
	ctx := e.sessionCtx(e.life)

	switch ev.Kind {
	case playback.EventStartedPlaying:
		e.mu.Lock()
		e.lastStarted = timeNow()
		e.mu.Unlock()
	case playback.EventPositionChanged:
		if e.state.SwitchInProgress() {
			return
		}
		pos := ev.Position
		if !e.state.SetPosition(pos) {
			return
		}
		if id := e.episodeID(); id != "" {
			e.deps.Prefs.SaveProgress(ctx, id, pos)
		}
		e.updateChapter(ctx, pos, false)
	case playback.EventError:
		if e.state.SwitchInProgress() {
			return
		}
		e.mu.Lock()
		lang := e.language
		closed := e.closed
		e.mu.Unlock()
		if closed {
			return
		}
		pos := e.state.Position()
		wasPlaying := e.state.UserWantsPlaying()
		logger := lplog.WithComponentFromContext(ctx, "engine")
		logger.Warn().Err(ev.Err).
			Str(lplog.FieldVariantID, string(current.ID)).
			Msg("playback error")
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.handleFailure(ctx, current, lang, pos, wasPlaying, fallback.TriggerPlaybackFail, ev.Err)
		}()
	}
}

// verifyStart checks after the verification window that a resume issued
// at issued actually started, and falls back if it did not.
func (e *Engine) verifyStart(ctx context.Context, gen continuity.Generation, issued time.Time) {
	timer := time.NewTimer(e.cfg.StartVerify)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if !e.state.IsCurrent(gen) || e.state.SwitchInProgress() || !e.state.UserWantsPlaying() {
		return
	}
	e.mu.Lock()
	started := !e.lastStarted.Before(issued)
	lang := e.language
	e.mu.Unlock()
	if started && !e.deps.Element.Paused() {
		return
	}

	current := e.ctrl.Current()
	logger := lplog.WithComponentFromContext(ctx, "engine")
	logger.Warn().
		Str(lplog.FieldVariantID, string(current.ID)).
		Msg("playback did not start")
	e.handleFailure(ctx, current, lang, e.state.Position(), true, fallback.TriggerNotStarted,
		fmt.Errorf("playback of %s did not start within %s", current.ID, e.cfg.StartVerify))
}

// waitIdle blocks until the host reports idle (bounded by IdleCap) or, with
// no idle signal, for ScanDelay. It returns false if ctx ended.
func (e *Engine) waitIdle(ctx context.Context) bool {
	wait := e.cfg.ScanDelay
	var idle <-chan struct{}
	if e.deps.Idle != nil {
		wait = e.cfg.IdleCap
		idle = e.deps.Idle(ctx)
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-idle:
	case <-timer.C:
	}
	return ctx.Err() == nil
}

// backgroundScan learns which other languages are available and completes
// the active language's existence map.
func (e *Engine) backgroundScan(ctx context.Context, episodeID, active string) {
	if !e.waitIdle(ctx) {
		return
	}
	logger := lplog.WithComponentFromContext(ctx, "engine").With().Str(lplog.FieldEpisodeID, episodeID).Logger()

	e.mu.Lock()
	if e.episode == nil || e.episode.ID != episodeID {
		e.mu.Unlock()
		return
	}
	ep := *e.episode
	rec := e.record.Clone()
	e.mu.Unlock()

	for _, code := range ep.LanguageCodes() {
		if code == active || rec.Available(code) || rec.FullyScanned(code) {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		track := ep.Languages[code]
		candidates := e.resolver.Candidates(track, rec)
		var unknown []media.Variant
		for _, v := range candidates {
			if v.Exists == media.ExistsUnknown {
				unknown = append(unknown, v)
			}
		}
		quick := e.deps.Prober.QuickProbe(ctx, unknown, 0)
		if len(quick.Results) > 0 {
			e.mergeVerdicts(ctx, episodeID, code, quick.Results)
		}
	}
	e.publishLanguages()

	if ctx.Err() != nil || rec.FullyScanned(active) {
		return
	}
	track := ep.Languages[active]
	full := e.deps.Prober.FullScan(ctx, decision.BuildCandidates(track, e.deps.Oracle))
	if ctx.Err() != nil {
		return
	}

	e.mu.Lock()
	if e.episode == nil || e.episode.ID != episodeID || e.record == nil {
		e.mu.Unlock()
		return
	}
	e.record.Merge(active, full, true)
	if e.language == active {
		e.variants = decision.ApplyExistence(e.variants, full)
	}
	stored := e.record
	e.mu.Unlock()

	e.writeRecord(ctx, stored)
	e.publishVariants(e.ctrl.Current().ID)
	e.publishLanguages()
	logger.Debug().Str(lplog.FieldLanguage, active).Int("verdicts", len(full)).Msg("background scan complete")
}

// chapterStarts loads and caches chapter starts of the active language.
func (e *Engine) chapterStarts(ctx context.Context) ([]float64, error) {
	e.mu.Lock()
	lang := e.language
	if e.chapterLang == lang && e.chapters != nil {
		starts := e.chapters
		e.mu.Unlock()
		return starts, nil
	}
	e.mu.Unlock()

	if e.deps.Chapters == nil {
		return nil, nil
	}
	starts, err := e.deps.Chapters.ChapterStarts(ctx, lang)
	if err != nil {
		return nil, fmt.Errorf("engine: chapters for %s: %w", lang, err)
	}
	starts = append([]float64(nil), starts...)
	sort.Float64s(starts)

	e.mu.Lock()
	if e.language == lang {
		e.chapters = starts
		e.chapterLang = lang
	}
	e.mu.Unlock()
	return starts, nil
}

// updateChapter recomputes the active chapter. Unforced updates are
// throttled to ChapterInterval.
func (e *Engine) updateChapter(ctx context.Context, pos float64, force bool) {
	if e.deps.Chapters == nil {
		return
	}
	if !force && !e.chapterLimiter.Allow() {
		return
	}
	starts, err := e.chapterStarts(ctx)
	if err != nil {
		logger := lplog.WithComponentFromContext(ctx, "engine")
		logger.Debug().Err(err).Msg("chapter lookup failed")
		return
	}
	idx := chapterIndex(starts, pos)

	e.mu.Lock()
	changed := idx != e.chapterIdx
	e.chapterIdx = idx
	e.mu.Unlock()
	if changed {
		e.deps.Listener.ChapterChanged(idx)
	}
}

// chapterIndex returns the last chapter starting at or before pos, or -1.
func chapterIndex(starts []float64, pos float64) int {
	return sort.Search(len(starts), func(i int) bool { return starts[i] > pos }) - 1
}
