// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package engine ties the resolution pipeline, the switch controller and
// the fallback chain into one per-session object. Hosts drive it through
// the operation methods and observe it through Listener and notify.Notifier.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ManuGH/listenpath/internal/availability"
	"github.com/ManuGH/listenpath/internal/capability"
	"github.com/ManuGH/listenpath/internal/config"
	"github.com/ManuGH/listenpath/internal/continuity"
	"github.com/ManuGH/listenpath/internal/decision"
	"github.com/ManuGH/listenpath/internal/fallback"
	lplog "github.com/ManuGH/listenpath/internal/log"
	"github.com/ManuGH/listenpath/internal/media"
	"github.com/ManuGH/listenpath/internal/metrics"
	"github.com/ManuGH/listenpath/internal/notify"
	"github.com/ManuGH/listenpath/internal/playback"
	"github.com/ManuGH/listenpath/internal/prefs"
	"github.com/ManuGH/listenpath/internal/probe"
	"github.com/ManuGH/listenpath/internal/resilience"
	"github.com/ManuGH/listenpath/internal/switching"
)

var timeNow = time.Now

var (
	// ErrLocked is returned by operations after a fatal error until the
	// next LoadEpisode.
	ErrLocked = errors.New("engine: locked after fatal error")
	// ErrNoEpisode is returned by operations that need a loaded episode.
	ErrNoEpisode = errors.New("engine: no episode loaded")
	// ErrUnknownLanguage is returned for language codes the episode lacks.
	ErrUnknownLanguage = errors.New("engine: unknown language")
	// ErrUnknownVariant is returned for variant ids the language lacks.
	ErrUnknownVariant = errors.New("engine: unknown variant")
	// ErrUnavailable is returned when a requested variant cannot be played.
	ErrUnavailable = errors.New("engine: variant unavailable")
	// ErrUnknownChapter is returned for out-of-range chapter indexes.
	ErrUnknownChapter = errors.New("engine: unknown chapter")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine: closed")
)

// Listener observes UI-relevant changes. Calls happen on engine goroutines
// and must not block.
type Listener interface {
	VariantsChanged(language string, display []media.Variant, selected media.VariantID)
	LanguagesChanged(languages []LanguageInfo)
	ChapterChanged(index int)
}

// NopListener ignores every change.
type NopListener struct{}

func (NopListener) VariantsChanged(string, []media.Variant, media.VariantID) {}
func (NopListener) LanguagesChanged([]LanguageInfo)                          {}
func (NopListener) ChapterChanged(int)                                       {}

// ChapterSource supplies chapter start times in seconds, ascending.
type ChapterSource interface {
	ChapterStarts(ctx context.Context, language string) ([]float64, error)
}

// IdleFunc returns a channel that fires when the host is idle.
type IdleFunc func(ctx context.Context) <-chan struct{}

// LanguageInfo describes one configured language.
type LanguageInfo struct {
	Code      string `json:"code"`
	Label     string `json:"label"`
	Available bool   `json:"available"`
	Active    bool   `json:"active"`
}

// Deps are the collaborators of an Engine. Oracle, Prober, Cache, Prefs
// and Element are required. NewElement creates throwaway elements for the
// prober's media tier when the prober was built without one.
type Deps struct {
	Oracle     *capability.Oracle
	Prober     *probe.Prober
	Cache      *availability.Cache
	Prefs      *prefs.Store
	Element    playback.Element
	NewElement func() playback.Element
	Notifier   notify.Notifier
	Listener   Listener
	Chapters   ChapterSource
	Idle       IdleFunc
}

// Config tunes engine timing.
type Config struct {
	Timeouts         switching.Timeouts
	FallbackWindow   time.Duration
	StartVerify      time.Duration
	IdleCap          time.Duration
	ScanDelay        time.Duration
	ChapterInterval  time.Duration
	ShowAllQualities bool
}

// DefaultConfig returns the production timing.
func DefaultConfig() Config {
	return Config{
		Timeouts:        switching.DefaultTimeouts(),
		FallbackWindow:  fallback.DefaultWindow,
		StartVerify:     2500 * time.Millisecond,
		IdleCap:         2 * time.Second,
		ScanDelay:       800 * time.Millisecond,
		ChapterInterval: time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FallbackWindow <= 0 {
		c.FallbackWindow = d.FallbackWindow
	}
	if c.StartVerify <= 0 {
		c.StartVerify = d.StartVerify
	}
	if c.IdleCap <= 0 {
		c.IdleCap = d.IdleCap
	}
	if c.ScanDelay <= 0 {
		c.ScanDelay = d.ScanDelay
	}
	if c.ChapterInterval <= 0 {
		c.ChapterInterval = d.ChapterInterval
	}
	return c
}

// LoadOptions control how an episode starts.
type LoadOptions struct {
	// StartAt overrides the remembered position.
	StartAt *float64
	// Autoplay starts playback once the source is ready.
	Autoplay bool
}

// Engine is safe for concurrent use.
type Engine struct {
	deps     Deps
	cfg      Config
	state    *continuity.State
	ctrl     *switching.Controller
	chain    *fallback.Chain
	resolver *Resolver

	life   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	sessionID      string
	episode        *media.Episode
	language       string
	variants       []media.Variant
	record         *availability.Record
	fatal          *notify.Notification
	chapters       []float64
	chapterLang    string
	chapterIdx     int
	chapterLimiter *rate.Limiter
	lastStarted    time.Time
	bgCancel       context.CancelFunc
	closed         bool
}

// New wires an engine and starts its element monitor. Close releases it.
func New(deps Deps, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	if deps.Notifier == nil {
		deps.Notifier = notify.LogNotifier{Logger: lplog.WithComponent("notify")}
	}
	if deps.Listener == nil {
		deps.Listener = NopListener{}
	}
	if deps.NewElement != nil {
		deps.Prober.UseOpener(playback.NewOpener(deps.NewElement))
	}

	e := &Engine{
		deps:           deps,
		cfg:            cfg,
		state:          continuity.New(),
		resolver:       NewResolver(deps.Oracle, deps.Prober),
		chapterIdx:     -1,
		chapterLimiter: rate.NewLimiter(rate.Every(cfg.ChapterInterval), 1),
	}
	e.life, e.cancel = context.WithCancel(context.Background())
	e.ctrl = switching.New(deps.Element, e.state, sessionSettings{e},
		switching.WithTimeouts(cfg.Timeouts),
		switching.WithNotifier(deps.Notifier),
		switching.WithGestureMode(deps.Oracle.RequiresGesture()),
	)
	e.chain = fallback.NewChain(e.ctrl,
		fallback.WithWindow(cfg.FallbackWindow),
		fallback.WithNotifier(deps.Notifier),
	)
	e.ctrl.SetFailureFunc(e.onSwitchFailure)

	events, unsubscribe := deps.Element.Subscribe()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer unsubscribe()
		e.monitor(events)
	}()
	return e
}

// sessionSettings feeds persisted rate and volume into the controller and
// saves positions under the active episode.
type sessionSettings struct{ e *Engine }

func (s sessionSettings) PlaybackRate() float64 { return s.e.deps.Prefs.PlaybackRate() }
func (s sessionSettings) Volume() float64       { return s.e.deps.Prefs.Volume() }
func (s sessionSettings) SavePosition(ctx context.Context, seconds float64) {
	id := s.e.episodeID()
	if id == "" {
		return
	}
	if err := s.e.deps.Prefs.SavePosition(ctx, id, seconds); err != nil {
		logger := lplog.WithComponentFromContext(ctx, "engine")
		logger.Warn().Err(err).Msg("failed to save position")
	}
}

func (e *Engine) episodeID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.episode == nil {
		return ""
	}
	return e.episode.ID
}

// sessionCtx decorates ctx with the session id for log correlation.
func (e *Engine) sessionCtx(ctx context.Context) context.Context {
	e.mu.Lock()
	id := e.sessionID
	e.mu.Unlock()
	if id == "" {
		return ctx
	}
	return lplog.ContextWithSessionID(ctx, id)
}

// guard returns ErrClosed, ErrLocked or ErrNoEpisode when an operation
// cannot run. Must be called with mu held.
func (e *Engine) guard() error {
	switch {
	case e.closed:
		return ErrClosed
	case e.fatal != nil:
		return ErrLocked
	case e.episode == nil:
		return ErrNoEpisode
	}
	return nil
}

func (e *Engine) check() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.guard()
}

// LoadEpisode validates ep, resolves its starting language and variant, and
// switches to it. Configuration errors and the absence of any playable
// format lock the engine until the next LoadEpisode.
func (e *Engine) LoadEpisode(ctx context.Context, ep media.Episode, opts LoadOptions) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.bgCancel != nil {
		e.bgCancel()
		e.bgCancel = nil
	}
	reason := switching.ReasonInitial
	if e.episode != nil {
		reason = switching.ReasonEpisodeChange
	}
	e.sessionID = uuid.NewString()
	e.resolver.NewSession()
	e.fatal = nil
	e.episode = nil
	e.variants = nil
	e.record = nil
	e.chapters = nil
	e.chapterLang = ""
	e.chapterIdx = -1
	e.mu.Unlock()

	ctx = e.sessionCtx(ctx)
	logger := lplog.WithComponentFromContext(ctx, "engine").With().Str(lplog.FieldEpisodeID, ep.ID).Logger()

	if err := config.ValidateEpisode(ep); err != nil {
		e.ctrl.Detach()
		e.lock(ctx, notify.CodeConfigError, "This episode cannot be played: invalid configuration")
		logger.Error().Err(err).Msg("episode rejected")
		return err
	}

	lang := ep.DefaultLanguage
	if saved, ok := e.deps.Prefs.Language(ctx); ok {
		if _, exists := ep.Languages[saved]; exists {
			lang = saved
		}
	}
	if _, ok := ep.Languages[lang]; !ok {
		lang = ep.LanguageCodes()[0]
	}
	track, _ := ep.Track(lang)

	rec := e.deps.Cache.Read(ctx, ep.ID, ep.CacheVersion)
	if rec == nil {
		rec = availability.NewRecord(ep.ID, ep.CacheVersion, timeNow())
	}
	remembered, _ := e.deps.Prefs.Quality(ctx, lang)

	res, err := e.resolver.Resolve(ctx, track, rec, remembered)
	if res.ApplyTo(rec) {
		e.writeRecord(ctx, rec)
	}
	if err != nil {
		e.ctrl.Detach()
		e.lock(ctx, notify.CodeNoPlayableFormat, "No playable audio format is available for this episode")
		return fmt.Errorf("load %s: %w", ep.ID, err)
	}
	metrics.RecordSelection(string(res.Selection.Variant.Codec), string(res.Selection.Reason))

	start := 0.0
	if pos, ok := e.deps.Prefs.Position(ctx, ep.ID); ok {
		start = pos
	}
	if opts.StartAt != nil {
		start = *opts.StartAt
	}
	e.state.Reset(start)
	if opts.Autoplay {
		e.state.SetUserWantsPlaying(true)
	}

	e.mu.Lock()
	epCopy := ep
	e.episode = &epCopy
	e.language = lang
	e.variants = res.Variants
	e.record = rec
	bgCtx, cancel := context.WithCancel(e.life)
	e.bgCancel = cancel
	e.mu.Unlock()

	logger.Info().
		Str(lplog.FieldEvent, "episode.loaded").
		Str(lplog.FieldLanguage, lang).
		Str(lplog.FieldVariantID, string(res.Selection.Variant.ID)).
		Str(lplog.FieldReason, string(res.Selection.Reason)).
		Float64(lplog.FieldPosition, start).
		Msg("episode resolved")

	e.publishVariants(res.Selection.Variant.ID)
	e.publishLanguages()

	e.ctrl.Switch(ctx, switching.Request{
		Variant:     res.Selection.Variant,
		Reason:      reason,
		Language:    lang,
		DesiredTime: &start,
		ForcePlay:   opts.Autoplay,
	})
	e.publishVariants(e.ctrl.Current().ID)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.backgroundScan(e.sessionCtx(bgCtx), epCopy.ID, lang)
	}()
	return nil
}

// ChangeLanguage switches to the best variant of language, keeping position.
func (e *Engine) ChangeLanguage(ctx context.Context, language string) error {
	e.mu.Lock()
	if err := e.guard(); err != nil {
		e.mu.Unlock()
		return err
	}
	ep := *e.episode
	rec := e.record
	e.mu.Unlock()

	ctx = e.sessionCtx(ctx)
	track, ok := ep.Track(language)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, language)
	}
	remembered, _ := e.deps.Prefs.Quality(ctx, language)

	e.mu.Lock()
	snapshot := rec.Clone()
	e.mu.Unlock()
	res, err := e.resolver.Resolve(ctx, track, snapshot, remembered)

	if !e.sameEpisode(ep.ID) {
		return ErrUnavailable
	}
	e.mu.Lock()
	learned := res.ApplyTo(e.record)
	rec = e.record
	e.mu.Unlock()
	if learned {
		e.writeRecord(ctx, rec)
	}

	if err != nil {
		e.deps.Notifier.Notify(ctx, notify.Notification{
			Message:  fmt.Sprintf("No playable audio for %s", track.Label),
			Severity: notify.SeverityWarning,
			Code:     notify.CodeNoPlayableFormat,
		})
		e.publishLanguages()
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, language, err)
	}
	metrics.RecordSelection(string(res.Selection.Variant.Codec), string(res.Selection.Reason))

	if err := e.deps.Prefs.SetLanguage(ctx, language); err != nil {
		logger := lplog.WithComponentFromContext(ctx, "engine")
		logger.Warn().Err(err).Msg("failed to remember language")
	}

	e.mu.Lock()
	e.language = language
	e.variants = res.Variants
	e.chapters = nil
	e.chapterLang = ""
	if e.bgCancel != nil {
		e.bgCancel()
	}
	bgCtx, cancel := context.WithCancel(e.life)
	e.bgCancel = cancel
	e.mu.Unlock()

	e.publishVariants(res.Selection.Variant.ID)
	e.publishLanguages()

	result := e.ctrl.Switch(ctx, switching.Request{
		Variant:  res.Selection.Variant,
		Reason:   switching.ReasonLanguageChange,
		Language: language,
	})
	e.publishVariants(e.ctrl.Current().ID)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.backgroundScan(e.sessionCtx(bgCtx), ep.ID, language)
	}()
	return e.switchErr(result)
}

// ChangeQuality switches to variant id of the active language. Variants of
// unknown existence are probed first.
func (e *Engine) ChangeQuality(ctx context.Context, id media.VariantID) error {
	e.mu.Lock()
	if err := e.guard(); err != nil {
		e.mu.Unlock()
		return err
	}
	epID := e.episode.ID
	lang := e.language
	v, ok := media.FindVariant(e.variants, id)
	e.mu.Unlock()

	ctx = e.sessionCtx(ctx)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVariant, id)
	}
	if !v.Supported || v.Exists == media.ExistsFalse {
		return fmt.Errorf("%w: %s", ErrUnavailable, id)
	}
	if v.Exists == media.ExistsUnknown {
		verdict := e.deps.Prober.Probe(ctx, v.URL, v.MIME)
		if verdict != media.ExistsUnknown {
			e.mergeVerdicts(ctx, epID, lang, map[media.VariantID]bool{id: verdict == media.ExistsTrue})
		}
		if verdict != media.ExistsTrue {
			e.publishVariants(e.ctrl.Current().ID)
			return fmt.Errorf("%w: %s", ErrUnavailable, id)
		}
		v.Exists = media.ExistsTrue
	}

	if err := e.deps.Prefs.SetQuality(ctx, lang, id); err != nil {
		logger := lplog.WithComponentFromContext(ctx, "engine")
		logger.Warn().Err(err).Msg("failed to remember quality")
	}
	result := e.ctrl.Switch(ctx, switching.Request{
		Variant:  v,
		Reason:   switching.ReasonQualityChange,
		Language: lang,
	})
	e.publishVariants(e.ctrl.Current().ID)
	return e.switchErr(result)
}

// Play records the intent to play and resumes the element. A resume that
// does not actually start within the verification window triggers the
// fallback chain.
func (e *Engine) Play(ctx context.Context) error {
	if err := e.check(); err != nil {
		return err
	}
	ctx = e.sessionCtx(ctx)
	e.state.SetUserWantsPlaying(true)
	if e.state.SwitchInProgress() {
		return nil
	}

	issued := timeNow()
	gen := e.state.Current()
	var playErr error
	e.ctrl.WithElement(gen, func(el playback.Element) {
		playErr = el.Play(ctx)
	})
	if playErr != nil {
		e.state.SetUserWantsPlaying(false)
		return fmt.Errorf("engine: play: %w", playErr)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.verifyStart(e.sessionCtx(e.life), gen, issued)
	}()
	return nil
}

// Pause records the intent to pause and saves progress.
func (e *Engine) Pause(ctx context.Context) error {
	if err := e.check(); err != nil {
		return err
	}
	ctx = e.sessionCtx(ctx)
	e.state.SetUserWantsPlaying(false)
	pos := e.state.Position()
	e.ctrl.WithElement(e.state.Current(), func(el playback.Element) {
		el.Pause()
		pos = el.CurrentTime()
	})
	if id := e.episodeID(); id != "" {
		if err := e.deps.Prefs.SavePosition(ctx, id, pos); err != nil {
			logger := lplog.WithComponentFromContext(ctx, "engine")
			logger.Warn().Err(err).Msg("failed to save position")
		}
	}
	return nil
}

// Seek moves playback to seconds.
func (e *Engine) Seek(ctx context.Context, seconds float64) (switching.SeekResult, error) {
	if err := e.check(); err != nil {
		return switching.SeekResult{}, err
	}
	res := e.ctrl.Seek(e.sessionCtx(ctx), seconds, switching.SeekOptions{ResumeIfPlaying: true, Persist: true})
	e.updateChapter(ctx, res.Position, true)
	return res, nil
}

// SeekChapter seeks to the start of chapter index of the active language.
func (e *Engine) SeekChapter(ctx context.Context, index int) (switching.SeekResult, error) {
	if err := e.check(); err != nil {
		return switching.SeekResult{}, err
	}
	starts, err := e.chapterStarts(ctx)
	if err != nil {
		return switching.SeekResult{}, err
	}
	if index < 0 || index >= len(starts) {
		return switching.SeekResult{}, fmt.Errorf("%w: %d", ErrUnknownChapter, index)
	}
	return e.Seek(ctx, starts[index])
}

// SetPlaybackRate applies and persists a playback speed. It returns the
// effective, clamped rate.
func (e *Engine) SetPlaybackRate(r float64) (float64, error) {
	if err := e.check(); err != nil {
		return 0, err
	}
	eff := e.deps.Prefs.SetPlaybackRate(r)
	e.ctrl.WithElement(e.state.Current(), func(el playback.Element) { el.SetPlaybackRate(eff) })
	return eff, nil
}

// SetVolume applies and persists a volume. It returns the effective volume.
func (e *Engine) SetVolume(v float64) (float64, error) {
	if err := e.check(); err != nil {
		return 0, err
	}
	eff := e.deps.Prefs.SetVolume(v)
	e.ctrl.WithElement(e.state.Current(), func(el playback.Element) { el.SetVolume(eff) })
	return eff, nil
}

// DisplayVariants returns the variants to offer for the active language and
// the selected id.
func (e *Engine) DisplayVariants() ([]media.Variant, media.VariantID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.episode == nil || e.fatal != nil {
		return nil, ""
	}
	return e.displayLocked(), e.ctrl.Current().ID
}

func (e *Engine) displayLocked() []media.Variant {
	showAll := e.cfg.ShowAllQualities || e.episode.ShowAllQualities
	return decision.FilterForDisplay(e.variants, e.deps.Oracle.PreferredCodecOrder(), showAll)
}

// Languages lists the configured languages, default first.
func (e *Engine) Languages() []LanguageInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.languagesLocked()
}

func (e *Engine) languagesLocked() []LanguageInfo {
	if e.episode == nil || e.fatal != nil {
		return nil
	}
	codes := e.episode.LanguageCodes()
	out := make([]LanguageInfo, 0, len(codes))
	for _, code := range codes {
		track := e.episode.Languages[code]
		out = append(out, LanguageInfo{
			Code:      code,
			Label:     track.Label,
			Available: code == e.language || (e.record != nil && e.record.Available(code)),
			Active:    code == e.language,
		})
	}
	return out
}

// ActiveChapter returns the chapter index containing the current position,
// or -1.
func (e *Engine) ActiveChapter() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chapterIdx
}

// ResetProbeBreaker re-enables the lightweight probe tiers.
func (e *Engine) ResetProbeBreaker(ctx context.Context) error {
	return e.deps.Prober.Breaker().Reset(ctx)
}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	SessionID  string               `json:"session_id"`
	EpisodeID  string               `json:"episode_id,omitempty"`
	Language   string               `json:"language,omitempty"`
	Variant    media.VariantID      `json:"variant,omitempty"`
	Phase      switching.Phase      `json:"phase"`
	Busy       bool                 `json:"busy"`
	Fatal      *notify.Notification `json:"fatal,omitempty"`
	Continuity continuity.Snapshot  `json:"continuity"`
	Breaker    resilience.Status    `json:"breaker"`
	Chapter    int                  `json:"chapter"`
	Platform   string               `json:"platform"`
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	snap := Snapshot{
		SessionID: e.sessionID,
		Language:  e.language,
		Chapter:   e.chapterIdx,
	}
	if e.episode != nil {
		snap.EpisodeID = e.episode.ID
	}
	if e.fatal != nil {
		f := *e.fatal
		snap.Fatal = &f
	}
	e.mu.Unlock()

	snap.Variant = e.ctrl.Current().ID
	snap.Phase = e.ctrl.Phase()
	snap.Busy = e.ctrl.Busy()
	snap.Continuity = e.state.Snapshot()
	snap.Breaker = e.deps.Prober.Breaker().Status()
	snap.Platform = e.deps.Oracle.Platform().String()
	return snap
}

// Close stops background work, flushes preferences and releases the
// controller. The element is left as is.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	if e.bgCancel != nil {
		e.bgCancel()
	}
	e.mu.Unlock()

	e.cancel()
	e.ctrl.Close()
	e.wg.Wait()
	e.deps.Prefs.Flush(ctx)
	return nil
}

// lock enters the fatal state and shows a sticky error.
func (e *Engine) lock(ctx context.Context, code, message string) {
	n := notify.Notification{Message: message, Severity: notify.SeverityError, Code: code, Sticky: true}
	e.mu.Lock()
	e.fatal = &n
	e.mu.Unlock()
	e.deps.Notifier.Notify(ctx, n)
}

func (e *Engine) sameEpisode(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed && e.episode != nil && e.episode.ID == id
}

// mergeVerdicts folds verdicts for language into the session record,
// refreshes the active variants and persists the record.
func (e *Engine) mergeVerdicts(ctx context.Context, episodeID, language string, verdicts map[media.VariantID]bool) {
	e.mu.Lock()
	if e.episode == nil || e.episode.ID != episodeID || e.record == nil {
		e.mu.Unlock()
		return
	}
	e.record.Merge(language, verdicts, false)
	if language == e.language {
		e.variants = decision.ApplyExistence(e.variants, verdicts)
	}
	rec := e.record
	e.mu.Unlock()
	e.writeRecord(ctx, rec)
}

func (e *Engine) writeRecord(ctx context.Context, rec *availability.Record) {
	e.mu.Lock()
	snapshot := rec.Clone()
	e.mu.Unlock()
	if err := e.deps.Cache.Write(ctx, snapshot); err != nil {
		logger := lplog.WithComponentFromContext(ctx, "engine")
		logger.Warn().Err(err).Msg("failed to persist availability")
	}
}

// switchErr reports a failed switch unless the fallback chain has already
// moved playback onto another variant.
func (e *Engine) switchErr(result switching.Result) error {
	if result.Outcome != switching.OutcomeFailed {
		return nil
	}
	if e.ctrl.Phase() == switching.PhaseReady && e.ctrl.Current().ID != result.Variant.ID {
		return nil
	}
	return result.Err
}

func (e *Engine) publishVariants(selected media.VariantID) {
	e.mu.Lock()
	if e.episode == nil {
		e.mu.Unlock()
		return
	}
	lang := e.language
	display := e.displayLocked()
	e.mu.Unlock()
	e.deps.Listener.VariantsChanged(lang, display, selected)
}

func (e *Engine) publishLanguages() {
	e.mu.Lock()
	langs := e.languagesLocked()
	e.mu.Unlock()
	if langs != nil {
		e.deps.Listener.LanguagesChanged(langs)
	}
}

// onSwitchFailure routes failed switches into the fallback chain.
func (e *Engine) onSwitchFailure(ctx context.Context, f switching.Failure) {
	trigger := fallback.TriggerLoadError
	if f.Reason == "timeout" {
		trigger = fallback.TriggerTimeout
	}
	e.handleFailure(ctx, f.Variant, f.Language, f.Position, f.WasPlaying, trigger, f.Err)
}

func (e *Engine) handleFailure(ctx context.Context, v media.Variant, language string, position float64, wasPlaying bool, trigger fallback.Trigger, cause error) {
	e.mu.Lock()
	if e.episode == nil || e.closed {
		e.mu.Unlock()
		return
	}
	epID := e.episode.ID
	variants := append([]media.Variant(nil), e.variants...)
	e.mu.Unlock()

	out := e.chain.Handle(ctx, fallback.Failure{
		EpisodeID:  epID,
		Language:   language,
		Variant:    v,
		Variants:   variants,
		Position:   position,
		WasPlaying: wasPlaying,
		Trigger:    trigger,
		Err:        cause,
	})
	if out == fallback.OutcomeSwitched {
		e.publishVariants(e.ctrl.Current().ID)
	}
}
