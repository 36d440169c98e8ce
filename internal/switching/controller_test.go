package switching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/listenpath/internal/continuity"
	"github.com/ManuGH/listenpath/internal/media"
	"github.com/ManuGH/listenpath/internal/notify"
	"github.com/ManuGH/listenpath/internal/playback"
	"github.com/ManuGH/listenpath/internal/playback/playbacktest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubSettings struct {
	mu     sync.Mutex
	rate   float64
	volume float64
	saved  []float64
}

func (s *stubSettings) PlaybackRate() float64 { return s.rate }
func (s *stubSettings) Volume() float64       { return s.volume }
func (s *stubSettings) SavePosition(_ context.Context, p float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, p)
}

func (s *stubSettings) Saved() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.saved...)
}

func fastTimeouts() Timeouts {
	return Timeouts{
		Soft:              60 * time.Millisecond,
		Hard:              120 * time.Millisecond,
		Poll:              10 * time.Millisecond,
		Watchdog:          time.Second,
		MetadataWait:      80 * time.Millisecond,
		MetadataRetryWait: 40 * time.Millisecond,
		SeekConfirm:       30 * time.Millisecond,
	}
}

func variant(codec media.Codec, bitrate int) media.Variant {
	url := fmt.Sprintf("https://cdn.example/ep/%s-%d", codec, bitrate)
	return media.Variant{
		ID:      media.MakeVariantID(codec, bitrate),
		Codec:   codec,
		Bitrate: bitrate,
		URL:     url,
		MIME:    media.MIMEHint("mp4", codec),
	}
}

type fixture struct {
	el       *playbacktest.Element
	state    *continuity.State
	settings *stubSettings
	notes    *notify.Recorder
	ctrl     *Controller
	failures chan Failure
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		el:       playbacktest.New(),
		state:    continuity.New(),
		settings: &stubSettings{rate: 1.5, volume: 0.8},
		notes:    &notify.Recorder{},
		failures: make(chan Failure, 4),
	}
	f.el.ResetOnLoad = true
	base := []Option{
		WithTimeouts(fastTimeouts()),
		WithNotifier(f.notes),
		WithFailureFunc(func(_ context.Context, fl Failure) { f.failures <- fl }),
	}
	f.ctrl = New(f.el, f.state, f.settings, append(base, opts...)...)
	t.Cleanup(f.ctrl.Close)
	return f
}

// playing puts the element on v at position pos, as if a previous switch had landed.
func (f *fixture) playing(v media.Variant, pos float64, wantsPlaying bool) {
	f.el.Attach(v.URL, v.MIME)
	f.el.SetReadySilently(playback.HaveEnoughData, 600)
	f.el.SetCurrentTime(pos)
	if wantsPlaying {
		f.el.StartPlaying()
	}
	f.state.SetPosition(pos)
	f.state.SetUserWantsPlaying(wantsPlaying)
}

func readyOnLoad(duration float64) func(*playbacktest.Element, string) {
	return func(e *playbacktest.Element, _ string) { e.MakeReady(duration) }
}

func TestSwitchPreservesPositionAndIntent(t *testing.T) {
	f := newFixture(t)
	opus := variant(media.CodecOpus, 96)
	aac := variant(media.CodecAAC, 128)
	f.playing(opus, 42, true)
	f.el.OnLoad = readyOnLoad(600)

	res := f.ctrl.Switch(context.Background(), Request{Variant: aac, Reason: ReasonQualityChange, Language: "en"})

	require.NoError(t, res.Err)
	assert.Equal(t, OutcomeReady, res.Outcome)
	assert.Equal(t, 42.0, res.Position)
	assert.Equal(t, aac.URL, f.el.Source())
	assert.Equal(t, 42.0, f.el.CurrentTime())
	assert.Equal(t, 1.5, f.el.PlaybackRate(), "rate reapplied after load reset")
	assert.Equal(t, 0.8, f.el.Volume())
	assert.False(t, f.el.Paused())
	assert.Equal(t, aac.ID, f.ctrl.Current().ID)
	assert.Equal(t, PhaseReady, f.ctrl.Phase())
	assert.False(t, f.ctrl.Busy())
	assert.Equal(t, []float64{42}, f.settings.Saved())
}

func TestSwitchKeepsPausedSessionPaused(t *testing.T) {
	f := newFixture(t)
	f.playing(variant(media.CodecOpus, 96), 10, false)
	f.el.OnLoad = readyOnLoad(600)

	res := f.ctrl.Switch(context.Background(), Request{Variant: variant(media.CodecMP3, 128), Reason: ReasonLanguageChange})

	assert.Equal(t, OutcomeReady, res.Outcome)
	assert.True(t, f.el.Paused())
	assert.Zero(t, f.el.Plays())
}

func TestForcePlayResumesPausedSession(t *testing.T) {
	f := newFixture(t)
	f.el.OnLoad = readyOnLoad(600)
	at := 30.0

	res := f.ctrl.Switch(context.Background(), Request{Variant: variant(media.CodecAAC, 64), Reason: ReasonFallback, DesiredTime: &at, ForcePlay: true})

	assert.Equal(t, OutcomeReady, res.Outcome)
	assert.Equal(t, 30.0, res.Position)
	assert.False(t, f.el.Paused())
	assert.True(t, f.state.UserWantsPlaying())
}

func TestSupersededSwitchIsDiscarded(t *testing.T) {
	f := newFixture(t)
	first := variant(media.CodecOpus, 96)
	second := variant(media.CodecAAC, 128)
	f.playing(variant(media.CodecMP3, 64), 15, true)

	f.el.OnLoad = func(e *playbacktest.Element, url string) {
		if url == second.URL {
			e.MakeReady(600)
		}
	}

	firstDone := make(chan Result, 1)
	go func() {
		firstDone <- f.ctrl.Switch(context.Background(), Request{Variant: first, Reason: ReasonQualityChange})
	}()
	require.Eventually(t, func() bool { return f.el.Source() == first.URL }, time.Second, 5*time.Millisecond)

	res := f.ctrl.Switch(context.Background(), Request{Variant: second, Reason: ReasonQualityChange})
	stale := <-firstDone

	assert.Equal(t, OutcomeStale, stale.Outcome)
	assert.ErrorIs(t, stale.Err, ErrSuperseded)
	assert.Equal(t, OutcomeReady, res.Outcome)
	assert.Greater(t, res.Generation, stale.Generation)
	assert.Equal(t, 15.0, res.Position)
	assert.Equal(t, second.URL, f.el.Source())
	assert.Equal(t, second.ID, f.ctrl.Current().ID)
	assert.Empty(t, f.failures, "stale attempts never trigger fallback")
}

func TestPendingSeekAppliedWhenSwitchLands(t *testing.T) {
	f := newFixture(t)
	aac := variant(media.CodecAAC, 128)
	f.playing(variant(media.CodecOpus, 96), 5, false)

	release := make(chan struct{})
	f.el.OnLoad = func(e *playbacktest.Element, _ string) {
		go func() {
			<-release
			e.MakeReady(600)
		}()
	}

	done := make(chan Result, 1)
	go func() { done <- f.ctrl.Switch(context.Background(), Request{Variant: aac, Reason: ReasonQualityChange}) }()
	require.Eventually(t, f.state.SwitchInProgress, time.Second, 5*time.Millisecond)

	seek := f.ctrl.Seek(context.Background(), 120, SeekOptions{})
	assert.True(t, seek.Deferred)
	close(release)

	res := <-done
	assert.Equal(t, OutcomeReady, res.Outcome)
	assert.Equal(t, 120.0, res.Position)
	assert.Equal(t, 120.0, f.el.CurrentTime())
	assert.Nil(t, f.state.Snapshot().PendingSeek)
}

func TestSoftTimeoutAcceptsPartialReadiness(t *testing.T) {
	f := newFixture(t)
	f.el.OnLoad = func(e *playbacktest.Element, _ string) {
		e.Emit(playback.Event{Kind: playback.EventPositionChanged})
	}

	res := f.ctrl.Switch(context.Background(), Request{Variant: variant(media.CodecAAC, 128), Reason: ReasonInitial})

	assert.Equal(t, OutcomeReadySoft, res.Outcome)
	assert.NoError(t, res.Err)
}

func TestPollCatchesSilentReadiness(t *testing.T) {
	f := newFixture(t)
	f.el.OnLoad = func(e *playbacktest.Element, _ string) {
		e.SetReadySilently(playback.HaveMetadata, 300)
	}

	res := f.ctrl.Switch(context.Background(), Request{Variant: variant(media.CodecAAC, 128), Reason: ReasonInitial})
	assert.Equal(t, OutcomeReady, res.Outcome)
}

func TestHardTimeoutFailsAndHandsOff(t *testing.T) {
	f := newFixture(t)
	f.playing(variant(media.CodecOpus, 96), 77, true)
	f.el.OnLoad = func(*playbacktest.Element, string) {}
	aac := variant(media.CodecAAC, 128)

	res := f.ctrl.Switch(context.Background(), Request{Variant: aac, Reason: ReasonQualityChange, Language: "de"})

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrSwitchTimeout)
	assert.Equal(t, PhaseFailed, f.ctrl.Phase())
	assert.False(t, f.state.SwitchInProgress())
	assert.Equal(t, 77.0, f.state.Position(), "position untouched by failed attempt")

	fl := <-f.failures
	assert.Equal(t, "timeout", fl.Reason)
	assert.Equal(t, 77.0, fl.Position)
	assert.True(t, fl.WasPlaying)
	assert.Equal(t, "de", fl.Language)
	assert.Equal(t, aac.ID, fl.Variant.ID)
	assert.Equal(t, []string{notify.CodeSwitchFailed}, f.notes.Codes())
}

func TestLoadErrorFails(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("unsupported stream")
	f.el.OnLoad = func(e *playbacktest.Element, _ string) { e.Fail(boom) }

	res := f.ctrl.Switch(context.Background(), Request{Variant: variant(media.CodecOpus, 96), Reason: ReasonInitial})

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrLoad)
	fl := <-f.failures
	assert.Equal(t, "load_error", fl.Reason)
}

func TestResolvedPositionClampedBeforeEnd(t *testing.T) {
	f := newFixture(t)
	f.el.OnLoad = readyOnLoad(600)
	at := 700.0

	res := f.ctrl.Switch(context.Background(), Request{Variant: variant(media.CodecAAC, 128), DesiredTime: &at})

	assert.InDelta(t, 599.75, res.Position, 1e-9)
}

func TestGestureModePlaysBeforeSeeking(t *testing.T) {
	f := newFixture(t, WithGestureMode(true))
	f.playing(variant(media.CodecOpus, 96), 12, true)
	f.el.OnLoad = func(e *playbacktest.Element, _ string) {
		go e.MakeReady(600)
	}

	res := f.ctrl.Switch(context.Background(), Request{Variant: variant(media.CodecAAC, 128), Reason: ReasonQualityChange})
	require.Equal(t, OutcomeReady, res.Outcome)

	calls := f.el.Calls()
	playAt, seekAt := -1, -1
	for i, c := range calls {
		if c == "play" && playAt < 0 {
			playAt = i
		}
		if c == "seek 12.00" {
			seekAt = i
		}
	}
	require.GreaterOrEqual(t, playAt, 0)
	require.GreaterOrEqual(t, seekAt, 0)
	assert.Less(t, playAt, seekAt)
}

func TestWatchdogClearsBusy(t *testing.T) {
	to := fastTimeouts()
	to.Soft = time.Second
	to.Hard = 2 * time.Second
	to.Watchdog = 30 * time.Millisecond
	f := newFixture(t, WithTimeouts(to))
	f.el.OnLoad = func(*playbacktest.Element, string) {}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() { done <- f.ctrl.Switch(ctx, Request{Variant: variant(media.CodecAAC, 128)}) }()

	require.Eventually(t, f.ctrl.Busy, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !f.ctrl.Busy() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, PhaseSwitching, f.ctrl.Phase())

	cancel()
	assert.Equal(t, OutcomeStale, (<-done).Outcome)
}

func TestSeekRetriesImpreciseLanding(t *testing.T) {
	f := newFixture(t)
	f.playing(variant(media.CodecAAC, 128), 0, false)

	var mu sync.Mutex
	attempts := 0
	f.el.OnSeek = func(_ *playbacktest.Element, requested float64) float64 {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return requested - 3
		}
		return requested
	}

	res := f.ctrl.Seek(context.Background(), 200, SeekOptions{Persist: true})

	assert.False(t, res.Deferred)
	assert.True(t, res.Confirmed)
	assert.Equal(t, 200.0, res.Position)
	assert.Equal(t, 200.0, f.state.Position())
	assert.Equal(t, []float64{200}, f.settings.Saved())
	mu.Lock()
	assert.Equal(t, 2, attempts)
	mu.Unlock()
}

func TestSeekWithinToleranceAcceptsOnce(t *testing.T) {
	f := newFixture(t)
	f.playing(variant(media.CodecAAC, 128), 0, true)
	f.el.Pause()
	f.el.OnSeek = func(_ *playbacktest.Element, requested float64) float64 { return requested + 0.5 }

	res := f.ctrl.Seek(context.Background(), 50, SeekOptions{ResumeIfPlaying: true})

	assert.True(t, res.Confirmed)
	assert.Equal(t, 50.5, res.Position)
	assert.False(t, f.el.Paused(), "resumed because the user wants playback")
}
