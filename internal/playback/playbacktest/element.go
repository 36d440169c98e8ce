// Package playbacktest provides a scriptable in-memory playback.Element.
package playbacktest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ManuGH/listenpath/internal/playback"
)

// Element is a fake media element. Hooks run without the element lock held
// and may call back into the element.
type Element struct {
	mu sync.Mutex

	source    string
	mime      string
	paused    bool
	time      float64
	rate      float64
	volume    float64
	duration  float64
	hasDur    bool
	ready     playback.ReadyState
	loads     int
	plays     int
	calls     []string
	subs      map[int]chan playback.Event
	nextSubID int

	// ResetOnLoad resets rate and volume to 1 on Load, like engines that
	// drop settings when a new source attaches.
	ResetOnLoad bool
	// OnLoad runs after Load with the attached URL.
	OnLoad func(e *Element, url string)
	// OnPlay replaces the default Play behavior.
	OnPlay func(e *Element) error
	// OnSeek maps a requested position to where the element lands.
	OnSeek func(e *Element, requested float64) float64
}

// New returns a paused element with rate and volume 1.
func New() *Element {
	return &Element{
		paused: true,
		rate:   1,
		volume: 1,
		subs:   make(map[int]chan playback.Event),
	}
}

var _ playback.Element = (*Element)(nil)

func (e *Element) log(format string, args ...any) {
	e.calls = append(e.calls, fmt.Sprintf(format, args...))
}

func (e *Element) Attach(url, mime string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log("attach %s", url)
	e.source = url
	e.mime = mime
	e.ready = playback.HaveNothing
	e.hasDur = false
	e.time = 0
}

func (e *Element) Detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.source == "" {
		return
	}
	e.log("detach %s", e.source)
	e.source = ""
	e.ready = playback.HaveNothing
	e.paused = true
}

func (e *Element) Load() {
	e.mu.Lock()
	e.log("load %s", e.source)
	e.loads++
	if e.ResetOnLoad {
		e.rate = 1
		e.volume = 1
	}
	url := e.source
	hook := e.OnLoad
	e.mu.Unlock()

	if hook != nil {
		hook(e, url)
	}
}

func (e *Element) Play(context.Context) error {
	e.mu.Lock()
	hook := e.OnPlay
	e.plays++
	e.log("play")
	e.mu.Unlock()

	if hook != nil {
		return hook(e)
	}
	e.StartPlaying()
	return nil
}

// StartPlaying marks the element playing and emits started-playing.
func (e *Element) StartPlaying() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	e.Emit(playback.Event{Kind: playback.EventStartedPlaying})
}

func (e *Element) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log("pause")
	e.paused = true
}

func (e *Element) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *Element) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.time
}

func (e *Element) SetCurrentTime(t float64) {
	e.mu.Lock()
	hook := e.OnSeek
	e.log("seek %.2f", t)
	e.mu.Unlock()

	landed := t
	if hook != nil {
		landed = hook(e, t)
	}
	e.mu.Lock()
	e.time = landed
	e.mu.Unlock()
	e.Emit(playback.Event{Kind: playback.EventPositionChanged, Position: landed})
}

func (e *Element) PlaybackRate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}

func (e *Element) SetPlaybackRate(r float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rate = r
}

func (e *Element) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

func (e *Element) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = v
}

func (e *Element) Duration() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration, e.hasDur
}

func (e *Element) ReadyState() playback.ReadyState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

func (e *Element) Source() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.source
}

func (e *Element) Subscribe() (<-chan playback.Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSubID
	e.nextSubID++
	ch := make(chan playback.Event, 64)
	e.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
			close(ch)
		})
	}
}

// Emit delivers ev to every subscriber, stamping the current source if
// ev.Source is empty. Full subscriber buffers drop the event.
func (e *Element) Emit(ev playback.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ev.Source == "" {
		ev.Source = e.source
	}
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// MakeReady sets the duration and ready state and emits metadata-ready.
func (e *Element) MakeReady(duration float64) {
	e.SetReadySilently(playback.HaveMetadata, duration)
	e.Emit(playback.Event{Kind: playback.EventMetadataReady})
}

// SetReadySilently changes readiness without emitting an event.
func (e *Element) SetReadySilently(state playback.ReadyState, duration float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ready = state
	if duration > 0 {
		e.duration = duration
		e.hasDur = true
	}
}

// Fail emits an error event for the current source.
func (e *Element) Fail(err error) {
	e.Emit(playback.Event{Kind: playback.EventError, Err: err})
}

// Calls returns the recorded call log.
func (e *Element) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Loads returns how often Load was called.
func (e *Element) Loads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loads
}

// Plays returns how often Play was called.
func (e *Element) Plays() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plays
}
