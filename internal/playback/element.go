// Package playback defines the contract between the resolution engine and
// the component that actually decodes audio.
package playback

import (
	"context"
	"errors"
)

// ErrPlayRejected is returned by Play when the platform refuses to start,
// for example outside a user gesture.
var ErrPlayRejected = errors.New("play rejected")

// ReadyState mirrors the media element readiness ladder.
type ReadyState int

const (
	HaveNothing ReadyState = iota
	HaveMetadata
	HaveCurrentData
	HaveFutureData
	HaveEnoughData
)

// EventKind names a lifecycle event.
type EventKind string

const (
	EventMetadataReady   EventKind = "metadata-ready"
	EventCanStart        EventKind = "can-start"
	EventStartedPlaying  EventKind = "started-playing"
	EventPositionChanged EventKind = "position-changed"
	EventError           EventKind = "error"
)

// Event is emitted by an Element. Source is the URL attached when the event
// fired; it lets listeners drop events of a resource that was replaced.
type Event struct {
	Kind     EventKind
	Source   string
	Position float64
	Err      error
}

// Readiness reports whether the event signals that metadata is available.
func (e Event) Readiness() bool {
	return e.Kind == EventMetadataReady || e.Kind == EventCanStart
}

// Element is one playback resource handle. Implementations must be safe for
// concurrent use; the engine serializes mutations itself.
type Element interface {
	Attach(url, mime string)
	Detach()
	Load()
	Play(ctx context.Context) error
	Pause()
	Paused() bool

	CurrentTime() float64
	SetCurrentTime(seconds float64)
	PlaybackRate() float64
	SetPlaybackRate(rate float64)
	Volume() float64
	SetVolume(volume float64)
	// Duration returns false while the duration is unknown.
	Duration() (float64, bool)
	ReadyState() ReadyState
	Source() string

	// Subscribe returns a buffered event channel and a function that
	// unsubscribes and closes it.
	Subscribe() (<-chan Event, func())
}
