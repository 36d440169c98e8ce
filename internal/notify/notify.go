// Package notify carries abstract user-facing notifications out of the
// engine. Rendering is up to the host.
package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Severity of a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Codes identify notification kinds independent of message text.
const (
	CodeSwitchFailed     = "switch_failed"
	CodeFallback         = "fallback_switched"
	CodeNoFallback       = "no_fallback"
	CodeConfigError      = "config_error"
	CodeNoPlayableFormat = "no_playable_format"
	CodePlaybackError    = "playback_error"
)

// Notification is one message for the user. Sticky notifications stay
// visible until the episode is reloaded; the rest auto-dismiss.
type Notification struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Sticky   bool     `json:"sticky"`
}

// Notifier receives notifications. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// LogNotifier writes notifications to a zerolog logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (l LogNotifier) Notify(_ context.Context, n Notification) {
	var ev *zerolog.Event
	switch n.Severity {
	case SeverityError:
		ev = l.Logger.Error()
	case SeverityWarning:
		ev = l.Logger.Warn()
	default:
		ev = l.Logger.Info()
	}
	ev.Str("event", "notify."+n.Code).Bool("sticky", n.Sticky).Msg(n.Message)
}

// Multi fans a notification out to several notifiers.
func Multi(ns ...Notifier) Notifier {
	return NotifierFunc(func(ctx context.Context, n Notification) {
		for _, x := range ns {
			if x != nil {
				x.Notify(ctx, n)
			}
		}
	})
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Codes returns the recorded codes in order.
func (r *Recorder) Codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.items))
	for _, n := range r.items {
		out = append(out, n.Code)
	}
	return out
}
