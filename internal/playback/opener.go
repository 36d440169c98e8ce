package playback

import (
	"context"
	"fmt"
	"time"
)

const openerPoll = 100 * time.Millisecond

// Opener loads URLs on throwaway elements with metadata-only intent. It
// implements the media tier of the existence prober.
type Opener struct {
	newElement func() Element
}

// NewOpener uses factory to create one element per probe.
func NewOpener(factory func() Element) *Opener {
	return &Opener{newElement: factory}
}

// Open returns nil once the element reports metadata or can-start, the
// element's error on a load error, or ctx.Err() when ctx ends first.
func (o *Opener) Open(ctx context.Context, url, mime string) error {
	el := o.newElement()
	events, unsubscribe := el.Subscribe()
	defer unsubscribe()
	defer el.Detach()

	el.Attach(url, mime)
	el.Load()

	ticker := time.NewTicker(openerPoll)
	defer ticker.Stop()
	for {
		if el.ReadyState() >= HaveMetadata {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("playback: event stream closed")
			}
			if ev.Source != "" && ev.Source != url {
				continue
			}
			if ev.Readiness() {
				return nil
			}
			if ev.Kind == EventError {
				if ev.Err != nil {
					return ev.Err
				}
				return fmt.Errorf("playback: load error for %s", url)
			}
		case <-ticker.C:
		}
	}
}
