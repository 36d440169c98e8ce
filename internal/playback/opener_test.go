package playback_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/ManuGH/listenpath/internal/playback"
	"github.com/ManuGH/listenpath/internal/playback/playbacktest"
)

func TestOpener(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	errDecode := errors.New("decode error")

	tests := []struct {
		name   string
		onLoad func(e *playbacktest.Element, url string)
		want   error
	}{
		{
			name:   "metadata event",
			onLoad: func(e *playbacktest.Element, url string) { go e.MakeReady(120) },
		},
		{
			name: "ready state without event",
			onLoad: func(e *playbacktest.Element, url string) {
				e.SetReadySilently(playback.HaveMetadata, 120)
			},
		},
		{
			name:   "load error",
			onLoad: func(e *playbacktest.Element, url string) { go e.Fail(errDecode) },
			want:   errDecode,
		},
		{
			name:   "never ready",
			onLoad: func(e *playbacktest.Element, url string) {},
			want:   context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var el *playbacktest.Element
			o := playback.NewOpener(func() playback.Element {
				el = playbacktest.New()
				el.OnLoad = tt.onLoad
				return el
			})

			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()

			err := o.Open(ctx, "https://cdn/a.m4a", "audio/mp4")
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Empty(t, el.Source(), "element detached after probe")
		})
	}
}
