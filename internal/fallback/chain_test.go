package fallback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/listenpath/internal/media"
	"github.com/ManuGH/listenpath/internal/notify"
	"github.com/ManuGH/listenpath/internal/switching"
)

type mockSwitcher struct {
	mock.Mock
}

func (m *mockSwitcher) Switch(ctx context.Context, req switching.Request) switching.Result {
	args := m.Called(ctx, req)
	return args.Get(0).(switching.Result)
}

func v(codec media.Codec, bitrate int, exists media.Existence) media.Variant {
	return media.Variant{
		ID:        media.MakeVariantID(codec, bitrate),
		Codec:     codec,
		Bitrate:   bitrate,
		URL:       "https://cdn/" + string(media.MakeVariantID(codec, bitrate)),
		Supported: true,
		Exists:    exists,
	}
}

func TestNextCandidate(t *testing.T) {
	all := []media.Variant{
		v(media.CodecOpus, 96, media.ExistsTrue),
		v(media.CodecAAC, 64, media.ExistsTrue),
		v(media.CodecAAC, 96, media.ExistsTrue),
		v(media.CodecAAC, 128, media.ExistsTrue),
		v(media.CodecMP3, 128, media.ExistsTrue),
	}

	tests := []struct {
		name     string
		current  media.Variant
		variants []media.Variant
		want     media.VariantID
		ok       bool
	}{
		{"same bitrate preferred", all[0], all, "aac-96", true},
		{"best bitrate when no match", v(media.CodecOpus, 48, media.ExistsTrue), all, "aac-128", true},
		{"aac goes to mp3", all[3], all, "mp3-128", true},
		{"mp3 is terminal", all[4], all, "", false},
		{
			name:    "skips codec without playable variants",
			current: all[0],
			variants: []media.Variant{
				all[0],
				v(media.CodecAAC, 96, media.ExistsFalse),
				v(media.CodecMP3, 64, media.ExistsTrue),
			},
			want: "mp3-64",
			ok:   true,
		},
		{
			name:     "unknown existence is not playable",
			current:  all[0],
			variants: []media.Variant{all[0], v(media.CodecAAC, 96, media.ExistsUnknown)},
			ok:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextCandidate(tt.current, tt.variants)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestHandleSwitchesWithPositionAndIntent(t *testing.T) {
	sw := &mockSwitcher{}
	rec := &notify.Recorder{}
	chain := NewChain(sw, WithNotifier(rec))

	opus := v(media.CodecOpus, 96, media.ExistsTrue)
	aac := v(media.CodecAAC, 96, media.ExistsTrue)

	sw.On("Switch", mock.Anything, mock.MatchedBy(func(r switching.Request) bool {
		return r.Variant.ID == aac.ID && r.Reason == switching.ReasonFallback &&
			r.DesiredTime != nil && *r.DesiredTime == 33 && r.ForcePlay && r.Language == "en"
	})).Return(switching.Result{Outcome: switching.OutcomeReady}).Once()

	out := chain.Handle(context.Background(), Failure{
		EpisodeID:  "ep1",
		Language:   "en",
		Variant:    opus,
		Variants:   []media.Variant{opus, aac},
		Position:   33,
		WasPlaying: true,
		Trigger:    TriggerLoadError,
	})

	assert.Equal(t, OutcomeSwitched, out)
	assert.Equal(t, []string{notify.CodeFallback}, rec.Codes())
	sw.AssertExpectations(t)
}

func TestHandleDedupesWithinWindow(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	sw := &mockSwitcher{}
	sw.On("Switch", mock.Anything, mock.Anything).Return(switching.Result{Outcome: switching.OutcomeReady})
	chain := NewChain(sw, WithNow(clock))

	opus := v(media.CodecOpus, 96, media.ExistsTrue)
	f := Failure{EpisodeID: "ep1", Language: "en", Variant: opus, Variants: []media.Variant{opus, v(media.CodecAAC, 96, media.ExistsTrue)}, Trigger: TriggerNotStarted}

	require.Equal(t, OutcomeSwitched, chain.Handle(context.Background(), f))
	advance(10 * time.Second)
	assert.Equal(t, OutcomeSuppressed, chain.Handle(context.Background(), f))

	other := f
	other.Language = "de"
	assert.Equal(t, OutcomeSwitched, chain.Handle(context.Background(), other), "dedupe is per language")

	advance(6 * time.Second)
	assert.Equal(t, OutcomeSwitched, chain.Handle(context.Background(), f))
	sw.AssertNumberOfCalls(t, "Switch", 3)
}

func TestHandleExhausted(t *testing.T) {
	sw := &mockSwitcher{}
	rec := &notify.Recorder{}
	chain := NewChain(sw, WithNotifier(rec))
	mp3 := v(media.CodecMP3, 128, media.ExistsTrue)

	out := chain.Handle(context.Background(), Failure{EpisodeID: "ep1", Language: "en", Variant: mp3, Variants: []media.Variant{mp3}, Trigger: TriggerLoadError})

	assert.Equal(t, OutcomeExhausted, out)
	assert.Equal(t, []string{notify.CodeNoFallback}, rec.Codes())
	sw.AssertNotCalled(t, "Switch", mock.Anything, mock.Anything)
}

// A failing opus source walks to aac, whose failure walks to mp3, with the
// controller feeding each failure back into the chain.
func TestChainWalksThroughController(t *testing.T) {
	opus := v(media.CodecOpus, 96, media.ExistsTrue)
	aac := v(media.CodecAAC, 96, media.ExistsTrue)
	mp3 := v(media.CodecMP3, 128, media.ExistsTrue)
	variants := []media.Variant{opus, aac, mp3}

	sw := &mockSwitcher{}
	chain := NewChain(sw)

	var calls []media.VariantID
	sw.On("Switch", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		req := args.Get(1).(switching.Request)
		calls = append(calls, req.Variant.ID)
		if req.Variant.Codec == media.CodecAAC {
			chain.Handle(args.Get(0).(context.Context), Failure{
				EpisodeID: "ep1", Language: "en", Variant: req.Variant, Variants: variants,
				Position: *req.DesiredTime, WasPlaying: req.ForcePlay, Trigger: TriggerLoadError,
			})
		}
	}).Return(switching.Result{Outcome: switching.OutcomeReady})

	chain.Handle(context.Background(), Failure{EpisodeID: "ep1", Language: "en", Variant: opus, Variants: variants, Position: 12, Trigger: TriggerLoadError})

	assert.Equal(t, []media.VariantID{"aac-96", "mp3-128"}, calls)
}
