package decision

import (
	"testing"

	"github.com/ManuGH/listenpath/internal/media"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

type fakeRanker struct {
	conf  map[string]media.Confidence
	order []media.Codec
}

func (f fakeRanker) Confidence(mime string) media.Confidence { return f.conf[mime] }
func (f fakeRanker) CodecRank(c media.Codec) int            { return OrderRank(f.order)(c) }

func TestBuildCandidates(t *testing.T) {
	t.Parallel()

	track := media.LanguageTrack{
		Code:     "en",
		BasePath: "https://cdn.example/ep1/en/",
		Sources: map[media.Codec]map[int]string{
			media.CodecMP3:  {64: "mp3/64.mp3", 128: "mp3/128.mp3"},
			media.CodecAAC:  {128: "aac/128.m4a"},
			media.CodecOpus: {96: "opus/96.webm", 160: "opus/160.webm"},
		},
	}
	r := fakeRanker{
		conf: map[string]media.Confidence{
			`audio/webm; codecs="opus"`:     0,
			`audio/mp4; codecs="mp4a.40.2"`: 2,
			"audio/mpeg":                    1,
		},
		order: defaultOrder,
	}

	got := BuildCandidates(track, r)

	var ids []media.VariantID
	for _, v := range got {
		ids = append(ids, v.ID)
	}
	want := []media.VariantID{"opus-160", "opus-96", "aac-128", "mp3-128", "mp3-64"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}

	assert.False(t, got[0].Supported)
	assert.Equal(t, media.ExistsUnknown, got[0].Exists)
	assert.True(t, got[2].Supported)
	assert.Equal(t, media.ConfidenceProbable, got[2].Confidence)
	assert.Equal(t, "mp4", got[2].Container)
	assert.Equal(t, "https://cdn.example/ep1/en/aac/128.m4a", got[2].URL)
}

func TestApplyExistence(t *testing.T) {
	t.Parallel()

	vs := []media.Variant{
		variant(media.CodecAAC, 128, media.ExistsUnknown, 2),
		variant(media.CodecMP3, 128, media.ExistsUnknown, 2),
		variant(media.CodecMP3, 64, media.ExistsTrue, 2),
	}
	out := ApplyExistence(vs, map[media.VariantID]bool{"aac-128": true, "mp3-128": false})

	assert.Equal(t, media.ExistsTrue, out[0].Exists)
	assert.Equal(t, media.ExistsFalse, out[1].Exists)
	assert.Equal(t, media.ExistsTrue, out[2].Exists)
	assert.Equal(t, media.ExistsUnknown, vs[0].Exists, "input is not mutated")
}

func TestCountByExistence(t *testing.T) {
	t.Parallel()

	counts := CountByExistence([]media.Variant{
		variant(media.CodecAAC, 128, media.ExistsTrue, 2),
		variant(media.CodecMP3, 128, media.ExistsFalse, 2),
		variant(media.CodecMP3, 64, media.ExistsTrue, 2),
	})
	assert.Equal(t, 2, counts[media.ExistsTrue])
	assert.Equal(t, 1, counts[media.ExistsFalse])
	assert.Equal(t, 0, counts[media.ExistsUnknown])
}
