package decision

import (
	"testing"

	"github.com/ManuGH/listenpath/internal/media"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	defaultOrder = []media.Codec{media.CodecOpus, media.CodecAAC, media.CodecMP3}
	iosOrder     = []media.Codec{media.CodecAAC, media.CodecMP3, media.CodecOpus}
)

func variant(codec media.Codec, bitrate int, exists media.Existence, conf media.Confidence) media.Variant {
	return media.Variant{
		ID:         media.MakeVariantID(codec, bitrate),
		Codec:      codec,
		Bitrate:    bitrate,
		Supported:  conf > 0,
		Exists:     exists,
		Confidence: conf,
	}
}

func TestChooseDefault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		variants   []media.Variant
		order      []media.Codec
		wantID     media.VariantID
		wantReason Reason
		wantErr    error
	}{
		{
			name: "missing opus falls through to aac",
			variants: []media.Variant{
				variant(media.CodecOpus, 128, media.ExistsFalse, 2),
				variant(media.CodecAAC, 128, media.ExistsTrue, 2),
			},
			order:      defaultOrder,
			wantID:     "aac-128",
			wantReason: ReasonPreferredFamily,
		},
		{
			name: "ios order prefers aac over existing opus",
			variants: []media.Variant{
				variant(media.CodecOpus, 128, media.ExistsTrue, 2),
				variant(media.CodecAAC, 128, media.ExistsTrue, 2),
			},
			order:      iosOrder,
			wantID:     "aac-128",
			wantReason: ReasonPreferredFamily,
		},
		{
			name: "highest bitrate within family",
			variants: []media.Variant{
				variant(media.CodecAAC, 64, media.ExistsTrue, 2),
				variant(media.CodecAAC, 192, media.ExistsTrue, 1),
				variant(media.CodecAAC, 128, media.ExistsTrue, 2),
			},
			order:      defaultOrder,
			wantID:     "aac-192",
			wantReason: ReasonPreferredFamily,
		},
		{
			name: "unsupported opus skipped",
			variants: []media.Variant{
				variant(media.CodecOpus, 160, media.ExistsTrue, 0),
				variant(media.CodecMP3, 128, media.ExistsTrue, 1),
			},
			order:      defaultOrder,
			wantID:     "mp3-128",
			wantReason: ReasonPreferredFamily,
		},
		{
			name: "unknown existence is not playable",
			variants: []media.Variant{
				variant(media.CodecOpus, 160, media.ExistsUnknown, 2),
				variant(media.CodecMP3, 64, media.ExistsTrue, 2),
			},
			order:      defaultOrder,
			wantID:     "mp3-64",
			wantReason: ReasonPreferredFamily,
		},
		{
			name: "codec outside order still playable",
			variants: []media.Variant{
				variant(media.CodecMP3, 96, media.ExistsTrue, 2),
			},
			order:      []media.Codec{media.CodecOpus},
			wantID:     "mp3-96",
			wantReason: ReasonAnyPlayable,
		},
		{
			name: "nothing playable",
			variants: []media.Variant{
				variant(media.CodecOpus, 160, media.ExistsFalse, 2),
				variant(media.CodecAAC, 128, media.ExistsTrue, 0),
			},
			order:      defaultOrder,
			wantReason: ReasonNoPlayableFormat,
			wantErr:    ErrNoPlayableFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sel, err := ChooseDefault(tt.variants, tt.order)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.wantReason, sel.Reason)
				assert.Equal(t, "none", sel.Summary().VariantID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, sel.Variant.ID)
			assert.Equal(t, tt.wantReason, sel.Reason)
		})
	}
}

func TestChooseDefaultIsDeterministic(t *testing.T) {
	t.Parallel()

	base := []media.Variant{
		variant(media.CodecAAC, 128, media.ExistsTrue, 1),
		variant(media.CodecAAC, 128, media.ExistsTrue, 2),
		variant(media.CodecMP3, 128, media.ExistsTrue, 2),
	}
	base[1].ID = "aac-128b"

	first, err := ChooseDefault(base, defaultOrder)
	require.NoError(t, err)
	assert.Equal(t, media.VariantID("aac-128b"), first.Variant.ID, "confidence breaks bitrate ties")

	reversed := []media.Variant{base[2], base[1], base[0]}
	for i := 0; i < 20; i++ {
		sel, err := ChooseDefault(reversed, defaultOrder)
		require.NoError(t, err)
		assert.Equal(t, first.Variant.ID, sel.Variant.ID)
	}
}

func TestFilterForDisplay(t *testing.T) {
	t.Parallel()

	variants := []media.Variant{
		variant(media.CodecOpus, 64, media.ExistsTrue, 2),
		variant(media.CodecOpus, 160, media.ExistsFalse, 2),
		variant(media.CodecOpus, 96, media.ExistsUnknown, 2),
		variant(media.CodecAAC, 128, media.ExistsTrue, 2),
		variant(media.CodecMP3, 128, media.ExistsTrue, 0),
	}

	ids := func(vs []media.Variant) []media.VariantID {
		out := make([]media.VariantID, 0, len(vs))
		for _, v := range vs {
			out = append(out, v.ID)
		}
		return out
	}

	got := ids(FilterForDisplay(variants, defaultOrder, false))
	want := []media.VariantID{"opus-96", "opus-64"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("single family (-want +got):\n%s", diff)
	}

	got = ids(FilterForDisplay(variants, iosOrder, false))
	want = []media.VariantID{"aac-128"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ios family (-want +got):\n%s", diff)
	}

	got = ids(FilterForDisplay(variants, defaultOrder, true))
	want = []media.VariantID{"opus-96", "opus-64", "aac-128", "mp3-128"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("show all (-want +got):\n%s", diff)
	}
}

func TestFilterForDisplayNothingSupported(t *testing.T) {
	t.Parallel()

	variants := []media.Variant{variant(media.CodecOpus, 64, media.ExistsTrue, 0)}
	assert.Empty(t, FilterForDisplay(variants, defaultOrder, false))
	assert.Len(t, FilterForDisplay(variants, defaultOrder, true), 1)
}
