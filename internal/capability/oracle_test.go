package capability

import (
	"testing"

	"github.com/ManuGH/listenpath/internal/media"
	"github.com/stretchr/testify/assert"
)

func TestPreferredCodecOrder(t *testing.T) {
	t.Parallel()

	iosOrder := []media.Codec{media.CodecAAC, media.CodecMP3, media.CodecOpus}

	tests := []struct {
		name     string
		platform Platform
		want     []media.Codec
	}{
		{"desktop", Platform{Family: FamilyDesktop}, media.DefaultCodecOrder},
		{"android", Platform{Family: FamilyAndroid, Major: 14}, media.DefaultCodecOrder},
		{"ios 16", Platform{Family: FamilyIOS, Major: 16}, media.DefaultCodecOrder},
		{"ios 17", Platform{Family: FamilyIOS, Major: 17}, iosOrder},
		{"ios 20", Platform{Family: FamilyIOS, Major: 20}, iosOrder},
		{"ios 25", Platform{Family: FamilyIOS, Major: 25}, iosOrder},
		{"ios 26", Platform{Family: FamilyIOS, Major: 26}, media.DefaultCodecOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOracle(nil, tt.platform)
			assert.Equal(t, tt.want, o.PreferredCodecOrder())
		})
	}
}

func TestPreferredCodecOrderReturnsCopy(t *testing.T) {
	t.Parallel()

	o := NewOracle(nil, Platform{Family: FamilyDesktop})
	order := o.PreferredCodecOrder()
	order[0] = media.CodecMP3
	assert.Equal(t, media.CodecOpus, o.PreferredCodecOrder()[0])
	assert.Equal(t, 0, o.CodecRank(media.CodecOpus))
	assert.Equal(t, 3, o.CodecRank("flac"))
}

func TestConfidence(t *testing.T) {
	t.Parallel()

	dec := StaticDecoder{
		media.CodecOpus: SupportNone,
		media.CodecAAC:  SupportProbable,
		media.CodecMP3:  SupportMaybe,
	}
	o := NewOracle(dec, Platform{Family: FamilyDesktop})

	assert.Equal(t, media.ConfidenceNone, o.Confidence(`audio/webm; codecs="opus"`))
	assert.Equal(t, media.ConfidenceProbable, o.Confidence(`audio/mp4; codecs="mp4a.40.2"`))
	assert.Equal(t, media.ConfidenceMaybe, o.Confidence("audio/mpeg"))
	assert.Equal(t, media.ConfidenceNone, o.Confidence(""))
	assert.Equal(t, media.ConfidenceNone, o.Confidence("video/mp4"))
}

func TestDetectPlatform(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ua   string
		want Platform
	}{
		{
			"Mozilla/5.0 (iPhone; CPU iPhone OS 18_1 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148",
			Platform{Family: FamilyIOS, Major: 18},
		},
		{
			"Mozilla/5.0 (iPad; CPU OS 26_0 like Mac OS X) AppleWebKit/605.1.15",
			Platform{Family: FamilyIOS, Major: 26},
		},
		{
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 Version/17.4 Mobile/15E148 Safari/604.1",
			Platform{Family: FamilyIOS, Major: 17},
		},
		{
			"Mozilla/5.0 (Linux; Android 14; Pixel 8) Chrome/124.0",
			Platform{Family: FamilyAndroid, Major: 14},
		},
		{
			"Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
			Platform{Family: FamilyDesktop},
		},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectPlatform(tt.ua), tt.ua)
	}
}

func TestParsePlatform(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Platform{Family: FamilyIOS, Major: 18}, ParsePlatform("iOS", "18.2"))
	assert.Equal(t, Platform{Family: FamilyDesktop}, ParsePlatform("", ""))
	assert.True(t, ParsePlatform("ios", "20").RequiresGesture())
	assert.False(t, ParsePlatform("desktop", "").RequiresGesture())
	assert.Equal(t, "ios/20", ParsePlatform("ios", "20").String())
}

func TestParseSupport(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SupportProbable, ParseSupport("Probable"))
	assert.Equal(t, SupportMaybe, ParseSupport("maybe"))
	assert.Equal(t, SupportNone, ParseSupport("no"))
}

func TestCapabilitySensitive(t *testing.T) {
	t.Parallel()

	assert.True(t, NewOracle(nil, Platform{Family: FamilyIOS, Major: 18}).CapabilitySensitive())
	assert.False(t, NewOracle(nil, Platform{Family: FamilyAndroid}).CapabilitySensitive())
}
