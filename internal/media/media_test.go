package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalCodec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Codec
		ok   bool
	}{
		{"opus", CodecOpus, true},
		{" OPUS ", CodecOpus, true},
		{"m4a", CodecAAC, true},
		{"mp4a.40.2", CodecAAC, true},
		{"MPEG", CodecMP3, true},
		{"flac", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := CanonicalCodec(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVariantIDRoundTrip(t *testing.T) {
	t.Parallel()

	id := MakeVariantID(CodecAAC, 128)
	assert.Equal(t, VariantID("aac-128"), id)

	codec, br, err := ParseVariantID(id)
	require.NoError(t, err)
	assert.Equal(t, CodecAAC, codec)
	assert.Equal(t, 128, br)

	for _, bad := range []VariantID{"aac", "flac-96", "mp3-x", "mp3-0", ""} {
		_, _, err := ParseVariantID(bad)
		assert.ErrorIs(t, err, ErrInvalidVariantID, string(bad))
	}
}

func TestContainerAndMIME(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path      string
		codec     Codec
		container string
		mime      string
	}{
		{"opus/96.webm", CodecOpus, "webm", `audio/webm; codecs="opus"`},
		{"opus/96.ogg", CodecOpus, "ogg", `audio/ogg; codecs="opus"`},
		{"opus/96.caf", CodecOpus, "caf", `audio/x-caf; codecs="opus"`},
		{"aac/128.m4a?sig=abc", CodecAAC, "mp4", `audio/mp4; codecs="mp4a.40.2"`},
		{"aac/128.aac", CodecAAC, "aac", "audio/aac"},
		{"https://cdn.example/mp3/64.MP3", CodecMP3, "mp3", "audio/mpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			c := ContainerFromPath(tt.path)
			assert.Equal(t, tt.container, c)
			assert.Equal(t, tt.mime, MIMEHint(c, tt.codec))
		})
	}
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	track := LanguageTrack{BasePath: "https://cdn.example/ep1/en"}
	assert.Equal(t, "https://cdn.example/ep1/en/aac/128.m4a", track.ResolveURL("aac/128.m4a"))
	assert.Equal(t, "https://cdn.example/ep1/en/aac/128.m4a", track.ResolveURL("/aac/128.m4a"))
	assert.Equal(t, "https://other.example/x.mp3", track.ResolveURL("https://other.example/x.mp3"))

	assert.Equal(t, "local/x.mp3", LanguageTrack{}.ResolveURL("local/x.mp3"))
}

func TestEpisodeLanguageCodes(t *testing.T) {
	t.Parallel()

	ep := Episode{
		DefaultLanguage: "en",
		Languages: map[string]LanguageTrack{
			"nl": {Code: "nl"},
			"en": {Code: "en"},
			"de": {Code: "de"},
		},
	}
	assert.Equal(t, []string{"en", "de", "nl"}, ep.LanguageCodes())
}

func TestBitratesDescending(t *testing.T) {
	t.Parallel()

	track := LanguageTrack{Sources: map[Codec]map[int]string{
		CodecAAC: {64: "a", 192: "b", 128: "c"},
	}}
	assert.Equal(t, []int{192, 128, 64}, track.Bitrates(CodecAAC))
	assert.True(t, track.HasCodec(CodecAAC))
	assert.False(t, track.HasCodec(CodecOpus))
}
