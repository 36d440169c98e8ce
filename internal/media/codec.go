package media

import "strings"

// Codec is a canonical audio codec family.
type Codec string

const (
	CodecOpus Codec = "opus"
	CodecAAC  Codec = "aac"
	CodecMP3  Codec = "mp3"
)

// DefaultCodecOrder is the codec preference used on every platform that does
// not override it.
var DefaultCodecOrder = []Codec{CodecOpus, CodecAAC, CodecMP3}

// CanonicalCodec maps codec spellings found in configuration files to a
// canonical family.
func CanonicalCodec(s string) (Codec, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "opus", "ogg-opus", "webm-opus":
		return CodecOpus, true
	case "aac", "m4a", "mp4a", "mp4a.40.2", "aac-lc":
		return CodecAAC, true
	case "mp3", "mpeg", "mpga", "mp3float":
		return CodecMP3, true
	default:
		return "", false
	}
}

// Valid reports whether c is one of the canonical codecs.
func (c Codec) Valid() bool {
	return c == CodecOpus || c == CodecAAC || c == CodecMP3
}

func (c Codec) String() string { return string(c) }
