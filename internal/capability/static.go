package capability

import (
	"strings"

	"github.com/ManuGH/listenpath/internal/media"
)

// StaticDecoder answers from a fixed codec table. It is used for headless
// runs where no platform decoder is available.
type StaticDecoder map[media.Codec]Support

// CanPlayType implements Decoder.
func (d StaticDecoder) CanPlayType(mime string) Support {
	codec, ok := codecFromMIME(mime)
	if !ok {
		return SupportNone
	}
	return d[codec]
}

func codecFromMIME(mime string) (media.Codec, bool) {
	m := strings.ToLower(mime)
	switch {
	case strings.Contains(m, "opus"):
		return media.CodecOpus, true
	case strings.Contains(m, "mp4a"), strings.HasPrefix(m, "audio/aac"), strings.HasPrefix(m, "audio/mp4"):
		return media.CodecAAC, true
	case strings.HasPrefix(m, "audio/mpeg"), strings.HasPrefix(m, "audio/mp3"):
		return media.CodecMP3, true
	default:
		return "", false
	}
}
