package media

import (
	"net/url"
	"path"
	"strings"
)

// ContainerFromPath derives the container name from a source path extension.
func ContainerFromPath(p string) string {
	if u, err := url.Parse(p); err == nil && u.Path != "" {
		p = u.Path
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	switch ext {
	case "m4a", "m4b", "mp4":
		return "mp4"
	case "oga", "ogg", "opus":
		return "ogg"
	default:
		return ext
	}
}

// MIMEHint returns the MIME type handed to the platform decoder for a
// container/codec combination.
func MIMEHint(container string, codec Codec) string {
	switch codec {
	case CodecOpus:
		switch container {
		case "webm":
			return `audio/webm; codecs="opus"`
		case "caf":
			return `audio/x-caf; codecs="opus"`
		case "mp4":
			return `audio/mp4; codecs="opus"`
		default:
			return `audio/ogg; codecs="opus"`
		}
	case CodecAAC:
		if container == "aac" {
			return "audio/aac"
		}
		return `audio/mp4; codecs="mp4a.40.2"`
	case CodecMP3:
		return "audio/mpeg"
	default:
		return ""
	}
}
