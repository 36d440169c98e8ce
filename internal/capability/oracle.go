// Package capability answers which audio codecs the playback platform can
// decode and in which order they should be preferred.
package capability

import (
	"strings"

	"github.com/ManuGH/listenpath/internal/media"
)

// Support is the ternary answer of a platform decoder for a MIME hint.
type Support string

const (
	SupportNone     Support = ""
	SupportMaybe    Support = "maybe"
	SupportProbable Support = "probable"
)

// ParseSupport normalizes a decoder answer. Anything unrecognized is SupportNone.
func ParseSupport(s string) Support {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "probable", "probably", "yes", "true":
		return SupportProbable
	case "maybe":
		return SupportMaybe
	default:
		return SupportNone
	}
}

// Confidence maps the decoder answer onto 0..2.
func (s Support) Confidence() media.Confidence {
	switch s {
	case SupportProbable:
		return media.ConfidenceProbable
	case SupportMaybe:
		return media.ConfidenceMaybe
	default:
		return media.ConfidenceNone
	}
}

// Decoder is the platform decode-capability collaborator.
type Decoder interface {
	CanPlayType(mime string) Support
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(mime string) Support

func (f DecoderFunc) CanPlayType(mime string) Support { return f(mime) }

// Oracle combines a decoder with the platform detected at startup.
type Oracle struct {
	decoder  Decoder
	platform Platform
	order    []media.Codec
}

// NewOracle builds an oracle. The preference order is fixed for the
// lifetime of the oracle.
func NewOracle(decoder Decoder, platform Platform) *Oracle {
	if decoder == nil {
		decoder = DecoderFunc(func(string) Support { return SupportNone })
	}
	return &Oracle{
		decoder:  decoder,
		platform: platform,
		order:    codecOrderFor(platform),
	}
}

func codecOrderFor(p Platform) []media.Codec {
	if p.Family == FamilyIOS && p.Major >= 17 && p.Major <= 25 {
		return []media.Codec{media.CodecAAC, media.CodecMP3, media.CodecOpus}
	}
	return append([]media.Codec(nil), media.DefaultCodecOrder...)
}

// Platform returns the platform the oracle was built for.
func (o *Oracle) Platform() Platform { return o.platform }

// Confidence asks the decoder about a MIME hint.
func (o *Oracle) Confidence(mime string) media.Confidence {
	if mime == "" {
		return media.ConfidenceNone
	}
	return o.decoder.CanPlayType(mime).Confidence()
}

// PreferredCodecOrder returns a copy of the platform's codec preference.
func (o *Oracle) PreferredCodecOrder() []media.Codec {
	return append([]media.Codec(nil), o.order...)
}

// CodecRank returns the position of c in the preference order. Unknown
// codecs rank after every known one.
func (o *Oracle) CodecRank(c media.Codec) int {
	for i, oc := range o.order {
		if oc == c {
			return i
		}
	}
	return len(o.order)
}

// CapabilitySensitive reports whether cached AAC verdicts need self-healing
// on this platform.
func (o *Oracle) CapabilitySensitive() bool {
	return o.platform.Family == FamilyIOS
}

// RequiresGesture reports whether playback must be started synchronously
// within the user interaction that requested it.
func (o *Oracle) RequiresGesture() bool {
	return o.platform.RequiresGesture()
}
