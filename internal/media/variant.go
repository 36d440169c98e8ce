package media

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidVariantID is returned when a variant id does not follow the
// "<codec>-<bitrate>" form.
var ErrInvalidVariantID = errors.New("invalid variant id")

// Existence is the tri-state availability verdict of a variant.
type Existence int8

const (
	ExistsUnknown Existence = iota
	ExistsTrue
	ExistsFalse
)

func (e Existence) String() string {
	switch e {
	case ExistsTrue:
		return "true"
	case ExistsFalse:
		return "false"
	default:
		return "unknown"
	}
}

// Confidence is the decoder's claim about a MIME hint: 0 none, 1 maybe, 2 probable.
type Confidence int

const (
	ConfidenceNone     Confidence = 0
	ConfidenceMaybe    Confidence = 1
	ConfidenceProbable Confidence = 2
)

// VariantID identifies a variant within one language track.
type VariantID string

// MakeVariantID builds the deterministic id for a codec/bitrate pair.
func MakeVariantID(codec Codec, bitrate int) VariantID {
	return VariantID(fmt.Sprintf("%s-%d", codec, bitrate))
}

// ParseVariantID splits an id back into codec and bitrate.
func ParseVariantID(id VariantID) (Codec, int, error) {
	codecPart, ratePart, ok := strings.Cut(string(id), "-")
	if !ok {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidVariantID, id)
	}
	codec, ok := CanonicalCodec(codecPart)
	if !ok {
		return "", 0, fmt.Errorf("%w: unknown codec in %q", ErrInvalidVariantID, id)
	}
	bitrate, err := strconv.Atoi(ratePart)
	if err != nil || bitrate <= 0 {
		return "", 0, fmt.Errorf("%w: bad bitrate in %q", ErrInvalidVariantID, id)
	}
	return codec, bitrate, nil
}

// Variant is one encoded rendition of a language track.
type Variant struct {
	ID         VariantID
	Codec      Codec
	Bitrate    int // kbps
	Container  string
	URL        string
	MIME       string
	Supported  bool
	Exists     Existence
	Confidence Confidence
}

// Playable reports whether the variant is both decodable and known to exist.
func (v Variant) Playable() bool {
	return v.Supported && v.Exists == ExistsTrue
}

// FindVariant returns the variant with the given id.
func FindVariant(variants []Variant, id VariantID) (Variant, bool) {
	for _, v := range variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}
