package decision

import (
	"sort"

	"github.com/ManuGH/listenpath/internal/media"
)

// Ranker supplies decode confidence and codec preference. *capability.Oracle
// implements it.
type Ranker interface {
	Confidence(mime string) media.Confidence
	CodecRank(codec media.Codec) int
}

// BuildCandidates enumerates every configured source of a language track as
// a variant, ranked by codec preference, bitrate and confidence. Existence
// is left unknown.
func BuildCandidates(track media.LanguageTrack, r Ranker) []media.Variant {
	var out []media.Variant
	for codec, byRate := range track.Sources {
		for bitrate, p := range byRate {
			container := media.ContainerFromPath(p)
			mime := media.MIMEHint(container, codec)
			conf := r.Confidence(mime)
			out = append(out, media.Variant{
				ID:         media.MakeVariantID(codec, bitrate),
				Codec:      codec,
				Bitrate:    bitrate,
				Container:  container,
				URL:        track.ResolveURL(p),
				MIME:       mime,
				Supported:  conf > media.ConfidenceNone,
				Exists:     media.ExistsUnknown,
				Confidence: conf,
			})
		}
	}
	sortVariants(out, r.CodecRank)
	return out
}

func sortVariants(vs []media.Variant, rank func(media.Codec) int) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if ra, rb := rank(a.Codec), rank(b.Codec); ra != rb {
			return ra < rb
		}
		if a.Bitrate != b.Bitrate {
			return a.Bitrate > b.Bitrate
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.ID < b.ID
	})
}

// ApplyExistence copies known existence verdicts onto variants. Variants
// absent from the map keep their current value.
func ApplyExistence(vs []media.Variant, exists map[media.VariantID]bool) []media.Variant {
	out := make([]media.Variant, len(vs))
	copy(out, vs)
	for i := range out {
		ok, known := exists[out[i].ID]
		if !known {
			continue
		}
		if ok {
			out[i].Exists = media.ExistsTrue
		} else {
			out[i].Exists = media.ExistsFalse
		}
	}
	return out
}

// OrderRank returns a rank function for an explicit codec order.
func OrderRank(order []media.Codec) func(media.Codec) int {
	return func(c media.Codec) int {
		for i, oc := range order {
			if oc == c {
				return i
			}
		}
		return len(order)
	}
}
