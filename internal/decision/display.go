package decision

import "github.com/ManuGH/listenpath/internal/media"

// FilterForDisplay returns the variants offered in the quality menu.
// Variants known not to exist are always dropped. Unless showAll is set the
// list is restricted to the supported variants of the best-ranked codec
// family that has any.
func FilterForDisplay(variants []media.Variant, order []media.Codec, showAll bool) []media.Variant {
	var kept []media.Variant
	for _, v := range variants {
		if v.Exists != media.ExistsFalse {
			kept = append(kept, v)
		}
	}

	if showAll {
		sortVariants(kept, OrderRank(order))
		return kept
	}

	family, ok := bestSupportedFamily(kept, order)
	if !ok {
		return []media.Variant{}
	}

	out := make([]media.Variant, 0, len(kept))
	for _, v := range kept {
		if v.Codec == family && v.Supported {
			out = append(out, v)
		}
	}
	sortWithinFamily(out)
	return out
}

func bestSupportedFamily(vs []media.Variant, order []media.Codec) (media.Codec, bool) {
	rank := OrderRank(order)
	best := media.Codec("")
	bestRank := -1
	for _, v := range vs {
		if !v.Supported {
			continue
		}
		r := rank(v.Codec)
		if bestRank == -1 || r < bestRank {
			best, bestRank = v.Codec, r
		}
	}
	return best, bestRank >= 0
}
