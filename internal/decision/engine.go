package decision

import (
	"errors"
	"sort"

	"github.com/ManuGH/listenpath/internal/media"
)

// ErrNoPlayableFormat is returned when no variant is both supported and known to exist.
var ErrNoPlayableFormat = errors.New("no playable format")

type Reason string

const (
	ReasonPreferredFamily  Reason = "preferred_family"
	ReasonAnyPlayable      Reason = "any_playable"
	ReasonRemembered       Reason = "remembered"
	ReasonNoPlayableFormat Reason = "no_playable_format"
)

// Selection is the outcome of choosing a default variant.
type Selection struct {
	Variant media.Variant
	Reason  Reason
}

// ChooseDefault picks the variant that playback should start with. The first
// codec family in order with a playable variant wins; inside a family the
// highest bitrate wins, then the highest confidence.
func ChooseDefault(variants []media.Variant, order []media.Codec) (Selection, error) {
	for _, codec := range order {
		var family []media.Variant
		for _, v := range variants {
			if v.Codec == codec && v.Playable() {
				family = append(family, v)
			}
		}
		if len(family) == 0 {
			continue
		}
		sortWithinFamily(family)
		return Selection{Variant: family[0], Reason: ReasonPreferredFamily}, nil
	}

	var playable []media.Variant
	for _, v := range variants {
		if v.Playable() {
			playable = append(playable, v)
		}
	}
	if len(playable) == 0 {
		return Selection{Reason: ReasonNoPlayableFormat}, ErrNoPlayableFormat
	}
	sortVariants(playable, OrderRank(order))
	return Selection{Variant: playable[0], Reason: ReasonAnyPlayable}, nil
}

func sortWithinFamily(vs []media.Variant) {
	sort.SliceStable(vs, func(i, j int) bool {
		if vs[i].Bitrate != vs[j].Bitrate {
			return vs[i].Bitrate > vs[j].Bitrate
		}
		if vs[i].Confidence != vs[j].Confidence {
			return vs[i].Confidence > vs[j].Confidence
		}
		return vs[i].ID < vs[j].ID
	})
}
