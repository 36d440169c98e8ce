package decision

import (
	"strconv"

	"github.com/ManuGH/listenpath/internal/media"
)

// SelectionSummary is the flat, log-friendly view of a Selection.
type SelectionSummary struct {
	VariantID string
	Codec     string
	Bitrate   string
	Reason    string
}

func (s Selection) Summary() SelectionSummary {
	id := string(s.Variant.ID)
	codec := string(s.Variant.Codec)
	bitrate := strconv.Itoa(s.Variant.Bitrate)
	if id == "" {
		id, codec, bitrate = "none", "none", "0"
	}
	return SelectionSummary{
		VariantID: id,
		Codec:     codec,
		Bitrate:   bitrate,
		Reason:    string(s.Reason),
	}
}

// CountByExistence tallies variants per existence verdict.
func CountByExistence(vs []media.Variant) map[media.Existence]int {
	out := make(map[media.Existence]int, 3)
	for _, v := range vs {
		out[v.Exists]++
	}
	return out
}
