// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package availability

import (
	"context"
	"sort"

	lplog "github.com/ManuGH/listenpath/internal/log"
	"github.com/ManuGH/listenpath/internal/media"
	"github.com/ManuGH/listenpath/internal/metrics"
)

// Reprober is the part of the prober the self-heal rule needs.
type Reprober interface {
	Probe(ctx context.Context, url, mime string) media.Existence
	Forget(urls ...string)
}

const healProbeCount = 2

// NeedsHeal reports whether a cached verdict for language looks like a
// platform false negative: no AAC exists while some MP3 does, and AAC
// variants are configured.
func NeedsHeal(rec *Record, language string, variants []media.Variant) bool {
	if rec == nil {
		return false
	}
	verdicts, ok := rec.ExistsByLanguage[language]
	if !ok {
		return false
	}
	if countExisting(verdicts, media.CodecAAC) > 0 || countExisting(verdicts, media.CodecMP3) == 0 {
		return false
	}
	for _, v := range variants {
		if v.Codec == media.CodecAAC {
			return true
		}
	}
	return false
}

// Heal re-probes the two highest AAC bitrates once when NeedsHeal holds on a
// capability-sensitive platform. If either now exists the language's
// cached verdicts are dropped and Heal returns true; the caller must then
// run a fresh full scan.
func Heal(ctx context.Context, rec *Record, language string, variants []media.Variant, prober Reprober, sensitive bool) bool {
	if !sensitive || !NeedsHeal(rec, language, variants) {
		return false
	}

	var aac []media.Variant
	for _, v := range variants {
		if v.Codec == media.CodecAAC {
			aac = append(aac, v)
		}
	}
	sortByBitrateDesc(aac)
	if len(aac) > healProbeCount {
		aac = aac[:healProbeCount]
	}

	found := false
	for _, v := range aac {
		prober.Forget(v.URL)
		if prober.Probe(ctx, v.URL, v.MIME) == media.ExistsTrue {
			found = true
			break
		}
	}

	metrics.RecordCacheHeal(found)
	if found {
		rec.InvalidateLanguage(language)
		logger := lplog.WithComponentFromContext(ctx, "availability")
		logger.Info().
			Str(lplog.FieldEvent, "availability.healed").
			Str(lplog.FieldEpisodeID, rec.EpisodeID).
			Str(lplog.FieldLanguage, language).
			Msg("cached AAC verdict invalidated")
	}
	return found
}

func sortByBitrateDesc(vs []media.Variant) {
	sort.SliceStable(vs, func(i, j int) bool { return vs[i].Bitrate > vs[j].Bitrate })
}
