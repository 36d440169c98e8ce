// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ManuGH/listenpath/internal/availability"
	"github.com/ManuGH/listenpath/internal/capability"
	"github.com/ManuGH/listenpath/internal/decision"
	lplog "github.com/ManuGH/listenpath/internal/log"
	"github.com/ManuGH/listenpath/internal/media"
	"github.com/ManuGH/listenpath/internal/probe"
)

// Resolution is the outcome of resolving one language. The verdict fields
// describe what the resolver learned so the caller can fold it into the
// shared record.
type Resolution struct {
	Language  string
	Variants  []media.Variant
	Selection decision.Selection
	Healed    bool
	Partial   map[media.VariantID]bool
	Full      map[media.VariantID]bool
}

// ApplyTo folds the learned verdicts into rec and reports whether rec
// changed.
func (r Resolution) ApplyTo(rec *availability.Record) bool {
	if r.Healed {
		rec.InvalidateLanguage(r.Language)
	}
	if len(r.Partial) > 0 {
		rec.Merge(r.Language, r.Partial, false)
	}
	if r.Full != nil {
		rec.Merge(r.Language, r.Full, true)
	}
	return r.Healed || len(r.Partial) > 0 || r.Full != nil
}

// Resolver turns a language track into ranked variants with existence
// applied and a default selection.
type Resolver struct {
	oracle *capability.Oracle
	prober *probe.Prober

	mu     sync.Mutex
	healed map[string]struct{}
}

func NewResolver(oracle *capability.Oracle, prober *probe.Prober) *Resolver {
	return &Resolver{oracle: oracle, prober: prober, healed: make(map[string]struct{})}
}

// NewSession forgets which languages already had their cached verdicts
// healed.
func (r *Resolver) NewSession() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.healed = make(map[string]struct{})
}

// claimHeal reports whether the self-heal rule may run for language. It
// runs at most once per session and only on records read from the cache.
func (r *Resolver) claimHeal(rec *availability.Record, language string, variants []media.Variant) bool {
	if !r.oracle.CapabilitySensitive() || !rec.Loaded() || !availability.NeedsHeal(rec, language, variants) {
		return false
	}
	key := fmt.Sprintf("%s|%d|%s", rec.EpisodeID, rec.CacheVersion, language)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, done := r.healed[key]; done {
		return false
	}
	r.healed[key] = struct{}{}
	return true
}

// Candidates builds the ranked variants of track with rec's verdicts applied.
func (r *Resolver) Candidates(track media.LanguageTrack, rec *availability.Record) []media.Variant {
	vs := decision.BuildCandidates(track, r.oracle)
	if rec != nil {
		vs = decision.ApplyExistence(vs, rec.Exists(track.Code))
	}
	return vs
}

// Resolve selects the variant to play for track. It consults rec (which it
// does not modify), heals suspicious AAC verdicts, tries remembered first
// and escalates from cached verdicts to a quick probe to a full scan only
// while no playable variant is known.
func (r *Resolver) Resolve(ctx context.Context, track media.LanguageTrack, rec *availability.Record, remembered media.VariantID) (Resolution, error) {
	lang := track.Code
	logger := lplog.WithComponentFromContext(ctx, "resolver").With().Str(lplog.FieldLanguage, lang).Logger()
	order := r.oracle.PreferredCodecOrder()

	work := rec.Clone()
	if work == nil {
		work = availability.NewRecord("", 0, timeNow())
	}
	res := Resolution{Language: lang, Partial: make(map[media.VariantID]bool)}

	base := decision.BuildCandidates(track, r.oracle)
	if r.claimHeal(work, lang, base) && availability.Heal(ctx, work, lang, base, r.prober, true) {
		res.Healed = true
		res.Full = r.prober.FullScan(ctx, base)
		work.Merge(lang, res.Full, true)
	}
	variants := decision.ApplyExistence(base, work.Exists(lang))

	if remembered != "" {
		if v, ok := media.FindVariant(variants, remembered); ok && v.Supported && v.Exists == media.ExistsUnknown {
			if verdict := r.prober.Probe(ctx, v.URL, v.MIME); verdict != media.ExistsUnknown {
				res.Partial[v.ID] = verdict == media.ExistsTrue
				variants = decision.ApplyExistence(variants, res.Partial)
			}
		}
		if v, ok := media.FindVariant(variants, remembered); ok && v.Playable() {
			res.Variants = variants
			res.Selection = decision.Selection{Variant: v, Reason: decision.ReasonRemembered}
			return res, nil
		}
	}

	sel, err := decision.ChooseDefault(variants, order)
	if err == nil {
		res.Variants = variants
		res.Selection = sel
		return res, nil
	}

	if !work.FullyScanned(lang) {
		var unknown []media.Variant
		for _, v := range variants {
			if v.Exists == media.ExistsUnknown {
				unknown = append(unknown, v)
			}
		}
		quick := r.prober.QuickProbe(ctx, unknown, 0)
		for id, ok := range quick.Results {
			res.Partial[id] = ok
		}
		variants = decision.ApplyExistence(variants, quick.Results)
		if sel, err = decision.ChooseDefault(variants, order); err == nil {
			res.Variants = variants
			res.Selection = sel
			return res, nil
		}

		logger.Debug().Msg("quick probe found nothing playable, scanning every variant")
		full := r.prober.FullScan(ctx, base)
		for id, ok := range res.Partial {
			if _, seen := full[id]; !seen {
				full[id] = ok
			}
		}
		res.Full = full
		variants = decision.ApplyExistence(base, full)
		sel, err = decision.ChooseDefault(variants, order)
	}

	res.Variants = variants
	res.Selection = sel
	if errors.Is(err, decision.ErrNoPlayableFormat) {
		logger.Warn().Int("variants", len(variants)).Msg("no playable format")
	}
	return res, err
}
