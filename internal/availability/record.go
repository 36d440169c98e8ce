// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package availability

import (
	"maps"
	"slices"
	"sort"
	"time"

	"github.com/ManuGH/listenpath/internal/media"
)

// Record is the persisted existence map of one episode version.
type Record struct {
	EpisodeID              string                              `json:"episode_id"`
	CacheVersion           int                                 `json:"cache_version"`
	Timestamp              time.Time                           `json:"timestamp"`
	ExistsByLanguage       map[string]map[media.VariantID]bool `json:"exists_by_language"`
	FullyScannedLanguages  []string                            `json:"fully_scanned_languages"`
	AvailableLanguageCodes []string                            `json:"available_language_codes"`

	loaded bool
}

// NewRecord creates an empty record stamped with now.
func NewRecord(episodeID string, version int, now time.Time) *Record {
	return &Record{
		EpisodeID:        episodeID,
		CacheVersion:     version,
		Timestamp:        now.UTC(),
		ExistsByLanguage: make(map[string]map[media.VariantID]bool),
	}
}

// Loaded reports whether the record was read back from the cache rather
// than built by this process.
func (r *Record) Loaded() bool { return r != nil && r.loaded }

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.ExistsByLanguage = make(map[string]map[media.VariantID]bool, len(r.ExistsByLanguage))
	for lang, verdicts := range r.ExistsByLanguage {
		out.ExistsByLanguage[lang] = maps.Clone(verdicts)
	}
	out.FullyScannedLanguages = slices.Clone(r.FullyScannedLanguages)
	out.AvailableLanguageCodes = slices.Clone(r.AvailableLanguageCodes)
	return &out
}

// Merge folds verdicts for a language into the record. full marks the
// language as fully scanned.
func (r *Record) Merge(language string, verdicts map[media.VariantID]bool, full bool) {
	if r.ExistsByLanguage == nil {
		r.ExistsByLanguage = make(map[string]map[media.VariantID]bool)
	}
	dst := r.ExistsByLanguage[language]
	if dst == nil || full {
		dst = make(map[media.VariantID]bool, len(verdicts))
		r.ExistsByLanguage[language] = dst
	}
	for id, ok := range verdicts {
		dst[id] = ok
	}
	if full && !r.FullyScanned(language) {
		r.FullyScannedLanguages = append(r.FullyScannedLanguages, language)
		sort.Strings(r.FullyScannedLanguages)
	}
	r.refreshAvailable()
}

// Exists returns the verdicts for a language.
func (r *Record) Exists(language string) map[media.VariantID]bool {
	return r.ExistsByLanguage[language]
}

// FullyScanned reports whether every variant of language was probed.
func (r *Record) FullyScanned(language string) bool {
	return slices.Contains(r.FullyScannedLanguages, language)
}

// Available reports whether any variant of language is known to exist.
func (r *Record) Available(language string) bool {
	return slices.Contains(r.AvailableLanguageCodes, language)
}

// InvalidateLanguage drops every verdict for language.
func (r *Record) InvalidateLanguage(language string) {
	delete(r.ExistsByLanguage, language)
	r.FullyScannedLanguages = slices.DeleteFunc(r.FullyScannedLanguages, func(c string) bool { return c == language })
	r.refreshAvailable()
}

func (r *Record) refreshAvailable() {
	codes := make([]string, 0, len(r.ExistsByLanguage))
	for lang, verdicts := range r.ExistsByLanguage {
		for _, ok := range verdicts {
			if ok {
				codes = append(codes, lang)
				break
			}
		}
	}
	sort.Strings(codes)
	r.AvailableLanguageCodes = codes
}

func countExisting(verdicts map[media.VariantID]bool, codec media.Codec) int {
	n := 0
	for id, ok := range verdicts {
		if !ok {
			continue
		}
		if c, _, err := media.ParseVariantID(id); err == nil && c == codec {
			n++
		}
	}
	return n
}
