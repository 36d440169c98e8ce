// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/listenpath/internal/media"
	"github.com/ManuGH/listenpath/internal/validate"
)

// EpisodeFile is the on-disk schema of one episode.
type EpisodeFile struct {
	ID               string                     `yaml:"id"`
	CacheVersion     int                        `yaml:"cache_version"`
	ShowAllQualities bool                       `yaml:"show_all_qualities"`
	DefaultLanguage  string                     `yaml:"default_language"`
	Languages        map[string]LanguageSection `yaml:"languages"`
}

// LanguageSection describes the sources of one language.
type LanguageSection struct {
	Label    string                    `yaml:"label"`
	BasePath string                    `yaml:"base_path"`
	Chapters string                    `yaml:"chapters"`
	Sources  map[string]map[int]string `yaml:"sources"`
}

// LoadEpisode reads and validates an episode file.
func LoadEpisode(path string) (media.Episode, error) {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return media.Episode{}, fmt.Errorf("unsupported episode format: %s (only YAML supported)", ext)
	}
	// #nosec G304 -- episode paths are provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return media.Episode{}, fmt.Errorf("read episode: %w", err)
	}
	return ParseEpisode(data)
}

// ParseEpisode decodes an episode document, canonicalizes language and codec
// spellings and validates the result.
func ParseEpisode(data []byte) (media.Episode, error) {
	var file EpisodeFile
	if err := decodeStrict(data, &file); err != nil {
		return media.Episode{}, fmt.Errorf("%w: %w", ErrInvalidEpisode, err)
	}

	v := validate.New()
	ep := media.Episode{
		ID:               strings.TrimSpace(file.ID),
		CacheVersion:     file.CacheVersion,
		ShowAllQualities: file.ShowAllQualities,
		Languages:        make(map[string]media.LanguageTrack, len(file.Languages)),
	}
	if file.DefaultLanguage != "" {
		ep.DefaultLanguage = v.Language("default_language", file.DefaultLanguage)
	}

	for _, raw := range sortedKeys(file.Languages) {
		section := file.Languages[raw]
		field := "languages." + raw
		code := v.Language(field, raw)
		if code == "" {
			continue
		}
		if _, dup := ep.Languages[code]; dup {
			v.AddError(field, fmt.Sprintf("duplicate language %q after canonicalization", code), raw)
			continue
		}

		track := media.LanguageTrack{
			Code:       code,
			Label:      strings.TrimSpace(section.Label),
			BasePath:   strings.TrimSpace(section.BasePath),
			ChapterRef: strings.TrimSpace(section.Chapters),
			Sources:    make(map[media.Codec]map[int]string, len(section.Sources)),
		}
		if track.Label == "" {
			track.Label = code
		}
		for _, rawCodec := range sortedKeys(section.Sources) {
			codec, ok := media.CanonicalCodec(rawCodec)
			if !ok {
				v.AddError(field+".sources."+rawCodec, "unknown codec", rawCodec)
				continue
			}
			if track.Sources[codec] == nil {
				track.Sources[codec] = make(map[int]string)
			}
			for bitrate, path := range section.Sources[rawCodec] {
				if prev, dup := track.Sources[codec][bitrate]; dup && prev != path {
					v.AddError(fmt.Sprintf("%s.sources.%s.%d", field, rawCodec, bitrate), "conflicting source for codec alias", path)
					continue
				}
				track.Sources[codec][bitrate] = path
			}
		}
		ep.Languages[code] = track
	}
	if err := v.Err(); err != nil {
		return media.Episode{}, fmt.Errorf("%w: %w", ErrInvalidEpisode, err)
	}
	if err := ValidateEpisode(ep); err != nil {
		return media.Episode{}, err
	}
	return ep, nil
}

// ValidateEpisode checks an episode before any engine component reads it.
// Errors wrap ErrInvalidEpisode and a validate.ValidationError listing every
// problem found.
func ValidateEpisode(ep media.Episode) error {
	v := validate.New()
	v.NotEmpty("id", ep.ID)
	v.NonNegative("cache_version", ep.CacheVersion)

	if len(ep.Languages) == 0 {
		v.AddError("languages", "at least one language is required", nil)
	}
	if ep.DefaultLanguage != "" {
		if _, ok := ep.Languages[ep.DefaultLanguage]; !ok {
			v.AddError("default_language", "not present in languages", ep.DefaultLanguage)
		}
	}

	for _, code := range sortedKeys(ep.Languages) {
		track := ep.Languages[code]
		field := "languages." + code
		v.Language(field, code)
		if track.Code != "" && track.Code != code {
			v.AddError(field+".code", fmt.Sprintf("does not match language key %q", code), track.Code)
		}
		if track.BasePath != "" {
			v.URL(field+".base_path", track.BasePath, []string{"http", "https"})
		}

		sources := 0
		for codec, byRate := range track.Sources {
			cfield := field + ".sources." + string(codec)
			if !codec.Valid() {
				v.AddError(cfield, "unknown codec", string(codec))
				continue
			}
			for bitrate, path := range byRate {
				if bitrate <= 0 {
					v.AddError(cfield, fmt.Sprintf("bitrate must be positive, got %d", bitrate), bitrate)
					continue
				}
				v.SourcePath(fmt.Sprintf("%s.%d", cfield, bitrate), path)
				sources++
			}
		}
		if sources == 0 {
			v.AddError(field+".sources", "at least one source is required", nil)
		}
	}

	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEpisode, err)
	}
	return nil
}

// decodeStrict decodes exactly one YAML document, rejecting unknown keys.
// An empty document leaves out untouched.
func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("document contains multiple documents or trailing content")
	}
	return nil
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
