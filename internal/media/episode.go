package media

import (
	"net/url"
	"sort"
	"strings"
)

// LanguageTrack is the read-only source table for one language of an episode.
type LanguageTrack struct {
	Code       string
	Label      string
	BasePath   string
	ChapterRef string
	Sources    map[Codec]map[int]string
}

// ResolveURL joins a source path against the track's base path. Absolute
// URLs are returned unchanged.
func (t LanguageTrack) ResolveURL(p string) string {
	if u, err := url.Parse(p); err == nil && u.IsAbs() {
		return p
	}
	if t.BasePath == "" {
		return p
	}
	base, err := url.Parse(t.BasePath)
	if err != nil {
		return strings.TrimSuffix(t.BasePath, "/") + "/" + strings.TrimPrefix(p, "/")
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	ref, err := url.Parse(strings.TrimPrefix(p, "/"))
	if err != nil {
		return base.String() + strings.TrimPrefix(p, "/")
	}
	return base.ResolveReference(ref).String()
}

// HasCodec reports whether any source of the given codec is configured.
func (t LanguageTrack) HasCodec(c Codec) bool {
	return len(t.Sources[c]) > 0
}

// Bitrates returns the configured bitrates for codec c, highest first.
func (t LanguageTrack) Bitrates(c Codec) []int {
	out := make([]int, 0, len(t.Sources[c]))
	for br := range t.Sources[c] {
		out = append(out, br)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// Episode is the validated configuration of one playable episode.
type Episode struct {
	ID               string
	CacheVersion     int
	ShowAllQualities bool
	DefaultLanguage  string
	Languages        map[string]LanguageTrack
}

// Track looks up a language track by code.
func (e Episode) Track(code string) (LanguageTrack, bool) {
	t, ok := e.Languages[code]
	return t, ok
}

// LanguageCodes returns the configured language codes with the default first
// and the rest sorted.
func (e Episode) LanguageCodes() []string {
	codes := make([]string, 0, len(e.Languages))
	for code := range e.Languages {
		if code != e.DefaultLanguage {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	if _, ok := e.Languages[e.DefaultLanguage]; ok {
		codes = append([]string{e.DefaultLanguage}, codes...)
	}
	return codes
}
