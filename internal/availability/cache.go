// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package availability persists probe verdicts per episode version with a
// fixed time-to-live.
package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	lplog "github.com/ManuGH/listenpath/internal/log"
	"github.com/ManuGH/listenpath/internal/media"
	"github.com/ManuGH/listenpath/internal/metrics"
	"github.com/ManuGH/listenpath/internal/persistence/kv"
)

const (
	DefaultTTL = 7 * 24 * time.Hour
	KeyPrefix  = "listenpath:availability:"
)

// Key returns the persistence key for an episode version.
func Key(episodeID string, version int) string {
	return fmt.Sprintf("%sv%d:%s", KeyPrefix, version, episodeID)
}

// Cache reads and writes records through a kv.Store.
type Cache struct {
	store kv.Store
	ttl   time.Duration
	now   func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(store kv.Store, opts ...Option) *Cache {
	c := &Cache{store: store, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Read returns the live record or nil when it is absent, malformed, for a
// different episode version, or older than the TTL.
func (c *Cache) Read(ctx context.Context, episodeID string, version int) *Record {
	logger := lplog.WithComponentFromContext(ctx, "availability")
	key := Key(episodeID, version)

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		metrics.RecordCacheLookup("error")
		logger.Warn().Err(err).Str(lplog.FieldEpisodeID, episodeID).Msg("availability cache read failed")
		return nil
	}
	if !ok {
		metrics.RecordCacheLookup("miss")
		return nil
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.EpisodeID != episodeID || rec.CacheVersion != version || rec.Timestamp.IsZero() {
		metrics.RecordCacheLookup("malformed")
		logger.Debug().Str(lplog.FieldEpisodeID, episodeID).Msg("discarding malformed availability record")
		return nil
	}
	if c.now().Sub(rec.Timestamp) > c.ttl {
		metrics.RecordCacheLookup("expired")
		return nil
	}
	if rec.ExistsByLanguage == nil {
		rec.ExistsByLanguage = make(map[string]map[media.VariantID]bool)
	}

	rec.loaded = true
	metrics.RecordCacheLookup("hit")
	return &rec
}

// Write persists rec. The record keeps the timestamp it was created with,
// so merging new verdicts never extends its TTL; a zero timestamp is
// stamped with the current time.
func (c *Cache) Write(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("availability: nil record")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = c.now().UTC()
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("availability: encode: %w", err)
	}
	if err := c.store.Set(ctx, Key(rec.EpisodeID, rec.CacheVersion), string(raw)); err != nil {
		return fmt.Errorf("availability: write: %w", err)
	}
	return nil
}

// Purge deletes the record of one episode version.
func (c *Cache) Purge(ctx context.Context, episodeID string, version int) error {
	return c.store.Delete(ctx, Key(episodeID, version))
}

// Entry names one stored record.
type Entry struct {
	EpisodeID    string `json:"episode_id"`
	CacheVersion int    `json:"cache_version"`
	Key          string `json:"key"`
}

// List enumerates stored records without decoding them.
func (c *Cache) List(ctx context.Context) ([]Entry, error) {
	keys, err := c.store.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		rest := strings.TrimPrefix(k, KeyPrefix)
		verPart, episode, ok := strings.Cut(rest, ":")
		if !ok {
			continue
		}
		var ver int
		if _, err := fmt.Sscanf(verPart, "v%d", &ver); err != nil {
			continue
		}
		out = append(out, Entry{EpisodeID: episode, CacheVersion: ver, Key: k})
	}
	return out, nil
}
