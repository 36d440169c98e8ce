package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/listenpath/internal/availability"
	"github.com/ManuGH/listenpath/internal/capability"
	"github.com/ManuGH/listenpath/internal/decision"
	"github.com/ManuGH/listenpath/internal/media"
	"github.com/ManuGH/listenpath/internal/persistence/kv"
	"github.com/ManuGH/listenpath/internal/probe"
)

func allCodecs() capability.StaticDecoder {
	return capability.StaticDecoder{
		media.CodecOpus: capability.SupportProbable,
		media.CodecAAC:  capability.SupportProbable,
		media.CodecMP3:  capability.SupportMaybe,
	}
}

func TestResolveUsesCachedVerdictsWithoutProbing(t *testing.T) {
	checker := &statusChecker{status: map[string]int{}}
	r := NewResolver(
		capability.NewOracle(allCodecs(), capability.Platform{Family: capability.FamilyDesktop}),
		probe.New(checker, nil, nil, probe.Config{}),
	)
	rec := availability.NewRecord("ep1", 1, time.Now())
	rec.Merge("en", map[media.VariantID]bool{"opus-128": true}, false)

	res, err := r.Resolve(context.Background(), episode().Languages["en"], rec, "")

	require.NoError(t, err)
	assert.Equal(t, media.VariantID("opus-128"), res.Selection.Variant.ID)
	assert.Equal(t, decision.ReasonPreferredFamily, res.Selection.Reason)
	assert.Zero(t, checker.Heads())
	assert.Empty(t, res.Partial)
	assert.Nil(t, res.Full)
}

// Scenario B: iOS 20 prefers aac even though opus exists.
func TestResolvePrefersAACOnMobile(t *testing.T) {
	checker := &statusChecker{status: map[string]int{}}
	r := NewResolver(
		capability.NewOracle(allCodecs(), capability.Platform{Family: capability.FamilyIOS, Major: 20}),
		probe.New(checker, nil, nil, probe.Config{}),
	)
	rec := availability.NewRecord("ep1", 1, time.Now())
	rec.Merge("en", map[media.VariantID]bool{"opus-128": true, "aac-128": true}, false)

	res, err := r.Resolve(context.Background(), episode().Languages["en"], rec, "")

	require.NoError(t, err)
	assert.Equal(t, media.VariantID("aac-128"), res.Selection.Variant.ID)
}

func TestResolveEscalatesToFullScan(t *testing.T) {
	checker := &statusChecker{status: map[string]int{
		url("en", "aac-128.m4a"): 200,
	}}
	r := NewResolver(
		capability.NewOracle(allCodecs(), capability.Platform{Family: capability.FamilyDesktop}),
		probe.New(checker, nil, nil, probe.Config{QuickBudget: 1}),
	)

	res, err := r.Resolve(context.Background(), episode().Languages["en"], nil, "")

	require.NoError(t, err)
	assert.Equal(t, media.VariantID("aac-128"), res.Selection.Variant.ID)
	require.NotNil(t, res.Full)
	assert.Equal(t, false, res.Full["opus-128"])
	assert.Equal(t, true, res.Full["aac-128"])

	rec := availability.NewRecord("ep1", 1, time.Now())
	res.ApplyTo(rec)
	assert.True(t, rec.FullyScanned("en"))
	assert.True(t, rec.Available("en"))
}

func TestResolveHealsAACFalseNegative(t *testing.T) {
	checker := &statusChecker{status: map[string]int{
		url("en", "aac-256.m4a"): 200,
		url("en", "mp3-256.mp3"): 200,
	}}
	r := NewResolver(
		capability.NewOracle(allCodecs(), capability.Platform{Family: capability.FamilyIOS, Major: 18}),
		probe.New(checker, nil, nil, probe.Config{}),
	)
	rec := cachedRecord(t, suspiciousAAC())

	res, err := r.Resolve(context.Background(), episode().Languages["en"], rec, "")

	require.NoError(t, err)
	assert.True(t, res.Healed)
	assert.Equal(t, media.VariantID("aac-256"), res.Selection.Variant.ID)
	assert.False(t, rec.Exists("en")["aac-256"], "caller's record untouched")

	res.ApplyTo(rec)
	assert.True(t, rec.Exists("en")["aac-256"])
	assert.True(t, rec.FullyScanned("en"))
}

func TestResolveHealsOncePerSession(t *testing.T) {
	checker := &statusChecker{status: map[string]int{
		url("en", "mp3-256.mp3"): 200,
	}}
	r := NewResolver(
		capability.NewOracle(allCodecs(), capability.Platform{Family: capability.FamilyIOS, Major: 20}),
		probe.New(checker, nil, nil, probe.Config{}),
	)
	rec := cachedRecord(t, suspiciousAAC())
	ctx := context.Background()

	res, err := r.Resolve(ctx, episode().Languages["en"], rec, "")
	require.NoError(t, err)
	assert.False(t, res.Healed)
	assert.Equal(t, media.VariantID("mp3-256"), res.Selection.Variant.ID)
	assert.Equal(t, 2, checker.Heads(), "top two aac bitrates rechecked")

	for range 2 {
		_, err = r.Resolve(ctx, episode().Languages["en"], rec, "")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, checker.Heads())

	r.NewSession()
	_, err = r.Resolve(ctx, episode().Languages["en"], rec, "")
	require.NoError(t, err)
	assert.Equal(t, 4, checker.Heads())
}

func TestResolveSkipsHealForFreshRecords(t *testing.T) {
	checker := &statusChecker{status: map[string]int{
		url("en", "aac-256.m4a"): 200,
	}}
	r := NewResolver(
		capability.NewOracle(allCodecs(), capability.Platform{Family: capability.FamilyIOS, Major: 20}),
		probe.New(checker, nil, nil, probe.Config{}),
	)

	res, err := r.Resolve(context.Background(), episode().Languages["en"], suspiciousAAC(), "")

	require.NoError(t, err)
	assert.False(t, res.Healed)
	assert.Zero(t, checker.Heads())
	assert.Equal(t, media.VariantID("mp3-256"), res.Selection.Variant.ID)
}

// suspiciousAAC claims every aac variant is missing while mp3 exists.
func suspiciousAAC() *availability.Record {
	rec := availability.NewRecord("ep1", 1, time.Now())
	rec.Merge("en", map[media.VariantID]bool{
		"aac-128": false, "aac-256": false, "mp3-256": true, "opus-128": false,
	}, true)
	return rec
}

// cachedRecord round-trips rec through an availability cache so it reads
// as loaded.
func cachedRecord(t *testing.T, rec *availability.Record) *availability.Record {
	t.Helper()
	cache := availability.New(kv.NewMemoryStore())
	require.NoError(t, cache.Write(context.Background(), rec))
	got := cache.Read(context.Background(), rec.EpisodeID, rec.CacheVersion)
	require.NotNil(t, got)
	require.True(t, got.Loaded())
	return got
}
