// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package probe verifies that audio variants exist before they are offered
// or played. Checks escalate from HEAD to a ranged GET to a media-pipeline
// open, and concurrent callers for one URL share a single check.
package probe

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/listenpath/internal/cache"
	lplog "github.com/ManuGH/listenpath/internal/log"
	"github.com/ManuGH/listenpath/internal/media"
	"github.com/ManuGH/listenpath/internal/metrics"
	lpnet "github.com/ManuGH/listenpath/internal/platform/net"
	"github.com/ManuGH/listenpath/internal/resilience"
	"github.com/ManuGH/listenpath/internal/telemetry"
)

const (
	DefaultTier3Timeout    = 3500 * time.Millisecond
	DefaultMemoTTL         = 30 * time.Minute
	DefaultQuickBudget     = 6
	DefaultScanConcurrency = 4
)

const (
	tierHead  = "head"
	tierRange = "range"
	tierMedia = "media"
)

// MediaOpener opens a URL through a media pipeline with metadata-only
// preload. A nil error means the pipeline reported metadata or can-start.
type MediaOpener interface {
	Open(ctx context.Context, url, mime string) error
}

// OpenerFunc adapts a function to MediaOpener.
type OpenerFunc func(ctx context.Context, url, mime string) error

func (f OpenerFunc) Open(ctx context.Context, url, mime string) error { return f(ctx, url, mime) }

// Config tunes the prober.
type Config struct {
	Tier3Timeout    time.Duration
	MemoTTL         time.Duration
	QuickBudget     int
	ScanConcurrency int
}

func (c Config) withDefaults() Config {
	if c.Tier3Timeout <= 0 {
		c.Tier3Timeout = DefaultTier3Timeout
	}
	if c.MemoTTL <= 0 {
		c.MemoTTL = DefaultMemoTTL
	}
	if c.QuickBudget <= 0 {
		c.QuickBudget = DefaultQuickBudget
	}
	if c.ScanConcurrency <= 0 {
		c.ScanConcurrency = DefaultScanConcurrency
	}
	return c
}

// Prober runs tiered existence checks. It owns the circuit breaker that
// gates the lightweight tiers.
type Prober struct {
	checker Checker
	mu      sync.RWMutex
	opener  MediaOpener
	breaker *resilience.NotFoundBreaker
	memo    *cache.Memory[media.Existence]
	group   singleflight.Group
	cfg     Config
	tracer  trace.Tracer
}

// New creates a prober. opener may be nil, in which case probes that the
// lightweight tiers cannot decide yield ExistsUnknown and the breaker is
// never consulted. A nil breaker gets an unpersisted default.
func New(checker Checker, opener MediaOpener, breaker *resilience.NotFoundBreaker, cfg Config) *Prober {
	if breaker == nil {
		breaker = resilience.NewNotFoundBreaker()
	}
	return &Prober{
		checker: checker,
		opener:  opener,
		breaker: breaker,
		memo:    cache.NewMemory[media.Existence](),
		cfg:     cfg.withDefaults(),
		tracer:  telemetry.Tracer("github.com/ManuGH/listenpath/internal/probe"),
	}
}

// UseOpener installs o as the media tier unless one is already configured.
// It reports whether o was installed.
func (p *Prober) UseOpener(o MediaOpener) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opener != nil || o == nil {
		return false
	}
	p.opener = o
	return true
}

// HasOpener reports whether a media tier is configured.
func (p *Prober) HasOpener() bool {
	return p.mediaOpener() != nil
}

func (p *Prober) mediaOpener() MediaOpener {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.opener
}

// Breaker exposes the owned circuit breaker.
func (p *Prober) Breaker() *resilience.NotFoundBreaker { return p.breaker }

// Config returns the effective configuration.
func (p *Prober) Config() Config { return p.cfg }

// MemoStats returns the verdict memo counters.
func (p *Prober) MemoStats() cache.Stats { return p.memo.Stats() }

// Forget drops memoized verdicts for the given URLs.
func (p *Prober) Forget(urls ...string) {
	for _, u := range urls {
		p.memo.Delete(lpnet.NormalizeURL(u))
	}
}

// Probe returns the existence verdict for url. Decisive verdicts are
// memoized; unknown ones are retried on the next call.
func (p *Prober) Probe(ctx context.Context, url, mime string) media.Existence {
	key := lpnet.NormalizeURL(url)
	if v, ok := p.memo.Get(key); ok {
		metrics.RecordProbeDeduped()
		return v
	}

	// The shared check must not die with whichever caller started it.
	shared := context.WithoutCancel(ctx)
	res, _, wasShared := p.group.Do(key, func() (any, error) {
		if v, ok := p.memo.Get(key); ok {
			return v, nil
		}
		v := p.probe(shared, url, mime)
		if v != media.ExistsUnknown {
			p.memo.Set(key, v, p.cfg.MemoTTL)
		}
		return v, nil
	})
	if wasShared {
		metrics.RecordProbeDeduped()
	}
	return res.(media.Existence)
}

func (p *Prober) probe(ctx context.Context, url, mime string) media.Existence {
	ctx, span := p.tracer.Start(ctx, "probe.existence", trace.WithAttributes(telemetry.ProbeAttributes(lpnet.SanitizeURL(url), mime)...))
	defer span.End()

	logger := lplog.WithComponentFromContext(ctx, "probe").With().Str(lplog.FieldURL, lpnet.SanitizeURL(url)).Logger()
	provisionalMiss := false
	opener := p.mediaOpener()

	// With no media tier a lightweight 404 is final, so the breaker is bypassed.
	if p.checker != nil && (opener == nil || p.breaker.Allow()) {
		status, err := p.checker.Head(ctx, url)
		switch {
		case err != nil:
			p.record(span, tierHead, "transport_error", 0)
			logger.Debug().Err(err).Str(lplog.FieldTier, tierHead).Msg("lightweight check failed, trying range request")

			status, err = p.checker.RangeGet(ctx, url)
			switch {
			case err != nil:
				p.record(span, tierRange, "transport_error", 0)
			case classify(status) == verdictExists:
				p.record(span, tierRange, "exists", status)
				p.breaker.RecordSuccess()
				return p.finish(span, media.ExistsTrue)
			case classify(status) == verdictNotFound:
				p.record(span, tierRange, "not_found", status)
				provisionalMiss = true
			default:
				p.record(span, tierRange, "status_error", status)
			}
		case classify(status) == verdictExists:
			p.record(span, tierHead, "exists", status)
			p.breaker.RecordSuccess()
			return p.finish(span, media.ExistsTrue)
		case classify(status) == verdictNotFound:
			p.record(span, tierHead, "not_found", status)
			provisionalMiss = true
			if opener != nil {
				p.breaker.RecordNotFound(ctx, url)
			}
		default:
			p.record(span, tierHead, "status_error", status)
		}
	} else {
		p.record(span, tierHead, "skipped", 0)
	}

	if opener == nil {
		if provisionalMiss {
			return p.finish(span, media.ExistsFalse)
		}
		logger.Debug().Msg("no media opener, existence left unknown")
		return p.finish(span, media.ExistsUnknown)
	}

	mctx, cancel := context.WithTimeout(ctx, p.cfg.Tier3Timeout)
	defer cancel()
	if err := opener.Open(mctx, url, mime); err != nil {
		outcome := "missing"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		p.record(span, tierMedia, outcome, 0)
		logger.Debug().Err(err).Str(lplog.FieldTier, tierMedia).Msg("media probe failed")
		return p.finish(span, media.ExistsFalse)
	}
	p.record(span, tierMedia, "exists", 0)
	return p.finish(span, media.ExistsTrue)
}

func (p *Prober) record(span trace.Span, tier, outcome string, status int) {
	metrics.RecordProbe(tier, outcome)
	attrs := []attribute.KeyValue{
		attribute.String(telemetry.ProbeTierKey, tier),
		attribute.String(telemetry.ProbeOutcomeKey, outcome),
	}
	if status > 0 {
		attrs = append(attrs, attribute.Int(telemetry.ProbeStatusKey, status))
	}
	span.AddEvent("probe.tier", trace.WithAttributes(attrs...))
}

func (p *Prober) finish(span trace.Span, v media.Existence) media.Existence {
	span.SetAttributes(attribute.String("probe.exists", v.String()))
	return v
}
