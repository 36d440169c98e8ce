// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package probe

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/listenpath/internal/media"
	"github.com/ManuGH/listenpath/internal/metrics"
)

// QuickResult is the outcome of a budgeted quick probe.
type QuickResult struct {
	Found   bool
	Variant media.VariantID
	// Results holds the decisive verdicts observed, including the hit.
	Results map[media.VariantID]bool
}

// QuickCandidates picks the variants a quick probe tries, in order: the
// top-ranked supported variant of each codec family, then the
// lowest-bitrate supported variant of each family. variants must already
// be ranked.
func QuickCandidates(variants []media.Variant, budget int) []media.Variant {
	var families []media.Codec
	top := make(map[media.Codec]media.Variant)
	low := make(map[media.Codec]media.Variant)
	for _, v := range variants {
		if !v.Supported {
			continue
		}
		if _, ok := top[v.Codec]; !ok {
			families = append(families, v.Codec)
			top[v.Codec] = v
		}
		if cur, ok := low[v.Codec]; !ok || v.Bitrate < cur.Bitrate {
			low[v.Codec] = v
		}
	}

	out := make([]media.Variant, 0, 2*len(families))
	for _, c := range families {
		out = append(out, top[c])
	}
	for _, c := range families {
		if low[c].ID != top[c].ID {
			out = append(out, low[c])
		}
	}
	if budget > 0 && len(out) > budget {
		out = out[:budget]
	}
	return out
}

// QuickProbe probes QuickCandidates sequentially and stops at the first
// variant that exists. budget <= 0 uses the configured default.
func (p *Prober) QuickProbe(ctx context.Context, variants []media.Variant, budget int) QuickResult {
	if budget <= 0 {
		budget = p.cfg.QuickBudget
	}
	start := time.Now()
	defer func() { metrics.ObserveScan("quick", time.Since(start).Seconds()) }()

	res := QuickResult{Results: make(map[media.VariantID]bool)}
	for _, v := range QuickCandidates(variants, budget) {
		if ctx.Err() != nil {
			break
		}
		switch p.Probe(ctx, v.URL, v.MIME) {
		case media.ExistsTrue:
			res.Results[v.ID] = true
			res.Found = true
			res.Variant = v.ID
			return res
		case media.ExistsFalse:
			res.Results[v.ID] = false
		}
	}
	return res
}

// FullScan probes every variant with bounded concurrency and returns the
// decisive verdicts. Unknown verdicts are omitted. Expired memo entries are
// pruned first.
func (p *Prober) FullScan(ctx context.Context, variants []media.Variant) map[media.VariantID]bool {
	start := time.Now()
	defer func() { metrics.ObserveScan("full", time.Since(start).Seconds()) }()
	p.memo.Prune()

	var mu sync.Mutex
	out := make(map[media.VariantID]bool, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ScanConcurrency)
	for _, v := range variants {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			verdict := p.Probe(gctx, v.URL, v.MIME)
			if verdict == media.ExistsUnknown {
				return nil
			}
			mu.Lock()
			out[v.ID] = verdict == media.ExistsTrue
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
