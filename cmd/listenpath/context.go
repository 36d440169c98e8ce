// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/listenpath/internal/availability"
	"github.com/ManuGH/listenpath/internal/capability"
	"github.com/ManuGH/listenpath/internal/config"
	"github.com/ManuGH/listenpath/internal/infra/ffprobe"
	lplog "github.com/ManuGH/listenpath/internal/log"
	"github.com/ManuGH/listenpath/internal/media"
	"github.com/ManuGH/listenpath/internal/persistence/kv"
	"github.com/ManuGH/listenpath/internal/platform/httpx"
	"github.com/ManuGH/listenpath/internal/probe"
	"github.com/ManuGH/listenpath/internal/resilience"
	"github.com/ManuGH/listenpath/internal/version"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     config.AppConfig
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, logLevelFlag: logLevelFlag}
}

func (c *commandContext) ensureConfig() (config.AppConfig, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.NewLoader(path, version.Version).Load()
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && *c.logLevelFlag != "" {
			cfg.Log.Level = *c.logLevelFlag
		}
		lplog.Configure(lplog.Config{
			Level:   cfg.Log.Level,
			Service: cfg.Log.Service,
			Version: cfg.Version,
		})
		c.config = cfg
	})
	return c.config, c.configErr
}

// services holds the collaborators shared by the commands. Close releases
// the store.
type services struct {
	cfg     config.AppConfig
	store   kv.Store
	breaker *resilience.NotFoundBreaker
	cache   *availability.Cache
}

func (c *commandContext) openRuntime(ctx context.Context) (*services, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := kv.NewStore(kv.Config{
		Backend: cfg.Storage.Backend,
		Dir:     cfg.Storage.Dir,
		Redis: kv.RedisConfig{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Backend, err)
	}

	breaker := resilience.NewNotFoundBreaker(
		resilience.WithThreshold(cfg.Probe.BreakerThreshold),
		resilience.WithStore(store, ""),
	)
	if err := breaker.Load(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load breaker state: %w", err)
	}

	return &services{
		cfg:     cfg,
		store:   store,
		breaker: breaker,
		cache:   availability.New(store, availability.WithTTL(cfg.Cache.TTL)),
	}, nil
}

func (r *services) Close() error { return r.store.Close() }

// prober builds the tiered prober. The ffprobe tier is only wired when a
// binary is configured.
func (r *services) prober() *probe.Prober {
	client := httpx.NewClient(r.cfg.Probe.HTTPTimeout, httpx.Options{
		UserAgent: r.cfg.Probe.UserAgent,
		Tracing:   r.cfg.Telemetry.Enabled,
	})
	var opener probe.MediaOpener
	if r.cfg.Probe.FFprobe != "" {
		opener = ffprobe.NewOpener(r.cfg.Probe.FFprobe)
	}
	return probe.New(probe.NewHTTPChecker(client, r.cfg.Probe.HTTPTimeout), opener, r.breaker, probe.Config{
		Tier3Timeout:    r.cfg.Probe.Tier3Timeout,
		QuickBudget:     r.cfg.Probe.QuickBudget,
		ScanConcurrency: r.cfg.Probe.ScanConcurrency,
	})
}

func (r *services) oracle() *capability.Oracle {
	return newOracle(r.cfg.Platform)
}

func newOracle(p config.PlatformConfig) *capability.Oracle {
	platform := capability.DetectPlatform(p.UserAgent)
	if p.Family != "" {
		platform = capability.ParsePlatform(p.Family, p.Version)
	}
	decoder := capability.StaticDecoder{
		media.CodecOpus: capability.ParseSupport(p.Decoder.Opus),
		media.CodecAAC:  capability.ParseSupport(p.Decoder.AAC),
		media.CodecMP3:  capability.ParseSupport(p.Decoder.MP3),
	}
	return capability.NewOracle(decoder, platform)
}

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(cmd.Context()), d)
}
