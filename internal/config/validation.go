// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"

	"github.com/ManuGH/listenpath/internal/validate"
)

var (
	storageBackends = []string{"memory", "file", "sqlite", "redis"}
	exporters       = []string{"grpc", "http"}
	platformFamily  = []string{"", "ios", "android", "desktop"}
	decoderAnswers  = []string{"", "none", "maybe", "probable", "probably"}
)

// Validate checks the effective configuration. Errors wrap ErrInvalidConfig.
func Validate(cfg AppConfig) error {
	v := validate.New()

	if _, err := validate.ParseLogLevel(cfg.Log.Level); err != nil {
		v.AddError("log.level", fmt.Sprintf("must be one of %v", validate.LogLevels), cfg.Log.Level)
	}

	v.OneOf("storage.backend", cfg.Storage.Backend, storageBackends)
	switch cfg.Storage.Backend {
	case "file", "sqlite":
		v.Directory("storage.dir", cfg.Storage.Dir, false)
	case "redis":
		v.NotEmpty("storage.redis.addr", cfg.Storage.Redis.Addr)
		v.Range("storage.redis.db", cfg.Storage.Redis.DB, 0, 15)
	}

	v.PositiveDuration("probe.http_timeout", cfg.Probe.HTTPTimeout)
	v.PositiveDuration("probe.tier3_timeout", cfg.Probe.Tier3Timeout)
	v.Range("probe.quick_budget", cfg.Probe.QuickBudget, 1, 64)
	v.Range("probe.breaker_threshold", cfg.Probe.BreakerThreshold, 1, 100)
	v.Range("probe.scan_concurrency", cfg.Probe.ScanConcurrency, 1, 32)

	v.PositiveDuration("switch.soft_timeout", cfg.Switch.SoftTimeout)
	v.PositiveDuration("switch.hard_timeout", cfg.Switch.HardTimeout)
	v.PositiveDuration("switch.poll_interval", cfg.Switch.PollInterval)
	v.PositiveDuration("switch.watchdog", cfg.Switch.Watchdog)
	v.PositiveDuration("switch.seek_confirm", cfg.Switch.SeekConfirm)
	v.FloatRange("switch.seek_tolerance", cfg.Switch.SeekTolerance, 0.01, 5)
	if cfg.Switch.SoftTimeout > cfg.Switch.HardTimeout {
		v.AddError("switch.soft_timeout", "must not exceed switch.hard_timeout", cfg.Switch.SoftTimeout)
	}
	if cfg.Switch.Watchdog < cfg.Switch.HardTimeout {
		v.AddError("switch.watchdog", "must be at least switch.hard_timeout", cfg.Switch.Watchdog)
	}

	v.PositiveDuration("cache.ttl", cfg.Cache.TTL)

	v.OneOf("platform.family", cfg.Platform.Family, platformFamily)
	v.OneOf("platform.decoder.opus", cfg.Platform.Decoder.Opus, decoderAnswers)
	v.OneOf("platform.decoder.aac", cfg.Platform.Decoder.AAC, decoderAnswers)
	v.OneOf("platform.decoder.mp3", cfg.Platform.Decoder.MP3, decoderAnswers)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, exporters)
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.sampling_rate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	v.ListenAddr("api.listen", cfg.API.Listen)
	v.NonNegative("api.rate_limit", cfg.API.RateLimit)

	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
