// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LISTENPATH_"

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. An empty path loads defaults and environment only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Load applies defaults, then the file, then the environment, and validates
// the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)
	cfg.Version = l.version

	if cfg.Storage.Dir != "" {
		if abs, err := filepath.Abs(cfg.Storage.Dir); err == nil {
			cfg.Storage.Dir = abs
		}
	}

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// UnconsumedEnvKeys lists LISTENPATH_* variables that no setting reads.
func (l *Loader) UnconsumedEnvKeys() []string {
	var out []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; !ok {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// loadFile decodes the file over cfg so that absent keys keep their defaults.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	return decodeStrict([]byte(os.ExpandEnv(string(data))), cfg)
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.Log.Level = l.envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = l.envString("LOG_SERVICE", cfg.Log.Service)

	cfg.Storage.Backend = l.envString("STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.Dir = l.envString("STORAGE_DIR", cfg.Storage.Dir)
	cfg.Storage.Redis.Addr = l.envString("REDIS_ADDR", cfg.Storage.Redis.Addr)
	cfg.Storage.Redis.Password = l.envString("REDIS_PASSWORD", cfg.Storage.Redis.Password)
	cfg.Storage.Redis.DB = l.envInt("REDIS_DB", cfg.Storage.Redis.DB)

	cfg.Probe.HTTPTimeout = l.envDuration("PROBE_HTTP_TIMEOUT", cfg.Probe.HTTPTimeout)
	cfg.Probe.Tier3Timeout = l.envDuration("PROBE_TIER3_TIMEOUT", cfg.Probe.Tier3Timeout)
	cfg.Probe.QuickBudget = l.envInt("PROBE_QUICK_BUDGET", cfg.Probe.QuickBudget)
	cfg.Probe.BreakerThreshold = l.envInt("PROBE_BREAKER_THRESHOLD", cfg.Probe.BreakerThreshold)
	cfg.Probe.ScanConcurrency = l.envInt("PROBE_SCAN_CONCURRENCY", cfg.Probe.ScanConcurrency)
	cfg.Probe.UserAgent = l.envString("PROBE_USER_AGENT", cfg.Probe.UserAgent)
	cfg.Probe.FFprobe = l.envString("FFPROBE", cfg.Probe.FFprobe)

	cfg.Switch.SoftTimeout = l.envDuration("SWITCH_SOFT_TIMEOUT", cfg.Switch.SoftTimeout)
	cfg.Switch.HardTimeout = l.envDuration("SWITCH_HARD_TIMEOUT", cfg.Switch.HardTimeout)
	cfg.Switch.PollInterval = l.envDuration("SWITCH_POLL_INTERVAL", cfg.Switch.PollInterval)
	cfg.Switch.Watchdog = l.envDuration("SWITCH_WATCHDOG", cfg.Switch.Watchdog)
	cfg.Switch.SeekTolerance = l.envFloat("SEEK_TOLERANCE", cfg.Switch.SeekTolerance)
	cfg.Switch.SeekConfirm = l.envDuration("SEEK_CONFIRM", cfg.Switch.SeekConfirm)

	cfg.Cache.TTL = l.envDuration("CACHE_TTL", cfg.Cache.TTL)

	cfg.Platform.UserAgent = l.envString("PLATFORM_USER_AGENT", cfg.Platform.UserAgent)
	cfg.Platform.Family = l.envString("PLATFORM_FAMILY", cfg.Platform.Family)
	cfg.Platform.Version = l.envString("PLATFORM_VERSION", cfg.Platform.Version)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
	cfg.Telemetry.Environment = l.envString("TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)

	cfg.API.Listen = l.envString("API_LISTEN", cfg.API.Listen)
	cfg.API.RateLimit = l.envInt("API_RATE_LIMIT", cfg.API.RateLimit)

	cfg.ShowAllQualities = l.envBool("SHOW_ALL_QUALITIES", cfg.ShowAllQualities)
}

func (l *Loader) consume(key string) string {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return key
}

func (l *Loader) envString(key, defaultVal string) string {
	return ParseString(l.consume(key), defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	return ParseBool(l.consume(key), defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	return ParseInt(l.consume(key), defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	return ParseFloat(l.consume(key), defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	return ParseDuration(l.consume(key), defaultVal)
}
