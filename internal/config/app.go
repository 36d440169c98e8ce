// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// AppConfig is the effective application configuration.
type AppConfig struct {
	Log              LogConfig       `yaml:"log"`
	Storage          StorageConfig   `yaml:"storage"`
	Probe            ProbeConfig     `yaml:"probe"`
	Switch           SwitchConfig    `yaml:"switch"`
	Cache            CacheConfig     `yaml:"cache"`
	Platform         PlatformConfig  `yaml:"platform"`
	Telemetry        TelemetryConfig `yaml:"telemetry"`
	API              APIConfig       `yaml:"api"`
	ShowAllQualities bool            `yaml:"show_all_qualities"`

	// Version is stamped by the binary, never read from file.
	Version string `yaml:"-"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// StorageConfig selects the persistence backend: memory, file, sqlite or redis.
type StorageConfig struct {
	Backend string      `yaml:"backend"`
	Dir     string      `yaml:"dir"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ProbeConfig struct {
	HTTPTimeout      time.Duration `yaml:"http_timeout"`
	Tier3Timeout     time.Duration `yaml:"tier3_timeout"`
	QuickBudget      int           `yaml:"quick_budget"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	ScanConcurrency  int           `yaml:"scan_concurrency"`
	UserAgent        string        `yaml:"user_agent"`
	// FFprobe is the binary used for media-pipeline probes in headless runs.
	// Empty disables the third tier.
	FFprobe string `yaml:"ffprobe"`
}

type SwitchConfig struct {
	SoftTimeout   time.Duration `yaml:"soft_timeout"`
	HardTimeout   time.Duration `yaml:"hard_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Watchdog      time.Duration `yaml:"watchdog"`
	SeekTolerance float64       `yaml:"seek_tolerance"`
	SeekConfirm   time.Duration `yaml:"seek_confirm"`
}

type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// PlatformConfig describes the playback platform for headless runs. An
// explicit family wins over user-agent detection.
type PlatformConfig struct {
	UserAgent string        `yaml:"user_agent"`
	Family    string        `yaml:"family"`
	Version   string        `yaml:"version"`
	Decoder   DecoderConfig `yaml:"decoder"`
}

// DecoderConfig maps each codec to a decoder answer ("", "maybe", "probably").
type DecoderConfig struct {
	Opus string `yaml:"opus"`
	AAC  string `yaml:"aac"`
	MP3  string `yaml:"mp3"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Environment  string  `yaml:"environment"`
}

type APIConfig struct {
	Listen string `yaml:"listen"`
	// RateLimit is the per-client request budget per minute. Zero disables it.
	RateLimit int `yaml:"rate_limit"`
}

// Default returns the built-in configuration.
func Default() AppConfig {
	return AppConfig{
		Log: LogConfig{Level: "info", Service: "listenpath"},
		Storage: StorageConfig{
			Backend: "memory",
			Redis:   RedisConfig{Addr: "localhost:6379"},
		},
		Probe: ProbeConfig{
			HTTPTimeout:      5 * time.Second,
			Tier3Timeout:     3500 * time.Millisecond,
			QuickBudget:      6,
			BreakerThreshold: 3,
			ScanConcurrency:  4,
			UserAgent:        "listenpath",
		},
		Switch: SwitchConfig{
			SoftTimeout:   9 * time.Second,
			HardTimeout:   10 * time.Second,
			PollInterval:  250 * time.Millisecond,
			Watchdog:      12 * time.Second,
			SeekTolerance: 0.75,
			SeekConfirm:   900 * time.Millisecond,
		},
		Cache: CacheConfig{TTL: 7 * 24 * time.Hour},
		Platform: PlatformConfig{
			Decoder: DecoderConfig{Opus: "probably", AAC: "probably", MP3: "probably"},
		},
		Telemetry: TelemetryConfig{Exporter: "grpc", Endpoint: "localhost:4317", SamplingRate: 1},
		API:       APIConfig{Listen: ":8088", RateLimit: 120},
	}
}
