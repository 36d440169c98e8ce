// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/ManuGH/listenpath/internal/media"
)

// Attribute keys used on listenpath spans.
const (
	ProbeURLKey     = "probe.url"
	ProbeTierKey    = "probe.tier"
	ProbeOutcomeKey = "probe.outcome"
	ProbeStatusKey  = "probe.http_status"

	VariantIDKey      = "media.variant_id"
	VariantCodecKey   = "media.codec"
	VariantBitrateKey = "media.bitrate"
	LanguageKey       = "media.language"
	EpisodeKey        = "media.episode_id"

	SwitchGenerationKey = "switch.generation"
	SwitchReasonKey     = "switch.reason"
)

// ProbeAttributes describes an existence probe target.
func ProbeAttributes(url, mime string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(ProbeURLKey, url)}
	if mime != "" {
		attrs = append(attrs, attribute.String("probe.mime", mime))
	}
	return attrs
}

// VariantAttributes describes a variant.
func VariantAttributes(v media.Variant) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(VariantIDKey, string(v.ID)),
		attribute.String(VariantCodecKey, string(v.Codec)),
		attribute.Int(VariantBitrateKey, v.Bitrate),
	}
}

// SwitchAttributes describes a source switch attempt.
func SwitchAttributes(generation uint64, reason, language string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int64(SwitchGenerationKey, int64(generation)),
		attribute.String(SwitchReasonKey, reason),
	}
	if language != "" {
		attrs = append(attrs, attribute.String(LanguageKey, language))
	}
	return attrs
}
