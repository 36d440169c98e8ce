// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"
	FieldEpisodeID = "episode_id"

	// Process fields
	FieldEvent      = "event"
	FieldComponent  = "component"
	FieldGeneration = "generation"
	FieldReason     = "reason"

	// Media fields
	FieldVariantID = "variant_id"
	FieldCodec     = "codec"
	FieldBitrate   = "bitrate"
	FieldLanguage  = "language"
	FieldPosition  = "position"

	// Probe fields
	FieldTier   = "tier"
	FieldURL    = "url"
	FieldStatus = "status"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
