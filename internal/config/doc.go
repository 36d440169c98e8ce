// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the application configuration and episode files.
//
// Both are decoded strictly: unknown keys, trailing documents and invalid
// values are rejected before any engine component sees them. Application
// settings follow the precedence defaults < file < LISTENPATH_* environment.
package config
