// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const (
	outputAuto  = "auto"
	outputTable = "table"
	outputJSON  = "json"
)

// addOutputFlag registers --output. Auto renders tables on a terminal and
// JSON otherwise.
func addOutputFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "output", "o", outputAuto, "Output format: auto, table or json")
}

func wantJSON(cmd *cobra.Command, format string) (bool, error) {
	switch format {
	case outputJSON:
		return true, nil
	case outputTable:
		return false, nil
	case outputAuto, "":
		if f, ok := cmd.OutOrStdout().(*os.File); ok {
			return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()), nil
		}
		return true, nil
	default:
		return false, fmt.Errorf("unknown output format %q", format)
	}
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
