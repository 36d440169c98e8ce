// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/listenpath/internal/media"
	"github.com/ManuGH/listenpath/internal/persistence/kv"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the availability cache",
	}
	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheShowCommand(ctx))
	cacheCmd.AddCommand(newCachePurgeCommand(ctx))
	cacheCmd.AddCommand(newCacheVerifyCommand(ctx))
	return cacheCmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached availability records",
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := wantJSON(cmd, output)
			if err != nil {
				return err
			}
			rt, err := ctx.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			entries, err := rt.cache.List(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No cached records")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{e.EpisodeID, strconv.Itoa(e.CacheVersion), e.Key})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Episode", "Version", "Key"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
			return nil
		},
	}
	addOutputFlag(cmd, &output)
	return cmd
}

func newCacheShowCommand(ctx *commandContext) *cobra.Command {
	var version int
	var output string
	cmd := &cobra.Command{
		Use:   "show <episode-id>",
		Short: "Show the live availability record of an episode version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := wantJSON(cmd, output)
			if err != nil {
				return err
			}
			rt, err := ctx.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			rec := rt.cache.Read(cmd.Context(), args[0], version)
			if rec == nil {
				return fmt.Errorf("no live record for %s v%d", args[0], version)
			}
			if asJSON {
				return writeJSON(cmd, rec)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Episode:   %s (v%d)\n", rec.EpisodeID, rec.CacheVersion)
			fmt.Fprintf(out, "Written:   %s (expires in %s)\n", rec.Timestamp.Local().Format(time.RFC3339),
				time.Until(rec.Timestamp.Add(rt.cache.TTL())).Truncate(time.Minute))
			fmt.Fprintf(out, "Available: %s\n", strings.Join(rec.AvailableLanguageCodes, ", "))

			langs := make([]string, 0, len(rec.ExistsByLanguage))
			for lang := range rec.ExistsByLanguage {
				langs = append(langs, lang)
			}
			sort.Strings(langs)
			var rows [][]string
			for _, lang := range langs {
				verdicts := rec.ExistsByLanguage[lang]
				ids := make([]media.VariantID, 0, len(verdicts))
				for id := range verdicts {
					ids = append(ids, id)
				}
				sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
				for _, id := range ids {
					rows = append(rows, []string{lang, string(id), yesNo(verdicts[id]), yesNo(rec.FullyScanned(lang))})
				}
			}
			fmt.Fprintln(out, renderTable([]string{"Language", "Variant", "Exists", "Full scan"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().IntVar(&version, "version", 0, "Episode cache version")
	addOutputFlag(cmd, &output)
	return cmd
}

func newCachePurgeCommand(ctx *commandContext) *cobra.Command {
	var version int
	var all bool
	cmd := &cobra.Command{
		Use:   "purge [episode-id]",
		Short: "Delete cached availability records",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("give either an episode id or --all")
			}
			rt, err := ctx.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			if !all {
				if err := rt.cache.Purge(cmd.Context(), args[0], version); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %s v%d\n", args[0], version)
				return nil
			}

			entries, err := rt.cache.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, e := range entries {
				if err := rt.cache.Purge(cmd.Context(), e.EpisodeID, e.CacheVersion); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d records\n", len(entries))
			return nil
		},
	}
	cmd.Flags().IntVar(&version, "version", 0, "Episode cache version")
	cmd.Flags().BoolVar(&all, "all", false, "Purge every record")
	return cmd
}

func newCacheVerifyCommand(ctx *commandContext) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run an integrity check on the sqlite store",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			store, ok := rt.store.(*kv.SqliteStore)
			if !ok {
				return fmt.Errorf("integrity checks need the sqlite backend, have %q", rt.cfg.Storage.Backend)
			}
			problems, err := store.Verify(cmd.Context(), full)
			if err != nil {
				return err
			}
			if len(problems) > 0 {
				for _, p := range problems {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return fmt.Errorf("integrity check reported %d problems", len(problems))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "integrity: ok")
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Run integrity_check instead of quick_check")
	return cmd
}
