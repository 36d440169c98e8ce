// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/listenpath/internal/availability"
	"github.com/ManuGH/listenpath/internal/config"
	"github.com/ManuGH/listenpath/internal/decision"
	"github.com/ManuGH/listenpath/internal/engine"
	lplog "github.com/ManuGH/listenpath/internal/log"
	"github.com/ManuGH/listenpath/internal/media"
	"github.com/ManuGH/listenpath/internal/validate"
)

type resolveReport struct {
	EpisodeID    string           `json:"episode_id"`
	CacheVersion int              `json:"cache_version"`
	Platform     string           `json:"platform"`
	CodecOrder   []media.Codec    `json:"codec_order"`
	Languages    []languageReport `json:"languages"`
}

type languageReport struct {
	Code      string          `json:"code"`
	Label     string          `json:"label"`
	Selected  string          `json:"selected,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Healed    bool            `json:"healed,omitempty"`
	Error     string          `json:"error,omitempty"`
	Available []string        `json:"available_languages,omitempty"`
	Variants  []variantReport `json:"variants"`
}

type variantReport struct {
	ID         media.VariantID `json:"id"`
	URL        string          `json:"url"`
	Supported  bool            `json:"supported"`
	Exists     string          `json:"exists"`
	Confidence int             `json:"confidence"`
	Displayed  bool            `json:"displayed"`
}

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var languages []string
	var remembered string
	var noCache bool
	var output string

	cmd := &cobra.Command{
		Use:   "resolve <episode.yaml>",
		Short: "Probe an episode's variants and pick the default per language",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, err := wantJSON(cmd, output)
			if err != nil {
				return err
			}
			ep, err := config.LoadEpisode(args[0])
			if err != nil {
				return err
			}
			codes, err := selectLanguages(ep, languages)
			if err != nil {
				return err
			}

			rt, err := ctx.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			report, err := resolveEpisode(cmd, rt, ep, codes, media.VariantID(remembered), !noCache)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, report)
			}
			printResolveReport(cmd, report)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&languages, "language", "l", nil, "Languages to resolve (default: all)")
	cmd.Flags().StringVar(&remembered, "remembered", "", "Variant id to try first, as if remembered from a previous session")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Do not read or write the availability cache")
	addOutputFlag(cmd, &output)
	return cmd
}

func selectLanguages(ep media.Episode, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return ep.LanguageCodes(), nil
	}
	out := make([]string, 0, len(requested))
	for _, raw := range requested {
		code, err := validate.CanonicalLanguage(raw)
		if err != nil {
			return nil, err
		}
		if _, ok := ep.Track(code); !ok {
			return nil, fmt.Errorf("%w: %s", engine.ErrUnknownLanguage, code)
		}
		out = append(out, code)
	}
	return out, nil
}

func resolveEpisode(cmd *cobra.Command, rt *services, ep media.Episode, codes []string, remembered media.VariantID, useCache bool) (resolveReport, error) {
	ctx := cmd.Context()
	logger := lplog.WithComponentFromContext(ctx, "cli").With().Str(lplog.FieldEpisodeID, ep.ID).Logger()

	oracle := rt.oracle()
	resolver := engine.NewResolver(oracle, rt.prober())
	order := oracle.PreferredCodecOrder()

	var rec *availability.Record
	if useCache {
		rec = rt.cache.Read(ctx, ep.ID, ep.CacheVersion)
	}
	if rec == nil {
		rec = availability.NewRecord(ep.ID, ep.CacheVersion, time.Now())
	}

	report := resolveReport{
		EpisodeID:    ep.ID,
		CacheVersion: ep.CacheVersion,
		Platform:     oracle.Platform().String(),
		CodecOrder:   order,
	}
	showAll := ep.ShowAllQualities || rt.cfg.ShowAllQualities
	learned := false

	for _, code := range codes {
		track, _ := ep.Track(code)
		res, err := resolver.Resolve(ctx, track, rec, remembered)
		if err != nil && !errors.Is(err, decision.ErrNoPlayableFormat) {
			return report, fmt.Errorf("resolve %s: %w", code, err)
		}
		if res.ApplyTo(rec) {
			learned = true
		}

		lr := languageReport{Code: code, Label: track.Label, Healed: res.Healed}
		if err != nil {
			lr.Error = err.Error()
		} else {
			lr.Selected = string(res.Selection.Variant.ID)
			lr.Reason = string(res.Selection.Reason)
		}
		displayed := make(map[media.VariantID]bool)
		for _, v := range decision.FilterForDisplay(res.Variants, order, showAll) {
			displayed[v.ID] = true
		}
		for _, v := range res.Variants {
			lr.Variants = append(lr.Variants, variantReport{
				ID:         v.ID,
				URL:        v.URL,
				Supported:  v.Supported,
				Exists:     v.Exists.String(),
				Confidence: int(v.Confidence),
				Displayed:  displayed[v.ID],
			})
		}
		report.Languages = append(report.Languages, lr)
		logger.Info().
			Str(lplog.FieldLanguage, code).
			Str(lplog.FieldVariantID, lr.Selected).
			Str(lplog.FieldReason, lr.Reason).
			Msg("language resolved")
	}

	for i := range report.Languages {
		report.Languages[i].Available = rec.AvailableLanguageCodes
	}

	if useCache && learned {
		if err := rt.cache.Write(ctx, rec); err != nil {
			logger.Warn().Err(err).Msg("availability record not cached")
		}
	}
	return report, nil
}

func printResolveReport(cmd *cobra.Command, report resolveReport) {
	out := cmd.OutOrStdout()
	codecs := make([]string, len(report.CodecOrder))
	for i, c := range report.CodecOrder {
		codecs[i] = string(c)
	}
	fmt.Fprintf(out, "Episode:  %s (cache v%d)\n", report.EpisodeID, report.CacheVersion)
	fmt.Fprintf(out, "Platform: %s, codec order %s\n", report.Platform, strings.Join(codecs, " > "))

	for _, lang := range report.Languages {
		fmt.Fprintln(out)
		switch {
		case lang.Error != "":
			fmt.Fprintf(out, "%s (%s): %s\n", lang.Label, lang.Code, lang.Error)
		default:
			fmt.Fprintf(out, "%s (%s): %s [%s]\n", lang.Label, lang.Code, lang.Selected, lang.Reason)
		}

		rows := make([][]string, 0, len(lang.Variants))
		for _, v := range lang.Variants {
			marker := ""
			if string(v.ID) == lang.Selected {
				marker = "*"
			}
			rows = append(rows, []string{
				marker,
				string(v.ID),
				yesNo(v.Supported),
				v.Exists,
				strconv.Itoa(v.Confidence),
				yesNo(v.Displayed),
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"", "Variant", "Supported", "Exists", "Confidence", "Shown"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
		))
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
