/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zapperlabs/zapper/internal/catalog"
	"github.com/zapperlabs/zapper/internal/channels"
	"github.com/zapperlabs/zapper/internal/events"
	"github.com/zapperlabs/zapper/internal/guide"
)

// Generate flags
var (
	generateDate    string
	generateChannel string
	generateOut     string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a day guide without starting the server",
	Long: `Generate the deterministic guide for one calendar day and print it as JSON.

The channel lineup is read from the database and the catalog pool from the
configured catalog path. Generation runs against a fresh in-memory cooldown
ledger, so the live airing history is neither consulted nor modified.

Examples:
  zapper generate
  zapper generate --date 2026-07-04 --channel retro-gold
  zapper generate --date 2026-07-04 --out guide.json`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVar(&generateDate, "date", "", "Target date (YYYY-MM-DD, default today)")
	generateCmd.Flags().StringVar(&generateChannel, "channel", "", "Limit output to a single channel ID")
	generateCmd.Flags().StringVar(&generateOut, "out", "", "Write JSON to a file instead of stdout")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn().Err(err).Str("timezone", cfg.Timezone).Msg("invalid guide timezone, falling back to UTC")
		loc = time.UTC
	}

	target := time.Now().In(loc)
	if generateDate != "" {
		target, err = time.ParseInLocation("2006-01-02", generateDate, loc)
		if err != nil {
			return fmt.Errorf("parse date %q: %w", generateDate, err)
		}
	}

	pool := catalog.NewPool(cfg.CatalogPath, logger)
	items, err := pool.Reload()
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	channelSvc := channels.NewService(database, events.NewBus(), logger)
	lineup, err := channelSvc.ListEnabled(context.Background())
	if err != nil {
		return fmt.Errorf("load channel lineup: %w", err)
	}
	if len(lineup) == 0 {
		return fmt.Errorf("no enabled channels; import a blueprint first (zapper import)")
	}

	policy := guide.DefaultDurationPolicy()
	if cfg.MovieFallbackMinutes > 0 {
		policy.MovieFallback = time.Duration(cfg.MovieFallbackMinutes) * time.Minute
	}
	if cfg.SeriesFallbackMinutes > 0 {
		policy.SeriesFallback = time.Duration(cfg.SeriesFallbackMinutes) * time.Minute
	}
	if cfg.SeriesMinimumMinutes > 0 {
		policy.SeriesMinimum = time.Duration(cfg.SeriesMinimumMinutes) * time.Minute
	}

	engine := guide.NewEngine(pool, guide.NewMemoryCooldown(), policy, cfg.CooldownDays, loc, logger)

	var out any
	if generateChannel != "" {
		sched := engine.ChannelDay(context.Background(), lineup, generateChannel, target)
		if sched == nil {
			return fmt.Errorf("channel %q is not in the enabled lineup", generateChannel)
		}
		out = sched
	} else {
		out = engine.Day(context.Background(), lineup, target)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode guide: %w", err)
	}
	data = append(data, '\n')

	if generateOut != "" {
		if err := os.WriteFile(generateOut, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", generateOut, err)
		}
		fmt.Printf("Guide for %s written to %s\n", target.Format("2006-01-02"), generateOut)
		fmt.Printf("  Channels:      %d\n", len(lineup))
		fmt.Printf("  Catalog items: %d\n", items)
		return nil
	}

	_, err = os.Stdout.Write(data)
	return err
}
