/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/zapperlabs/zapper/internal/channels"
	"github.com/zapperlabs/zapper/internal/db"
	"github.com/zapperlabs/zapper/internal/events"
)

// Import flags
var (
	importFile   string
	importDryRun bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a channel blueprint into the database",
	Long: `Import a channel blueprint (JSON lineup file) into the database.

The import syncs the stored lineup to the blueprint: listed channels are
created or replaced, channels the blueprint no longer lists are removed.

Examples:
  zapper import --file lineup.json --dry-run
  zapper import --file lineup.json`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importFile, "file", "", "Path to the blueprint JSON file (required)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate the blueprint without writing")
	importCmd.MarkFlagRequired("file")
}

func runImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().
		Str("file", importFile).
		Bool("dry_run", importDryRun).
		Msg("starting blueprint import")

	data, err := os.ReadFile(importFile)
	if err != nil {
		return fmt.Errorf("read blueprint: %w", err)
	}

	database, err := initDatabase()
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	// Importing into a fresh database is the normal bootstrap flow, so the
	// schema is migrated here rather than assuming serve ran first.
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	channelSvc := channels.NewService(database, events.NewBus(), logger)
	existing, err := channelSvc.List(context.Background())
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}

	if importDryRun {
		var bp channels.Blueprint
		if err := json.Unmarshal(data, &bp); err != nil {
			return fmt.Errorf("parse blueprint: %w", err)
		}

		fmt.Printf("\nBlueprint Preview:\n")
		var badSlots int
		for _, ch := range bp.Channels {
			for _, slot := range ch.Slots {
				if _, err := time.Parse("15:04", slot.Start); err != nil {
					badSlots++
				}
				if _, err := time.Parse("15:04", slot.End); err != nil {
					badSlots++
				}
			}
			fmt.Printf("  %-24s priority %d, %d slots\n", ch.Name, ch.Priority, len(ch.Slots))
		}
		fmt.Printf("\n  Channels in blueprint: %d\n", len(bp.Channels))
		fmt.Printf("  Channels in database:  %d (channels not listed will be removed)\n", len(existing))
		if badSlots > 0 {
			fmt.Printf("  Invalid slot clocks:   %d (these channels will be skipped)\n", badSlots)
		}
		fmt.Printf("\nRun without --dry-run to perform the import.\n")
		return nil
	}

	result, err := channelSvc.ImportBlueprint(context.Background(), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("\nImport Complete!\n")
	fmt.Printf("  Imported: %d\n", result.Imported)
	fmt.Printf("  Skipped:  %d\n", result.Skipped)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors:\n")
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}

	logger.Info().Msg("blueprint import completed successfully")
	return nil
}
