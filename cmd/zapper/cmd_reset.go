/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zapperlabs/zapper/internal/db"
	"github.com/zapperlabs/zapper/internal/models"
)

var (
	resetForce         bool
	resetDeleteArchive bool
	resetKeepKeys      bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the database and optionally delete archived guides",
	Long: `Reset Zapper to a fresh state.

This command will:
- Drop all tables from the database
- Re-create empty tables
- Optionally preserve unrevoked admin API keys
- Optionally delete locally archived guide days

WARNING: This action is irreversible! All data will be lost.

Examples:
  # Interactive reset (will prompt for confirmation)
  zapper reset

  # Force reset without confirmation
  zapper reset --force

  # Reset and delete archived guides
  zapper reset --force --delete-archive

  # Reset but keep unrevoked admin API keys
  zapper reset --force --keep-keys
`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip confirmation prompt")
	resetCmd.Flags().BoolVar(&resetDeleteArchive, "delete-archive", false, "Also delete locally archived guide days")
	resetCmd.Flags().BoolVar(&resetKeepKeys, "keep-keys", false, "Preserve unrevoked admin API keys")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	// Confirmation prompt
	if !resetForce {
		fmt.Println("\n╔══════════════════════════════════════════════════════════════╗")
		fmt.Println("║                        WARNING                               ║")
		fmt.Println("╠══════════════════════════════════════════════════════════════╣")
		fmt.Println("║  This will DELETE ALL DATA from Zapper:                      ║")
		fmt.Println("║                                                              ║")
		fmt.Println("║  • All channels and their slot plans                         ║")
		fmt.Println("║  • All airing history (movie cooldowns reset)                ║")
		fmt.Println("║  • All audit log entries                                     ║")
		if resetKeepKeys {
			fmt.Println("║  • All admin API keys EXCEPT unrevoked ones                  ║")
		} else {
			fmt.Println("║  • All admin API keys                                        ║")
		}
		if resetDeleteArchive {
			fmt.Println("║  • ALL LOCALLY ARCHIVED GUIDE DAYS                           ║")
		}
		fmt.Println("║                                                              ║")
		fmt.Println("║  This action CANNOT be undone!                               ║")
		fmt.Println("╚══════════════════════════════════════════════════════════════╝")
		fmt.Println()

		fmt.Print("Type 'yes' to confirm reset: ")
		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		response = strings.TrimSpace(strings.ToLower(response))
		if response != "yes" {
			fmt.Println("Reset cancelled.")
			return nil
		}
	}

	logger.Info().
		Bool("delete_archive", resetDeleteArchive).
		Bool("keep_keys", resetKeepKeys).
		Msg("Starting database reset")

	// Connect to database
	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close(database)

	// If keeping keys, preserve them first
	var preservedKeys []models.AdminKey
	if resetKeepKeys {
		database.Where("revoked_at IS NULL").
			Order("created_at ASC").
			Find(&preservedKeys)

		for _, k := range preservedKeys {
			logger.Info().
				Str("key_prefix", k.KeyPrefix).
				Str("name", k.Name).
				Msg("Preserving API key")
		}
	}

	// Drop tables children-first so foreign keys never block a drop
	tables := []interface{}{
		&models.TimeSlot{},
		&models.Airing{},
		&models.AuditLog{},
		&models.AdminKey{},
		&models.Channel{},
	}

	logger.Info().Msg("Dropping all tables")
	for _, table := range tables {
		if err := database.Migrator().DropTable(table); err != nil {
			// Log but continue - table might not exist
			logger.Debug().Err(err).Msgf("drop table (may not exist)")
		}
	}

	// Delete archived guides if requested
	if resetDeleteArchive && cfg.ArchiveDir != "" {
		logger.Info().Str("path", cfg.ArchiveDir).Msg("Deleting archived guides")
		if err := os.RemoveAll(cfg.ArchiveDir); err != nil {
			logger.Warn().Err(err).Msg("failed to delete archive directory")
		} else if err := os.MkdirAll(cfg.ArchiveDir, 0755); err != nil {
			logger.Warn().Err(err).Msg("failed to recreate archive directory")
		}
	}

	// Re-create tables
	logger.Info().Msg("Creating fresh database schema")
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	// Restore preserved keys
	if len(preservedKeys) > 0 {
		logger.Info().Int("count", len(preservedKeys)).Msg("Restoring preserved API keys")
		for _, k := range preservedKeys {
			if err := database.Create(&k).Error; err != nil {
				logger.Error().Err(err).Str("name", k.Name).Msg("failed to restore API key")
			}
		}
	}

	logger.Info().Msg("Reset complete")
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                    Reset Complete!                           ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  Zapper has been reset to a fresh state.                     ║")
	fmt.Println("║                                                              ║")
	fmt.Println("║  Next steps:                                                 ║")
	fmt.Println("║  1. Import a lineup:  zapper import --file lineup.json       ║")
	fmt.Println("║  2. Start the server: zapper serve                           ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()

	return nil
}
