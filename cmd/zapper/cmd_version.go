/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/zapperlabs/zapper/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the Zapper version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("zapper %s (%s/%s)\n", version.Version, runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
