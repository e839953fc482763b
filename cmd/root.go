package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deepatlas/charging-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "charging-cli",
	Short: "EV charging-station ingestion and dedup pipeline",
	Long:  "Pulls charging-station registries (Bundesnetzagentur, OpenChargeMap, OpenStreetMap), normalizes them into a common schema, merges near-duplicates, and exports a map.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
