package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/radarworks/mcp-radar/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "mcp-radar",
	Short: "MCP server trust radar batch pipeline",
	Long:  "Discovers MCP servers from public registries, mines security evidence, scores trust posture, and publishes a ranked index with drift detection.",
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
