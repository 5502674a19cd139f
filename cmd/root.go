// Package cmd implements the geoquery command line: the HTTP gateway plus a
// few operator commands that share its configuration.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thlee33/ai-sql-map/internal/config"
	"github.com/thlee33/ai-sql-map/internal/logging"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "geoquery",
	Short:         "Natural language to PostGIS GeoJSON gateway",
	Long:          `geoquery turns free-text map questions into PostGIS queries with an LLM and returns the result as a GeoJSON FeatureCollection, a map command or a text answer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
}

// loadConfig reads configuration and builds the process logger.
func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
