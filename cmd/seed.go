package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/thlee33/ai-sql-map/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Recreate the sample buildings and subway_stations tables",
	Long:  `seed enables PostGIS and drops, recreates and fills the buildings and subway_stations tables in one transaction. Existing data in those tables is lost.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		if missing := cfg.DB.Missing(); len(missing) > 0 {
			return fmt.Errorf("database settings are missing: %s", strings.Join(missing, ", "))
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := seed.Load(ctx, cfg.DB.DSN(), logger); err != nil {
			return fmt.Errorf("seed database: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "sample data loaded")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
