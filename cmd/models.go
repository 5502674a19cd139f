package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thlee33/ai-sql-map/internal/llm"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models available to the configured provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx := context.Background()
		p, err := newProvider(ctx, cfg.LLM)
		if err != nil {
			return err
		}
		defer func() { _ = llm.Close(p) }()

		lister, ok := p.(llm.ModelLister)
		if !ok {
			return fmt.Errorf("provider %s cannot list models", p.Name())
		}
		names, err := lister.ListModels(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
