package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/qualify-cli/internal/config"
	"github.com/sells-group/qualify-cli/internal/tracing"
)

var (
	cfg             *config.Config
	shutdownTracing = func(context.Context) error { return nil }
)

var rootCmd = &cobra.Command{
	Use:          "qualify",
	Short:        "Social profile qualification pipeline",
	Long:         "Acquires social media profiles through resilient scraper backends and qualifies them against a business with multi-stage, cost-tracked LLM workflows.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		shutdown, err := tracing.Setup(cmd.Context(), cfg.Tracing)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		shutdownTracing = shutdown

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			zap.L().Warn("tracing shutdown failed", zap.Error(err))
		}
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
