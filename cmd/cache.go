package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/qualify-cli/internal/acquire"
	"github.com/sells-group/qualify-cli/internal/cache"
	"github.com/sells-group/qualify-cli/internal/model"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the profile cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge <profile>",
	Short: "Drop the cached profile for one subject",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, err := model.ParseProfileRef(args[0])
		if err != nil {
			return err
		}
		store, err := cache.Open(cmd.Context(), cfg.Cache)
		if err != nil {
			return err
		}
		defer store.Close()

		// Backends are not needed to drop an entry.
		acq, err := acquire.New(store, nil, nil)
		if err != nil {
			return err
		}
		if err := acq.Purge(cmd.Context(), subject); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged @%s\n", subject)
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := cache.Open(cmd.Context(), cfg.Cache)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := pruneStore(cmd.Context(), store)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired entries\n", n)
		return nil
	},
}

// expirer is implemented by stores that keep expired rows until swept.
type expirer interface {
	DeleteExpired(ctx context.Context) (int, error)
}

func pruneStore(ctx context.Context, store cache.Store) (int, error) {
	e, ok := store.(expirer)
	if !ok {
		zap.L().Info("cache driver expires entries itself, nothing to prune", zap.String("driver", cfg.Cache.Driver))
		return 0, nil
	}
	return e.DeleteExpired(ctx)
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd, cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
