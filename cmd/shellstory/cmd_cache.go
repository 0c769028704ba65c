package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HendryAvila/shellstory/internal/cache"
	"github.com/HendryAvila/shellstory/internal/server"
)

var cacheFileKey string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the design cache",
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print cache entries as JSON",
	Args:  cobra.NoArgs,
	RunE:  runCacheStatus,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the cache entry for a design file",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	cacheStatusCmd.Flags().StringVar(&cacheFileKey, "file", "", "Design file key (default: all)")
	cacheClearCmd.Flags().StringVar(&cacheFileKey, "file", "", "Design file key (required)")
	_ = cacheClearCmd.MarkFlagRequired("file")
	cacheCmd.AddCommand(cacheStatusCmd, cacheClearCmd)
}

// withCache opens the configured cache for the duration of fn.
func withCache(cmd *cobra.Command, fn func(c *cache.Cache) error) error {
	deps, err := server.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("closing resources", zap.Error(err))
		}
	}()
	return fn(deps.Cache)
}

func runCacheStatus(cmd *cobra.Command, args []string) error {
	return withCache(cmd, func(c *cache.Cache) error {
		ctx := cmd.Context()
		keys := []string{cacheFileKey}
		if cacheFileKey == "" {
			var err error
			if keys, err = c.Keys(ctx); err != nil {
				return err
			}
		}
		statuses := make([]*cache.Status, 0, len(keys))
		for _, k := range keys {
			st, err := c.Status(ctx, k)
			if err != nil {
				return err
			}
			statuses = append(statuses, st)
		}
		return printJSON(cmd, statuses)
	})
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	if cacheFileKey == "" {
		return errors.New("--file is required")
	}
	return withCache(cmd, func(c *cache.Cache) error {
		if err := c.Invalidate(cmd.Context(), cacheFileKey); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared cache for %s.\n", cacheFileKey)
		return nil
	})
}
