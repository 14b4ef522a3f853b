package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/octofetch/octofetch/internal/core/store"
	"github.com/octofetch/octofetch/internal/observability"
	"github.com/octofetch/octofetch/internal/output"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Maintain the persistent response cache",
	Long: `Cached responses live in the store when cache.backend is "store" (the
default). Entries older than cache.ttl are never served; evict removes them.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache size and age",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat()
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		stats, err := db.CacheStats(cmd.Context())
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatCacheStats(stats)
		if err != nil {
			return err
		}
		return emit(cmd, format, "cache.stats", rendered)
	},
}

var cacheEvictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Remove entries older than the cache TTL",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat()
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		removed, err := store.NewResponseCache(db, cfg.Cache.TTL).EvictExpired(cmd.Context(), time.Now().UTC())
		if err != nil {
			return err
		}
		observability.CLILogger.Debug("Evicted expired cache entries",
			zap.Int("removed", removed),
			zap.Duration("ttl", cfg.Cache.TTL))

		rendered, err := renderCacheResult(format, "evicted", int64(removed), fmt.Sprintf("Evicted %d expired entr(ies)", removed))
		if err != nil {
			return err
		}
		return emit(cmd, format, "cache.evict", rendered)
	},
}

var (
	cacheClearAll    bool
	cacheClearPrefix string
	cacheClearYes    bool
)

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete cached responses",
	Long: `Delete cached responses regardless of age. --prefix matches the request
URL, e.g. --prefix https://api.github.com/repos/octocat/`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat()
		if err != nil {
			return err
		}

		query := store.CacheQuery{
			All:    cacheClearAll,
			Prefix: strings.TrimSpace(cacheClearPrefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !cacheClearYes {
			return errors.New("--all requires --yes")
		}

		db, err := openStore(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		deleted, err := db.ClearCache(cmd.Context(), query)
		if err != nil {
			return err
		}

		rendered, err := renderCacheResult(format, "deleted", deleted, fmt.Sprintf("Deleted %d cached entr(ies)", deleted))
		if err != nil {
			return err
		}
		return emit(cmd, format, "cache.clear", rendered)
	},
}

func renderCacheResult(format output.Format, key string, count int64, message string) (string, error) {
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(map[string]any{key: count}, "", "  ")
		if err != nil {
			return "", err
		}
		return string(payload), nil
	}
	return boxed(format, message), nil
}

func init() {
	cacheClearCmd.Flags().BoolVar(&cacheClearAll, "all", false, "Delete every cached response")
	cacheClearCmd.Flags().StringVar(&cacheClearPrefix, "prefix", "", "Delete responses whose request URL starts with prefix")
	cacheClearCmd.Flags().BoolVar(&cacheClearYes, "yes", false, "Confirm destructive clear")

	for _, c := range []*cobra.Command{cacheStatsCmd, cacheEvictCmd, cacheClearCmd} {
		addOutputFlags(c)
		cacheCmd.AddCommand(c)
	}
	rootCmd.AddCommand(cacheCmd)
}
