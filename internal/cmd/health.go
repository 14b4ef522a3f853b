package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/octofetch/octofetch/internal/config"
	apperrors "github.com/octofetch/octofetch/internal/errors"
	"github.com/octofetch/octofetch/internal/observability"
	"github.com/octofetch/octofetch/internal/output"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long: `Run a self-health check: version info, configuration and the store.
No request is sent upstream.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		if logger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", apperrors.NewConfigInvalidError("Logger not initialized"))
			return
		}

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", apperrors.NewConfigInvalidError("Version information missing"))
			return
		}
		logger.Debug("Version check passed", zap.String("version", versionInfo.Version))

		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration invalid", err)
			return
		}

		lines := []string{"Health", "", "✅ version " + versionInfo.Version, "✅ configuration valid"}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := checkStore(ctx, cfg); err != nil {
			if cfg.Cache.Backend == config.CacheBackendStore {
				ExitWithCode(logger, foundry.ExitFailure, "Store unavailable", err)
				return
			}
			lines = append(lines, "⚠️  store unavailable (cache backend "+cfg.Cache.Backend+"): "+err.Error())
		} else {
			lines = append(lines, fmt.Sprintf("✅ store reachable (%s)", cfg.Store.Driver))
		}

		fmt.Fprint(cmd.OutOrStdout(), boxed(output.FormatTable, lines...))
	},
}

func checkStore(ctx context.Context, cfg *config.Config) error {
	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup
	return db.CheckHealth(ctx)
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
