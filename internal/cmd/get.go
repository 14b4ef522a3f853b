package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/octofetch/octofetch/internal/observability"
	"github.com/octofetch/octofetch/internal/output"
)

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Fetch a single resource",
	Long: `Fetch a single JSON resource, for example:

  octofetch get repos/octocat/Hello-World
  octofetch get users/octocat

A missing resource (or a private one requested without a token) reports
not found. Credentials come from GITHUB_TOKEN or OCTOFETCH_GITHUB_TOKEN.`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
	addOutputFlags(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	path := strings.TrimSpace(args[0])
	format, err := resolveOutputFormat()
	if err != nil {
		return err
	}

	return withFetchEnv(cmd, func(ctx context.Context, env *fetchEnv) error {
		res, err := env.session.Get(ctx, path)
		if err != nil {
			return err
		}
		observability.CLILogger.Debug("Resource fetched",
			zap.String("path", res.Path),
			zap.Bool("from_cache", res.Provenance.FromCache),
			zap.String("request_id", res.Provenance.RequestID))

		rendered, err := output.NewFormatter(format).FormatResource(res)
		if err != nil {
			return err
		}
		return emit(cmd, format, "get."+res.Path, rendered)
	})
}

// withFetchEnv runs fn with a session built from the loaded config and
// persists the quota snapshot afterwards, even when fn fails.
func withFetchEnv(cmd *cobra.Command, fn func(ctx context.Context, env *fetchEnv) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	env, err := openFetchEnv(ctx, cfg, fetchEnvOptions{
		NoCache: noCache,
		Logger:  observability.CLILogger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := env.Close(ctx); cerr != nil {
			observability.CLILogger.Warn("Failed to close store", zap.Error(cerr))
		}
	}()

	return fn(ctx, env)
}

func emit(cmd *cobra.Command, format output.Format, base, rendered string) error {
	sink, err := sinkFor(cmd, format, base)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	if err := writeRendered(sink, rendered); err != nil {
		return err
	}
	if sink.path != "-" {
		observability.CLILogger.Info("Output written", zap.String("path", sink.path))
	}
	return nil
}
