package cmd

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/octofetch/octofetch/internal/config"
	"github.com/octofetch/octofetch/internal/core"
	"github.com/octofetch/octofetch/internal/core/fetch"
	apperrors "github.com/octofetch/octofetch/internal/errors"
	"github.com/octofetch/octofetch/internal/observability"
	"github.com/octofetch/octofetch/internal/output"
)

var listCmd = &cobra.Command{
	Use:   "list <path>",
	Short: "Fetch every page of a collection",
	Long: `Fetch a paginated collection one page at a time and print the flattened
result, for example:

  octofetch list repos/octocat/Hello-World/issues --per-page 100
  octofetch list orgs/github/repos --max-pages 3

Pagination stops at the first short or empty page. A failure part-way through
reports how far the fetch got; --partial also prints the items gathered
before the failure.`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().Int("per-page", 0, "Items per page, 1-100 (default from github.per_page)")
	listCmd.Flags().Int("max-pages", 0, "Stop after this many pages, 0 for no limit (default from github.max_pages)")
	listCmd.Flags().Bool("partial", false, "Print the items gathered before a failure")
	addOutputFlags(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	path := strings.TrimSpace(args[0])
	format, err := resolveOutputFormat()
	if err != nil {
		return err
	}
	partial, err := cmd.Flags().GetBool("partial")
	if err != nil {
		return err
	}

	return withFetchEnv(cmd, func(ctx context.Context, env *fetchEnv) error {
		opts, err := pageOptions(cmd, env.cfg)
		if err != nil {
			return err
		}

		coll, fetchErr := env.session.FetchAll(ctx, path, opts)
		if fetchErr != nil {
			var fe *fetch.FetchError
			if !partial || coll == nil || !errors.As(fetchErr, &fe) {
				return fetchErr
			}
			observability.CLILogger.Warn("Collection incomplete; printing partial result",
				zap.String("path", fe.Path),
				zap.Int("last_page", fe.LastPage),
				zap.Int("items", len(coll.Items)),
				zap.String("kind", string(fe.Kind)))
		}

		rendered, err := output.NewFormatter(format).FormatCollection(coll)
		if err != nil {
			return err
		}
		if err := emit(cmd, format, "list."+coll.Path, rendered); err != nil {
			return err
		}
		return fetchErr
	})
}

// pageOptions merges --per-page/--max-pages with the configured defaults.
func pageOptions(cmd *cobra.Command, cfg *config.Config) (fetch.PageOptions, error) {
	opts := fetch.PageOptions{
		PerPage:  cfg.GitHub.PerPage,
		MaxPages: cfg.GitHub.MaxPages,
	}

	if cmd.Flags().Changed("per-page") {
		perPage, err := cmd.Flags().GetInt("per-page")
		if err != nil {
			return opts, err
		}
		if perPage < 1 || perPage > core.MaxPerPage {
			return opts, apperrors.NewInvalidInputError("--per-page must be between 1 and 100")
		}
		opts.PerPage = perPage
	}

	if cmd.Flags().Changed("max-pages") {
		maxPages, err := cmd.Flags().GetInt("max-pages")
		if err != nil {
			return opts, err
		}
		if maxPages < 0 {
			return opts, apperrors.NewInvalidInputError("--max-pages must not be negative")
		}
		opts.MaxPages = maxPages
	}

	return opts, nil
}
