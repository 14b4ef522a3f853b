package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/octofetch/octofetch/internal/core"
	apperrors "github.com/octofetch/octofetch/internal/errors"
	"github.com/octofetch/octofetch/internal/output"
)

var repoCmd = &cobra.Command{
	Use:   "repo <owner>/<name>",
	Short: "Summarise a repository",
	Long: `Summarise a repository: stars, language, visibility and activity.

A private repository requested without a token reports not found, exactly
as the API does.`,
	Args: cobra.ExactArgs(1),
	RunE: runRepo,
}

func init() {
	rootCmd.AddCommand(repoCmd)
	addOutputFlags(repoCmd)
}

func runRepo(cmd *cobra.Command, args []string) error {
	owner, name, err := splitRepoArg(args[0])
	if err != nil {
		return err
	}
	format, err := resolveOutputFormat()
	if err != nil {
		return err
	}

	return withFetchEnv(cmd, func(ctx context.Context, env *fetchEnv) error {
		res, err := env.session.Get(ctx, "repos/"+owner+"/"+name)
		if err != nil {
			return err
		}
		repo, err := core.DecodeRepository(res.Data)
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatRepository(repo)
		if err != nil {
			return err
		}
		return emit(cmd, format, "repo."+owner+"-"+name, rendered)
	})
}

// splitRepoArg accepts "owner/name" with both parts non-empty.
func splitRepoArg(arg string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(arg), "/")
	owner = strings.TrimSpace(owner)
	name = strings.TrimSpace(name)
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", apperrors.NewInvalidInputError("repository must be given as <owner>/<name>")
	}
	return owner, name, nil
}
