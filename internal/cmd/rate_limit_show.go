package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/octofetch/octofetch/internal/core/store"
	"github.com/octofetch/octofetch/internal/output"
)

var rateLimitShowCmd = &cobra.Command{
	Use:     "show",
	Aliases: []string{"list"},
	Short:   "Show stored rate limit state",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat()
		if err != nil {
			return err
		}
		prefix, err := cmd.Flags().GetString("prefix")
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.RateLimitQuery{Prefix: strings.TrimSpace(prefix)}
		if query.Prefix == "" {
			query.All = true
		}

		entries, err := db.ListRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}

		if len(entries) == 0 && format != output.FormatJSON {
			return emit(cmd, format, "rate-limit.show", boxed(format, "Rate Limits", "", "(no stored rate limit state)"))
		}

		rendered, err := output.NewFormatter(format).FormatRateLimits(entries)
		if err != nil {
			return err
		}
		return emit(cmd, format, "rate-limit.show", rendered)
	},
}

func init() {
	rateLimitShowCmd.Flags().String("prefix", "", "Show endpoints with matching prefix")
	addOutputFlags(rateLimitShowCmd)
}
