package cmd

import (
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/octofetch/octofetch/internal/output"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Inspect or reset persisted rate limit state",
	Long: `Each invocation saves the last quota snapshot it observed, keyed by the
API host and credential ("api.github.com#anon" or "api.github.com#cred:<hash>"),
so the next invocation with the same credential waits for a reset it already
knows about. --prefix api.github.com matches every credential.`,
}

func init() {
	rateLimitCmd.AddCommand(rateLimitShowCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}

// boxed frames short status text for table output; other formats get the
// lines as-is.
func boxed(format output.Format, lines ...string) string {
	if format == output.FormatTable {
		return ascii.DrawBox(strings.Join(lines, "\n"), 0)
	}
	return strings.Join(lines, "\n")
}
