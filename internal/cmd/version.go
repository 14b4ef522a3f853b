package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/octofetch/octofetch/internal/output"
	"github.com/octofetch/octofetch/internal/server/handlers"
)

var extended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for full details including Crucible and Go versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat()
		if err != nil {
			return err
		}
		return writeVersion(cmd.OutOrStdout(), format, handlers.CurrentVersion(), extended)
	},
}

func writeVersion(w io.Writer, format output.Format, info handlers.VersionResponse, extended bool) error {
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	fmt.Fprintf(w, "%s %s\n", info.App.Name, info.App.Version)
	if !extended {
		return nil
	}
	fmt.Fprintf(w, "Commit: %s\n", info.App.Commit)
	fmt.Fprintf(w, "Built: %s\n", info.App.BuildDate)
	fmt.Fprintf(w, "Go: %s (%s)\n", info.App.GoVersion, info.Runtime.Platform)
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Gofulmen: %s\n", info.Dependencies.Gofulmen)
	_, err := fmt.Fprintf(w, "Crucible: %s\n", info.Dependencies.Crucible)
	return err
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
}
