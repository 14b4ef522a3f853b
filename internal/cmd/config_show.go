package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/octofetch/octofetch/internal/config"
	"github.com/octofetch/octofetch/internal/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with credentials masked",
	Long:  "Print the effective configuration as YAML. --output does not apply; --out-dir writes config.show.txt.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		rendered, err := renderConfig(cfg.Redacted())
		if err != nil {
			return err
		}
		if used := viper.ConfigFileUsed(); used != "" {
			rendered = "# source: " + used + "\n" + rendered
		}
		return emit(cmd, output.FormatTable, "config.show", rendered)
	},
}

// renderConfig emits YAML with the same keys the config file uses.
func renderConfig(cfg config.Config) (string, error) {
	payload, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func init() {
	addOutputFlags(configShowCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
