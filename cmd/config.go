package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newConfigCommand(v *viper.Viper) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config [project-path]",
		Short: "Show the effective configuration",
		Long: `Print the configuration docserve would run with, after merging the
project file, DOCSERVE_* environment variables, flags and defaults.

Examples:
  docserve config                  # YAML for the current directory
  docserve config ./docs           # YAML for ./docs
  docserve config --format json    # JSON output`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "yaml", "yml":
				if path := v.ConfigFileUsed(); path != "" {
					fmt.Fprintf(out, "# Loaded from %s\n", path)
				}
				encoder := yaml.NewEncoder(out)
				encoder.SetIndent(2)
				if err := encoder.Encode(cfg); err != nil {
					return err
				}
				return encoder.Close()
			case "json":
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(cfg)
			default:
				return fmt.Errorf("unsupported format: %s (supported: yaml, json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "Output format (yaml, json)")
	return cmd
}
