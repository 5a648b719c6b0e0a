package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/docserve/internal/version"
)

func newVersionCommand() *cobra.Command {
	var (
		format   string
		short    bool
		detailed bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the docserve version, commit, build time, Go version and
target platform.

Examples:
  docserve version                 # Show version
  docserve version --short         # Version only
  docserve version --detailed      # Every build attribute
  docserve version --format json   # Output as JSON`,
		Args: cobra.NoArgs,
		// The version never depends on a project configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				info := version.GetBuildInfo()
				payload := map[string]interface{}{
					"version":    info.Version,
					"git_commit": info.GitCommit,
					"build_time": info.BuildTime,
					"go_version": info.GoVersion,
					"platform":   info.Platform,
					"is_release": version.IsRelease(),
					"is_dirty":   info.Dirty,
				}
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(payload)
			case "text":
				switch {
				case short:
					fmt.Fprintln(out, version.GetShortVersion())
				case detailed:
					fmt.Fprintln(out, version.GetDetailedVersion())
				default:
					info := version.GetBuildInfo()
					fmt.Fprintf(out, "docserve %s\n", version.GetShortVersion())
					fmt.Fprintf(out, "Go: %s\n", info.GoVersion)
					fmt.Fprintf(out, "Platform: %s\n", info.Platform)
				}
				return nil
			default:
				return fmt.Errorf("unsupported format: %s (supported: text, json)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json)")
	cmd.Flags().BoolVar(&short, "short", false, "Show short version only")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "Show detailed version information")
	return cmd
}
