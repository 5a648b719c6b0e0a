package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/docserve/internal/config"
	"github.com/conneroisu/docserve/internal/errors"
)

// EnvPrefix prefixes every environment override, e.g. DOCSERVE_SERVER_PORT.
const EnvPrefix = "DOCSERVE"

// Execute runs the root command against the global viper instance.
func Execute() error {
	return NewRootCommand(viper.GetViper()).Execute()
}

// NewRootCommand builds the command tree. Configuration is read into v.
func NewRootCommand(v *viper.Viper) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "docserve [project-path]",
		Short: "Serve a documentation project with automatic rebuild and live reload",
		Long: `docserve builds a documentation project, serves the rendered HTML and
rebuilds whenever a source file changes. Every served page carries a small
reload client, so open browsers refresh as soon as a rebuild finishes.

Edits to ordinary sources rebuild only the changed files. Deleting or moving
a source rebuilds everything, and editing the renderer configuration
restarts the renderer with the new settings.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, v)
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is <project>/docserve.yaml, can also use DOCSERVE_CONFIG_FILE)")
	root.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "text", "log format (text, json)")
	bindFlags(v, root.PersistentFlags(), map[string]string{
		"log-level":  "log.level",
		"log-format": "log.format",
	})

	addServeFlags(root, v)

	root.AddCommand(newVersionCommand(), newConfigCommand(v))
	return root
}

// initConfig resolves the project path and reads the configuration file.
//
// The file is chosen by, highest first: --config, DOCSERVE_CONFIG_FILE,
// then docserve.{yaml,yml,json,toml} in the project directory. A missing
// default file is not an error.
func initConfig(v *viper.Viper, cfgFile string, args []string) error {
	project := "."
	if len(args) > 0 {
		project = args[0]
	}
	abs, err := filepath.Abs(project)
	if err != nil {
		return errors.NewConfigError("PROJECT_PATH", "cannot resolve project path", err).WithPath(project)
	}
	if _, err := os.Stat(abs); err != nil {
		return errors.NewConfigError("PROJECT_PATH", "project path does not exist", err).WithPath(abs)
	}
	v.Set("project", abs)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	config.BindEnv(v)

	if cfgFile == "" {
		cfgFile = os.Getenv(EnvPrefix + "_CONFIG_FILE")
	}
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return errors.NewConfigError("CONFIG_MISSING", "configuration file not found", err).WithPath(cfgFile)
		}
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(abs)
		v.SetConfigName(config.DefaultConfigName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.NewEnhancedError(
			"Failed to read configuration",
			errors.NewConfigError("CONFIG_READ", "cannot read configuration file", err),
			errors.ConfigurationError(err.Error(), v.ConfigFileUsed()),
		)
	}
	return nil
}
