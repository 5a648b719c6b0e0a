package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/docserve/internal/config"
	"github.com/conneroisu/docserve/internal/errors"
	"github.com/conneroisu/docserve/internal/logging"
	"github.com/conneroisu/docserve/internal/metrics"
	"github.com/conneroisu/docserve/internal/supervisor"
	"github.com/conneroisu/docserve/internal/version"
)

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup, err := supervisor.New(supervisor.Options{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics.New(),
		Reconfigure: reconfigure(v),
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "Starting docserve",
		"version", version.GetShortVersion(),
		"project", cfg.ProjectPath,
		"address", cfg.Address(),
	)

	err = sup.Run(ctx)
	if errors.IsBindError(err) {
		return errors.NewEnhancedError(
			fmt.Sprintf("Failed to start server on %s", cfg.Address()),
			err,
			errors.ServerStartError(err, cfg.Server.Port),
		)
	}
	return err
}

func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.LoadFrom(v)
	if err != nil {
		path := v.ConfigFileUsed()
		if path == "" {
			path = config.DefaultConfigName + ".yaml"
		}
		return nil, errors.NewEnhancedError(
			"Failed to load configuration",
			errors.NewConfigError("CONFIG_INVALID", "invalid configuration", err),
			errors.ConfigurationError(err.Error(), path),
		)
	}
	return cfg, nil
}

// reconfigure re-reads the project configuration file for a renderer
// restart.
func reconfigure(v *viper.Viper) func() (config.RendererConfig, error) {
	return func() (config.RendererConfig, error) {
		if v.ConfigFileUsed() != "" {
			if err := v.ReadInConfig(); err != nil {
				return config.RendererConfig{}, err
			}
		}
		cfg, err := config.LoadFrom(v)
		if err != nil {
			return config.RendererConfig{}, err
		}
		return cfg.Renderer, nil
	}
}

func newLogger(cfg config.LogConfig, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.NewConfigError("LOG_LEVEL", "invalid log level", err)
	}
	if cfg.Format != "text" && cfg.Format != "json" {
		return nil, errors.NewConfigError("LOG_FORMAT",
			fmt.Sprintf("unsupported log format %q (supported: text, json)", cfg.Format), nil)
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Format,
		Output: out,
	}), nil
}
