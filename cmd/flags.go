package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// serveBindings maps serve flags to configuration keys.
var serveBindings = map[string]string{
	"port":       "server.port",
	"host":       "server.host",
	"clean":      "server.clean",
	"builder":    "renderer.builder",
	"parallel":   "renderer.parallel",
	"output-dir": "renderer.output_dir",
	"source-dir": "renderer.source_dir",
	"watch":      "renderer.watch",
	"timeout":    "renderer.timeout",
	"throttle":   "watch.throttle",
	"ignore":     "watch.ignore",
	"heartbeat":  "reload.heartbeat",
}

func addServeFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	flags.IntP("port", "p", 8000, "Port to serve on")
	flags.String("host", "0.0.0.0", "Host to bind to")
	flags.Bool("clean", false, "Delete the build output before the first build")
	flags.StringP("builder", "b", "html", "Renderer builder name")
	flags.IntP("parallel", "j", 1, "Renderer parallelism")
	flags.String("output-dir", "", "Build output directory (default <project>/_build/html)")
	flags.String("source-dir", "", "Source directory (default <project>)")
	flags.StringSlice("watch", nil, "Additional directories to watch")
	flags.Duration("timeout", 0, "Abort a single build after this long (0 disables)")
	flags.Duration("throttle", time.Second, "Interval between change batches")
	flags.StringSlice("ignore", nil, "Glob patterns the watcher ignores")
	flags.Duration("heartbeat", 3*time.Second, "Reload stream heartbeat interval")

	AddFlagValidation(cmd, "port", ValidatePort)
	AddFlagValidation(cmd, "parallel", validatePositive)

	bindFlags(v, flags, serveBindings)
}

// bindFlags binds each flag to its configuration key. Only flags the user
// set override lower-precedence sources.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, bindings map[string]string) {
	for name, key := range bindings {
		if flag := flags.Lookup(name); flag != nil {
			_ = v.BindPFlag(key, flag)
		}
	}
}

// AddFlagValidation wraps a flag so every value is checked before it is set.
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}
	flag.Value = &validatingValue{Value: flag.Value, validator: validator}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.Value.Set(val)
}

// ValidatePort accepts ports 1 through 65535.
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validatePositive(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid number: %s", s)
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1, got %d", n)
	}
	return nil
}
