// Package config provides configuration management for docserve using Viper
// for flexible loading from a project file, environment variables and
// command-line flags.
//
// The renderer section is the fixed, enumerated set of keys the renderer is
// constructed from. Unknown keys are ignored. The file is re-read on every
// renderer restart, so edits to it take effect without relaunching.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigName is the base name of the project configuration file.
const DefaultConfigName = "docserve"

// HotReloadPath is the final path segment of the SSE reload endpoint.
const HotReloadPath = "__hot_reload__"

type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Renderer RendererConfig `mapstructure:"renderer" yaml:"renderer"`
	Watch    WatchConfig    `mapstructure:"watch" yaml:"watch"`
	Reload   ReloadConfig   `mapstructure:"reload" yaml:"reload"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`

	// ProjectPath is the positional CLI argument, made absolute.
	ProjectPath string `mapstructure:"project" yaml:"project"`
	// File is the configuration file viper read, if any.
	File string `mapstructure:"-" yaml:"-"`
}

type ServerConfig struct {
	Host  string `mapstructure:"host" yaml:"host"`
	Port  int    `mapstructure:"port" yaml:"port"`
	Clean bool   `mapstructure:"clean" yaml:"clean"`
}

// RendererConfig is the typed renderer configuration.
type RendererConfig struct {
	SourceDir  string `mapstructure:"source_dir" yaml:"source_dir"`
	ConfigDir  string `mapstructure:"config_dir" yaml:"config_dir"`
	OutputDir  string `mapstructure:"output_dir" yaml:"output_dir"`
	DoctreeDir string `mapstructure:"doctree_dir" yaml:"doctree_dir"`
	Builder    string `mapstructure:"builder" yaml:"builder"`
	Parallel   int    `mapstructure:"parallel" yaml:"parallel"`

	// Command is the argv template run for every build. Placeholders:
	// {builder} {source} {output} {doctree} {confdir} {parallel} {files}.
	Command []string `mapstructure:"command" yaml:"command"`
	// ConfigFile is the renderer's own configuration, relative to ConfigDir.
	ConfigFile     string        `mapstructure:"config_file" yaml:"config_file"`
	SourceSuffixes []string      `mapstructure:"source_suffixes" yaml:"source_suffixes"`
	Watch          []string      `mapstructure:"watch" yaml:"watch"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type WatchConfig struct {
	Throttle            time.Duration `mapstructure:"throttle" yaml:"throttle"`
	Ignore              []string      `mapstructure:"ignore" yaml:"ignore"`
	ResubscribeAttempts int           `mapstructure:"resubscribe_attempts" yaml:"resubscribe_attempts"`
	ResubscribeBackoff  time.Duration `mapstructure:"resubscribe_backoff" yaml:"resubscribe_backoff"`
}

type ReloadConfig struct {
	Heartbeat       time.Duration `mapstructure:"heartbeat" yaml:"heartbeat"`
	ScrollSelectors []string      `mapstructure:"scroll_selectors" yaml:"scroll_selectors"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultCommand renders with sphinx-build.
var DefaultCommand = []string{
	"sphinx-build",
	"-b", "{builder}",
	"-d", "{doctree}",
	"-c", "{confdir}",
	"-j", "{parallel}",
	"{source}", "{output}",
}

// DefaultIgnore lists patterns dropped by the watcher in addition to the
// output and doctree directories.
var DefaultIgnore = []string{".git", "__pycache__", "*.swp", "*.swx", ".DS_Store", "4913"}

// Keys lists every configuration key. Environment overrides only apply to
// keys viper knows about, so BindEnv registers all of them.
var Keys = []string{
	"server.host", "server.port", "server.clean",
	"renderer.source_dir", "renderer.config_dir", "renderer.output_dir", "renderer.doctree_dir",
	"renderer.builder", "renderer.parallel", "renderer.command", "renderer.config_file",
	"renderer.source_suffixes", "renderer.watch", "renderer.timeout",
	"watch.throttle", "watch.ignore", "watch.resubscribe_attempts", "watch.resubscribe_backoff",
	"reload.heartbeat", "reload.scroll_selectors",
	"log.level", "log.format",
}

// BindEnv makes every key overridable from the environment.
func BindEnv(v *viper.Viper) {
	for _, key := range Keys {
		_ = v.BindEnv(key)
	}
}

// Load builds the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// Reload re-reads the configuration file, if one was found at startup, and
// loads the result.
func Reload() (*Config, error) {
	if viper.ConfigFileUsed() != "" {
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("re-reading %s: %w", viper.ConfigFileUsed(), err)
		}
	}
	return Load()
}

// LoadFrom unmarshals v, fills defaults and validates the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	// The watcher reports absolute paths, so a relative --config must be
	// resolved before it can be matched against them.
	if config.File = v.ConfigFileUsed(); config.File != "" {
		if abs, err := filepath.Abs(config.File); err == nil {
			config.File = abs
		}
	}

	// Slices set through flags or env arrive as strings.
	if v.IsSet("renderer.command") && len(config.Renderer.Command) == 0 {
		config.Renderer.Command = v.GetStringSlice("renderer.command")
	}
	if v.IsSet("renderer.watch") && len(config.Renderer.Watch) == 0 {
		config.Renderer.Watch = v.GetStringSlice("renderer.watch")
	}
	if v.IsSet("watch.ignore") && len(config.Watch.Ignore) == 0 {
		config.Watch.Ignore = v.GetStringSlice("watch.ignore")
	}

	if err := applyDefaults(&config); err != nil {
		return nil, err
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func applyDefaults(config *Config) error {
	if config.ProjectPath == "" {
		config.ProjectPath = "."
	}
	project, err := filepath.Abs(config.ProjectPath)
	if err != nil {
		return fmt.Errorf("resolving project path: %w", err)
	}
	config.ProjectPath = project

	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8000
	}

	r := &config.Renderer
	r.SourceDir = resolve(project, r.SourceDir, ".")
	r.ConfigDir = resolve(project, r.ConfigDir, ".")
	r.OutputDir = resolve(project, r.OutputDir, filepath.Join("_build", "html"))
	r.DoctreeDir = resolve(project, r.DoctreeDir, filepath.Join("_build", "doctrees"))
	if r.Builder == "" {
		r.Builder = "html"
	}
	if r.Parallel == 0 {
		r.Parallel = 1
	}
	if len(r.Command) == 0 {
		r.Command = append([]string(nil), DefaultCommand...)
	}
	if r.ConfigFile == "" {
		r.ConfigFile = "conf.py"
	}
	if len(r.SourceSuffixes) == 0 {
		r.SourceSuffixes = []string{".rst"}
	}

	if config.Watch.Throttle == 0 {
		config.Watch.Throttle = time.Second
	}
	if len(config.Watch.Ignore) == 0 {
		config.Watch.Ignore = append([]string(nil), DefaultIgnore...)
	}
	if config.Watch.ResubscribeAttempts == 0 {
		config.Watch.ResubscribeAttempts = 5
	}
	if config.Watch.ResubscribeBackoff == 0 {
		config.Watch.ResubscribeBackoff = 200 * time.Millisecond
	}

	if config.Reload.Heartbeat == 0 {
		config.Reload.Heartbeat = 3 * time.Second
	}
	if len(config.Reload.ScrollSelectors) == 0 {
		config.Reload.ScrollSelectors = []string{".documentwrapper"}
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	return nil
}

// RendererConfigPath returns the absolute path of the renderer's own
// configuration file.
func (c *Config) RendererConfigPath() string {
	return resolve(c.Renderer.ConfigDir, c.Renderer.ConfigFile, "")
}

// Address returns the listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func resolve(base, path, fallback string) string {
	if path == "" {
		path = fallback
	}
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}
