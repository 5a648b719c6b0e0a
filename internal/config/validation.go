package config

import (
	"fmt"
	"strings"
)

// validateConfig validates configuration values for correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateRendererConfig(&config.Renderer); err != nil {
		return fmt.Errorf("renderer config: %w", err)
	}

	if config.Watch.Throttle < 0 || config.Watch.ResubscribeBackoff < 0 {
		return fmt.Errorf("watch config: durations must not be negative")
	}
	if config.Watch.ResubscribeAttempts < 0 {
		return fmt.Errorf("watch config: resubscribe_attempts must not be negative")
	}
	if config.Reload.Heartbeat < 0 {
		return fmt.Errorf("reload config: heartbeat must not be negative")
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if err := rejectDangerous("host", config.Host); err != nil {
		return err
	}

	return nil
}

// validateRendererConfig validates the renderer section
func validateRendererConfig(config *RendererConfig) error {
	if len(config.Command) == 0 || strings.TrimSpace(config.Command[0]) == "" {
		return fmt.Errorf("command cannot be empty")
	}

	if config.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", config.Parallel)
	}

	if err := rejectDangerous("builder", config.Builder); err != nil {
		return err
	}

	if config.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}

	for _, suffix := range config.SourceSuffixes {
		if !strings.HasPrefix(suffix, ".") {
			return fmt.Errorf("source suffix %q must start with a dot", suffix)
		}
	}

	return nil
}

// rejectDangerous refuses shell metacharacters in values that end up on a
// command line or in an address.
func rejectDangerous(field, value string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(value, char) {
			return fmt.Errorf("%s contains dangerous character: %s", field, char)
		}
	}
	return nil
}
