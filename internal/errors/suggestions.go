package errors

import (
	"fmt"
	"strings"
)

// ErrorSuggestion is one remedy printed under a failed command.
type ErrorSuggestion struct {
	Title       string
	Description string
	Command     string
	Example     string
}

// ServerStartError explains why the listener on port could not be opened.
func ServerStartError(err error, port int) []ErrorSuggestion {
	msg := err.Error()

	switch {
	case strings.Contains(msg, "address already in use"):
		hints := []ErrorSuggestion{{
			Title:       "Find what holds the port",
			Description: fmt.Sprintf("Something is already listening on %d, often an earlier docserve that is still running", port),
			Command:     fmt.Sprintf("lsof -i :%d", port),
		}}
		if port < 65535 {
			hints = append(hints, ErrorSuggestion{
				Title:   "Serve on another port",
				Command: fmt.Sprintf("docserve --port %d", port+1),
			})
		}
		return hints

	case strings.Contains(msg, "permission denied") && port < 1024:
		return []ErrorSuggestion{{
			Title:       "Pick an unprivileged port",
			Description: fmt.Sprintf("Binding %d needs elevated privileges; the preview server does not", port),
			Command:     "docserve --port 8000",
		}}

	case strings.Contains(msg, "cannot assign requested address"):
		return []ErrorSuggestion{{
			Title:       "Check --host",
			Description: "The host must be an address of this machine",
			Example:     "docserve --host 127.0.0.1",
		}}
	}
	return nil
}

// ConfigurationError lists remedies for a configuration file that could
// not be read or did not validate.
func ConfigurationError(configError string, configPath string) []ErrorSuggestion {
	var hints []ErrorSuggestion
	if configPath != "" {
		hints = append(hints, ErrorSuggestion{
			Title:   "Look at the file docserve read",
			Command: "cat " + configPath,
		})
	}

	switch {
	case strings.Contains(configError, "yaml"), strings.Contains(configError, "unmarshal"):
		hints = append(hints, ErrorSuggestion{
			Title:       "Fix YAML syntax",
			Description: "Nest keys with spaces, never tabs",
			Example:     "renderer: {builder: dirhtml}",
		})
	case strings.Contains(configError, "duration"),
		strings.Contains(configError, "heartbeat"),
		strings.Contains(configError, "timeout"):
		hints = append(hints, ErrorSuggestion{
			Title:       "Write durations with a unit",
			Description: "Durations such as watch.throttle take values like 500ms or 2s",
		})
	case strings.Contains(configError, "port"):
		hints = append(hints, ErrorSuggestion{
			Title:   "Use a port between 1 and 65535",
			Example: "docserve --port 8000",
		})
	case strings.Contains(configError, "command"):
		hints = append(hints, ErrorSuggestion{
			Title:       "Set the renderer command",
			Description: "renderer.command needs at least the program to run",
			Example:     "renderer: {command: [sphinx-build, -b, '{builder}', '{source}', '{output}']}",
		})
	}

	return append(hints, ErrorSuggestion{
		Title:   "Show the merged flags, environment and file settings",
		Command: "docserve config",
	})
}

// FormatSuggestions renders title followed by a numbered remedy list.
func FormatSuggestions(title string, suggestions []ErrorSuggestion) string {
	if len(suggestions) == 0 {
		return title
	}

	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n\nSuggestions:\n")
	for i, s := range suggestions {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, s.Title)
		for _, line := range []struct{ label, text string }{
			{"", s.Description},
			{"$ ", s.Command},
			{"e.g. ", s.Example},
		} {
			if line.text != "" {
				fmt.Fprintf(&b, "     %s%s\n", line.label, line.text)
			}
		}
	}
	return b.String()
}

// EnhancedError carries a cause together with the remedies shown for it.
type EnhancedError struct {
	OriginalError error
	Title         string
	Suggestions   []ErrorSuggestion
}

func (e *EnhancedError) Error() string {
	title := e.Title
	if e.OriginalError != nil {
		title += ": " + e.OriginalError.Error()
	}
	return FormatSuggestions(title, e.Suggestions)
}

func (e *EnhancedError) Unwrap() error {
	return e.OriginalError
}

// NewEnhancedError attaches suggestions to originalError.
func NewEnhancedError(title string, originalError error, suggestions []ErrorSuggestion) *EnhancedError {
	return &EnhancedError{
		OriginalError: originalError,
		Title:         title,
		Suggestions:   suggestions,
	}
}
