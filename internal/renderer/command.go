package renderer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/docserve/internal/errors"
	"github.com/conneroisu/docserve/internal/logging"
)

// FilesPlaceholder expands to the selected files, one argument each.
const FilesPlaceholder = "{files}"

// maxOutput bounds the builder output kept in a build error.
const maxOutput = 4096

// CommandRenderer runs an external documentation builder.
type CommandRenderer struct {
	opts   Options
	logger logging.Logger
}

// NewCommandRenderer validates the command template in opts and returns a
// renderer that runs it.
func NewCommandRenderer(opts Options, logger logging.Logger) (*CommandRenderer, error) {
	if err := validateCommand(opts.Config.Command); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &CommandRenderer{
		opts:   opts,
		logger: logger.WithComponent("renderer"),
	}, nil
}

// CommandFactory returns a Factory producing command renderers.
func CommandFactory(logger logging.Logger) Factory {
	return func(opts Options) (Renderer, error) {
		return NewCommandRenderer(opts, logger)
	}
}

// Options implements Renderer.
func (r *CommandRenderer) Options() Options {
	return r.opts
}

// Build runs the builder with context-based timeout. The combined output is
// attached to the returned error when the builder fails.
func (r *CommandRenderer) Build(ctx context.Context, files []string) error {
	if r.opts.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Config.Timeout)
		defer cancel()
	}

	argv := r.Args(files)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.opts.SourceDir

	start := time.Now()
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return errors.NewBuildError("BUILD_TIMEOUT", "renderer timed out", ctx.Err()).
				WithContext("command", argv[0])
		}
		return errors.NewBuildError("BUILD_FAILED", "renderer failed", err).
			WithContext("command", argv[0]).
			WithContext("output", tail(output))
	}

	r.logger.Debug(ctx, "Renderer finished",
		"command", argv[0],
		"files", len(files),
		"duration", time.Since(start),
	)
	return nil
}

// Args expands the command template for files. When the template has no
// files placeholder the files are appended.
func (r *CommandRenderer) Args(files []string) []string {
	replacer := strings.NewReplacer(
		"{builder}", r.opts.Builder,
		"{source}", r.opts.SourceDir,
		"{output}", r.opts.OutputDir,
		"{doctree}", r.opts.DoctreeDir,
		"{confdir}", r.opts.ConfigDir,
		"{parallel}", strconv.Itoa(r.opts.Parallel),
	)

	argv := make([]string, 0, len(r.opts.Config.Command)+len(files))
	expanded := false
	for _, arg := range r.opts.Config.Command {
		if arg == FilesPlaceholder {
			argv = append(argv, files...)
			expanded = true
			continue
		}
		argv = append(argv, replacer.Replace(arg))
	}
	if !expanded {
		argv = append(argv, files...)
	}
	return argv
}

// validateCommand rejects templates that cannot be executed safely.
func validateCommand(command []string) error {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return errors.NewConfigError("EMPTY_COMMAND", "renderer command is empty", nil)
	}
	if command[0] == FilesPlaceholder {
		return errors.NewConfigError("INVALID_COMMAND", "renderer command must start with a program", nil)
	}
	for _, arg := range command {
		if strings.ContainsRune(arg, 0) {
			return errors.NewConfigError("INVALID_COMMAND",
				fmt.Sprintf("invalid argument %q", arg), nil)
		}
	}
	return nil
}

func tail(output []byte) string {
	output = bytes.TrimSpace(output)
	if len(output) > maxOutput {
		output = output[len(output)-maxOutput:]
	}
	return string(output)
}
