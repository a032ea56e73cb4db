package engine

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nicklasfrahm/ringctl/pkg/rexec"
)

// Options contains the configuration for an operation.
type Options struct {
	Logger *zerolog.Logger
	Runner rexec.Runner
	Stdout io.Writer
	Stderr io.Writer
	Stream bool
	// FallbackCommand overrides the SSH binary and its leading
	// arguments used by the fallback runner.
	FallbackCommand []string
}

// Option applies a configuration option
// for the execution of an operation.
type Option func(options *Options) error

// Apply applies the option functions to the current set of options.
func (o *Options) Apply(options ...Option) (*Options, error) {
	for _, option := range options {
		if err := option(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// GetDefaultOptions returns the default options
// for all operations of this library.
func GetDefaultOptions() *Options {
	logger := log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	})

	return &Options{
		Logger: &logger,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// WithLogger allows to use a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(options *Options) error {
		if logger != nil {
			options.Logger = logger
		}
		return nil
	}
}

// WithRunner overrides the runner that is otherwise
// built from the configuration on Connect.
func WithRunner(runner rexec.Runner) Option {
	return func(options *Options) error {
		options.Runner = runner
		return nil
	}
}

// WithOutput redirects the output of the remote commands.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(options *Options) error {
		options.Stdout = stdout
		options.Stderr = stderr
		return nil
	}
}

// WithStream prints lines as they arrive instead of
// grouping them per node.
func WithStream(stream bool) Option {
	return func(options *Options) error {
		options.Stream = stream
		return nil
	}
}

// WithFallbackCommand overrides the SSH binary and its leading
// arguments used if a native session cannot be established.
func WithFallbackCommand(binary string, args ...string) Option {
	return func(options *Options) error {
		if binary == "" {
			return errors.New("fallback binary must not be empty")
		}
		options.FallbackCommand = append([]string{binary}, args...)
		return nil
	}
}
