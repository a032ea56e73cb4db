// Package pager routes the output of the running program through an
// external pager.
//
// Attach re-executes the current binary as a child whose standard output
// is connected to a pipe, then replaces the current process with the
// pager reading from that pipe. In the child, Attach returns immediately
// and the program continues as usual.
package pager

import (
	"errors"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// DefaultCommand is used if $PAGER is not set.
	DefaultCommand = "/usr/bin/less -R"
	// ChildEnv marks the paged child process.
	ChildEnv = "RINGCTL_PAGED"
)

// ErrUnsupported is returned on platforms without process replacement.
var ErrUnsupported = errors.New("pager is not supported on this platform")

// Options contains the configuration for the pager.
type Options struct {
	Logger  *zerolog.Logger
	Command string
}

// Option applies a configuration option for the pager.
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

// GetDefaultOptions returns the default options for the pager.
func GetDefaultOptions() *Options {
	logger := zerolog.Nop()

	command := os.Getenv("PAGER")
	if command == "" {
		command = DefaultCommand
	}

	return &Options{
		Logger:  &logger,
		Command: command,
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

// WithCommand overrides the pager command line.
func WithCommand(command string) Option {
	return func(options *Options) error {
		if strings.TrimSpace(command) == "" {
			return errors.New("pager command must not be empty")
		}
		options.Command = command
		return nil
	}
}

// Attach pipes the output of the program into the pager. It returns
// nil in the paged child. In the original process it only returns if
// the pager could not be started, or if stdout is not a terminal, in
// which case paging is skipped.
func Attach(options ...Option) error {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return err
	}

	if runAsPagedChild() {
		return nil
	}

	return attach(opts)
}

// runAsPagedChild reports whether this process is the paged child. The
// marker is removed so processes spawned by the child are not affected.
func runAsPagedChild() bool {
	if os.Getenv(ChildEnv) == "" {
		return false
	}

	os.Unsetenv(ChildEnv)
	return true
}
