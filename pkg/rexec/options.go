package rexec

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/nicklasfrahm/ringctl/pkg/sshx"
)

const (
	// DefaultBinary is the SSH binary used by the subprocess runner.
	DefaultBinary = "ssh"
	// DefaultScriptDir is the remote directory scripts are uploaded to.
	DefaultScriptDir = "/tmp/ringctl"
)

// DefaultArgs are passed to the SSH binary before the flags derived
// from the connection configuration. Compression ("-C") is only
// requested if the configuration enables it.
var DefaultArgs = []string{"-q", "-t"}

// Options contains the configuration for an operation.
type Options struct {
	Logger    *zerolog.Logger
	SSHProxy  *sshx.Client
	Timeout   time.Duration
	Binary    string
	Args      []string
	ScriptDir string
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
	logger := zerolog.Nop()

	return &Options{
		Logger:    &logger,
		SSHProxy:  nil,
		Timeout:   time.Second * 5,
		Binary:    DefaultBinary,
		Args:      DefaultArgs,
		ScriptDir: DefaultScriptDir,
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

// WithSSHProxy configures an established connection
// to an SSH bastion host.
func WithSSHProxy(sshProxy *sshx.Client) Option {
	return func(options *Options) error {
		options.SSHProxy = sshProxy
		return nil
	}
}

// WithTimeout sets the connect timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(options *Options) error {
		options.Timeout = timeout
		return nil
	}
}

// WithCommand overrides the binary and arguments
// used by the subprocess runner.
func WithCommand(binary string, args ...string) Option {
	return func(options *Options) error {
		options.Binary = binary
		options.Args = args
		return nil
	}
}

// WithScriptDir overrides the remote directory
// that scripts are uploaded to.
func WithScriptDir(dir string) Option {
	return func(options *Options) error {
		options.ScriptDir = dir
		return nil
	}
}
