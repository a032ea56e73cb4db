package ops

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// Program is used to configure the name of the configuration file.
	Program = "ringctl"
	// DefaultConfigPath is the default path to the configuration file.
	DefaultConfigPath = "~/.config/" + Program + "/" + Program + ".yml"
)

// Options contains the configuration for an operation.
type Options struct {
	ConfigPath string
	// ConfigRequired fails the operation if the configuration
	// file does not exist.
	ConfigRequired bool
	Logger         *zerolog.Logger
	Stdout         io.Writer
	Stderr         io.Writer

	Country    string
	Nodes      []string
	User       string
	Env        map[string]string
	ScriptPath string
	Stream     bool
	Fallback   bool
	Parallel   int
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
		ConfigPath: DefaultConfigPath,
		Logger:     &logger,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
}

// WithConfigPath overrides the default configuration path.
// A configuration file that is passed explicitly must exist.
func WithConfigPath(configPath string) Option {
	return func(options *Options) error {
		options.ConfigPath = configPath
		options.ConfigRequired = true
		return nil
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(options *Options) error {
		if logger != nil {
			options.Logger = logger
		}
		return nil
	}
}

// WithOutput redirects the output of the operation.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(options *Options) error {
		options.Stdout = stdout
		options.Stderr = stderr
		return nil
	}
}

// WithCountry limits the nodes to a country.
func WithCountry(country string) Option {
	return func(options *Options) error {
		options.Country = strings.ToUpper(country)
		return nil
	}
}

// WithNodes selects nodes explicitly instead of
// querying the directory service.
func WithNodes(nodes ...string) Option {
	return func(options *Options) error {
		options.Nodes = append(options.Nodes, nodes...)
		return nil
	}
}

// WithUser sets the default login.
func WithUser(user string) Option {
	return func(options *Options) error {
		options.User = user
		return nil
	}
}

// WithEnv injects environment variables given as KEY=VALUE.
func WithEnv(assignments ...string) Option {
	return func(options *Options) error {
		for _, assignment := range assignments {
			key, value, ok := strings.Cut(assignment, "=")
			if !ok || key == "" {
				return fmt.Errorf("invalid environment variable: %q", assignment)
			}
			if options.Env == nil {
				options.Env = make(map[string]string)
			}
			options.Env[key] = value
		}
		return nil
	}
}

// WithScript uploads and runs a local script.
func WithScript(path string) Option {
	return func(options *Options) error {
		options.ScriptPath = path
		return nil
	}
}

// WithStream prints lines as they arrive.
func WithStream(stream bool) Option {
	return func(options *Options) error {
		options.Stream = stream
		return nil
	}
}

// WithFallback retries unreachable hosts through the ssh binary.
func WithFallback(fallback bool) Option {
	return func(options *Options) error {
		options.Fallback = fallback
		return nil
	}
}

// WithParallel limits the number of concurrent sessions.
func WithParallel(parallel int) Option {
	return func(options *Options) error {
		if parallel < 0 {
			return fmt.Errorf("parallel must not be negative: %d", parallel)
		}
		options.Parallel = parallel
		return nil
	}
}
