package ring

import (
	"net/http"

	"github.com/rs/zerolog"
)

// Options contains the configuration for the directory client.
type Options struct {
	Logger             *zerolog.Logger
	API                string
	Domain             string
	InsecureSkipVerify bool
	HTTPClient         *http.Client
}

// Option applies a configuration option
// for the directory client.
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
// for the directory client.
func GetDefaultOptions() *Options {
	logger := zerolog.Nop()

	return &Options{
		Logger: &logger,
		API:    DefaultAPI,
		Domain: DefaultDomain,
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

// WithAPI overrides the base URL of the directory service.
func WithAPI(api string) Option {
	return func(options *Options) error {
		if api != "" {
			options.API = api
		}
		return nil
	}
}

// WithDomain overrides the domain suffix of ring nodes.
func WithDomain(domain string) Option {
	return func(options *Options) error {
		if domain != "" {
			options.Domain = domain
		}
		return nil
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
func WithInsecureSkipVerify(skip bool) Option {
	return func(options *Options) error {
		options.InsecureSkipVerify = skip
		return nil
	}
}

// WithHTTPClient uses a custom HTTP client. It takes
// precedence over WithInsecureSkipVerify.
func WithHTTPClient(client *http.Client) Option {
	return func(options *Options) error {
		options.HTTPClient = client
		return nil
	}
}
