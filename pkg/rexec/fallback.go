package rexec

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/nicklasfrahm/ringctl/pkg/sshx"
)

// Fallback runs requests with Primary and retries them with Secondary
// if Primary could not establish a connection. A connection that broke
// while the command was running is not retried, since the command may
// already have had its effect.
type Fallback struct {
	Logger    *zerolog.Logger
	Primary   Runner
	Secondary Runner
}

// NewFallback returns a runner that prefers primary.
func NewFallback(primary, secondary Runner, options ...Option) (*Fallback, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	return &Fallback{
		Logger:    opts.Logger,
		Primary:   primary,
		Secondary: secondary,
	}, nil
}

// Run implements Runner.
func (runner *Fallback) Run(ctx context.Context, req *Request) (*Result, error) {
	result, err := runner.Primary.Run(ctx, req)

	var connErr *sshx.ConnectionError
	if err != nil && errors.As(err, &connErr) && !errors.Is(err, sshx.ErrConnectionLost) && ctx.Err() == nil {
		runner.Logger.Warn().Err(err).Str("host", req.Host).Msg("Falling back to subprocess")
		return runner.Secondary.Run(ctx, req)
	}

	return result, err
}
