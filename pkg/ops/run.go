package ops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nicklasfrahm/ringctl/pkg/engine"
	"github.com/nicklasfrahm/ringctl/pkg/rexec"
	"github.com/nicklasfrahm/ringctl/pkg/ring"
)

// ErrNodesFailed is returned if at least one node failed to run the
// command or exited with a non-zero status.
var ErrNodesFailed = errors.New("command failed on some nodes")

// Run executes a command on the selected nodes. If no nodes are given,
// all active nodes are queried from the directory service, optionally
// limited to a country.
func Run(ctx context.Context, command string, options ...Option) (*engine.Summary, error) {
	// Fetch the options for this operation.
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(command) == "" && opts.ScriptPath == "" {
		return nil, errors.New("no command specified")
	}

	config, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	var script []byte
	if opts.ScriptPath != "" {
		if script, err = os.ReadFile(opts.ScriptPath); err != nil {
			return nil, err
		}
	}

	eng, err := engine.New(
		engine.WithLogger(opts.Logger),
		engine.WithOutput(opts.Stdout, opts.Stderr),
		engine.WithStream(opts.Stream),
	)
	if err != nil {
		return nil, err
	}

	if err := eng.SetSpec(config); err != nil {
		return nil, err
	}

	names := opts.Nodes
	if len(names) == 0 {
		directory, err := newDirectory(config, opts)
		if err != nil {
			return nil, err
		}

		if names, err = directory.ActiveNodes(ctx, opts.Country); err != nil {
			return nil, err
		}
		opts.Logger.Debug().Int("nodes", len(names)).Str("country", opts.Country).Msg("Fetched active nodes")
	}

	if err := eng.Connect(); err != nil {
		return nil, err
	}
	defer eng.Disconnect()

	nodes := engine.NewNodes(names)
	if err := eng.Run(ctx, nodes, rexec.Request{
		Command: command,
		User:    opts.User,
		Env:     opts.Env,
		Script:  script,
	}); err != nil {
		return nil, err
	}

	summary := eng.Summarize(nodes)
	if summary.Failed > 0 || summary.NonZero > 0 {
		return &summary, fmt.Errorf("%w: %d of %d", ErrNodesFailed, summary.Failed+summary.NonZero, summary.Total)
	}

	return &summary, nil
}

// loadConfig loads the configuration and applies the overrides of
// the operation.
func loadConfig(opts *Options) (*engine.Config, error) {
	config, err := engine.LoadConfig(opts.ConfigPath, !opts.ConfigRequired)
	if err != nil {
		return nil, err
	}

	if opts.Fallback {
		config.Fallback = true
	}
	if opts.Parallel > 0 {
		config.Parallel = opts.Parallel
	}

	return config, nil
}

func newDirectory(config *engine.Config, opts *Options) (*ring.Client, error) {
	return ring.NewClient(
		ring.WithLogger(opts.Logger),
		ring.WithAPI(config.API),
		ring.WithDomain(config.Domain),
		ring.WithInsecureSkipVerify(config.InsecureSkipVerify),
	)
}
