package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nicklasfrahm/ringctl/pkg/rexec"
	"github.com/nicklasfrahm/ringctl/pkg/sshx"
)

// DateFormat is used to report when a run finished.
const DateFormat = "2006-01-02 15:04:05 (UTC)"

// Engine is a type that runs commands across the nodes of the ring.
type Engine struct {
	Logger *zerolog.Logger

	// Lock decides how output is printed. While it is locked, the lines
	// of each node are held back and printed as one block once the node
	// finished. While it is unlocked, lines are printed as they arrive.
	Lock *Lock

	Spec *Config

	outputMu sync.Mutex
	stdout   io.Writer
	stderr   io.Writer

	runner          rexec.Runner
	fallbackCommand []string
	proxy           *sshx.Client
}

// Summary counts the outcomes of a run.
type Summary struct {
	Total     int
	Succeeded int
	// Failed counts nodes whose session could not be completed.
	Failed int
	// NonZero counts nodes whose command exited with a non-zero status.
	NonZero int
	Time    time.Time
}

// New creates a new Engine.
func New(options ...Option) (*Engine, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	lock := NewLock()
	if opts.Stream {
		lock.Unlock()
	}

	return &Engine{
		Logger: opts.Logger,
		Lock:   lock,
		stdout: opts.Stdout,
		stderr: opts.Stderr,
		runner: opts.Runner,

		fallbackCommand: opts.FallbackCommand,
	}, nil
}

// SetSpec configures the engine. Note that the config will only be
// applied if the verification succeeds.
func (e *Engine) SetSpec(config *Config) error {
	if err := config.Verify(); err != nil {
		return err
	}

	e.Spec = config

	return nil
}

// Connect prepares the runner. If an SSH proxy is configured, the
// connection to it is established here and shared by all sessions.
func (e *Engine) Connect() error {
	if e.runner != nil {
		return nil
	}
	if e.Spec == nil {
		return errors.New("no spec configured")
	}

	if e.Spec.SSHProxy.Host != "" {
		proxyConfig := e.Spec.SSHProxy
		logger := e.Logger.With().Str("proxy", proxyConfig.Host).Logger()

		proxy, err := sshx.NewClient(&proxyConfig,
			sshx.WithLogger(&logger),
			sshx.WithTimeout(e.Spec.Timeout),
		)
		if err != nil {
			return err
		}
		e.proxy = proxy
	}

	// Both runners resolve hosts, users and ports the same way.
	configFor := func(req *rexec.Request) (*sshx.Config, error) {
		return e.Spec.SSHConfigFor(req.Host, req.User)
	}

	native, err := rexec.NewSSH(configFor,
		rexec.WithLogger(e.Logger),
		rexec.WithSSHProxy(e.proxy),
		rexec.WithTimeout(e.Spec.Timeout),
	)
	if err != nil {
		return err
	}
	e.runner = native

	if e.Spec.Fallback {
		subprocessOpts := []rexec.Option{rexec.WithLogger(e.Logger)}
		if len(e.fallbackCommand) > 0 {
			subprocessOpts = append(subprocessOpts, rexec.WithCommand(e.fallbackCommand[0], e.fallbackCommand[1:]...))
		}

		subprocess, err := rexec.NewSubprocess(configFor, subprocessOpts...)
		if err != nil {
			return err
		}

		if e.runner, err = rexec.NewFallback(native, subprocess, rexec.WithLogger(e.Logger)); err != nil {
			return err
		}
	}

	return nil
}

// Disconnect closes the connection to the SSH proxy.
func (e *Engine) Disconnect() error {
	if e.proxy != nil {
		if err := e.proxy.Close(); err != nil {
			return err
		}
		e.proxy = nil
	}

	return nil
}

// Run executes the request on all nodes concurrently and blocks until
// every session finished. The outcome is stored in the nodes. A failing
// node never affects the other nodes.
func (e *Engine) Run(ctx context.Context, nodes []*Node, req rexec.Request) error {
	if e.runner == nil {
		return errors.New("engine is not connected")
	}
	if len(nodes) == 0 {
		return errors.New("no nodes specified")
	}

	// A single node cannot interleave with anything.
	if len(nodes) == 1 {
		e.Lock.Unlock()
	}

	parallel := len(nodes)
	if e.Spec != nil && e.Spec.Parallel > 0 && e.Spec.Parallel < parallel {
		parallel = e.Spec.Parallel
	}
	slots := make(chan struct{}, parallel)

	wg := sync.WaitGroup{}
	for _, node := range nodes {
		wg.Add(1)

		go func(node *Node) {
			defer wg.Done()

			node.Logger = e.Logger.With().Str("host", node.Name).Logger()

			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				node.Err = ctx.Err()
				return
			}
			defer func() { <-slots }()

			e.runNode(ctx, node, req)
		}(node)
	}

	wg.Wait()

	return nil
}

func (e *Engine) runNode(ctx context.Context, node *Node, template rexec.Request) {
	req := template
	req.Host = node.Name
	req.OnLine = func(event rexec.Event) {
		if e.Lock.Locked() {
			node.output = append(node.output, event)
			return
		}
		e.print(node.Name, event)
	}

	node.Logger.Debug().Msg("Running command")
	node.Result, node.Err = e.runner.Run(ctx, &req)
	e.flush(node)

	switch {
	case node.Err != nil:
		node.Logger.Error().Err(node.Err).Msg("Session failed")
	case node.Result.ExitStatus != 0:
		event := node.Logger.Warn().Int("exit_status", node.Result.ExitStatus)
		if node.Result.Status != nil {
			event = event.Str("status", node.Result.Status.String())
		}
		event.Msg("Command failed")
	default:
		node.Logger.Debug().Msg("Command succeeded")
	}
}

// print writes a single line prefixed with the node name.
func (e *Engine) print(name string, event rexec.Event) {
	e.outputMu.Lock()
	defer e.outputMu.Unlock()

	e.write(name, event)
}

// flush writes the held back lines of a node as one block.
func (e *Engine) flush(node *Node) {
	if len(node.output) == 0 {
		return
	}

	e.outputMu.Lock()
	defer e.outputMu.Unlock()

	for _, event := range node.output {
		e.write(node.Name, event)
	}
	node.output = nil
}

func (e *Engine) write(name string, event rexec.Event) {
	w := e.stdout
	if event.Stream == rexec.Stderr {
		w = e.stderr
	}

	if _, err := fmt.Fprintf(w, "%s: %s", name, event.Line); err != nil {
		e.Logger.Debug().Err(err).Msg("Failed to write output")
	}
}

// Summarize counts the outcomes of a finished run and logs them.
func (e *Engine) Summarize(nodes []*Node) Summary {
	summary := Summary{
		Total: len(nodes),
		Time:  time.Now(),
	}

	for _, node := range nodes {
		switch {
		case node.Err != nil || node.Result == nil:
			summary.Failed++
		case node.Result.ExitStatus != 0:
			summary.NonZero++
		default:
			summary.Succeeded++
		}
	}

	e.Logger.Info().
		Int("total", summary.Total).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("non_zero", summary.NonZero).
		Str("date", summary.Time.UTC().Format(DateFormat)).
		Msg("Run finished")

	return summary
}
