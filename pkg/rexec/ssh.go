package rexec

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nicklasfrahm/ringctl/pkg/linebuf"
	"github.com/nicklasfrahm/ringctl/pkg/sshx"
)

// ConfigFunc resolves the connection configuration for a request.
type ConfigFunc func(req *Request) (*sshx.Config, error)

// SSH is a runner that executes commands on a remote host via a
// native SSH session. Every request uses its own connection.
type SSH struct {
	Logger    *zerolog.Logger
	Proxy     *sshx.Client
	Timeout   time.Duration
	ScriptDir string

	configFor ConfigFunc
}

// NewSSH returns a new SSH-based runner. If configFor is nil, the
// request's host and user are used with default settings.
func NewSSH(configFor ConfigFunc, options ...Option) (*SSH, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	if configFor == nil {
		configFor = func(req *Request) (*sshx.Config, error) {
			return &sshx.Config{Host: req.Host, User: req.User}, nil
		}
	}

	return &SSH{
		Logger:    opts.Logger,
		Proxy:     opts.SSHProxy,
		Timeout:   opts.Timeout,
		ScriptDir: opts.ScriptDir,
		configFor: configFor,
	}, nil
}

// Run connects to the host, executes the command and blocks until the
// remote process terminates. Cancelling ctx closes the connection.
func (runner *SSH) Run(ctx context.Context, req *Request) (*Result, error) {
	config, err := runner.configFor(req)
	if err != nil {
		return nil, &sshx.ConnectionError{Host: req.Host, Err: err}
	}

	logger := runner.Logger.With().Str("host", req.Host).Logger()

	client, err := sshx.NewClient(config,
		sshx.WithLogger(&logger),
		sshx.WithProxy(runner.Proxy),
		sshx.WithTimeout(runner.Timeout),
	)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	stop := context.AfterFunc(ctx, func() {
		client.Close()
	})
	defer stop()

	cmd := req.CommandString()
	if req.Script != nil {
		if cmd, err = runner.uploadScript(client, req); err != nil {
			return nil, err
		}
	}

	collector := newCollector(req)
	stdout := linebuf.New(collector.emitter(Stdout))
	stderr := linebuf.New(collector.emitter(Stderr))

	logger.Debug().Str("command", cmd).Msg("Running command")
	status, err := client.Exec(cmd, stdout, stderr)
	// A cancelled session never completed, whatever the channel reported.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	for stream, r := range map[Stream]*linebuf.Reassembler{Stdout: stdout, Stderr: stderr} {
		if pending := r.Pending(); pending != "" {
			logger.Warn().Str("stream", stream.String()).Int("bytes", len(pending)).Msg("Discarding unterminated output")
		}
	}

	return &Result{
		Host:       req.Host,
		ExitStatus: status.Code(),
		Status:     status,
		Time:       time.Now(),
		Output:     collector.output,
	}, nil
}

// uploadScript copies the request's script to the host and returns the
// command that runs it and removes it afterwards.
func (runner *SSH) uploadScript(client *sshx.Client, req *Request) (string, error) {
	remotePath := path.Join(runner.ScriptDir, uuid.NewString()+".sh")
	if err := client.Upload(remotePath, bytes.NewReader(req.Script), 0o700); err != nil {
		return "", err
	}

	script := sshx.Cmd{
		Cmd: fmt.Sprintf("%s %s; status=$?; rm -f %s; exit $status",
			sshx.Quote(remotePath), req.Command, sshx.Quote(remotePath)),
		Env:   req.Env,
		Shell: true,
	}

	return script.String(), nil
}
