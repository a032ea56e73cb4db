package rexec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nicklasfrahm/ringctl/pkg/sshx"
)

// SubprocessError is returned if the SSH binary could not be spawned.
type SubprocessError struct {
	Host string
	Err  error
}

func (e *SubprocessError) Error() string {
	return fmt.Sprintf("spawn ssh for %s: %v", e.Host, e.Err)
}

func (e *SubprocessError) Unwrap() error {
	return e.Err
}

// Subprocess is a runner that shells out to an SSH binary. It is a
// fallback for hosts that cannot be reached with a native session.
// Its exit status is best effort: the binary may report success even
// if the remote command failed.
type Subprocess struct {
	Logger *zerolog.Logger
	Binary string
	Args   []string

	configFor ConfigFunc
}

// NewSubprocess returns a new subprocess-based runner. The connection
// configuration is resolved with configFor, exactly like for the native
// runner. If configFor is nil, the request's host and user are used.
func NewSubprocess(configFor ConfigFunc, options ...Option) (*Subprocess, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	if configFor == nil {
		configFor = func(req *Request) (*sshx.Config, error) {
			return &sshx.Config{Host: req.Host, User: req.User}, nil
		}
	}

	return &Subprocess{
		Logger:    opts.Logger,
		Binary:    opts.Binary,
		Args:      opts.Args,
		configFor: configFor,
	}, nil
}

// Run invokes "<binary> <args...> [-C] [-p port] [-i key] <user@host> <command>"
// and reads both output streams line by line until they are exhausted.
func (runner *Subprocess) Run(ctx context.Context, req *Request) (*Result, error) {
	if req.Script != nil {
		return nil, &SubprocessError{Host: req.Host, Err: errors.New("scripts require a native session")}
	}

	config, err := runner.configFor(req)
	if err != nil {
		return nil, &sshx.ConnectionError{Host: req.Host, Err: err}
	}

	args := runner.args(config)
	args = append(args, req.CommandString())

	logger := runner.Logger.With().Str("host", req.Host).Logger()

	cmd := exec.CommandContext(ctx, runner.Binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &SubprocessError{Host: req.Host, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &SubprocessError{Host: req.Host, Err: err}
	}

	logger.Debug().Str("binary", runner.Binary).Strs("args", args).Msg("Spawning subprocess")
	if err := cmd.Start(); err != nil {
		return nil, &SubprocessError{Host: req.Host, Err: err}
	}

	collector := newCollector(req)

	var wg sync.WaitGroup
	wg.Add(2)
	go readLines(&wg, stdout, collector.emitter(Stdout))
	go readLines(&wg, stderr, collector.emitter(Stderr))
	wg.Wait()

	exitStatus := 0
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, &SubprocessError{Host: req.Host, Err: err}
		}
		exitStatus = exitErr.ExitCode()
		if exitStatus < 0 {
			exitStatus = 0
		}
	}

	return &Result{
		Host:       req.Host,
		ExitStatus: exitStatus,
		Time:       time.Now(),
		Output:     collector.output,
	}, nil
}

// args translates the connection configuration into flags of the SSH
// binary, followed by the destination.
func (runner *Subprocess) args(config *sshx.Config) []string {
	args := append([]string(nil), runner.Args...)

	if config.Compression {
		args = append(args, "-C")
	}
	if config.Port != 0 {
		args = append(args, "-p", strconv.Itoa(config.Port))
	}
	if config.KeyFile != "" {
		args = append(args, "-i", sshx.ExpandHome(config.KeyFile))
	}

	target := config.Host
	if config.User != "" {
		target = config.User + "@" + config.Host
	}

	return append(args, target)
}

func readLines(wg *sync.WaitGroup, r io.Reader, emit func(line string)) {
	defer wg.Done()

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			emit(line)
		}
		if err != nil {
			return
		}
	}
}
