// Package rexec provides APIs to execute commands on remote machines.
package rexec

import (
	"context"
	"sync"
	"time"

	"github.com/nicklasfrahm/ringctl/pkg/sshx"
)

// Stream identifies the output channel a line was received on.
type Stream int

const (
	// Stdout is the standard output of the remote process.
	Stdout Stream = iota
	// Stderr is the standard error of the remote process.
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Event is a single complete line of output, including its terminator.
type Event struct {
	Line   string
	Stream Stream
}

// Request describes one command to run on one host. A request must not
// be modified once it was passed to a Runner.
type Request struct {
	Host    string
	Command string
	// User is the default login. Per-host configuration takes precedence.
	User string
	// Env is injected into the environment of the remote command.
	Env map[string]string
	// Script, if set, is uploaded to the host and executed with
	// Command appended as its arguments.
	Script []byte
	// OnLine receives every complete line as it arrives. If it is nil,
	// lines are collected in Result.Output instead.
	OnLine func(Event)
}

// CommandString compiles the command including its environment.
func (r *Request) CommandString() string {
	cmd := sshx.Cmd{Cmd: r.Command, Env: r.Env}
	return cmd.String()
}

// Result describes the termination of a remote command.
type Result struct {
	Host string
	// ExitStatus is the exit code plus the terminating signal number
	// shifted left by eight bits.
	ExitStatus int
	// Status is the detailed outcome. It is nil if the runner could
	// not observe how the process terminated.
	Status *sshx.ExitStatus
	// Time is the completion timestamp.
	Time time.Time
	// Output holds the received lines if the request had no OnLine
	// handler.
	Output []Event
}

// Runner is the interface for running commands. This
// can be for example via an SSH session or a local
// subprocess that wraps an SSH binary.
type Runner interface {
	// Run executes the request and blocks until the remote
	// command terminated.
	Run(ctx context.Context, req *Request) (*Result, error)
}

// collector delivers lines of both streams of one request. Calls to
// the handler are serialized.
type collector struct {
	sync.Mutex
	onLine func(Event)
	output []Event
}

func newCollector(req *Request) *collector {
	return &collector{onLine: req.OnLine}
}

func (c *collector) emitter(stream Stream) func(line string) {
	return func(line string) {
		c.Lock()
		defer c.Unlock()

		event := Event{Line: line, Stream: stream}
		if c.onLine != nil {
			c.onLine(event)
			return
		}
		c.output = append(c.output, event)
	}
}
