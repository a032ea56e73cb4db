//go:build unix

package pager

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/term"
)

// execFunc replaces the current process. Tests override it to capture
// the exec call instead of actually replacing the process.
var execFunc = syscall.Exec

// redirectStdin makes fd the standard input of the current process.
var redirectStdin = dupStdin

// isTerminal reports whether the file descriptor is a terminal.
var isTerminal = term.IsTerminal

// startChild starts the paged child process.
var startChild = (*exec.Cmd).Start

func attach(opts *Options) error {
	if !isTerminal(int(os.Stdout.Fd())) {
		opts.Logger.Debug().Msg("Standard output is not a terminal, skipping pager")
		return nil
	}

	// The pager must be known to work before a child starts doing
	// the actual work.
	binary, argv, err := resolvePager(opts.Command)
	if err != nil {
		return err
	}

	self, err := os.Executable()
	if err != nil {
		return err
	}

	r, w, err := os.Pipe()
	if err != nil {
		return err
	}

	child := exec.Command(self, os.Args[1:]...)
	child.Env = append(os.Environ(), ChildEnv+"=1")
	child.Stdin = os.Stdin
	child.Stdout = w
	child.Stderr = os.Stderr
	if isTerminal(int(os.Stderr.Fd())) {
		child.Stderr = w
	}

	if err := startChild(child); err != nil {
		r.Close()
		w.Close()
		return err
	}
	w.Close()

	if err := execPager(r, binary, argv); err != nil {
		r.Close()
		stopChild(child)
		return err
	}

	return nil
}

// resolvePager splits the pager command line and looks up its binary.
func resolvePager(command string) (string, []string, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return "", nil, errors.New("pager command must not be empty")
	}

	binary, err := exec.LookPath(argv[0])
	if err != nil {
		return "", nil, err
	}

	return binary, argv, nil
}

// stopChild kills a child whose output nobody will read.
func stopChild(child *exec.Cmd) {
	if child.Process == nil {
		return
	}

	child.Process.Kill()
	child.Wait()
}

// execPager makes r the standard input and replaces the current process
// with the pager. It never returns on success.
func execPager(r *os.File, binary string, argv []string) error {
	if err := redirectStdin(int(r.Fd())); err != nil {
		return fmt.Errorf("redirect stdin: %w", err)
	}
	r.Close()

	return execFunc(binary, argv, os.Environ())
}
