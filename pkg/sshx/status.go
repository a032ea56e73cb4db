package sshx

import (
	"fmt"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// ExitStatus describes how a remote process terminated. The remote side
// reports either a normal exit or a fatal signal. Both notifications are
// accepted and accumulated; in practice exactly one of them arrives.
type ExitStatus struct {
	exited   bool
	code     int
	signaled bool
	signal   syscall.Signal
	name     string
}

// Exit records a normal exit with the given code.
func (s *ExitStatus) Exit(code int) {
	s.exited = true
	s.code += code
}

// Kill records termination by the given signal.
func (s *ExitStatus) Kill(signal syscall.Signal) {
	s.signaled = true
	s.signal += signal
}

// KillNamed records termination by a signal as named on the wire, for
// example "KILL" or "TERM". Unknown names are recorded as signal 0.
func (s *ExitStatus) KillNamed(name string) {
	s.name = name
	s.Kill(SignalNumber(name))
}

// Exited reports whether a normal exit was recorded.
func (s *ExitStatus) Exited() bool {
	return s.exited
}

// Signaled reports whether termination by a signal was recorded.
func (s *ExitStatus) Signaled() bool {
	return s.signaled
}

// Signal returns the signal that terminated the process.
func (s *ExitStatus) Signal() syscall.Signal {
	return s.signal
}

// Code folds the outcome into a single integer: the exit code plus the
// signal number shifted into the second byte.
func (s *ExitStatus) Code() int {
	return s.code + int(s.signal)<<8
}

func (s *ExitStatus) String() string {
	switch {
	case s.exited && s.signaled:
		return fmt.Sprintf("exited with %d and killed by signal %d", s.code, s.signal)
	case s.signaled && s.name != "":
		return fmt.Sprintf("killed by SIG%s", s.name)
	case s.signaled:
		return fmt.Sprintf("killed by signal %d", s.signal)
	case s.exited:
		return fmt.Sprintf("exited with %d", s.code)
	}
	return "unknown"
}

// SignalNumber maps an SSH signal name, which omits the "SIG" prefix,
// to its number on this platform.
func SignalNumber(name string) syscall.Signal {
	name = strings.ToUpper(name)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	return unix.SignalNum(name)
}
