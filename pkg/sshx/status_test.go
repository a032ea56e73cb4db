package sshx

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitStatusCode(t *testing.T) {
	testCases := []struct {
		name     string
		apply    func(s *ExitStatus)
		code     int
		exited   bool
		signaled bool
	}{
		{
			name:  "no notification",
			apply: func(s *ExitStatus) {},
		},
		{
			name:   "normal exit",
			apply:  func(s *ExitStatus) { s.Exit(2) },
			code:   2,
			exited: true,
		},
		{
			name:     "killed by signal",
			apply:    func(s *ExitStatus) { s.Kill(syscall.SIGKILL) },
			code:     2304,
			signaled: true,
		},
		{
			name:     "killed by named signal",
			apply:    func(s *ExitStatus) { s.KillNamed("TERM") },
			code:     int(syscall.SIGTERM) << 8,
			signaled: true,
		},
		{
			name: "both notifications",
			apply: func(s *ExitStatus) {
				s.Exit(2)
				s.Kill(syscall.SIGKILL)
			},
			code:     2306,
			exited:   true,
			signaled: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			status := new(ExitStatus)
			tc.apply(status)

			assert.Equal(t, tc.code, status.Code())
			assert.Equal(t, tc.exited, status.Exited())
			assert.Equal(t, tc.signaled, status.Signaled())
		})
	}
}

func TestSignalNumber(t *testing.T) {
	assert.Equal(t, syscall.SIGKILL, SignalNumber("KILL"))
	assert.Equal(t, syscall.SIGKILL, SignalNumber("SIGKILL"))
	assert.Equal(t, syscall.SIGHUP, SignalNumber("hup"))
	assert.Equal(t, syscall.Signal(0), SignalNumber("BOGUS"))
}
