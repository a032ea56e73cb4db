package sshx_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicklasfrahm/ringctl/pkg/sshx"
	"github.com/nicklasfrahm/ringctl/pkg/sshx/sshtest"
)

func connect(t *testing.T, server *sshtest.Server, user string) *sshx.Client {
	t.Helper()

	client, err := sshx.NewClient(&sshx.Config{
		Host:        server.Host,
		Port:        server.Port,
		User:        user,
		Key:         server.ClientKey,
		Fingerprint: server.Fingerprint,
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func TestExecStreamsAndExitStatus(t *testing.T) {
	server := sshtest.NewServer(t, func(s *sshtest.Session) {
		io.WriteString(s.Stdout, "out "+s.Command+"\n")
		io.WriteString(s.Stderr, "err\n")
		s.Exit(2)
	})
	client := connect(t, server, "ring")

	var stdout, stderr bytes.Buffer
	status, err := client.Exec("uptime", &stdout, &stderr)
	require.NoError(t, err)

	assert.Equal(t, "out uptime\n", stdout.String())
	assert.Equal(t, "err\n", stderr.String())
	assert.True(t, status.Exited())
	assert.False(t, status.Signaled())
	assert.Equal(t, 2, status.Code())
	assert.Equal(t, []string{"ring"}, server.Users())
}

func TestExecSignal(t *testing.T) {
	server := sshtest.NewServer(t, func(s *sshtest.Session) {
		s.Kill("KILL")
	})
	client := connect(t, server, "ring")

	status, err := client.Exec("sleep 100", nil, nil)
	require.NoError(t, err)

	assert.True(t, status.Signaled())
	assert.Equal(t, 9<<8, status.Code())
	assert.Equal(t, "killed by SIGKILL", status.String())
}

func TestExecBothNotifications(t *testing.T) {
	server := sshtest.NewServer(t, func(s *sshtest.Session) {
		s.Exit(2)
		s.Kill("KILL")
	})
	client := connect(t, server, "ring")

	status, err := client.Exec("true", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 2+9<<8, status.Code())
}

func TestExecWithoutExitStatus(t *testing.T) {
	// The channel is closed cleanly and the connection stays up.
	server := sshtest.NewServer(t, func(s *sshtest.Session) {
		io.WriteString(s.Stdout, "bye\n")
	})
	client := connect(t, server, "ring")

	status, err := client.Exec("true", io.Discard, io.Discard)
	require.NoError(t, err)

	assert.False(t, status.Exited())
	assert.False(t, status.Signaled())
	assert.Equal(t, 0, status.Code())
}

func TestExecConnectionLost(t *testing.T) {
	server := sshtest.NewServer(t, func(s *sshtest.Session) {
		io.WriteString(s.Stdout, "partial\n")
		s.Disconnect()
	})
	client := connect(t, server, "ring")

	status, err := client.Exec("sleep 100", io.Discard, io.Discard)
	assert.Nil(t, status)

	var connErr *sshx.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, server.Host, connErr.Host)
	assert.ErrorIs(t, err, sshx.ErrConnectionLost)
}

func TestExecAfterClose(t *testing.T) {
	server := sshtest.NewServer(t, func(s *sshtest.Session) {
		s.Exit(0)
	})
	client := connect(t, server, "ring")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.Close()
		}()
	}
	wg.Wait()

	_, err := client.Exec("true", nil, nil)
	assert.Error(t, err)
}

func TestExecLargeOutput(t *testing.T) {
	payload := strings.Repeat("0123456789abcdef\n", 64*1024)
	server := sshtest.NewServer(t, func(s *sshtest.Session) {
		io.WriteString(s.Stdout, payload)
		s.Exit(0)
	})
	client := connect(t, server, "ring")

	var stdout bytes.Buffer
	_, err := client.Exec("cat big", &stdout, nil)
	require.NoError(t, err)

	assert.Equal(t, len(payload), stdout.Len())
}

func TestExecConcurrentSessions(t *testing.T) {
	server := sshtest.NewServer(t, func(s *sshtest.Session) {
		for i := 0; i < 50; i++ {
			fmt.Fprintf(s.Stdout, "%s out %d\n", s.Command, i)
			fmt.Fprintf(s.Stderr, "%s err %d\n", s.Command, i)
		}
		s.Exit(0)
	})
	client := connect(t, server, "ring")

	var wg sync.WaitGroup
	results := make([][2]string, 2)
	for i, cmd := range []string{"alpha", "beta"} {
		wg.Add(1)
		go func(i int, cmd string) {
			defer wg.Done()

			var stdout, stderr bytes.Buffer
			_, err := client.Exec(cmd, &stdout, &stderr)
			assert.NoError(t, err)
			results[i] = [2]string{stdout.String(), stderr.String()}
		}(i, cmd)
	}
	wg.Wait()

	for i, cmd := range []string{"alpha", "beta"} {
		for _, line := range strings.Split(strings.TrimSpace(results[i][0]), "\n") {
			assert.True(t, strings.HasPrefix(line, cmd+" out "), line)
		}
		for _, line := range strings.Split(strings.TrimSpace(results[i][1]), "\n") {
			assert.True(t, strings.HasPrefix(line, cmd+" err "), line)
		}
	}
}

func TestNewClientRejectsUnknownKey(t *testing.T) {
	server := sshtest.NewServer(t, func(s *sshtest.Session) {})
	other := sshtest.NewServer(t, func(s *sshtest.Session) {})

	_, err := sshx.NewClient(&sshx.Config{
		Host:        server.Host,
		Port:        server.Port,
		User:        "ring",
		Key:         other.ClientKey,
		Fingerprint: server.Fingerprint,
	})
	require.Error(t, err)

	var connErr *sshx.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, server.Host, connErr.Host)
}

func TestNewClientFingerprintMismatch(t *testing.T) {
	server := sshtest.NewServer(t, func(s *sshtest.Session) {})
	other := sshtest.NewServer(t, func(s *sshtest.Session) {})

	_, err := sshx.NewClient(&sshx.Config{
		Host:        server.Host,
		Port:        server.Port,
		User:        "ring",
		Key:         server.ClientKey,
		Fingerprint: other.Fingerprint,
	})

	var connErr *sshx.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Contains(t, err.Error(), "fingerprint mismatch")
}

func TestNewClientMissingKnownHosts(t *testing.T) {
	server := sshtest.NewServer(t, func(s *sshtest.Session) {})

	_, err := sshx.NewClient(&sshx.Config{
		Host:       server.Host,
		Port:       server.Port,
		User:       "ring",
		Key:        server.ClientKey,
		KnownHosts: filepath.Join(t.TempDir(), "known_hosts"),
	})

	var connErr *sshx.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestUpload(t *testing.T) {
	server := sshtest.NewServer(t, func(s *sshtest.Session) {})
	client := connect(t, server, "ring")

	dst := filepath.Join(t.TempDir(), "nested", "script.sh")
	err := client.Upload(dst, strings.NewReader("echo hi\n"), 0o700)
	require.NoError(t, err)

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "echo hi\n", string(content))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}
