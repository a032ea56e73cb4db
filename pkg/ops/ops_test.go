package ops

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/nicklasfrahm/ringctl/pkg/engine"
	"github.com/nicklasfrahm/ringctl/pkg/sshx"
	"github.com/nicklasfrahm/ringctl/pkg/sshx/sshtest"
)

func newTestDirectory(t *testing.T, routes map[string]string) string {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)

	return server.URL + "/api/1.0"
}

// writeConfig writes a configuration that routes every node to its
// test server.
func writeConfig(t *testing.T, api string, servers map[string]*sshtest.Server) string {
	t.Helper()

	config := engine.Config{
		API:   api,
		Hosts: make(map[string]sshx.Config),
	}
	for name, server := range servers {
		config.Hosts[name] = sshx.Config{
			Host:        server.Host,
			Port:        server.Port,
			User:        "ring",
			Key:         server.ClientKey,
			Fingerprint: server.Fingerprint,
		}
	}

	data, err := yaml.Marshal(&config)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ringctl.yml")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func TestRun(t *testing.T) {
	a := sshtest.NewServer(t, func(s *sshtest.Session) {
		io.WriteString(s.Stdout, "up 3 days\n")
		s.Exit(0)
	})
	b := sshtest.NewServer(t, func(s *sshtest.Session) {
		io.WriteString(s.Stdout, "up 1 day\n")
		io.WriteString(s.Stderr, "load high\n")
		s.Exit(2)
	})

	api := newTestDirectory(t, map[string]string{
		"/api/1.0/nodes/active": `{"results":{"nodes":[{"hostname":"a.ring.nlnog.net"},{"hostname":"b.ring.nlnog.net"}]}}`,
	})
	path := writeConfig(t, api, map[string]*sshtest.Server{"a": a, "b": b})

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	summary, err := Run(context.Background(), "uptime",
		WithConfigPath(path),
		WithOutput(stdout, stderr),
	)
	assert.ErrorIs(t, err, ErrNodesFailed)
	require.NotNil(t, summary)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.NonZero)
	assert.Equal(t, 0, summary.Failed)

	assert.Contains(t, stdout.String(), "a: up 3 days\n")
	assert.Contains(t, stdout.String(), "b: up 1 day\n")
	assert.Equal(t, "b: load high\n", stderr.String())
	assert.Equal(t, []string{"ring"}, a.Users())
}

func TestRunExplicitNodes(t *testing.T) {
	commands := make(chan string, 1)
	a := sshtest.NewServer(t, func(s *sshtest.Session) {
		commands <- s.Command
		io.WriteString(s.Stdout, "ok\n")
		s.Exit(0)
	})

	// The directory must not be queried.
	path := writeConfig(t, "http://127.0.0.1:1/api/1.0", map[string]*sshtest.Server{"a": a})

	stdout := new(bytes.Buffer)
	summary, err := Run(context.Background(), "echo $GREETING",
		WithConfigPath(path),
		WithOutput(stdout, io.Discard),
		WithNodes("a"),
		WithEnv("GREETING=hello"),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, "a: ok\n", stdout.String())
	assert.Contains(t, <-commands, "GREETING='hello'")
}

func TestRunRejectsEmptyCommand(t *testing.T) {
	_, err := Run(context.Background(), "  ", WithNodes("a"))
	assert.Error(t, err)
}

func TestRunMissingConfig(t *testing.T) {
	_, err := Run(context.Background(), "uptime",
		WithConfigPath(filepath.Join(t.TempDir(), "missing.yml")),
		WithNodes("a"),
	)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNodes(t *testing.T) {
	api := newTestDirectory(t, map[string]string{
		"/api/1.0/nodes/active/country/NL": `{"results":{"nodes":[{"hostname":"a.ring.nlnog.net","countrycode":"NL"},{"hostname":"c.ring.nlnog.net","countrycode":"NL"}]}}`,
	})
	path := writeConfig(t, api, nil)

	stdout := new(bytes.Buffer)
	require.NoError(t, Nodes(context.Background(),
		WithConfigPath(path),
		WithOutput(stdout, io.Discard),
		WithCountry("nl"),
	))
	assert.Equal(t, []string{"a", "c"}, strings.Fields(stdout.String()))
}

func TestCountry(t *testing.T) {
	api := newTestDirectory(t, map[string]string{
		"/api/1.0/nodes/hostname/a.ring.nlnog.net": `{"info":{"resultcount":1},"results":{"nodes":[{"countrycode":"DE"}]}}`,
		"/api/1.0/nodes/hostname/b.ring.nlnog.net": `{"info":{"resultcount":0}}`,
	})
	path := writeConfig(t, api, nil)

	stdout := new(bytes.Buffer)
	require.NoError(t, Country(context.Background(), "a", WithConfigPath(path), WithOutput(stdout, io.Discard)))
	assert.Equal(t, "DE\n", stdout.String())

	err := Country(context.Background(), "b", WithConfigPath(path), WithOutput(io.Discard, io.Discard))
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestWithEnv(t *testing.T) {
	opts, err := GetDefaultOptions().Apply(WithEnv("A=1", "B=x=y", "C="))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y", "C": ""}, opts.Env)

	_, err = GetDefaultOptions().Apply(WithEnv("novalue"))
	assert.Error(t, err)

	_, err = GetDefaultOptions().Apply(WithEnv("=x"))
	assert.Error(t, err)
}

func TestWithParallel(t *testing.T) {
	_, err := GetDefaultOptions().Apply(WithParallel(-1))
	assert.Error(t, err)

	config, err := loadConfig(mustApply(t, WithConfigPath(writeConfig(t, "https://ring.example.org", nil)), WithParallel(3), WithFallback(true)))
	require.NoError(t, err)
	assert.Equal(t, 3, config.Parallel)
	assert.True(t, config.Fallback)
}

func mustApply(t *testing.T, options ...Option) *Options {
	t.Helper()

	opts, err := GetDefaultOptions().Apply(options...)
	require.NoError(t, err)
	return opts
}
