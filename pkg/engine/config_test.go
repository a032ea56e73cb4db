package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicklasfrahm/ringctl/pkg/ring"
	"github.com/nicklasfrahm/ringctl/pkg/sshx"
)

func stubSSHConfig(t *testing.T, settings map[string]map[string]string) {
	t.Helper()

	original := sshConfigGet
	sshConfigGet = func(alias, key string) string {
		if value, ok := settings[alias][key]; ok {
			return value
		}
		if key == "Port" {
			return "22"
		}
		return ""
	}
	t.Cleanup(func() { sshConfigGet = original })
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ringctl.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
user: ringuser
parallel: 4
timeout: 10s
ssh:
  key-file: ~/.ssh/ring
hosts:
  a:
    user: admin
    port: 2222
`), 0o600))

	config, err := LoadConfig(path, false)
	require.NoError(t, err)

	assert.Equal(t, "ringuser", config.User)
	assert.Equal(t, 4, config.Parallel)
	assert.Equal(t, 10*time.Second, config.Timeout)
	assert.Equal(t, "~/.ssh/ring", config.SSH.KeyFile)
	assert.Equal(t, 2222, config.Hosts["a"].Port)

	// Defaults fill the gaps.
	assert.Equal(t, ring.DefaultAPI, config.API)
	assert.Equal(t, ring.DefaultDomain, config.Domain)
	assert.NoError(t, config.Verify())
}

func TestLoadConfigMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yml")

	_, err := LoadConfig(path, false)
	assert.Error(t, err)

	config, err := LoadConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().API, config.API)
	assert.Equal(t, 5*time.Second, config.Timeout)
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ringctl.yml")
	require.NoError(t, os.WriteFile(path, []byte("parallel: [1"), 0o600))

	_, err := LoadConfig(path, true)
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(c *Config)
		valid  bool
	}{
		{name: "defaults", modify: func(c *Config) {}, valid: true},
		{name: "bad scheme", modify: func(c *Config) { c.API = "ftp://example.com" }},
		{name: "no domain", modify: func(c *Config) { c.Domain = "" }},
		{name: "negative parallel", modify: func(c *Config) { c.Parallel = -1 }},
		{
			name: "bad host port",
			modify: func(c *Config) {
				c.Hosts = map[string]sshx.Config{"a": {Port: 70000}}
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			tc.modify(config)

			if tc.valid {
				assert.NoError(t, config.Verify())
			} else {
				assert.Error(t, config.Verify())
			}
		})
	}

	var empty *Config
	assert.Error(t, empty.Verify())
}

func TestSSHConfigFor(t *testing.T) {
	stubSSHConfig(t, map[string]map[string]string{
		"b": {"User": "sshuser", "HostName": "10.0.0.2", "Port": "2200"},
	})

	config := DefaultConfig()
	config.User = "default"
	config.SSH = sshx.Config{KeyFile: "~/.ssh/ring", Fingerprint: "SHA256:x"}
	config.Hosts = map[string]sshx.Config{
		"a": {User: "admin", Port: 2222},
	}

	testCases := []struct {
		name string
		node string
		user string
		want sshx.Config
	}{
		{
			name: "per-host override",
			node: "a",
			user: "requested",
			want: sshx.Config{Host: "a.ring.nlnog.net", Port: 2222, User: "admin", KeyFile: "~/.ssh/ring", Fingerprint: "SHA256:x"},
		},
		{
			name: "ssh config",
			node: "b",
			user: "requested",
			want: sshx.Config{Host: "10.0.0.2", Port: 2200, User: "sshuser", KeyFile: "~/.ssh/ring", Fingerprint: "SHA256:x"},
		},
		{
			name: "requested user",
			node: "c",
			user: "requested",
			want: sshx.Config{Host: "c.ring.nlnog.net", Port: 22, User: "requested", KeyFile: "~/.ssh/ring", Fingerprint: "SHA256:x"},
		},
		{
			name: "configured default",
			node: "c.example.org",
			want: sshx.Config{Host: "c.example.org", Port: 22, User: "default", KeyFile: "~/.ssh/ring", Fingerprint: "SHA256:x"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := config.SSHConfigFor(tc.node, tc.user)
			require.NoError(t, err)
			assert.Equal(t, tc.want, *got)
		})
	}

	// Resolution must not leak into the shared configuration.
	assert.Equal(t, "", config.Hosts["a"].Host)
}
