package engine

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/kevinburke/ssh_config"
	"gopkg.in/yaml.v3"

	"github.com/nicklasfrahm/ringctl/pkg/ring"
	"github.com/nicklasfrahm/ringctl/pkg/sshx"
)

// sshConfigGet looks up a setting for a host alias in ~/.ssh/config.
var sshConfigGet = ssh_config.Get

// Config describes how to reach the ring and its nodes.
type Config struct {
	// API is the base URL of the directory service.
	API string `yaml:"api"`

	// Domain is the domain suffix shared by all ring nodes.
	Domain string `yaml:"domain"`

	// User is the default login for all nodes.
	User string `yaml:"user"`

	// Pager is the command line of the pager. If it is empty,
	// $PAGER is used.
	Pager string `yaml:"pager"`

	// InsecureSkipVerify disables TLS certificate verification
	// when querying the directory service.
	InsecureSkipVerify bool `yaml:"insecure-skip-verify"`

	// Fallback retries hosts that cannot be reached with a native
	// session through the ssh binary.
	Fallback bool `yaml:"fallback"`

	// Parallel limits the number of concurrent sessions.
	// Zero means unlimited.
	Parallel int `yaml:"parallel"`

	// Timeout is the connect timeout of a session.
	Timeout time.Duration `yaml:"timeout"`

	// SSH holds connection defaults for all nodes.
	SSH sshx.Config `yaml:"ssh"`

	// SSHProxy describes the SSH connection configuration
	// for an SSH proxy, often also referred to as bastion
	// host or jumpbox.
	SSHProxy sshx.Config `yaml:"ssh-proxy"`

	// Hosts holds per-node overrides of the connection defaults,
	// keyed by the short node name.
	Hosts map[string]sshx.Config `yaml:"hosts"`
}

// DefaultConfig returns the configuration used if no file exists.
func DefaultConfig() *Config {
	return &Config{
		API:     ring.DefaultAPI,
		Domain:  ring.DefaultDomain,
		User:    sshx.LoginName(),
		Timeout: 5 * time.Second,
	}
}

// Verify verifies the configuration file.
func (c *Config) Verify() error {
	if c == nil {
		return errors.New("configuration empty")
	}

	api, err := url.Parse(c.API)
	if err != nil {
		return fmt.Errorf("invalid api: %w", err)
	}
	if api.Scheme != "http" && api.Scheme != "https" {
		return fmt.Errorf("invalid api: unsupported scheme %q", api.Scheme)
	}

	if c.Domain == "" {
		return errors.New("no domain specified")
	}

	if c.Parallel < 0 {
		return errors.New("parallel must not be negative")
	}

	for name, host := range c.Hosts {
		if host.Port < 0 || host.Port > 65535 {
			return fmt.Errorf("host %s: invalid port %d", name, host.Port)
		}
	}

	return nil
}

// FQDN qualifies a short node name with the ring domain. Names that
// already contain a dot are returned unchanged.
func (c *Config) FQDN(node string) string {
	if strings.Contains(node, ".") {
		return node
	}
	return node + "." + c.Domain
}

// SSHConfigFor resolves the connection configuration of a node. The
// login is taken from the per-host configuration, then ~/.ssh/config,
// then the requested user, then the configured defaults.
func (c *Config) SSHConfigFor(node, user string) (*sshx.Config, error) {
	config := c.Hosts[node]
	hostUser := config.User

	defaults := c.SSH
	defaults.User = ""
	if err := mergo.Merge(&config, defaults); err != nil {
		return nil, err
	}

	if config.Host == "" {
		config.Host = sshConfigGet(node, "HostName")
	}
	if config.Host == "" {
		config.Host = c.FQDN(node)
	}

	if config.Port == 0 {
		port, err := strconv.Atoi(sshConfigGet(node, "Port"))
		if err != nil || port == 0 {
			port = 22
		}
		config.Port = port
	}

	if config.Key == "" && config.KeyFile == "" {
		if identity := sshConfigGet(node, "IdentityFile"); identity != "" {
			if _, err := os.Stat(sshx.ExpandHome(identity)); err == nil {
				config.KeyFile = identity
			}
		}
	}

	config.User = firstNonEmpty(hostUser, sshConfigGet(node, "User"), user, c.SSH.User, c.User)

	return &config, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// LoadConfig sets up the configuration parser and loads
// the configuration file. Unset values are filled with defaults.
// If optional is set, a missing file yields the defaults.
func LoadConfig(configFile string, optional bool) (*Config, error) {
	config := new(Config)

	configBytes, err := os.ReadFile(sshx.ExpandHome(configFile))
	if err != nil {
		if !optional || !os.IsNotExist(err) {
			return nil, err
		}
	} else {
		// Parse YAML config into struct.
		if err := yaml.Unmarshal(configBytes, config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configFile, err)
		}
	}

	if err := mergo.Merge(config, DefaultConfig()); err != nil {
		return nil, err
	}

	return config, nil
}
