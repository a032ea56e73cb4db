package sshx

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// DefaultIdentityFiles are tried in order if neither a key nor an
// agent is available.
var DefaultIdentityFiles = []string{
	"~/.ssh/id_ed25519",
	"~/.ssh/id_ecdsa",
	"~/.ssh/id_rsa",
}

// DefaultKnownHosts is used for host key verification if no
// fingerprint is pinned and no other known_hosts file is configured.
const DefaultKnownHosts = "~/.ssh/known_hosts"

// Config is a flat configuration for an SSH connection.
type Config struct {
	Host        string `yaml:"host,omitempty"`
	Port        int    `yaml:"port,omitempty"`
	User        string `yaml:"user,omitempty"`
	KeyFile     string `yaml:"key-file,omitempty"`
	Key         string `yaml:"key,omitempty"`
	Passphrase  string `yaml:"passphrase,omitempty"`
	Fingerprint string `yaml:"fingerprint,omitempty"`
	KnownHosts  string `yaml:"known-hosts,omitempty"`
	Compression bool   `yaml:"compression,omitempty"`
}

// Address returns the dialable address of the host.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Client is an augmented SSH client.
type Client struct {
	*Options
	*ssh.Client

	// Host is the host the client is connected to.
	Host string

	agentConn net.Conn

	closeOnce sync.Once
	closeErr  error
}

// NewClient creates a new SSH client based on an SSH configuration
// and connects to it. Only public key authentication is offered.
func NewClient(config *Config, options ...Option) (*Client, error) {
	opts, err := GetDefaultOptions().Apply(options...)
	if err != nil {
		return nil, err
	}

	// Create a new client.
	client := &Client{
		Options: opts,
		Host:    config.Host,
	}

	// Set default connection options.
	if config.Port == 0 {
		config.Port = 22
	}
	if config.User == "" {
		config.User = LoginName()
	}

	if config.Compression {
		client.Logger.Warn().Msg("Compression is not supported by the native client, continuing without")
	}

	normalizedConfig, err := client.normalizeConfig(config)
	if err != nil {
		client.closeAgent()
		return nil, &ConnectionError{Host: config.Host, Err: err}
	}
	address := config.Address()

	client.Logger.Debug().Str("address", address).Str("user", config.User).Msg("Connecting")

	if client.Proxy != nil {
		// Create a TCP connection from the proxy host to the target.
		netConn, err := client.Proxy.Client.Dial("tcp", address)
		if err != nil {
			client.closeAgent()
			return nil, &ConnectionError{Host: config.Host, Err: err}
		}

		targetConn, channel, req, err := ssh.NewClientConn(netConn, address, normalizedConfig)
		if err != nil {
			netConn.Close()
			client.closeAgent()
			return nil, &ConnectionError{Host: config.Host, Err: err}
		}

		client.Client = ssh.NewClient(targetConn, channel, req)
	} else {
		if client.Client, err = ssh.Dial("tcp", address, normalizedConfig); err != nil {
			client.closeAgent()
			return nil, &ConnectionError{Host: config.Host, Err: err}
		}
	}

	return client, nil
}

// Close closes the connection and releases the agent socket if one
// was used for authentication. It is safe to call Close concurrently
// and more than once.
func (client *Client) Close() error {
	client.closeOnce.Do(func() {
		defer client.closeAgent()

		if client.Client != nil {
			client.closeErr = client.Client.Close()
		}
	})

	return client.closeErr
}

func (client *Client) closeAgent() {
	if client.agentConn != nil {
		client.agentConn.Close()
		client.agentConn = nil
	}
}

// normalizeConfig creates a new client config that is compatible with the standard library.
func (client *Client) normalizeConfig(config *Config) (*ssh.ClientConfig, error) {
	authMethod, err := client.authMethod(config)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := client.hostKeyCallback(config)
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		Auth:            []ssh.AuthMethod{authMethod},
		HostKeyCallback: hostKeyCallback,
		User:            config.User,
		Timeout:         client.Timeout,
	}, nil
}

// authMethod resolves the public key authentication method. A key that
// is specified directly takes precedence over a key file, which takes
// precedence over a running agent and the default identity files.
func (client *Client) authMethod(config *Config) (ssh.AuthMethod, error) {
	key := config.Key
	if key == "" && config.KeyFile != "" {
		keyBytes, err := os.ReadFile(ExpandHome(config.KeyFile))
		if err != nil {
			return nil, err
		}
		key = string(keyBytes)
	}

	if key != "" {
		signer, err := parseSigner([]byte(key), config.Passphrase)
		if err != nil {
			return nil, err
		}
		return ssh.PublicKeys(signer), nil
	}

	if socket := os.Getenv("SSH_AUTH_SOCK"); socket != "" {
		conn, err := net.Dial("unix", socket)
		if err == nil {
			client.agentConn = conn
			return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
		}
		client.Logger.Debug().Err(err).Msg("Failed to connect to SSH agent")
	}

	var signers []ssh.Signer
	for _, file := range DefaultIdentityFiles {
		keyBytes, err := os.ReadFile(ExpandHome(file))
		if err != nil {
			continue
		}
		signer, err := parseSigner(keyBytes, config.Passphrase)
		if err != nil {
			client.Logger.Debug().Err(err).Str("key_file", file).Msg("Skipping identity file")
			continue
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		return ssh.PublicKeys(signers...), nil
	}

	return nil, errors.New("no public key authentication method available")
}

// hostKeyCallback configures host key verification. A pinned
// fingerprint takes precedence over a known_hosts file.
func (client *Client) hostKeyCallback(config *Config) (ssh.HostKeyCallback, error) {
	if config.Fingerprint != "" {
		return func(hostname string, remote net.Addr, pubKey ssh.PublicKey) error {
			fingerprint := ssh.FingerprintSHA256(pubKey)
			if config.Fingerprint != fingerprint {
				return fmt.Errorf("fingerprint mismatch: server fingerprint: %s", fingerprint)
			}
			return nil
		}, nil
	}

	knownHostsFile := config.KnownHosts
	if knownHostsFile == "" {
		knownHostsFile = DefaultKnownHosts
	}
	knownHostsFile = ExpandHome(knownHostsFile)
	if _, err := os.Stat(knownHostsFile); err == nil {
		return knownhosts.New(knownHostsFile)
	} else if config.KnownHosts != "" {
		return nil, err
	}

	client.Logger.Warn().Msg("Skipping host key verification is insecure!")
	client.Logger.Warn().Msg("This allows for person-in-the-middle attacks!")
	client.Logger.Warn().Msg("Please consider using fingerprint verification!")
	return ssh.InsecureIgnoreHostKey(), nil
}

func parseSigner(key []byte, passphrase string) (ssh.Signer, error) {
	// Use passphrase to decrypt the private key.
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(key)
}

// ExpandHome resolves a leading "~" to the home directory of the
// current user.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// LoginName returns the name of the user running the process.
func LoginName() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "root"
}
