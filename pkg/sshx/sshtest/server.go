// Package sshtest provides an in-process SSH server for tests. It accepts
// a single generated client key and hands every exec request to a
// Handler.
package sshtest

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Session is the server side of an exec request.
type Session struct {
	// Command is the command requested by the client.
	Command string
	// User is the authenticated user.
	User string

	Stdout io.Writer
	Stderr io.Writer

	channel ssh.Channel
	conn    ssh.Conn
}

// Exit sends an exit-status notification.
func (s *Session) Exit(code uint32) error {
	_, err := s.channel.SendRequest("exit-status", false, ssh.Marshal(&struct {
		Status uint32
	}{code}))
	return err
}

// Kill sends an exit-signal notification. The signal is named without
// the "SIG" prefix.
func (s *Session) Kill(signal string) error {
	_, err := s.channel.SendRequest("exit-signal", false, ssh.Marshal(&struct {
		Signal     string
		CoreDumped bool
		Error      string
		Lang       string
	}{Signal: signal}))
	return err
}

// Disconnect drops the whole connection without closing the channel
// first, as a failing network would.
func (s *Session) Disconnect() error {
	return s.conn.Close()
}

// Handler serves one exec request. The channel is closed when it returns.
type Handler func(session *Session)

// Server is an SSH server listening on the loopback interface.
type Server struct {
	Host string
	Port int
	// Fingerprint is the SHA256 fingerprint of the host key.
	Fingerprint string
	// ClientKey is the PEM encoded private key the server accepts.
	ClientKey string

	handler  Handler
	config   *ssh.ServerConfig
	listener net.Listener

	mu    sync.Mutex
	users []string
	conns []net.Conn
	wg    sync.WaitGroup
}

// NewServer starts a server that is shut down when the test finishes.
func NewServer(t testing.TB, handler Handler) *Server {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	hostKey, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatal(err)
	}

	_, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	clientKey, err := ssh.NewSignerFromKey(clientPriv)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKey(clientPriv, "")
	if err != nil {
		t.Fatal(err)
	}

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), clientKey.PublicKey().Marshal()) {
				return &ssh.Permissions{}, nil
			}
			return nil, errors.New("unknown public key")
		},
	}
	config.AddHostKey(hostKey)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	host, port, err := net.SplitHostPort(listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	portNumber, err := strconv.Atoi(port)
	if err != nil {
		t.Fatal(err)
	}

	server := &Server{
		Host:        host,
		Port:        portNumber,
		Fingerprint: ssh.FingerprintSHA256(hostKey.PublicKey()),
		ClientKey:   string(pem.EncodeToMemory(block)),
		handler:     handler,
		config:      config,
		listener:    listener,
	}

	server.wg.Add(1)
	go server.serve()
	t.Cleanup(server.Close)

	return server
}

// Users returns the names of all users that authenticated so far.
func (s *Server) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.users...)
}

// Close stops the listener and closes all connections.
func (s *Server) Close() {
	s.listener.Close()

	s.mu.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	serverConn, channels, requests, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		conn.Close()
		return
	}
	defer serverConn.Close()

	s.mu.Lock()
	s.users = append(s.users, serverConn.User())
	s.mu.Unlock()

	go ssh.DiscardRequests(requests)

	var sessions sync.WaitGroup
	for newChannel := range channels {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}

		channel, channelRequests, err := newChannel.Accept()
		if err != nil {
			continue
		}

		sessions.Add(1)
		go func() {
			defer sessions.Done()
			s.handleSession(serverConn, channel, channelRequests)
		}()
	}
	sessions.Wait()
}

func (s *Server) handleSession(conn ssh.Conn, channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	for req := range requests {
		switch req.Type {
		case "exec":
			var msg struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &msg); err != nil {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			go ssh.DiscardRequests(requests)

			s.handler(&Session{
				Command: msg.Command,
				User:    conn.User(),
				Stdout:  channel,
				Stderr:  channel.Stderr(),
				channel: channel,
				conn:    conn,
			})
			return
		case "subsystem":
			var msg struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &msg); err != nil || msg.Name != "sftp" {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			go ssh.DiscardRequests(requests)

			server, err := sftp.NewServer(channel)
			if err != nil {
				return
			}
			server.Serve()
			return
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}
