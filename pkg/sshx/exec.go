package sshx

import (
	"errors"
	"io"
	"sync"

	"golang.org/x/crypto/ssh"
)

// keepaliveRequest is a global request every server answers, usually
// with a failure.
const keepaliveRequest = "keepalive@openssh.com"

// Payloads of the session channel requests, see RFC 4254 section 6.

type execMsg struct {
	Command string
}

type exitStatusMsg struct {
	Status uint32
}

type exitSignalMsg struct {
	Signal     string
	CoreDumped bool
	Error      string
	Lang       string
}

// Exec runs cmd in a new session channel. Channel data is copied to
// stdout and extended data to stderr as it arrives. Exec blocks until
// the remote side closes the channel and both streams are drained.
// stdout and stderr are written from different goroutines. If the
// connection breaks before an exit status arrived, a ConnectionError
// wrapping ErrConnectionLost is returned.
func (client *Client) Exec(cmd string, stdout, stderr io.Writer) (*ExitStatus, error) {
	channel, requests, err := client.OpenChannel("session", nil)
	if err != nil {
		return nil, &ProtocolError{Host: client.Host, Request: "session", Err: err}
	}
	defer channel.Close()

	ok, err := channel.SendRequest("exec", true, ssh.Marshal(&execMsg{Command: cmd}))
	if err == nil && !ok {
		err = errors.New("request rejected")
	}
	if err != nil {
		return nil, &ProtocolError{Host: client.Host, Request: "exec", Err: err}
	}

	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	var wg sync.WaitGroup
	copyErrs := make([]error, 2)
	copyStream := func(i int, w io.Writer, r io.Reader) {
		defer wg.Done()
		_, copyErrs[i] = io.Copy(w, r)
	}
	wg.Add(2)
	go copyStream(0, stdout, channel)
	go copyStream(1, stderr, channel.Stderr())

	status := new(ExitStatus)
	var protoErr error
	for req := range requests {
		switch req.Type {
		case "exit-status":
			var msg exitStatusMsg
			if err := ssh.Unmarshal(req.Payload, &msg); err != nil {
				protoErr = &ProtocolError{Host: client.Host, Request: req.Type, Err: err}
				break
			}
			status.Exit(int(msg.Status))
		case "exit-signal":
			var msg exitSignalMsg
			if err := ssh.Unmarshal(req.Payload, &msg); err != nil {
				protoErr = &ProtocolError{Host: client.Host, Request: req.Type, Err: err}
				break
			}
			if msg.Signal != "" && SignalNumber(msg.Signal) == 0 {
				client.Logger.Warn().Str("signal", msg.Signal).Msg("Unknown signal reported by remote process")
			}
			status.KillNamed(msg.Signal)
		default:
			client.Logger.Debug().Str("request", req.Type).Msg("Ignoring channel request")
		}

		if req.WantReply {
			req.Reply(false, nil)
		}
	}

	wg.Wait()

	if protoErr != nil {
		return nil, protoErr
	}
	for _, err := range copyErrs {
		if err != nil {
			return nil, &ProtocolError{Host: client.Host, Request: "read", Err: err}
		}
	}
	if !status.Exited() && !status.Signaled() {
		// A dropped connection closes the channel just like the remote
		// side does. Only a live connection answers the keepalive.
		if _, _, err := client.SendRequest(keepaliveRequest, true, nil); err != nil {
			return nil, &ConnectionError{Host: client.Host, Err: ErrConnectionLost}
		}
		client.Logger.Debug().Msg("Channel closed without exit status")
	}

	return status, nil
}
