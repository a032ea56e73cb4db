package sshx

import (
	"errors"
	"fmt"
)

// ErrConnectionLost is wrapped by a ConnectionError if the connection
// broke before the remote process reported how it terminated.
var ErrConnectionLost = errors.New("connection lost before exit status")

// ConnectionError is returned if a session to a host could not be
// established, either because the network failed or because the host
// rejected every offered key.
type ConnectionError struct {
	Host string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProtocolError is returned if a channel request failed or was
// malformed during an established session.
type ProtocolError struct {
	Host    string
	Request string
	Err     error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Request, e.Host, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
