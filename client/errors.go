package client

import (
	"errors"
	"fmt"
)

// ErrRequestTimeout settles a pending request whose deadline passed with no
// matching response. The connection itself stays Ready.
var ErrRequestTimeout = errors.New("client: request timed out")

// ErrNotReady rejects calls issued against a connection that has not
// completed the handshake or has already been torn down.
var ErrNotReady = errors.New("client: connection not ready")

// SpawnError reports that the child process could not be started at all; no
// process exists and start() failed immediately.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("client: spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// HandshakeError reports that the process started but the initialize
// exchange failed: the server answered with an error, the response was
// malformed, or no response arrived within the handshake window.
type HandshakeError struct {
	Err error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("client: handshake failed: %v", e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// ProcessExitError settles every pending request when the connection is
// invalidated as a whole, either because the child terminated unexpectedly
// or because stop() tore it down.
type ProcessExitError struct {
	Err error
}

func (e *ProcessExitError) Error() string {
	if e.Err == nil {
		return "client: process exited"
	}
	return fmt.Sprintf("client: process exited: %v", e.Err)
}

func (e *ProcessExitError) Unwrap() error { return e.Err }
