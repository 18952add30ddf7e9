package orch

import "errors"

var (
	ErrInvalidArguments      = errors.New("address and token are required")
	ErrMediaAcquisition      = errors.New("media acquisition failed")
	ErrHandshakeTimeout      = errors.New("handshake timed out")
	ErrTransportClosed       = errors.New("transport closed during handshake")
	ErrTransportError        = errors.New("transport error during handshake")
	ErrServerRejected        = errors.New("server rejected session")
	ErrNotConnected          = errors.New("not connected")
	ErrClosedDuringHandshake = errors.New("closed during handshake")
	ErrNegotiation           = errors.New("negotiation failed")
	ErrSessionClosed         = errors.New("session closed")
)

// ServerRejectedError carries the message of a server error envelope.
type ServerRejectedError struct {
	Message string
}

func (e *ServerRejectedError) Error() string {
	return "server rejected session: " + e.Message
}

func (e *ServerRejectedError) Is(target error) bool {
	return target == ErrServerRejected
}
