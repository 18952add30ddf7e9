package core

import "context"

// Frame is one signaling message as carried by a single transport frame.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// SignalEvents are the reactions a transport reports back to its owner.
// OnClosed receives nil for an orderly close and the read error otherwise.
type SignalEvents struct {
	OnMessage func(Frame)
	OnClosed  func(err error)
}

// SignalDialer opens a signaling transport to address.
// Dial returns once the transport is open; events fire only after that.
type SignalDialer interface {
	Dial(ctx context.Context, address string, ev SignalEvents) (SignalConnection, error)
}
