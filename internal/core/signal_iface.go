package core

import "errors"

var (
	ErrBackpressure = errors.New("send queue full")
	ErrClosed       = errors.New("connection closed")
)

// Frame is one encoded protocol message, ready for the wire.
type Frame []byte

type SessionID string

// SignalConnection abstracts the reliable transport of one session.
// The hub closes it on disconnect; Close must be idempotent.
type SignalConnection interface {
	// TrySend queues f without blocking.
	TrySend(f Frame) error
	// Buffered reports bytes accepted by TrySend but not yet written to the peer.
	Buffered() int
	Close()
}
