// Package stream implements the hub's outbound side of a reliable transport: a queue of
// frames drained by one writer goroutine, with the outstanding byte count exposed for
// backpressure decisions.
package stream

import (
	"context"
	"sync"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/protocol"
)

// Hub is the part of the orchestrator a transport talks to.
type Hub interface {
	Connect(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) bool
	Deliver(sid core.SessionID, msgs []protocol.Message) bool
	Disconnect(sid core.SessionID) bool
}

// DefaultMaxBuffered caps the queue so a stuck peer cannot grow it without bound.
const DefaultMaxBuffered = 64 << 20

// Sink writes one frame to the peer. Close must unblock a pending Write.
type Sink interface {
	Write(frame []byte) error
	Close() error
}

// Conn implements core.SignalConnection.
type Conn struct {
	sink        Sink
	maxBuffered int

	mu       sync.Mutex
	queue    []core.Frame
	buffered int
	closed   bool
	wake     chan struct{}
	done     chan struct{}
}

func NewConn(sink Sink, maxBuffered int) *Conn {
	if maxBuffered <= 0 {
		maxBuffered = DefaultMaxBuffered
	}
	return &Conn{
		sink:        sink,
		maxBuffered: maxBuffered,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrClosed
	}
	if c.buffered+len(f) > c.maxBuffered {
		return core.ErrBackpressure
	}
	c.queue = append(c.queue, f)
	c.buffered += len(f)
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

func (c *Conn) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffered
}

// Close is idempotent. Queued frames that were not written yet are dropped.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.queue = nil
	close(c.done)
	c.mu.Unlock()
	_ = c.sink.Close()
}

// Done is closed by Close.
func (c *Conn) Done() <-chan struct{} { return c.done }

// WriteLoop drains the queue until ctx is done, the conn is closed or a write fails.
// A failed write closes the conn.
func (c *Conn) WriteLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return core.ErrClosed
		case <-c.wake:
		}

		for {
			c.mu.Lock()
			if c.closed || len(c.queue) == 0 {
				c.mu.Unlock()
				break
			}
			f := c.queue[0]
			c.queue[0] = nil
			c.queue = c.queue[1:]
			c.mu.Unlock()

			err := c.sink.Write(f)

			c.mu.Lock()
			c.buffered -= len(f)
			c.mu.Unlock()
			if err != nil {
				c.Close()
				return err
			}
		}
	}
}
