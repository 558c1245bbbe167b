package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/core"
)

type blockingSink struct {
	mu      sync.Mutex
	written [][]byte
	gate    chan struct{}
	closed  chan struct{}
	once    sync.Once
	failOn  int
}

func newSink() *blockingSink {
	return &blockingSink{gate: make(chan struct{}, 100), closed: make(chan struct{})}
}

func (s *blockingSink) Write(f []byte) error {
	select {
	case <-s.gate:
	case <-s.closed:
		return errors.New("closed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, f)
	if s.failOn > 0 && len(s.written) == s.failOn {
		return errors.New("boom")
	}
	return nil
}

func (s *blockingSink) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *blockingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

func TestConnTracksOutstandingBytes(t *testing.T) {
	sink := newSink()
	c := NewConn(sink, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.WriteLoop(ctx) }()

	require.NoError(t, c.TrySend(make(core.Frame, 100)))
	require.NoError(t, c.TrySend(make(core.Frame, 50)))
	assert.Equal(t, 150, c.Buffered())

	sink.gate <- struct{}{}
	require.Eventually(t, func() bool { return c.Buffered() == 50 }, time.Second, 5*time.Millisecond)
	sink.gate <- struct{}{}
	require.Eventually(t, func() bool { return c.Buffered() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, sink.count())
}

func TestConnHardCap(t *testing.T) {
	c := NewConn(newSink(), 10)
	require.NoError(t, c.TrySend(make(core.Frame, 8)))
	assert.ErrorIs(t, c.TrySend(make(core.Frame, 3)), core.ErrBackpressure)
	require.NoError(t, c.TrySend(make(core.Frame, 2)))
}

func TestConnCloseIsIdempotent(t *testing.T) {
	sink := newSink()
	c := NewConn(sink, 0)
	c.Close()
	c.Close()
	assert.ErrorIs(t, c.TrySend(core.Frame("x")), core.ErrClosed)
	assert.ErrorIs(t, c.WriteLoop(context.Background()), core.ErrClosed)
	select {
	case <-sink.closed:
	default:
		t.Fatal("sink not closed")
	}
}

func TestConnWriteErrorCloses(t *testing.T) {
	sink := newSink()
	sink.failOn = 1
	sink.gate <- struct{}{}
	c := NewConn(sink, 0)
	require.NoError(t, c.TrySend(core.Frame("x")))

	err := c.WriteLoop(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, c.TrySend(core.Frame("y")), core.ErrClosed)
}
