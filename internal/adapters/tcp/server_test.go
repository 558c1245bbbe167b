package tcp

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/protocol"
)

type fakeHub struct {
	mu           sync.Mutex
	conns        map[core.SessionID]core.SignalConnection
	msgs         []protocol.Message
	disconnected []core.SessionID
}

func (h *fakeHub) Connect(sid core.SessionID, conn core.SignalConnection, _ context.CancelFunc) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns == nil {
		h.conns = make(map[core.SessionID]core.SignalConnection)
	}
	h.conns[sid] = conn
	return true
}

func (h *fakeHub) Deliver(_ core.SessionID, msgs []protocol.Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msgs...)
	return true
}

func (h *fakeHub) Disconnect(sid core.SessionID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = append(h.disconnected, sid)
	return true
}

func (h *fakeHub) delivered() []protocol.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.Message(nil), h.msgs...)
}

func (h *fakeHub) only() core.SignalConnection {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		return c
	}
	return nil
}

func TestServerDeliversFramesAndDisconnects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	hub := &fakeHub{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = (&Server{Hub: hub}).Serve(ctx, ln) }()

	c, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	join := protocol.MustEncode(protocol.MsgJoin, protocol.JoinHeader{RoomID: "R1", User: "alice"}, nil)
	text := protocol.MustEncode(protocol.MsgText, protocol.TextHeader{Text: "hi"}, nil)
	stream := append(append([]byte(nil), join...), text...)
	_, err = c.Write(stream[:7])
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = c.Write(stream[7:])
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(hub.delivered()) == 2 }, 2*time.Second, 10*time.Millisecond)
	got := hub.delivered()
	assert.Equal(t, protocol.MsgJoin, got[0].Type)
	assert.Equal(t, text, got[1].Raw)

	reply := protocol.MustEncode(protocol.MsgServerEvent, protocol.ServerEventHeader{Message: "joined"}, nil)
	require.NoError(t, hub.only().TrySend(reply))
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	back := make([]byte, len(reply))
	_, err = io.ReadFull(c, back)
	require.NoError(t, err)
	assert.Equal(t, reply, back)

	require.NoError(t, c.Close())
	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.disconnected) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
