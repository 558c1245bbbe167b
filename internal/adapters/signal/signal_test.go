package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/protocol"
)

type fakeHub struct {
	mu           sync.Mutex
	conn         core.SignalConnection
	msgs         []protocol.Message
	disconnected int
}

func (h *fakeHub) Connect(_ core.SessionID, conn core.SignalConnection, _ context.CancelFunc) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conn = conn
	return true
}

func (h *fakeHub) Deliver(_ core.SessionID, msgs []protocol.Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msgs...)
	return true
}

func (h *fakeHub) Disconnect(core.SessionID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected++
	return true
}

func (h *fakeHub) snapshot() (core.SignalConnection, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn, len(h.msgs), h.disconnected
}

func TestWebSocketCarriesFrames(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := &fakeHub{}
	ctl := NewSignalWSController(hub)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gin.New()
	r.GET("/api/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil)
	require.NoError(t, err)

	join := protocol.MustEncode(protocol.MsgJoin, protocol.JoinHeader{RoomID: "R1"}, nil)
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, join[:5]))
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, join[5:]))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("ignored")))

	require.Eventually(t, func() bool {
		_, n, _ := hub.snapshot()
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn, _, _ := hub.snapshot()
	reply := protocol.MustEncode(protocol.MsgServerEvent, protocol.ServerEventHeader{Message: "joined"}, nil)
	require.NoError(t, conn.TrySend(reply))
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, reply, data)

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool {
		_, _, d := hub.snapshot()
		return d == 1
	}, 2*time.Second, 10*time.Millisecond)
}
