// Package signal carries framed hub traffic over WebSocket: every binary message holds
// one or more complete or partial frames, exactly like the TCP byte stream.
package signal

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/adapters/stream"
	"github.com/dkeye/Meet/internal/core"
)

const writeWait = 10 * time.Second

type SignalWSController struct {
	Hub         stream.Hub
	ReadLimit   int64
	PingPeriod  time.Duration
	MaxBuffered int
}

func NewSignalWSController(hub stream.Hub) *SignalWSController {
	return &SignalWSController{
		Hub:        hub,
		ReadLimit:  8 << 20,
		PingPeriod: 54 * time.Second,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSink is written only from the conn's WriteLoop goroutine.
type wsSink struct {
	conn *websocket.Conn
}

func (s wsSink) Write(frame []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (s wsSink) Close() error { return s.conn.Close() }

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(uuid.NewString())
	l := log.With().Str("module", "signal").Str("sid", string(sid)).Str("client", c.GetString("client_token")).Logger()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	ctx, cancel := context.WithCancel(ctx)
	conn := stream.NewConn(wsSink{conn: ws}, ctl.MaxBuffered)
	if !ctl.Hub.Connect(sid, conn, cancel) {
		cancel()
		conn.Close()
		return
	}
	l.Info().Msg("new WS connection")

	go ctl.writePump(ctx, ws, conn)
	go func() {
		ctl.readPump(ctx, sid, ws)
		cancel()
		ctl.Hub.Disconnect(sid)
		l.Info().Msg("WS connection closed")
	}()
}
