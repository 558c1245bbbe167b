package signal

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/adapters/stream"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/protocol"
)

// writePump drains conn and keeps the socket alive with pings.
func (ctl *SignalWSController) writePump(ctx context.Context, ws *websocket.Conn, conn *stream.Conn) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := conn.WriteLoop(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, core.ErrClosed) {
			log.Debug().Err(err).Str("module", "signal").Msg("writePump write error")
		}
		_ = ws.Close()
	}()

	if ctl.PingPeriod <= 0 {
		<-done
		return
	}
	ticker := time.NewTicker(ctl.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				conn.Close()
				return
			}
		}
	}
}

// readPump decodes binary messages into frames until the socket fails or ctx ends.
func (ctl *SignalWSController) readPump(ctx context.Context, sid core.SessionID, ws *websocket.Conn) {
	var dec protocol.Decoder
	wait := 2 * ctl.PingPeriod
	if wait > 0 {
		_ = ws.SetReadDeadline(time.Now().Add(wait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		if ctx.Err() != nil {
			return
		}
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		if wait > 0 {
			_ = ws.SetReadDeadline(time.Now().Add(wait))
		}
		msgs, err := dec.Feed(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("stream desync, buffer dropped")
		}
		if !ctl.Hub.Deliver(sid, msgs) {
			return
		}
	}
}
