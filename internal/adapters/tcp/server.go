// Package tcp accepts framed reliable-transport sessions and feeds them to the hub.
package tcp

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/adapters/stream"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/protocol"
)

const writeTimeout = 10 * time.Second

type Server struct {
	Hub         stream.Hub
	MaxBuffered int
}

// Serve accepts on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	log.Info().Str("module", "tcp").Str("addr", ln.Addr().String()).Msg("listening")

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn().Err(err).Str("module", "tcp").Msg("accept")
			continue
		}
		go s.handle(ctx, c)
	}
}

type connSink struct{ c net.Conn }

func (s connSink) Write(frame []byte) error {
	if err := s.c.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := s.c.Write(frame)
	return err
}

func (s connSink) Close() error { return s.c.Close() }

func (s *Server) handle(parent context.Context, c net.Conn) {
	sid := core.SessionID(uuid.NewString())
	l := log.With().Str("module", "tcp").Str("sid", string(sid)).Str("peer", c.RemoteAddr().String()).Logger()

	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	ctx, cancel := context.WithCancel(parent)
	conn := stream.NewConn(connSink{c: c}, s.MaxBuffered)
	if !s.Hub.Connect(sid, conn, cancel) {
		cancel()
		conn.Close()
		return
	}
	l.Info().Msg("connected")

	go func() {
		if err := conn.WriteLoop(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, core.ErrClosed) {
			l.Debug().Err(err).Msg("write loop ended")
		}
		_ = c.Close()
	}()

	s.readLoop(ctx, sid, c)
	cancel()
	s.Hub.Disconnect(sid)
	l.Info().Msg("disconnected")
}

func (s *Server) readLoop(ctx context.Context, sid core.SessionID, c net.Conn) {
	var dec protocol.Decoder
	buf := make([]byte, 64<<10)
	for {
		n, err := c.Read(buf)
		if n > 0 {
			msgs, derr := dec.Feed(buf[:n])
			if derr != nil {
				log.Warn().Err(derr).Str("module", "tcp").Str("sid", string(sid)).Msg("stream desync, buffer dropped")
			}
			if !s.Hub.Deliver(sid, msgs) {
				return
			}
		}
		if err != nil || ctx.Err() != nil {
			return
		}
	}
}
