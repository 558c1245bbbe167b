package relay

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog/log"
)

const maxDatagram = 64 << 10

// Serve reads conn until ctx is done, sweeping on the configured interval. Reads, sweeps
// and forwards all happen on this goroutine.
func (r *Relay) Serve(ctx context.Context, conn *net.UDPConn) error {
	l := log.With().Str("module", "relay").Str("addr", conn.LocalAddr().String()).Logger()
	l.Info().Msg("relay listening")

	go func() {
		<-ctx.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()

	buf := make([]byte, maxDatagram)
	nextSweep := time.Now().Add(r.opts.SweepInterval)
	for {
		if ctx.Err() != nil {
			l.Info().Msg("relay stopped")
			return nil
		}
		if now := time.Now(); !now.Before(nextSweep) {
			if n := r.Sweep(); n > 0 {
				l.Debug().Int("evicted", n).Msg("sweep")
			}
			nextSweep = now.Add(r.opts.SweepInterval)
		}
		_ = conn.SetReadDeadline(nextSweep)
		n, from, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				l.Info().Msg("relay stopped")
				return nil
			}
			l.Warn().Err(err).Msg("read failed")
			continue
		}
		r.HandleDatagram(buf[:n], from)
	}
}
