// Package relay forwards chunk datagrams between peers registered per room.
// It never reassembles: every receiver does that itself.
package relay

import (
	"cmp"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/media"
	"github.com/dkeye/Meet/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	DefaultFreshness     = 10 * time.Second
	DefaultTimeout       = 15 * time.Second
	DefaultSweepInterval = 5 * time.Second
)

type Peer struct {
	Room     string         `json:"room"`
	User     string         `json:"user"`
	Addr     netip.AddrPort `json:"addr"`
	LastSeen time.Time      `json:"last_seen"`
}

// PacketWriter is the send half of the relay socket.
type PacketWriter interface {
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
}

type Options struct {
	Freshness     time.Duration
	Timeout       time.Duration
	SweepInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Freshness <= 0 {
		o.Freshness = DefaultFreshness
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	return o
}

// Relay keeps room -> user -> Peer. Datagram handling is serialized by Serve; the mutex
// exists for Snapshot readers.
type Relay struct {
	opts    Options
	out     PacketWriter
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.RWMutex
	rooms map[string]map[string]*Peer
}

func New(out PacketWriter, opts Options, m *metrics.Metrics) *Relay {
	return &Relay{
		opts:    opts.withDefaults(),
		out:     out,
		metrics: m,
		now:     time.Now,
		rooms:   make(map[string]map[string]*Peer),
	}
}

func normalize(a netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(a.Addr().Unmap(), a.Port())
}

// Register inserts or refreshes (room, user) at from.
func (r *Relay) Register(room, user string, from netip.AddrPort) {
	from = normalize(from)
	r.mu.Lock()
	defer r.mu.Unlock()
	peers, ok := r.rooms[room]
	if !ok {
		peers = make(map[string]*Peer)
		r.rooms[room] = peers
	}
	p, ok := peers[user]
	if !ok {
		p = &Peer{Room: room, User: user}
		peers[user] = p
		log.Debug().Str("module", "relay").Str("room", room).Str("user", user).Str("peer", from.String()).Msg("peer registered")
	}
	p.Addr = from
	p.LastSeen = r.now()
}

// RelayChunk forwards raw to every fresh peer of room other than the sender's address and
// returns the number of datagrams written.
func (r *Relay) RelayChunk(room, sender string, from netip.AddrPort, raw []byte) int {
	from = normalize(from)
	cutoff := r.now().Add(-r.opts.Freshness)

	r.mu.RLock()
	peers := r.rooms[room]
	targets := make([]netip.AddrPort, 0, len(peers))
	for _, p := range peers {
		if p.LastSeen.Before(cutoff) || p.Addr == from {
			continue
		}
		targets = append(targets, p.Addr)
	}
	r.mu.RUnlock()

	sent := 0
	for _, to := range targets {
		if _, err := r.out.WriteToUDPAddrPort(raw, to); err != nil {
			log.Debug().Str("module", "relay").Err(err).Str("room", room).Str("sender", sender).Str("peer", to.String()).Msg("forward failed")
			continue
		}
		sent++
	}
	r.metrics.AddRelayForwarded(sent)
	return sent
}

// HandleDatagram validates one packet and applies it. Noise is dropped silently.
func (r *Relay) HandleDatagram(raw []byte, from netip.AddrPort) {
	d, err := media.ParseDatagram(raw)
	if err != nil {
		r.metrics.IncRelayDiscarded(discardReason(err))
		return
	}
	switch {
	case d.Reg != nil:
		r.Register(d.Reg.Room, d.Reg.User, from)
	case d.Chunk != nil:
		r.RelayChunk(d.Chunk.Room, d.Chunk.Sender, from, raw)
	}
}

func discardReason(err error) string {
	switch err {
	case media.ErrBadMagic:
		return "magic"
	case media.ErrBadVersion:
		return "version"
	case media.ErrUnknownType:
		return "type"
	case media.ErrTruncated:
		return "truncated"
	}
	return "other"
}

// Sweep evicts peers unseen for longer than the timeout and drops empty rooms.
func (r *Relay) Sweep() int {
	cutoff := r.now().Add(-r.opts.Timeout)
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	total := 0
	for room, peers := range r.rooms {
		for user, p := range peers {
			if p.LastSeen.Before(cutoff) {
				delete(peers, user)
				evicted++
				log.Debug().Str("module", "relay").Str("room", room).Str("user", user).Msg("peer expired")
			}
		}
		if len(peers) == 0 {
			delete(r.rooms, room)
			continue
		}
		total += len(peers)
	}
	r.metrics.SetRelayPeers(total)
	return evicted
}

// Snapshot lists registered peers ordered by room and user.
func (r *Relay) Snapshot() []Peer {
	r.mu.RLock()
	out := make([]Peer, 0)
	for _, peers := range r.rooms {
		for _, p := range peers {
			out = append(out, *p)
		}
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Peer) int {
		if c := cmp.Compare(a.Room, b.Room); c != 0 {
			return c
		}
		return cmp.Compare(a.User, b.User)
	})
	return out
}
