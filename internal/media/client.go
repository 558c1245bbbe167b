package media

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	HeartbeatPeriod = 3 * time.Second
	readTimeout     = 500 * time.Millisecond
)

// FrameHandler receives every frame completed by the client's reassemblers.
type FrameHandler func(Frame)

// Client is a UDP peer of the relay: it keeps identities registered, sends frames as
// chunks and reassembles the chunks it receives, one reassembler per room.
type Client struct {
	conn    *net.UDPConn
	server  *net.UDPAddr
	onFrame FrameHandler

	mu    sync.Mutex
	regs  map[Registration]struct{}
	reasm map[string]*Reassembler

	nextFrame atomic.Uint32
}

// NewClient binds an ephemeral local port and targets the relay at server.
func NewClient(server string, onFrame FrameHandler) (*Client, error) {
	addr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:    conn,
		server:  addr,
		onFrame: onFrame,
		regs:    make(map[Registration]struct{}),
		reasm:   make(map[string]*Reassembler),
	}, nil
}

func (c *Client) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// Register announces (room, user) now and on every heartbeat until Unregister.
func (c *Client) Register(room, user string) error {
	reg := Registration{Room: room, User: user}
	c.mu.Lock()
	c.regs[reg] = struct{}{}
	if _, ok := c.reasm[room]; !ok {
		c.reasm[room] = NewReassembler()
	}
	c.mu.Unlock()
	return c.sendRegistration(reg)
}

func (c *Client) Unregister(room, user string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.regs, Registration{Room: room, User: user})
	for r := range c.regs {
		if r.Room == room {
			return
		}
	}
	delete(c.reasm, room)
}

func (c *Client) sendRegistration(r Registration) error {
	b, err := EncodeRegistration(r)
	if err != nil {
		return err
	}
	_, err = c.conn.WriteToUDP(b, c.server)
	return err
}

// SendFrame splits data into chunks under a fresh frame id and returns that id.
func (c *Client) SendFrame(room, sender string, codec Codec, w, h uint16, data []byte) (uint32, error) {
	id := c.nextFrame.Add(1)
	meta := Chunk{
		Room:    room,
		Sender:  sender,
		FrameID: id,
		Codec:   codec,
		Width:   w,
		Height:  h,
		TS:      uint64(time.Now().UnixMilli()),
	}
	for _, ch := range SplitFrame(meta, data) {
		b, err := EncodeChunk(ch)
		if err != nil {
			return id, err
		}
		if _, err := c.conn.WriteToUDP(b, c.server); err != nil {
			return id, err
		}
	}
	return id, nil
}

// Run reads datagrams until ctx is done, refreshing registrations and sweeping stale slots.
func (c *Client) Run(ctx context.Context) error {
	l := log.With().Str("module", "media.client").Str("local", c.conn.LocalAddr().String()).Logger()
	go func() {
		<-ctx.Done()
		_ = c.conn.SetReadDeadline(time.Now())
	}()

	buf := make([]byte, 64<<10)
	lastBeat := time.Now()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(lastBeat) >= HeartbeatPeriod {
			c.heartbeat()
			c.sweep()
			lastBeat = time.Now()
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, _, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.Warn().Err(err).Msg("read failed")
			continue
		}
		c.handle(buf[:n])
	}
}

func (c *Client) handle(b []byte) {
	d, err := ParseDatagram(b)
	if err != nil || d.Chunk == nil {
		return
	}
	c.mu.Lock()
	r := c.reasm[d.Chunk.Room]
	c.mu.Unlock()
	if r == nil {
		return
	}
	if f, ok := r.Add(*d.Chunk); ok && c.onFrame != nil {
		c.onFrame(f)
	}
}

func (c *Client) heartbeat() {
	c.mu.Lock()
	regs := make([]Registration, 0, len(c.regs))
	for r := range c.regs {
		regs = append(regs, r)
	}
	c.mu.Unlock()
	for _, r := range regs {
		if err := c.sendRegistration(r); err != nil {
			log.Debug().Str("module", "media.client").Err(err).Str("room", r.Room).Msg("heartbeat failed")
		}
	}
}

func (c *Client) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.reasm {
		r.Sweep()
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}
