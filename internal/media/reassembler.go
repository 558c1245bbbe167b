package media

import (
	"sync"
	"time"
)

// StaleAfter is how long an incomplete slot may wait for its missing chunks.
const StaleAfter = 2 * time.Second

// Frame is a reassembled media blob.
type Frame struct {
	Room    string
	Sender  string
	FrameID uint32
	Codec   Codec
	Width   uint16
	Height  uint16
	TS      uint64
	Data    []byte
}

type slotKey struct {
	sender  string
	frameID uint32
}

type slot struct {
	codec    Codec
	width    uint16
	height   uint16
	ts       uint64
	parts    [][]byte
	received int
	created  time.Time
}

// Reassembler groups chunks by (sender, frame id). Safe for concurrent use.
type Reassembler struct {
	mu    sync.Mutex
	slots map[slotKey]*slot
	ttl   time.Duration
	now   func() time.Time
}

func NewReassembler() *Reassembler {
	return &Reassembler{
		slots: make(map[slotKey]*slot),
		ttl:   StaleAfter,
		now:   time.Now,
	}
}

// Add stores c and returns the completed frame once every index has arrived.
// Duplicates, out-of-range indices and zero counts are ignored.
func (r *Reassembler) Add(c Chunk) (Frame, bool) {
	if c.Count == 0 || c.Index >= c.Count {
		return Frame{}, false
	}
	key := slotKey{sender: c.Sender, frameID: c.FrameID}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[key]
	if !ok {
		s = &slot{
			codec:   c.Codec,
			width:   c.Width,
			height:  c.Height,
			ts:      c.TS,
			parts:   make([][]byte, c.Count),
			created: r.now(),
		}
		r.slots[key] = s
	}
	if int(c.Index) >= len(s.parts) || s.parts[c.Index] != nil {
		return Frame{}, false
	}
	s.parts[c.Index] = append(make([]byte, 0, len(c.Data)), c.Data...)
	s.received++
	if s.received < len(s.parts) {
		return Frame{}, false
	}

	delete(r.slots, key)
	size := 0
	for _, p := range s.parts {
		size += len(p)
	}
	data := make([]byte, 0, size)
	for _, p := range s.parts {
		data = append(data, p...)
	}
	return Frame{
		Room:    c.Room,
		Sender:  c.Sender,
		FrameID: c.FrameID,
		Codec:   s.codec,
		Width:   s.width,
		Height:  s.height,
		TS:      s.ts,
		Data:    data,
	}, true
}

// Sweep drops slots older than the staleness window and returns how many were dropped.
func (r *Reassembler) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.ttl)
	n := 0
	for k, s := range r.slots {
		if s.created.Before(cutoff) {
			delete(r.slots, k)
			n++
		}
	}
	return n
}

// Pending returns the number of incomplete slots.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}
