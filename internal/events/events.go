// Package events fans hub membership changes out to an external pub/sub bus.
package events

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/protocol"
)

const TypeMembership = "membership"

type Event struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewEvent(eventType, roomID string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{Type: eventType, RoomID: roomID, Payload: data, Timestamp: time.Now()}, nil
}

type Publisher interface {
	Publish(ctx context.Context, channel string, ev *Event) error
	Close() error
}

// Notifier is a hub listener that queues membership changes and publishes them from Run.
// Events are dropped when the queue is full.
type Notifier struct {
	pub    Publisher
	prefix string
	queue  chan domain.MembershipEvent
}

func NewNotifier(pub Publisher, prefix string) *Notifier {
	if prefix == "" {
		prefix = "meet.room"
	}
	return &Notifier{pub: pub, prefix: prefix, queue: make(chan domain.MembershipEvent, 256)}
}

func (n *Notifier) Channel(room domain.RoomName) string {
	return n.prefix + "." + string(room)
}

func (n *Notifier) OnMembershipChanged(ev domain.MembershipEvent) {
	select {
	case n.queue <- ev:
	default:
		log.Warn().Str("module", "events").Str("room", string(ev.Room)).Msg("event queue full, dropping")
	}
}

func (n *Notifier) OnMessage(domain.RoomName, string, protocol.Message) {}

func (n *Notifier) Run(ctx context.Context) error {
	defer n.pub.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-n.queue:
			n.publish(ctx, ev)
		}
	}
}

func (n *Notifier) publish(ctx context.Context, ev domain.MembershipEvent) {
	e, err := NewEvent(TypeMembership, string(ev.Room), ev)
	if err != nil {
		log.Error().Err(err).Str("module", "events").Msg("encode event")
		return
	}
	e.Timestamp = ev.At
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := n.pub.Publish(pctx, n.Channel(ev.Room), e); err != nil {
		log.Warn().Err(err).Str("module", "events").Str("room", string(ev.Room)).Msg("publish failed")
	}
}
