package domain

import "time"

type EventKind string

const (
	EventJoin  EventKind = "join"
	EventLeave EventKind = "leave"
)

// MembershipEvent is emitted by the hub after every membership change.
// Members is the deduplicated, sorted identity list after the change.
type MembershipEvent struct {
	Room    RoomName  `json:"room_id"`
	Kind    EventKind `json:"kind"`
	Who     string    `json:"who"`
	Members []string  `json:"members"`
	At      time.Time `json:"ts"`
}

// Empty reports whether the room has no members left.
func (e MembershipEvent) Empty() bool { return len(e.Members) == 0 }
