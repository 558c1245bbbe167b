package core

import (
	"github.com/dkeye/Meet/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo int
	// Skipped recipients were over the backlog threshold for a droppable frame.
	Skipped []MemberSession
	// Dropped recipients refused the frame (queue full or closed).
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	SID      SessionID `json:"sid"`
	Username string    `json:"username"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []MemberDTO
	// Identities returns the deduplicated, sorted display identities.
	Identities() []string

	AddMember(ms MemberSession)
	RemoveMember(sid SessionID) bool
	// Broadcast sends f to every member except from (empty from reaches everyone).
	// When droppable is set, members with more than threshold bytes buffered are skipped.
	Broadcast(from SessionID, f Frame, droppable bool, threshold int) PublishResult
}

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"client_count"`
	Members     []string        `json:"members"`
}

type RoomManager interface {
	GetOrCreate(name domain.RoomName) RoomService
	Get(name domain.RoomName) (RoomService, bool)
	List() []RoomInfo
	Len() int
	Remove(name domain.RoomName)
}
