package app

import (
	"cmp"
	"slices"
	"sync"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

// roomTable holds the live rooms. A room exists from its first join until its last member leaves.
type roomTable struct {
	mu    sync.RWMutex
	rooms map[domain.RoomName]core.RoomService
}

func NewRoomManager() core.RoomManager {
	return &roomTable{rooms: make(map[domain.RoomName]core.RoomService)}
}

func (t *roomTable) GetOrCreate(name domain.RoomName) core.RoomService {
	t.mu.Lock()
	defer t.mu.Unlock()
	if room, ok := t.rooms[name]; ok {
		return room
	}
	room := core.NewRoomService(&domain.Room{Name: name})
	t.rooms[name] = room
	return room
}

func (t *roomTable) Get(name domain.RoomName) (core.RoomService, bool) {
	t.mu.RLock()
	room, ok := t.rooms[name]
	t.mu.RUnlock()
	return room, ok
}

// List is sorted by room name.
func (t *roomTable) List() []core.RoomInfo {
	t.mu.RLock()
	out := make([]core.RoomInfo, 0, len(t.rooms))
	for name, room := range t.rooms {
		out = append(out, core.RoomInfo{Name: name, MemberCount: room.MemberCount(), Members: room.Identities()})
	}
	t.mu.RUnlock()
	slices.SortFunc(out, func(a, b core.RoomInfo) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

func (t *roomTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rooms)
}

func (t *roomTable) Remove(name domain.RoomName) {
	t.mu.Lock()
	delete(t.rooms, name)
	t.mu.Unlock()
}
