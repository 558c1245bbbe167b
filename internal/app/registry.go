package app

import (
	"context"
	"sync"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

type binding struct {
	session core.MemberSession
	room    domain.RoomName
	cancel  context.CancelFunc
}

// Registry maps every live transport session to its member state and current room.
// Mutated only by the hub reactor; the lock serves readers such as the admin API.
type Registry struct {
	mu    sync.RWMutex
	binds map[core.SessionID]*binding
}

func NewRegistry() *Registry {
	return &Registry{binds: make(map[core.SessionID]*binding)}
}

// BindSignal creates the member session of a new connection. It starts outside any room.
func (r *Registry) BindSignal(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) core.MemberSession {
	sess := core.NewMemberSession(sid, domain.NewMember(&domain.User{ID: domain.UserID(sid)}), conn)
	r.mu.Lock()
	r.binds[sid] = &binding{session: sess, cancel: cancel}
	r.mu.Unlock()
	log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Msg("session bound")
	return sess
}

func (r *Registry) GetSession(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.binds[sid]
	if !ok {
		return nil, false
	}
	return b.session, true
}

// Assign records that sid joined room under identity.
func (r *Registry) Assign(sid core.SessionID, room domain.RoomName, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.binds[sid]
	if !ok {
		return core.ErrClosed
	}
	if err := b.session.Meta().User.SetUsername(identity); err != nil {
		return err
	}
	b.room = room
	return nil
}

// Detach clears the room of sid and returns the room it was in.
func (r *Registry) Detach(sid core.SessionID) (domain.RoomName, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.binds[sid]
	if !ok || b.room == "" {
		return "", false
	}
	prev := b.room
	b.room = ""
	return prev, true
}

func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.binds[sid]
	if !ok || b.room == "" {
		return "", false
	}
	return b.room, true
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	delete(r.binds, sid)
	r.mu.Unlock()
	log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Msg("session unbound")
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.binds)
}

// Cancel stops the transport goroutines of sid; cleanup follows through Disconnect.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	b, ok := r.binds[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if b.cancel != nil {
		b.cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("session canceled")
	return true
}
