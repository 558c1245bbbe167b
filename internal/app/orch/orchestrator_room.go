package orch

import (
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) join(sess core.MemberSession, msg protocol.Message) {
	sid := sess.SID()
	h, err := protocol.ParseHeader(msg.Type, msg.RawHeader)
	if err != nil {
		o.nack(sess, 400, "bad join header")
		return
	}
	jh := h.(protocol.JoinHeader)
	roomName, err := domain.ParseRoomName(jh.RoomID)
	if err != nil {
		o.nack(sess, 400, "roomId required")
		return
	}
	identity, err := domain.NormalizeIdentity(jh.User, string(sid))
	if err != nil {
		o.nack(sess, 400, err.Error())
		return
	}
	if !o.Limiter.Allow(sid) {
		o.nack(sess, 429, "too many joins")
		return
	}

	if prev, ok := o.Registry.RoomOf(sid); ok {
		if prev == roomName {
			if room, ok := o.Rooms.Get(prev); ok {
				room.RemoveMember(sid)
			}
		} else {
			// switching rooms is silent for the old room's clients
			o.leaveRoom(sess, false)
		}
	}

	if err := o.Registry.Assign(sid, roomName, identity); err != nil {
		o.nack(sess, 400, err.Error())
		return
	}
	room := o.Rooms.GetOrCreate(roomName)
	room.AddMember(sess)
	o.Metrics.SetRooms(o.Rooms.Len())
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomName)).Str("user", identity).Msg("joined")

	o.reply(sess, protocol.ServerEventHeader{Code: 0, Message: "joined", RoomID: string(roomName)})
	members := room.Identities()
	o.reply(sess, roomEvent("snapshot", roomName, identity, members))
	o.broadcastEvent(room, domain.EventJoin, identity, members)
}

// leaveRoom removes sess from its room. With announce set the remaining members get a
// "leave" event; listeners are told in every case.
func (o *Orchestrator) leaveRoom(sess core.MemberSession, announce bool) {
	sid := sess.SID()
	roomName, ok := o.Registry.Detach(sid)
	if !ok {
		return
	}
	room, ok := o.Rooms.Get(roomName)
	if !ok {
		return
	}
	room.RemoveMember(sid)
	identity := sess.Meta().User.Username
	members := room.Identities()
	if room.MemberCount() == 0 {
		o.Rooms.Remove(roomName)
		o.Metrics.SetRooms(o.Rooms.Len())
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomName)).Msg("left room")

	if announce {
		o.broadcastEvent(room, domain.EventLeave, identity, members)
		return
	}
	o.notifyMembership(domain.MembershipEvent{
		Room: roomName, Kind: domain.EventLeave, Who: identity, Members: members, At: time.Now(),
	})
}

func (o *Orchestrator) leave(sess core.MemberSession) {
	if _, ok := o.Registry.RoomOf(sess.SID()); !ok {
		o.nack(sess, 403, "join a room first")
		return
	}
	o.leaveRoom(sess, true)
	o.reply(sess, protocol.ServerEventHeader{Code: 0, Message: "left"})
}

// broadcastEvent pushes a membership event to every member of room and then to listeners.
func (o *Orchestrator) broadcastEvent(room core.RoomService, kind domain.EventKind, who string, members []string) {
	name := room.Room().Name
	frame, err := protocol.Encode(protocol.MsgServerEvent, roomEvent(string(kind), name, who, members), nil)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode room event")
		return
	}
	room.Broadcast("", frame, false, 0)
	o.notifyMembership(domain.MembershipEvent{
		Room: name, Kind: kind, Who: who, Members: members, At: time.Now(),
	})
}

func roomEvent(event string, room domain.RoomName, who string, members []string) protocol.ServerEventHeader {
	if members == nil {
		members = []string{}
	}
	return protocol.ServerEventHeader{
		Code:    0,
		Kind:    "room",
		Event:   event,
		RoomID:  string(room),
		Who:     who,
		Members: members,
		TS:      time.Now().UnixMilli(),
	}
}

// KickBySID drops a session's transport; the membership cleanup follows its disconnect.
func (o *Orchestrator) KickBySID(sid core.SessionID) {
	o.Registry.Cancel(sid)
}
