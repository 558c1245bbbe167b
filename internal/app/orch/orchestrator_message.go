package orch

import (
	"fmt"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) handleMessage(sid core.SessionID, msg protocol.Message) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	o.Metrics.IncMessage(msg.Type.String())

	switch msg.Type {
	case protocol.MsgJoin:
		o.join(sess, msg)
		return
	case protocol.MsgLeave:
		o.leave(sess)
		return
	}

	roomName, joined := o.Registry.RoomOf(sid)
	if !joined {
		o.nack(sess, 403, "join a room first")
		return
	}
	if !msg.Type.Relayable() && !msg.Type.Reserved() {
		o.nack(sess, 404, fmt.Sprintf("unknown type %d", uint16(msg.Type)))
		return
	}
	if _, err := msg.Header(); err != nil {
		o.nack(sess, 400, "malformed header")
		return
	}
	room, ok := o.Rooms.Get(roomName)
	if !ok {
		return
	}

	o.notifyMessage(roomName, sess.Meta().User.Username, msg)

	res := room.Broadcast(sid, core.Frame(msg.Raw), msg.Type.Droppable(), o.Threshold)
	if len(res.Skipped) > 0 {
		o.Metrics.AddBackpressureDrops(len(res.Skipped))
		o.applyPolicy(room, res.Skipped)
	}
	for _, m := range res.Dropped {
		log.Debug().Str("module", "orch").Str("sid", string(m.SID())).Str("type", msg.Type.String()).Msg("send refused")
	}
}

func (o *Orchestrator) applyPolicy(room core.RoomService, slow []core.MemberSession) {
	for _, m := range slow {
		switch o.Policy.OnBackPressure(room, m) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(m.SID())).Msg("kicking slow member")
			o.KickBySID(m.SID())
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
}

func (o *Orchestrator) reply(sess core.MemberSession, h protocol.ServerEventHeader) {
	frame, err := protocol.Encode(protocol.MsgServerEvent, h, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode server event")
		return
	}
	if err := sess.Signal().TrySend(frame); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(sess.SID())).Msg("reply dropped")
	}
}

func (o *Orchestrator) nack(sess core.MemberSession, code int, message string) {
	log.Debug().Str("module", "orch").Str("sid", string(sess.SID())).Int("code", code).Str("reason", message).Msg("nack")
	o.reply(sess, protocol.ServerEventHeader{Code: code, Message: message})
}
