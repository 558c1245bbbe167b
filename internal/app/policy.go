package app

import (
	"strings"

	"github.com/dkeye/Meet/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a member that was skipped for being over its backlog.
type Policy interface {
	OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction
}

// SimplePolicy drops the frame for that member and keeps the connection.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(core.RoomService, core.MemberSession) BackpressureAction {
	return DropFrame
}

// KickPolicy disconnects members that cannot keep up.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(core.RoomService, core.MemberSession) BackpressureAction {
	return KickMember
}

// PolicyByName maps the hub.policy config value; unknown names fall back to SimplePolicy.
func PolicyByName(name string) Policy {
	switch strings.ToLower(name) {
	case "kick":
		return KickPolicy{}
	default:
		return SimplePolicy{}
	}
}
