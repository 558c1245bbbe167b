package core

import "github.com/dkeye/Meet/internal/domain"

// MemberSession binds domain.Member and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	SID() SessionID
	Meta() *domain.Member
	Signal() SignalConnection
}
