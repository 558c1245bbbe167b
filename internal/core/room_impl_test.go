package core

import (
	"testing"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	sent     []Frame
	buffered int
	err      error
}

func (c *fakeConn) TrySend(f Frame) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, f)
	return nil
}
func (c *fakeConn) Buffered() int { return c.buffered }
func (c *fakeConn) Close()        {}

func member(sid, name string) (MemberSession, *fakeConn) {
	conn := &fakeConn{}
	return NewMemberSession(SessionID(sid), domain.NewMember(&domain.User{ID: domain.UserID(sid), Username: name}), conn), conn
}

func TestIdentitiesDeduplicatedAndSorted(t *testing.T) {
	r := NewRoomService(&domain.Room{Name: "R1"})
	for sid, name := range map[string]string{"s1": "carol", "s2": "alice", "s3": "bob", "s4": "alice"} {
		ms, _ := member(sid, name)
		r.AddMember(ms)
	}
	assert.Equal(t, 4, r.MemberCount())
	assert.Equal(t, []string{"alice", "bob", "carol"}, r.Identities())

	snap := r.MembersSnapshot()
	require.Len(t, snap, 4)
	assert.Equal(t, "alice", snap[0].Username)
	assert.Equal(t, SessionID("s2"), snap[0].SID)

	assert.True(t, r.RemoveMember("s2"))
	assert.False(t, r.RemoveMember("s2"))
	assert.Equal(t, []string{"alice", "bob", "carol"}, r.Identities())
}

func TestBroadcastSkipsSenderAndSlowRecipients(t *testing.T) {
	r := NewRoomService(&domain.Room{Name: "R1"})
	a, ca := member("a", "alice")
	b, cb := member("b", "bob")
	c, cc := member("c", "carol")
	for _, m := range []MemberSession{a, b, c} {
		r.AddMember(m)
	}
	cc.buffered = 4 << 20

	res := r.Broadcast("a", Frame("video"), true, 3<<20)
	assert.Equal(t, 1, res.SendTo)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, SessionID("c"), res.Skipped[0].SID())
	assert.Empty(t, ca.sent)
	assert.Equal(t, []Frame{Frame("video")}, cb.sent)
	assert.Empty(t, cc.sent)

	res = r.Broadcast("a", Frame("text"), false, 3<<20)
	assert.Equal(t, 2, res.SendTo)
	assert.Equal(t, []Frame{Frame("text")}, cc.sent)

	res = r.Broadcast("", Frame("event"), false, 0)
	assert.Equal(t, 3, res.SendTo)
}

func TestBroadcastReportsRefusedSends(t *testing.T) {
	r := NewRoomService(&domain.Room{Name: "R1"})
	a, _ := member("a", "alice")
	b, cb := member("b", "bob")
	r.AddMember(a)
	r.AddMember(b)
	cb.err = ErrBackpressure

	res := r.Broadcast("a", Frame("x"), false, 0)
	assert.Zero(t, res.SendTo)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, SessionID("b"), res.Dropped[0].SID())
}
