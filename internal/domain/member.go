package domain

import "time"

// Member represents user's participation meta for a room.
// No transport or lifecycle logic here.
type Member struct {
	User     *User
	JoinedAt time.Time
}

func NewMember(user *User) *Member {
	return &Member{User: user, JoinedAt: time.Now()}
}
