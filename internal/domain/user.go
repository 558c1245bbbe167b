// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const MaxIdentityLen = 64

var (
	ErrIdentityTooLong = errors.New("identity too long")
	ErrRoomIDEmpty     = errors.New("room id empty")
)

type UserID string

// User is the advisory display identity a session supplies on join.
// Identities are not unique; two sessions may share one.
type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

// NormalizeIdentity trims name and falls back to "peer-<first 8 of sid>" when it is empty.
func NormalizeIdentity(name, sid string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) > MaxIdentityLen {
		return "", ErrIdentityTooLong
	}
	if name == "" {
		if len(sid) > 8 {
			sid = sid[:8]
		}
		name = "peer-" + sid
	}
	return name, nil
}

func (u *User) SetUsername(username string) error {
	if len(username) > MaxIdentityLen {
		return ErrIdentityTooLong
	}
	u.Username = username
	return nil
}
