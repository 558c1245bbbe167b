package domain

import (
	"strings"
	"time"
)

type RoomName string

type Room struct {
	Name      RoomName
	CreatedAt time.Time
}

// ParseRoomName trims id and rejects an empty result. Length is bounded only by the header cap.
func ParseRoomName(id string) (RoomName, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrRoomIDEmpty
	}
	return RoomName(id), nil
}
