package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
)

// RoomID is chosen by whoever joins first; there is no issuing authority.
type RoomID string

type RoomInfo struct {
	ID          RoomID `json:"id"`
	MemberCount int    `json:"member_count"`
}

// Member is the read-only view of a room member handed to clients.
type Member struct {
	ID       ConnectionID `json:"socketid"`
	Identity Identity     `json:"username"`
}

func NewRoomID(raw string, maxLen int) (RoomID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrRoomIDEmpty
	}
	if maxLen <= 0 {
		maxLen = MaxRoomIDLen
	}
	if len(s) > maxLen {
		return "", fmt.Errorf("%w: %d > %d", ErrRoomIDTooLong, len(s), maxLen)
	}
	return RoomID(s), nil
}
