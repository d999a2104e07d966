// Package domain holds the identifiers, entities and error taxonomy shared by
// every layer, with the constructors that validate them.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

const (
	MaxIdentityLen = 254
	MaxRoomIDLen   = 128
)

var (
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
)

type (
	ConnectionID string
	Identity     string
	// ClientToken identifies a browser (cookie scoped), not a tab.
	ClientToken string
)

// Connection is one live transport session.
type Connection struct {
	ID       ConnectionID `json:"id"`
	Identity Identity     `json:"identity,omitempty"`
	Room     RoomID       `json:"room,omitempty"`
	Client   ClientToken  `json:"client,omitempty"`
}

// Joined reports whether the connection has a room assigned.
func (c Connection) Joined() bool { return c.Room != "" }

func NewIdentity(raw string, maxLen int) (Identity, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrIdentityEmpty
	}
	if maxLen <= 0 {
		maxLen = MaxIdentityLen
	}
	if len(s) > maxLen {
		return "", fmt.Errorf("%w: %d > %d", ErrIdentityTooLong, len(s), maxLen)
	}
	return Identity(s), nil
}
