package protocol

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/dkeye/callroom/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type JoinRequest struct {
	Identity string `json:"email" validate:"required"`
	Room     string `json:"room" validate:"required"`
}

type UsersRequest struct {
	Room string `json:"room"`
}

// TargetedRequest holds the only field the relay reads from a targeted event.
type TargetedRequest struct {
	To string `json:"to" validate:"required"`
}

type UserEvent struct {
	Identity domain.Identity     `json:"email"`
	ID       domain.ConnectionID `json:"id"`
}

type WhoAmIEvent struct {
	ID       domain.ConnectionID `json:"id"`
	Identity domain.Identity     `json:"email,omitempty"`
	Room     domain.RoomID       `json:"room,omitempty"`
	Client   domain.ClientToken  `json:"client,omitempty"`
}

type DroppedEvent struct {
	To     domain.ConnectionID `json:"to"`
	Event  Event               `json:"event"`
	Reason string              `json:"reason"`
}

type ErrorEvent struct {
	Event Event  `json:"event,omitempty"`
	Error string `json:"error"`
}

type RoomEvent struct {
	Room domain.RoomID `json:"room"`
}

// Bind unmarshals data into v and runs struct validation. Every failure
// wraps domain.ErrMalformedMessage.
func Bind(data []byte, v any) error {
	if len(data) == 0 {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	return nil
}

// Raw passes an already encoded data object through unchanged.
func Raw(data []byte) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("{}")
	}
	return json.RawMessage(data)
}
