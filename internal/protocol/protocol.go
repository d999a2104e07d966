// Package protocol defines the signaling wire format.
//
// Every WebSocket text frame carries one event:
//
//	{"event": "<name>", "data": <payload>}
//
// Event names and payload field names mirror the browser client, so the data
// object is unwrapped in a second pass once the event name is known.
//
// Example:
//
//	{"event":"user:call","data":{"to":"3f0c...","offer":{"type":"offer","sdp":"v=0..."}}}
package protocol

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
)

type Event string

// Inbound events.
const (
	RoomJoin     Event = "room:join"
	RoomLeave    Event = "room:leave"
	RequestUsers Event = "request:users"
	UserCall     Event = "user:call"
	CallCall     Event = "call:call"
	CallAccepted Event = "call:accepted"
	NegoNeeded   Event = "peer:nego:needed"
	NegoDone     Event = "peer:nego:done"
	CallEnded    Event = "call:ended"
	CameraToggle Event = "camera:toggle"
	MessagesSent Event = "messages:sent"
	MicMsg       Event = "micMsg"
	OpponentName Event = "send:opponent_from_calling"
	WhoAmI       Event = "whoami"
	Ping         Event = "ping"
)

// Outbound-only events.
const (
	UserJoined      Event = "user:joined"
	UserLeft        Event = "user:left"
	AllUsers        Event = "all:users"
	IncomingCall    Event = "incomming:call"
	NegoFinal       Event = "peer:nego:final"
	OpponentNameOut Event = "get:opponent_from_calling"
	RoomEvicted     Event = "room:evicted"
	RelayDropped    Event = "relay:dropped"
	Pong            Event = "pong"
	Error           Event = "error"
)

type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Route maps an inbound relay event to its message kind and the event name
// the recipient sees.
type Route struct {
	Kind domain.Kind
	Out  Event
}

var routes = map[Event]Route{
	UserCall:     {domain.KindCallOffer, IncomingCall},
	CallCall:     {domain.KindCallOffer, IncomingCall},
	CallAccepted: {domain.KindCallAnswer, CallAccepted},
	NegoNeeded:   {domain.KindRenegotiationOffer, NegoNeeded},
	NegoDone:     {domain.KindRenegotiationAnswer, NegoFinal},
	CallEnded:    {domain.KindCallEnded, CallEnded},
	CameraToggle: {domain.KindMediaToggle, CameraToggle},
	MessagesSent: {domain.KindChat, MessagesSent},
	MicMsg:       {domain.KindPresence, MicMsg},
	OpponentName: {domain.KindPresence, OpponentNameOut},
}

func RouteOf(ev Event) (Route, bool) {
	r, ok := routes[ev]
	return r, ok
}

// Decode unwraps the envelope only; Data stays raw.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return env, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	if env.Event == "" {
		return env, fmt.Errorf("%w: missing event", domain.ErrMalformedMessage)
	}
	return env, nil
}

func Encode(ev Event, data any) (core.Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return EncodeRaw(ev, raw)
}

func EncodeRaw(ev Event, data []byte) (core.Frame, error) {
	b, err := json.Marshal(Envelope{Event: ev, Data: data})
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}

// routingFields are stripped before a payload is handed to its recipient.
var routingFields = []string{"to", "socketid", "from"}

// Stamp replaces the routing fields of an inbound data object with the
// sender's connection id. Other fields are copied byte for byte.
func Stamp(data []byte, from domain.ConnectionID) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("%w: data must be an object", domain.ErrMalformedMessage)
		}
	}
	for _, k := range routingFields {
		delete(fields, k)
	}
	id, err := json.Marshal(string(from))
	if err != nil {
		return nil, err
	}
	fields["from"] = id
	return json.Marshal(fields)
}
