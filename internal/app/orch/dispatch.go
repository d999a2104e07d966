package orch

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/domain"
	"github.com/dkeye/callroom/internal/metrics"
	"github.com/dkeye/callroom/internal/protocol"
)

type handler struct {
	allowed domain.StateSet
	fn      func(id domain.ConnectionID, data []byte) error
}

var (
	anyLive = domain.States(domain.StateConnected, domain.StateJoined, domain.StateInCall)
	inRoom  = domain.States(domain.StateJoined, domain.StateInCall)
)

// routes is the dispatch table: permitted states and handler per event.
func (o *Orchestrator) routes() map[protocol.Event]handler {
	h := map[protocol.Event]handler{
		protocol.RoomJoin:     {anyLive, o.handleJoin},
		protocol.RoomLeave:    {inRoom, o.handleLeave},
		protocol.RequestUsers: {inRoom, o.handleRequestUsers},
		protocol.WhoAmI:       {anyLive, o.handleWhoAmI},
		protocol.Ping:         {anyLive, o.handlePing},
	}
	for _, ev := range []protocol.Event{
		protocol.UserCall, protocol.CallCall, protocol.CallAccepted,
		protocol.NegoNeeded, protocol.NegoDone, protocol.CallEnded,
		protocol.CameraToggle, protocol.MessagesSent, protocol.MicMsg, protocol.OpponentName,
	} {
		route, _ := protocol.RouteOf(ev)
		h[ev] = handler{inRoom, o.relayHandler(ev, route)}
	}
	return h
}

// Dispatch decodes one inbound frame and runs its handler. Errors never
// affect other connections; they are logged and reported to the sender.
func (o *Orchestrator) Dispatch(id domain.ConnectionID, frame []byte) error {
	env, err := protocol.Decode(frame)
	if err != nil {
		o.reject(id, "", err)
		return err
	}
	err = o.dispatch(id, env)
	if err != nil {
		o.reject(id, env.Event, err)
	}
	return err
}

func (o *Orchestrator) dispatch(id domain.ConnectionID, env protocol.Envelope) error {
	h, ok := o.handlers[env.Event]
	if !ok {
		return fmt.Errorf("%w: unknown event %q", domain.ErrMalformedMessage, env.Event)
	}
	if st := o.StateOf(id); !h.allowed.Has(st) {
		return fmt.Errorf("%s in state %s: %w", env.Event, st, domain.ErrInvalidTransition)
	}
	o.Metrics.Event(string(env.Event))
	return h.fn(id, env.Data)
}

func (o *Orchestrator) reject(id domain.ConnectionID, ev protocol.Event, err error) {
	reason := metrics.RejectMalformed
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		reason = metrics.RejectInvalidTransition
	case errors.Is(err, domain.ErrAlreadyMember):
		reason = metrics.RejectAlreadyMember
	case errors.Is(err, domain.ErrRateLimited):
		reason = metrics.RejectRateLimited
	}
	o.Metrics.Reject(reason)
	log.Warn().Err(err).Str("module", "orch").Str("conn", string(id)).Str("event", string(ev)).Msg("event rejected")
	_, _ = o.Relay.Send(id, protocol.Error, protocol.ErrorEvent{Event: ev, Error: err.Error()})
}

// Throttle answers a frame the transport refused to dispatch because the
// sender exceeded its event rate.
func (o *Orchestrator) Throttle(id domain.ConnectionID) {
	o.reject(id, "", domain.ErrRateLimited)
}
