package app

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
	"github.com/dkeye/callroom/internal/metrics"
	"github.com/dkeye/callroom/internal/protocol"
)

// Outcome of a single delivery attempt.
type Outcome int

const (
	Delivered Outcome = iota
	Dropped
)

func (o Outcome) String() string {
	if o == Delivered {
		return "delivered"
	}
	return "dropped"
}

// kindSystem labels coordinator-originated events in metrics.
const kindSystem domain.Kind = "system"

// Relay routes encoded events to per-connection outbound channels. It does
// not wait for acknowledgement and never retries.
type Relay struct {
	Registry *Registry
	Rooms    *RoomTable
	Policy   Policy
	Metrics  *metrics.Metrics
}

func NewRelay(reg *Registry, rooms *RoomTable, policy Policy, m *metrics.Metrics) *Relay {
	return &Relay{Registry: reg, Rooms: rooms, Policy: policy, Metrics: m}
}

// RelayTargeted delivers msg to exactly msg.To. An unregistered target
// yields Dropped with domain.ErrNotFound.
func (r *Relay) RelayTargeted(msg domain.Message) (Outcome, error) {
	if msg.To == "" {
		return Dropped, fmt.Errorf("relay %s: missing target: %w", msg.Kind, domain.ErrMalformedMessage)
	}
	frame, err := r.encode(msg)
	if err != nil {
		return Dropped, err
	}
	out, err := r.deliver(msg.To, msg.Kind, frame)
	if err != nil {
		log.Warn().Str("module", "app.relay").
			Str("kind", string(msg.Kind)).
			Str("from", string(msg.From)).
			Str("to", string(msg.To)).
			Err(err).
			Msg("targeted relay dropped")
	}
	return out, err
}

// BroadcastToRoom delivers msg to every member of room except exclude and
// returns the number of recipients that accepted it. A payload that is not
// a JSON object fails with domain.ErrMalformedMessage before anything is sent.
func (r *Relay) BroadcastToRoom(room domain.RoomID, msg domain.Message, exclude domain.ConnectionID) (int, error) {
	frame, err := r.encode(msg)
	if err != nil {
		return 0, fmt.Errorf("broadcast %s: %w", msg.Kind, err)
	}
	return r.fanout(r.Rooms.MembersOf(room), exclude, msg.Kind, frame), nil
}

// Send delivers a coordinator-originated event to one connection.
func (r *Relay) Send(to domain.ConnectionID, ev protocol.Event, data any) (Outcome, error) {
	frame, err := protocol.Encode(ev, data)
	if err != nil {
		return Dropped, err
	}
	return r.deliver(to, kindSystem, frame)
}

// SendTo delivers a coordinator-originated event to each listed connection
// except exclude.
func (r *Relay) SendTo(targets []domain.ConnectionID, exclude domain.ConnectionID, ev protocol.Event, data any) int {
	frame, err := protocol.Encode(ev, data)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Str("event", string(ev)).Msg("encode event")
		return 0
	}
	return r.fanout(targets, exclude, kindSystem, frame)
}

func (r *Relay) fanout(targets []domain.ConnectionID, exclude domain.ConnectionID, kind domain.Kind, frame core.Frame) int {
	sent := 0
	for _, id := range targets {
		if id == exclude {
			continue
		}
		if out, _ := r.deliver(id, kind, frame); out == Delivered {
			sent++
		}
	}
	log.Debug().Str("module", "app.relay").Str("kind", string(kind)).Int("sent_to", sent).Msg("broadcast result")
	return sent
}

func (r *Relay) encode(msg domain.Message) (core.Frame, error) {
	data, err := protocol.Stamp(msg.Payload, msg.From)
	if err != nil {
		return nil, err
	}
	return protocol.EncodeRaw(protocol.Event(msg.Topic), data)
}

func (r *Relay) deliver(to domain.ConnectionID, kind domain.Kind, frame core.Frame) (Outcome, error) {
	sig, ok := r.Registry.Signal(to)
	if !ok {
		r.Metrics.Relay(string(kind), metrics.OutcomeDroppedNotFound)
		return Dropped, fmt.Errorf("deliver to %s: %w", to, domain.ErrNotFound)
	}
	err := sig.TrySend(frame)
	switch {
	case err == nil:
		r.Metrics.Relay(string(kind), metrics.OutcomeDelivered)
		return Delivered, nil
	case errors.Is(err, domain.ErrBackpressure):
		r.Metrics.Relay(string(kind), metrics.OutcomeDroppedBackpressure)
		r.onBackpressure(to, kind, sig)
		return Dropped, fmt.Errorf("deliver to %s: %w", to, err)
	default:
		// closed channel: the connection is going away
		r.Metrics.Relay(string(kind), metrics.OutcomeDroppedNotFound)
		return Dropped, fmt.Errorf("deliver to %s: %w: %w", to, domain.ErrNotFound, err)
	}
}

func (r *Relay) onBackpressure(to domain.ConnectionID, kind domain.Kind, sig core.SignalConnection) {
	if r.Policy == nil {
		return
	}
	switch r.Policy.OnBackPressure(to, kind) {
	case KickMember:
		log.Warn().Str("module", "app.relay").Str("conn", string(to)).Msg("slow consumer, closing connection")
		sig.Close()
	case DropFrame, NoAction:
	}
}
