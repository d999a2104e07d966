// Package orch wires the registry, room table, call table and relay
// together in response to connection lifecycle events.
package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/app"
	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
	"github.com/dkeye/callroom/internal/metrics"
	"github.com/dkeye/callroom/internal/protocol"
)

type Options struct {
	// NotifyDropped answers the sender of an undeliverable targeted event
	// with relay:dropped instead of dropping it silently.
	NotifyDropped  bool
	MaxIdentityLen int
	MaxRoomLen     int
}

// Orchestrator is the session coordinator. Each instance owns its state;
// nothing is process-wide.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomTable
	Calls    *app.CallTable
	Relay    *app.Relay
	Metrics  *metrics.Metrics
	Options  Options

	handlers map[protocol.Event]handler
}

func New(opts Options, policy app.Policy, m *metrics.Metrics) *Orchestrator {
	reg := app.NewRegistry(m)
	rooms := app.NewRoomTable(m)
	o := &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Calls:    app.NewCallTable(),
		Relay:    app.NewRelay(reg, rooms, policy, m),
		Metrics:  m,
		Options:  opts,
	}
	o.handlers = o.routes()
	return o
}

// Connect registers a freshly opened transport session.
func (o *Orchestrator) Connect(id domain.ConnectionID, client domain.ClientToken, sig core.SignalConnection) {
	o.Registry.Register(id, client, sig)
}

// OnDisconnect removes every trace of the connection and tells the rest of
// its room that it left. Safe to call more than once.
func (o *Orchestrator) OnDisconnect(id domain.ConnectionID) {
	if room, ok := o.Leave(id); ok {
		log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(room)).Msg("disconnected from room")
	}
	o.Calls.Drop(id)
	o.Registry.Unregister(id)
}

// StateOf derives the coarse state of a connection.
func (o *Orchestrator) StateOf(id domain.ConnectionID) domain.State {
	conn, err := o.Registry.Lookup(id)
	switch {
	case err != nil:
		return domain.StateDisconnected
	case !conn.Joined():
		return domain.StateConnected
	case o.Calls.InCall(id):
		return domain.StateInCall
	default:
		return domain.StateJoined
	}
}
