package orch

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/app"
	"github.com/dkeye/callroom/internal/domain"
	"github.com/dkeye/callroom/internal/protocol"
)

func (o *Orchestrator) relayHandler(ev protocol.Event, route protocol.Route) func(domain.ConnectionID, []byte) error {
	return func(id domain.ConnectionID, data []byte) error {
		msg := domain.Message{
			Kind:    route.Kind,
			Topic:   string(route.Out),
			From:    id,
			Payload: data,
		}
		if !route.Kind.Targeted() {
			room, _ := o.Rooms.RoomOf(id)
			n, err := o.Relay.BroadcastToRoom(room, msg, id)
			if err != nil {
				return err
			}
			log.Debug().Str("module", "orch").Str("event", string(ev)).Str("room", string(room)).Int("sent_to", n).Msg("room broadcast")
			return nil
		}

		var req protocol.TargetedRequest
		if err := protocol.Bind(data, &req); err != nil {
			return err
		}
		msg.To = domain.ConnectionID(req.To)
		out, err := o.Relay.RelayTargeted(msg)
		if errors.Is(err, domain.ErrMalformedMessage) {
			return err
		}
		o.track(msg, out)
		if out == app.Dropped {
			o.dropped(ev, msg, err)
		}
		return nil
	}
}

// track advances the per-pair call state.
func (o *Orchestrator) track(msg domain.Message, out app.Outcome) {
	switch msg.Kind {
	case domain.KindCallOffer:
		if out == app.Delivered {
			o.Calls.Offer(msg.From, msg.To)
		}
	case domain.KindCallAnswer:
		if out == app.Delivered && o.Calls.Answer(msg.From, msg.To) {
			log.Info().Str("module", "orch").Str("a", string(msg.From)).Str("b", string(msg.To)).Msg("call established")
		}
	case domain.KindCallEnded:
		if o.Calls.End(msg.From, msg.To) {
			log.Info().Str("module", "orch").Str("a", string(msg.From)).Str("b", string(msg.To)).Msg("call ended")
		}
	}
}

func (o *Orchestrator) dropped(ev protocol.Event, msg domain.Message, err error) {
	if !o.Options.NotifyDropped {
		return
	}
	reason := "not_found"
	if errors.Is(err, domain.ErrBackpressure) {
		reason = "backpressure"
	}
	_, _ = o.Relay.Send(msg.From, protocol.RelayDropped, protocol.DroppedEvent{To: msg.To, Event: ev, Reason: reason})
}
