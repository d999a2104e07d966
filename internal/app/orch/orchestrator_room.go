package orch

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/domain"
	"github.com/dkeye/callroom/internal/protocol"
)

func (o *Orchestrator) handleJoin(id domain.ConnectionID, data []byte) error {
	var req protocol.JoinRequest
	if err := protocol.Bind(data, &req); err != nil {
		return err
	}
	identity, err := domain.NewIdentity(req.Identity, o.Options.MaxIdentityLen)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	room, err := domain.NewRoomID(req.Room, o.Options.MaxRoomLen)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	return o.Join(id, identity, room, data)
}

// Join binds the identity, adds the connection to room, echoes the join to
// the joiner with the post-join member list and announces the joiner to the
// members that were already present.
func (o *Orchestrator) Join(id domain.ConnectionID, identity domain.Identity, room domain.RoomID, echo []byte) error {
	if cur, ok := o.Rooms.RoomOf(id); ok && cur != room {
		return fmt.Errorf("join %s: connection in %s: %w", room, cur, domain.ErrAlreadyMember)
	}
	if o.StateOf(id) == domain.StateConnected {
		if err := o.Registry.BindIdentity(id, identity); err != nil {
			return err
		}
	}
	prior, fresh, err := o.Rooms.Join(room, id)
	if err != nil {
		return err
	}
	if err := o.Registry.SetRoom(id, room); err != nil {
		o.Rooms.Leave(room, id)
		return err
	}

	_, _ = o.Relay.Send(id, protocol.RoomJoin, protocol.Raw(echo))
	_, _ = o.Relay.Send(id, protocol.AllUsers, o.Users(room))
	if !fresh {
		log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(room)).Msg("rejoin ignored")
		return nil
	}
	conn, _ := o.Registry.Lookup(id)
	n := o.Relay.SendTo(prior, id, protocol.UserJoined, protocol.UserEvent{Identity: conn.Identity, ID: id})
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(room)).Int("notified", n).Msg("joined room")
	return nil
}

func (o *Orchestrator) handleLeave(id domain.ConnectionID, _ []byte) error {
	room, ok := o.Leave(id)
	if ok {
		_, _ = o.Relay.Send(id, protocol.RoomLeave, protocol.RoomEvent{Room: room})
	}
	return nil
}

// Leave removes the connection from its room, tears down its calls and
// tells the remaining members. The connection stays registered.
func (o *Orchestrator) Leave(id domain.ConnectionID) (domain.RoomID, bool) {
	room, ok := o.Rooms.RoomOf(id)
	if !ok {
		return "", false
	}
	conn, _ := o.Registry.Lookup(id)
	if !o.Rooms.Leave(room, id) {
		return "", false
	}
	_ = o.Registry.SetRoom(id, "")
	o.Calls.Drop(id)

	n := o.Relay.SendTo(o.Rooms.MembersOf(room), id, protocol.UserLeft, protocol.UserEvent{Identity: conn.Identity, ID: id})
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("room", string(room)).Int("notified", n).Msg("left room")
	return room, true
}

func (o *Orchestrator) handleRequestUsers(id domain.ConnectionID, data []byte) error {
	var req protocol.UsersRequest
	if err := protocol.Bind(data, &req); err != nil {
		return err
	}
	room := domain.RoomID(req.Room)
	if room == "" {
		room, _ = o.Rooms.RoomOf(id)
	}
	_, _ = o.Relay.Send(id, protocol.AllUsers, o.Users(room))
	return nil
}

// Users is the membership snapshot of room in join order.
func (o *Orchestrator) Users(room domain.RoomID) []domain.Member {
	ids := o.Rooms.MembersOf(room)
	out := make([]domain.Member, 0, len(ids))
	for _, id := range ids {
		conn, err := o.Registry.Lookup(id)
		if err != nil {
			continue
		}
		out = append(out, domain.Member{ID: id, Identity: conn.Identity})
	}
	return out
}

// EvictRoom removes every member of room as if each had left and tells
// them so. It returns the number of evicted connections.
func (o *Orchestrator) EvictRoom(room domain.RoomID) int {
	members := o.Rooms.MembersOf(room)
	for _, id := range members {
		o.Leave(id)
		_, _ = o.Relay.Send(id, protocol.RoomEvicted, protocol.RoomEvent{Room: room})
	}
	log.Info().Str("module", "orch").Str("room", string(room)).Int("evicted", len(members)).Msg("room evicted")
	return len(members)
}

func (o *Orchestrator) handleWhoAmI(id domain.ConnectionID, _ []byte) error {
	conn, err := o.Registry.Lookup(id)
	if err != nil {
		return err
	}
	_, _ = o.Relay.Send(id, protocol.WhoAmI, protocol.WhoAmIEvent{
		ID:       conn.ID,
		Identity: conn.Identity,
		Room:     conn.Room,
		Client:   conn.Client,
	})
	return nil
}

func (o *Orchestrator) handlePing(id domain.ConnectionID, _ []byte) error {
	_, _ = o.Relay.Send(id, protocol.Pong, struct{}{})
	return nil
}
