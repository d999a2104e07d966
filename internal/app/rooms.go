package app

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/callroom/internal/domain"
	"github.com/dkeye/callroom/internal/metrics"
)

// roomEntry is one room's member set. Once closed it is never reused;
// joiners that observe a closed room go back to the table for a fresh one.
type roomEntry struct {
	id      domain.RoomID
	mu      sync.Mutex
	members map[domain.ConnectionID]uint64
	seq     uint64
	closed  atomic.Bool
}

func (r *roomEntry) snapshotLocked(exclude domain.ConnectionID) []domain.ConnectionID {
	out := make([]domain.ConnectionID, 0, len(r.members))
	for id := range r.members {
		if id != exclude {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.members[out[i]] < r.members[out[j]] })
	return out
}

// RoomTable maps room ids to member sets. Each room has its own lock, so
// different rooms are mutated in parallel.
type RoomTable struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomEntry

	idxMu  sync.Mutex
	byConn map[domain.ConnectionID]domain.RoomID

	metrics *metrics.Metrics
}

func NewRoomTable(m *metrics.Metrics) *RoomTable {
	return &RoomTable{
		rooms:   make(map[domain.RoomID]*roomEntry),
		byConn:  make(map[domain.ConnectionID]domain.RoomID),
		metrics: m,
	}
}

func (t *RoomTable) getOrCreate(id domain.RoomID) *roomEntry {
	t.mu.RLock()
	room, ok := t.rooms[id]
	t.mu.RUnlock()
	if ok && !room.closed.Load() {
		return room
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if room, ok = t.rooms[id]; ok && !room.closed.Load() {
		return room
	}
	if !ok {
		t.metrics.RoomCreated()
	}
	room = &roomEntry{id: id, members: make(map[domain.ConnectionID]uint64)}
	t.rooms[id] = room
	log.Debug().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	return room
}

// Join adds conn to room and returns the members present before the join,
// in join order. Joining the room the connection is already in is a no-op
// that reports fresh == false and the other current members. Joining a
// different room fails with domain.ErrAlreadyMember.
func (t *RoomTable) Join(id domain.RoomID, conn domain.ConnectionID) (prior []domain.ConnectionID, fresh bool, err error) {
	t.idxMu.Lock()
	if cur, ok := t.byConn[conn]; ok {
		t.idxMu.Unlock()
		if cur != id {
			return nil, false, fmt.Errorf("join %s: connection %s is in %s: %w", id, conn, cur, domain.ErrAlreadyMember)
		}
		return t.membersExcept(id, conn), false, nil
	}
	t.byConn[conn] = id
	t.idxMu.Unlock()

	for {
		room := t.getOrCreate(id)
		room.mu.Lock()
		if room.closed.Load() {
			room.mu.Unlock()
			continue
		}
		prior = room.snapshotLocked("")
		room.seq++
		room.members[conn] = room.seq
		room.mu.Unlock()
		break
	}
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("conn", string(conn)).Int("prior", len(prior)).Msg("member joined")
	return prior, true, nil
}

// Leave removes conn from room. It is a no-op when conn is not a member.
// The room entry is deleted when its member set becomes empty.
func (t *RoomTable) Leave(id domain.RoomID, conn domain.ConnectionID) bool {
	t.idxMu.Lock()
	if cur, ok := t.byConn[conn]; !ok || cur != id {
		t.idxMu.Unlock()
		return false
	}
	delete(t.byConn, conn)
	t.idxMu.Unlock()

	t.mu.RLock()
	room, ok := t.rooms[id]
	t.mu.RUnlock()
	if !ok {
		return false
	}

	room.mu.Lock()
	delete(room.members, conn)
	empty := len(room.members) == 0
	if empty {
		room.closed.Store(true)
	}
	room.mu.Unlock()

	if empty {
		t.mu.Lock()
		if t.rooms[id] == room {
			delete(t.rooms, id)
			t.metrics.RoomDeleted()
		}
		t.mu.Unlock()
		log.Debug().Str("module", "app.rooms").Str("room", string(id)).Msg("room deleted")
	}
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("conn", string(conn)).Msg("member left")
	return true
}

// MembersOf returns the members of a room in join order. A missing room
// yields an empty slice.
func (t *RoomTable) MembersOf(id domain.RoomID) []domain.ConnectionID {
	return t.membersExcept(id, "")
}

func (t *RoomTable) membersExcept(id domain.RoomID, exclude domain.ConnectionID) []domain.ConnectionID {
	t.mu.RLock()
	room, ok := t.rooms[id]
	t.mu.RUnlock()
	if !ok {
		return []domain.ConnectionID{}
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.snapshotLocked(exclude)
}

func (t *RoomTable) RoomOf(conn domain.ConnectionID) (domain.RoomID, bool) {
	t.idxMu.Lock()
	defer t.idxMu.Unlock()
	id, ok := t.byConn[conn]
	return id, ok
}

func (t *RoomTable) List() []domain.RoomInfo {
	t.mu.RLock()
	rooms := make([]*roomEntry, 0, len(t.rooms))
	for _, r := range t.rooms {
		rooms = append(rooms, r)
	}
	t.mu.RUnlock()

	out := make([]domain.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		n := len(r.members)
		r.mu.Unlock()
		if n > 0 {
			out = append(out, domain.RoomInfo{ID: r.id, MemberCount: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
