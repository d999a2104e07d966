package orch

import (
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/dkeye/callroom/internal/app"
	"github.com/dkeye/callroom/internal/core"
	"github.com/dkeye/callroom/internal/domain"
	"github.com/dkeye/callroom/internal/protocol"
)

// sink records every frame sent to one connection.
type sink struct {
	mu     sync.Mutex
	envs   []protocol.Envelope
	full   bool
	closed bool
}

func (s *sink) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrConnClosed
	}
	if s.full {
		return domain.ErrBackpressure
	}
	env, err := protocol.Decode(f)
	if err != nil {
		return err
	}
	s.envs = append(s.envs, env)
	return nil
}

func (s *sink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *sink) events() []protocol.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Event, 0, len(s.envs))
	for _, e := range s.envs {
		out = append(out, e.Event)
	}
	return out
}

// last decodes the data of the most recent ev into v and reports whether
// one was received.
func (s *sink) last(t *testing.T, ev protocol.Event, v any) bool {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.envs) - 1; i >= 0; i-- {
		if s.envs[i].Event != ev {
			continue
		}
		if v != nil {
			if err := json.Unmarshal(s.envs[i].Data, v); err != nil {
				t.Fatalf("decode %s: %v", ev, err)
			}
		}
		return true
	}
	return false
}

func (s *sink) count(ev protocol.Event) int {
	n := 0
	for _, e := range s.events() {
		if e == ev {
			n++
		}
	}
	return n
}

func (s *sink) reset() {
	s.mu.Lock()
	s.envs = nil
	s.mu.Unlock()
}

type harness struct {
	t     *testing.T
	o     *Orchestrator
	sinks map[domain.ConnectionID]*sink
}

func newHarness(t *testing.T, opts Options) *harness {
	return &harness{
		t:     t,
		o:     New(opts, app.SimplePolicy{}, nil),
		sinks: make(map[domain.ConnectionID]*sink),
	}
}

func (h *harness) connect(id domain.ConnectionID) *sink {
	s := &sink{}
	h.sinks[id] = s
	h.o.Connect(id, domain.ClientToken("tok-"+id), s)
	return s
}

func (h *harness) send(id domain.ConnectionID, ev protocol.Event, data any) error {
	h.t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		h.t.Fatal(err)
	}
	frame, err := protocol.EncodeRaw(ev, raw)
	if err != nil {
		h.t.Fatal(err)
	}
	return h.o.Dispatch(id, frame)
}

func (h *harness) join(id domain.ConnectionID, room string) {
	h.t.Helper()
	if err := h.send(id, protocol.RoomJoin, map[string]string{"email": string(id) + "@x", "room": room}); err != nil {
		h.t.Fatalf("join %s: %v", id, err)
	}
}

func memberIDs(ms []domain.Member) []domain.ConnectionID {
	out := make([]domain.ConnectionID, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}
