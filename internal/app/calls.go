package app

import (
	"sort"
	"sync"

	"github.com/dkeye/callroom/internal/domain"
)

type callPair struct{ a, b domain.ConnectionID }

func pairOf(x, y domain.ConnectionID) callPair {
	if x > y {
		x, y = y, x
	}
	return callPair{x, y}
}

type offerKey struct{ from, to domain.ConnectionID }

// CallTable tracks the InCall relationship per peer pair. A connection may
// be in a call with several peers at once.
type CallTable struct {
	mu      sync.Mutex
	pending map[offerKey]struct{}
	active  map[callPair]struct{}
	peers   map[domain.ConnectionID]map[domain.ConnectionID]struct{}
}

func NewCallTable() *CallTable {
	return &CallTable{
		pending: make(map[offerKey]struct{}),
		active:  make(map[callPair]struct{}),
		peers:   make(map[domain.ConnectionID]map[domain.ConnectionID]struct{}),
	}
}

// Offer records an outstanding offer from -> to.
func (c *CallTable) Offer(from, to domain.ConnectionID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[offerKey{from, to}] = struct{}{}
}

// Answer activates the pair when answerer replies to an outstanding offer
// from offerer. It reports whether the pair is now in a call.
func (c *CallTable) Answer(answerer, offerer domain.ConnectionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := offerKey{offerer, answerer}
	if _, ok := c.pending[k]; !ok {
		_, active := c.active[pairOf(answerer, offerer)]
		return active
	}
	delete(c.pending, k)
	c.active[pairOf(answerer, offerer)] = struct{}{}
	c.link(answerer, offerer)
	c.link(offerer, answerer)
	return true
}

func (c *CallTable) link(a, b domain.ConnectionID) {
	set, ok := c.peers[a]
	if !ok {
		set = make(map[domain.ConnectionID]struct{})
		c.peers[a] = set
	}
	set[b] = struct{}{}
}

func (c *CallTable) unlink(a, b domain.ConnectionID) {
	if set, ok := c.peers[a]; ok {
		delete(set, b)
		if len(set) == 0 {
			delete(c.peers, a)
		}
	}
}

// End tears down the pair, including any outstanding offers between them.
func (c *CallTable) End(x, y domain.ConnectionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, offerKey{x, y})
	delete(c.pending, offerKey{y, x})
	p := pairOf(x, y)
	if _, ok := c.active[p]; !ok {
		return false
	}
	delete(c.active, p)
	c.unlink(x, y)
	c.unlink(y, x)
	return true
}

func (c *CallTable) InCall(conn domain.ConnectionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.peers[conn]) > 0
}

func (c *CallTable) InCallWith(x, y domain.ConnectionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[pairOf(x, y)]
	return ok
}

func (c *CallTable) Peers(conn domain.ConnectionID) []domain.ConnectionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.ConnectionID, 0, len(c.peers[conn]))
	for p := range c.peers[conn] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Drop removes every pair and offer involving conn and returns the peers it
// was in a call with.
func (c *CallTable) Drop(conn domain.ConnectionID) []domain.ConnectionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.pending {
		if k.from == conn || k.to == conn {
			delete(c.pending, k)
		}
	}
	out := make([]domain.ConnectionID, 0, len(c.peers[conn]))
	for p := range c.peers[conn] {
		delete(c.active, pairOf(conn, p))
		c.unlink(p, conn)
		out = append(out, p)
	}
	delete(c.peers, conn)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
