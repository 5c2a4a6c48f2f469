// Package sequence stamps outgoing packets and rejects stale ordered packets.
package sequence

import "sync"

type pair struct {
	sent     uint32
	received uint32
	seen     bool
}

// Guard holds one sent/received counter pair per packet type id.
// Pairs are created on first use and cleared only by Reset.
type Guard struct {
	mu    sync.Mutex
	pairs map[int32]*pair
}

func NewGuard() *Guard {
	return &Guard{pairs: make(map[int32]*pair)}
}

func (g *Guard) pair(typeID int32) *pair {
	p, ok := g.pairs[typeID]
	if !ok {
		p = &pair{}
		g.pairs[typeID] = p
	}
	return p
}

// NextSent increments the sent counter and returns its prior value.
func (g *Guard) NextSent(typeID int32) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.pair(typeID)
	seq := p.sent
	p.sent++
	return seq
}

// Accept reports whether an inbound packet should be processed.
// Unordered types always pass. For ordered types the first sequence seen is
// accepted and afterwards only strictly newer ones; there is no reorder buffer.
func (g *Guard) Accept(typeID int32, seq uint32, ordered bool) bool {
	if !ordered {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.pair(typeID)
	if p.seen && seq <= p.received {
		return false
	}
	p.received = seq
	p.seen = true
	return true
}

// LastAccepted returns the highest accepted sequence for typeID.
func (g *Guard) LastAccepted(typeID int32) (uint32, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pairs[typeID]
	if !ok || !p.seen {
		return 0, false
	}
	return p.received, true
}

// Reset forgets every counter pair, as if no packet had been seen.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pairs = make(map[int32]*pair)
}
