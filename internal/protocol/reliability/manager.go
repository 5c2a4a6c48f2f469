package reliability

import (
	"math/rand"
	"net/netip"
	"sort"
	"sync"
	"time"
)

// Outstanding is one reliable packet awaiting acknowledgment. NextAt is when
// the next resend is due.
type Outstanding struct {
	Endpoint      netip.AddrPort
	TypeID        int32
	Sequence      uint32
	Data          []byte
	SentAt        time.Time
	LastAttemptAt time.Time
	NextAt        time.Time
	Attempts      int
}

// Resender puts already-encoded bytes back on the wire.
type Resender func(data []byte, to netip.AddrPort) error

// Option customizes a Manager.
type Option func(*Manager)

// WithDropHandler is called for packets abandoned after MaxAttempts.
func WithDropHandler(fn func(Outstanding)) Option {
	return func(m *Manager) { m.onDrop = fn }
}

// WithRetryHandler is called after every resend with the send result.
func WithRetryHandler(fn func(Outstanding, error)) Option {
	return func(m *Manager) { m.onRetry = fn }
}

// Manager tracks outstanding reliable packets per destination and resends them
// verbatim on Tick until they are acknowledged.
type Manager struct {
	policy  RetryPolicy
	resend  Resender
	onDrop  func(Outstanding)
	onRetry func(Outstanding, error)

	mu    sync.Mutex
	rng   *rand.Rand
	items map[netip.AddrPort][]Outstanding
}

func NewManager(policy RetryPolicy, resend Resender, opts ...Option) *Manager {
	m := &Manager{
		policy: policy.WithDefaults(),
		resend: resend,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		items:  make(map[netip.AddrPort][]Outstanding),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Policy() RetryPolicy { return m.policy }

// Register starts tracking item for ep. A re-registered (type, sequence) pair
// replaces the previous entry.
func (m *Manager) Register(ep netip.AddrPort, item Outstanding) {
	item.Endpoint = ep
	if item.SentAt.IsZero() {
		item.SentAt = time.Now()
	}
	if item.LastAttemptAt.IsZero() {
		item.LastAttemptAt = item.SentAt
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.NextAt.IsZero() {
		item.NextAt = item.LastAttemptAt.Add(NextDelay(m.policy, item.Attempts+1, m.rng))
	}
	list := m.items[ep]
	for i := range list {
		if list[i].TypeID == item.TypeID && list[i].Sequence == item.Sequence {
			list[i] = item
			return
		}
	}
	m.items[ep] = append(list, item)
}

// Unregister removes the entry matching an acknowledgment and reports whether one existed.
func (m *Manager) Unregister(ep netip.AddrPort, typeID int32, seq uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.items[ep]
	for i := range list {
		if list[i].TypeID != typeID || list[i].Sequence != seq {
			continue
		}
		list = append(list[:i], list[i+1:]...)
		if len(list) == 0 {
			delete(m.items, ep)
		} else {
			m.items[ep] = list
		}
		return true
	}
	return false
}

// Tick resends every entry whose NextAt has passed and returns the number of
// resends. The delay for the following attempt is drawn once per resend.
func (m *Manager) Tick(now time.Time) int {
	var due, dropped []Outstanding
	m.mu.Lock()
	for ep, list := range m.items {
		kept := list[:0]
		for _, item := range list {
			if now.Before(item.NextAt) {
				kept = append(kept, item)
				continue
			}
			if m.policy.MaxAttempts > 0 && item.Attempts >= m.policy.MaxAttempts {
				dropped = append(dropped, item)
				continue
			}
			item.Attempts++
			item.LastAttemptAt = now
			item.NextAt = now.Add(NextDelay(m.policy, item.Attempts+1, m.rng))
			kept = append(kept, item)
			due = append(due, item)
		}
		if len(kept) == 0 {
			delete(m.items, ep)
			continue
		}
		m.items[ep] = kept
	}
	m.mu.Unlock()

	for _, item := range due {
		var err error
		if m.resend != nil {
			err = m.resend(item.Data, item.Endpoint)
		}
		if m.onRetry != nil {
			m.onRetry(item, err)
		}
	}
	if m.onDrop != nil {
		for _, item := range dropped {
			m.onDrop(item)
		}
	}
	return len(due)
}

// Pending returns a copy of the outstanding entries for ep ordered by type and sequence.
func (m *Manager) Pending(ep netip.AddrPort) []Outstanding {
	m.mu.Lock()
	out := make([]Outstanding, len(m.items[ep]))
	copy(out, m.items[ep])
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].TypeID != out[j].TypeID {
			return out[i].TypeID < out[j].TypeID
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

// Len returns the total number of outstanding entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, list := range m.items {
		n += len(list)
	}
	return n
}

// Forget drops every entry for ep and returns how many were dropped.
func (m *Manager) Forget(ep netip.AddrPort) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.items[ep])
	delete(m.items, ep)
	return n
}

// Clear drops all entries.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[netip.AddrPort][]Outstanding)
}
