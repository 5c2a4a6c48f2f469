package session

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/tether/internal/protocol/sequence"
)

var (
	ErrTableFull         = errors.New("session: table full")
	ErrDuplicateEndpoint = errors.New("session: endpoint already has a session")
	ErrInvalidID         = errors.New("session: invalid session id")
	ErrTableClosed       = errors.New("session: table closed")
)

// TableOptions bounds and times out sessions.
type TableOptions struct {
	// MaxSessions caps non-local sessions; 0 means unlimited.
	MaxSessions int
	// Timeout expires sessions idle for this long; 0 disables expiry.
	Timeout time.Duration
	// OnExpire runs after an expired session has been removed.
	OnExpire func(s *Session)
}

// Table is the set of trusted peers plus exactly one local session.
type Table struct {
	opts TableOptions

	mu         sync.RWMutex
	local      *Session
	byEndpoint map[netip.AddrPort]*Session
	closed     atomic.Bool
}

func NewTable(local netip.AddrPort, localID int32, opts TableOptions) *Table {
	t := &Table{
		opts:       opts,
		byEndpoint: make(map[netip.AddrPort]*Session),
	}
	t.local = t.newSession(Canonical(local), localID)
	t.local.local = true
	return t
}

func (t *Table) newSession(ep netip.AddrPort, id int32) *Session {
	s := &Session{
		Endpoint:  ep,
		StartedAt: time.Now(),
		table:     t,
		inbound:   sequence.NewGuard(),
	}
	s.id.Store(id)
	return s
}

func (t *Table) Local() *Session { return t.local }

// SetLocalID assigns the id peers know this process by.
func (t *Table) SetLocalID(id int32) {
	t.local.id.Store(id)
}

// TryAdd creates a session for ep. On ErrDuplicateEndpoint the existing
// session is returned alongside the error.
func (t *Table) TryAdd(ep netip.AddrPort, id int32) (*Session, error) {
	if id == LocalID {
		return nil, ErrInvalidID
	}
	ep = Canonical(ep)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return nil, ErrTableClosed
	}
	if existing, ok := t.byEndpoint[ep]; ok {
		return existing, fmt.Errorf("%w: %s", ErrDuplicateEndpoint, ep)
	}
	if t.isFullLocked() {
		return nil, fmt.Errorf("%w: max=%d", ErrTableFull, t.opts.MaxSessions)
	}
	s := t.newSession(ep, id)
	t.byEndpoint[ep] = s
	s.Touch()
	return s, nil
}

// Remove drops s from the table and reports whether it was present.
// Removing the local session or a nil session is a caller bug and panics.
func (t *Table) Remove(s *Session) bool {
	if s == nil {
		panic("session: remove of nil session")
	}
	if s.local {
		panic("session: remove of local session")
	}
	t.mu.Lock()
	cur, ok := t.byEndpoint[s.Endpoint]
	if ok && cur == s {
		delete(t.byEndpoint, s.Endpoint)
	}
	t.mu.Unlock()
	s.stop()
	return ok && cur == s
}

func (t *Table) expire(s *Session) {
	if !t.Remove(s) {
		return
	}
	if t.opts.OnExpire != nil {
		t.opts.OnExpire(s)
	}
}

func (t *Table) ByEndpoint(ep netip.AddrPort) (*Session, bool) {
	ep = Canonical(ep)
	if ep == t.local.Endpoint {
		return t.local, true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byEndpoint[ep]
	return s, ok
}

// ByID returns the non-local session with id.
func (t *Table) ByID(id int32) (*Session, bool) {
	if id == LocalID {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.byEndpoint {
		if s.ID() == id {
			return s, true
		}
	}
	return nil, false
}

// Sessions returns a snapshot including the local session, local first.
func (t *Table) Sessions() []*Session {
	out := []*Session{t.local}
	return append(out, t.Remotes()...)
}

// Remotes returns a snapshot of non-local sessions ordered by endpoint.
func (t *Table) Remotes() []*Session {
	t.mu.RLock()
	out := make([]*Session, 0, len(t.byEndpoint))
	for _, s := range t.byEndpoint {
		out = append(out, s)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Endpoint.String() < out[j].Endpoint.String()
	})
	return out
}

// Count excludes the local session.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byEndpoint)
}

func (t *Table) IsFull() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isFullLocked()
}

func (t *Table) isFullLocked() bool {
	return t.opts.MaxSessions > 0 && len(t.byEndpoint) >= t.opts.MaxSessions
}

// Reset removes every non-local session and returns them.
func (t *Table) Reset() []*Session {
	t.mu.Lock()
	removed := make([]*Session, 0, len(t.byEndpoint))
	for ep, s := range t.byEndpoint {
		removed = append(removed, s)
		delete(t.byEndpoint, ep)
	}
	t.mu.Unlock()
	for _, s := range removed {
		s.stop()
	}
	return removed
}

// Close resets the table and invalidates every session it handed out.
func (t *Table) Close() []*Session {
	t.closed.Store(true)
	return t.Reset()
}
