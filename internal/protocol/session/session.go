package session

import (
	"hash/fnv"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/tether/internal/protocol/sequence"
)

// LocalID is the reserved id of the local or not-yet-assigned session.
const LocalID int32 = 0

// Session is one trusted peer, or the table's own local entry.
type Session struct {
	Endpoint  netip.AddrPort
	StartedAt time.Time

	id      atomic.Int32
	table   *Table
	local   bool
	inbound *sequence.Guard

	mu        sync.Mutex
	timer     *time.Timer
	expiresAt time.Time
	lastSeen  time.Time
}

func (s *Session) ID() int32 { return s.id.Load() }

func (s *Session) IsLocal() bool { return s.local }

// Valid reports whether the session has an assigned id and belongs to a live table.
func (s *Session) Valid() bool {
	return s != nil && s.ID() != LocalID && s.table != nil && !s.table.closed.Load()
}

// Sequence returns the inbound sequencing guard for packets from this peer.
func (s *Session) Sequence() *sequence.Guard { return s.inbound }

// ExpiresAt returns the current deadline; zero when the session never expires.
func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

// LastSeen returns the time of the last validated inbound packet.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Touch records activity and pushes the expiry deadline forward.
func (s *Session) Touch() {
	if s.local || s.table == nil {
		return
	}
	timeout := s.table.opts.Timeout
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
	if timeout <= 0 {
		return
	}
	s.expiresAt = now.Add(timeout)
	if s.timer == nil {
		s.timer = time.AfterFunc(timeout, func() { s.table.expire(s) })
		return
	}
	s.timer.Reset(timeout)
}

func (s *Session) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.expiresAt = time.Time{}
}

// View is a read-only snapshot of a session.
type View struct {
	ID        int32     `json:"id"`
	Endpoint  string    `json:"endpoint"`
	Local     bool      `json:"local"`
	StartedAt time.Time `json:"started_at"`
	LastSeen  time.Time `json:"last_seen,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		ID:        s.ID(),
		Endpoint:  s.Endpoint.String(),
		Local:     s.local,
		StartedAt: s.StartedAt,
		LastSeen:  s.lastSeen,
		ExpiresAt: s.expiresAt,
	}
}

// DeriveID returns a deterministic non-zero id for an endpoint.
func DeriveID(ep netip.AddrPort) int32 {
	return DeriveLocalID(ep, nil)
}

// DeriveLocalID hashes ep together with salt, so processes bound to the same
// wildcard address still get distinct ids.
func DeriveLocalID(ep netip.AddrPort, salt []byte) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(Canonical(ep).String()))
	_, _ = h.Write(salt)
	id := int32(h.Sum32() & 0x7fffffff)
	if id == LocalID {
		id = 1
	}
	return id
}

// Canonical strips IPv4-in-IPv6 mapping so one peer has one endpoint key.
func Canonical(ep netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ep.Addr().Unmap(), ep.Port())
}
