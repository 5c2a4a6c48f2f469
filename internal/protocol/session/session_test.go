package session

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/danmuck/tether/internal/testutil/testlog"
)

var localEP = netip.MustParseAddrPort("127.0.0.1:9000")

func peer(port uint16) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port)
}

func TestTableAlwaysHoldsLocal(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable(localEP, 0, TableOptions{})
	if tbl.Local() == nil || !tbl.Local().IsLocal() {
		t.Fatalf("missing local session")
	}
	if tbl.Count() != 0 {
		t.Fatalf("count must exclude local, got=%d", tbl.Count())
	}
	all := tbl.Sessions()
	if len(all) != 1 || all[0] != tbl.Local() {
		t.Fatalf("snapshot must include local: %+v", all)
	}
	if tbl.Local().Valid() {
		t.Fatalf("local session with id 0 must be invalid")
	}
	tbl.SetLocalID(5)
	if !tbl.Local().Valid() || tbl.Local().ID() != 5 {
		t.Fatalf("local id not applied")
	}
}

func TestTryAddCapacity(t *testing.T) {
	testlog.Start(t)
	const max = 3
	tbl := NewTable(localEP, 0, TableOptions{MaxSessions: max})
	for i := 0; i < max; i++ {
		ep := peer(uint16(10000 + i))
		if _, err := tbl.TryAdd(ep, DeriveID(ep)); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if !tbl.IsFull() {
		t.Fatalf("table should be full")
	}
	ep := peer(20000)
	if _, err := tbl.TryAdd(ep, DeriveID(ep)); !errors.Is(err, ErrTableFull) {
		t.Fatalf("expected ErrTableFull, got %v", err)
	}
	if tbl.Count() != max {
		t.Fatalf("count exceeded max: %d", tbl.Count())
	}
}

func TestTryAddDuplicateAndInvalidID(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable(localEP, 0, TableOptions{})
	ep := peer(10001)
	first, err := tbl.TryAdd(ep, 11)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	again, err := tbl.TryAdd(ep, 12)
	if !errors.Is(err, ErrDuplicateEndpoint) {
		t.Fatalf("expected ErrDuplicateEndpoint, got %v", err)
	}
	if again != first || again.ID() != 11 {
		t.Fatalf("duplicate must return the existing session")
	}
	if _, err := tbl.TryAdd(peer(10002), LocalID); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestCanonicalEndpointKey(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable(localEP, 0, TableOptions{})
	mapped := netip.MustParseAddrPort("[::ffff:127.0.0.1]:10003")
	s, err := tbl.TryAdd(mapped, 3)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	got, ok := tbl.ByEndpoint(peer(10003))
	if !ok || got != s {
		t.Fatalf("mapped and plain endpoints must share a key")
	}
	if DeriveID(mapped) != DeriveID(peer(10003)) {
		t.Fatalf("derived ids must match for canonical endpoints")
	}
}

func TestLookupByIDAndEndpoint(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable(localEP, 9, TableOptions{})
	s, _ := tbl.TryAdd(peer(10004), 44)
	if got, ok := tbl.ByID(44); !ok || got != s {
		t.Fatalf("lookup by id failed")
	}
	if _, ok := tbl.ByID(LocalID); ok {
		t.Fatalf("id 0 must never resolve")
	}
	if got, ok := tbl.ByEndpoint(localEP); !ok || got != tbl.Local() {
		t.Fatalf("local endpoint must resolve to local session")
	}
}

func TestRemoveLocalPanics(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable(localEP, 0, TableOptions{})
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic removing local session")
		}
	}()
	tbl.Remove(tbl.Local())
}

func TestRemoveNilPanics(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable(localEP, 0, TableOptions{})
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic removing nil session")
		}
	}()
	tbl.Remove(nil)
}

func TestRemoveAndReset(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable(localEP, 0, TableOptions{})
	a, _ := tbl.TryAdd(peer(10005), 1)
	_, _ = tbl.TryAdd(peer(10006), 2)
	if !tbl.Remove(a) {
		t.Fatalf("remove reported absent session")
	}
	if tbl.Remove(a) {
		t.Fatalf("second remove must report false")
	}
	removed := tbl.Reset()
	if len(removed) != 1 || tbl.Count() != 0 {
		t.Fatalf("reset removed=%d count=%d", len(removed), tbl.Count())
	}
	if len(tbl.Sessions()) != 1 {
		t.Fatalf("reset must leave only the local session")
	}
}

func TestCloseInvalidatesSessions(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable(localEP, 0, TableOptions{})
	s, _ := tbl.TryAdd(peer(10007), 7)
	if !s.Valid() {
		t.Fatalf("fresh session should be valid")
	}
	tbl.Close()
	if s.Valid() {
		t.Fatalf("session must be invalid after table close")
	}
	if _, err := tbl.TryAdd(peer(10008), 8); !errors.Is(err, ErrTableClosed) {
		t.Fatalf("expected ErrTableClosed, got %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	testlog.Start(t)
	expired := make(chan *Session, 1)
	tbl := NewTable(localEP, 0, TableOptions{
		Timeout:  120 * time.Millisecond,
		OnExpire: func(s *Session) { expired <- s },
	})
	s, err := tbl.TryAdd(peer(10009), 9)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if s.ExpiresAt().IsZero() {
		t.Fatalf("expected an expiry deadline")
	}

	// keep it alive past the first deadline
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		s.Touch()
	}
	if _, ok := tbl.ByEndpoint(peer(10009)); !ok {
		t.Fatalf("touched session expired early")
	}

	select {
	case got := <-expired:
		if got != s {
			t.Fatalf("unexpected expired session")
		}
	case <-time.After(time.Second):
		t.Fatalf("session never expired")
	}
	if tbl.Count() != 0 {
		t.Fatalf("expired session still present")
	}
}

func TestDeriveIDNonZeroAndStable(t *testing.T) {
	testlog.Start(t)
	for port := uint16(1); port < 200; port++ {
		ep := peer(port)
		id := DeriveID(ep)
		if id == LocalID || id < 0 {
			t.Fatalf("derived id for %s out of range: %d", ep, id)
		}
		if id != DeriveID(ep) {
			t.Fatalf("derived id unstable for %s", ep)
		}
	}
}

func TestDeriveLocalIDMixesSalt(t *testing.T) {
	testlog.Start(t)
	wildcard := netip.MustParseAddrPort("0.0.0.0:9000")
	a := DeriveLocalID(wildcard, []byte("process-a"))
	b := DeriveLocalID(wildcard, []byte("process-b"))
	if a == b {
		t.Fatalf("salts produced the same id %d", a)
	}
	if a == LocalID || a < 0 || a != DeriveLocalID(wildcard, []byte("process-a")) {
		t.Fatalf("salted id out of range or unstable: %d", a)
	}
	if DeriveLocalID(wildcard, nil) != DeriveID(wildcard) {
		t.Fatalf("unsalted id must match DeriveID")
	}
}
