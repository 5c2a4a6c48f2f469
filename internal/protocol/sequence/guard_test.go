package sequence

import (
	"sync"
	"testing"
)

func TestNextSentReturnsPriorValue(t *testing.T) {
	g := NewGuard()
	for want := uint32(0); want < 5; want++ {
		if got := g.NextSent(1); got != want {
			t.Fatalf("seq got=%d want=%d", got, want)
		}
	}
	if got := g.NextSent(2); got != 0 {
		t.Fatalf("counters must be per type, got=%d", got)
	}
}

func TestAcceptUnorderedAlwaysPasses(t *testing.T) {
	g := NewGuard()
	for _, seq := range []uint32{5, 1, 5, 0} {
		if !g.Accept(3, seq, false) {
			t.Fatalf("unordered seq=%d rejected", seq)
		}
	}
	if _, ok := g.LastAccepted(3); ok {
		t.Fatalf("unordered accepts must not touch counters")
	}
}

func TestAcceptOrderedMonotonic(t *testing.T) {
	g := NewGuard()
	if !g.Accept(7, 0, true) {
		t.Fatalf("first ordered packet rejected")
	}
	if !g.Accept(7, 4, true) {
		t.Fatalf("newer packet rejected")
	}
	if !g.Accept(7, 9, true) {
		t.Fatalf("newer packet rejected")
	}
	for _, stale := range []uint32{0, 4, 8, 9} {
		if g.Accept(7, stale, true) {
			t.Fatalf("stale seq=%d accepted", stale)
		}
	}
	if last, ok := g.LastAccepted(7); !ok || last != 9 {
		t.Fatalf("last accepted got=%d ok=%v", last, ok)
	}
	if !g.Accept(8, 0, true) {
		t.Fatalf("other type must have its own counter")
	}
}

func TestGuardConcurrentStamping(t *testing.T) {
	g := NewGuard()
	var wg sync.WaitGroup
	seen := make(chan uint32, 400)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				seen <- g.NextSent(1)
			}
		}()
	}
	wg.Wait()
	close(seen)
	uniq := make(map[uint32]struct{})
	for s := range seen {
		if _, dup := uniq[s]; dup {
			t.Fatalf("duplicate sequence %d", s)
		}
		uniq[s] = struct{}{}
	}
	if len(uniq) != 400 {
		t.Fatalf("unexpected stamp count: %d", len(uniq))
	}
}

func TestResetForgetsReceivedSequences(t *testing.T) {
	g := NewGuard()
	if !g.Accept(7, 40, true) {
		t.Fatalf("first ordered packet rejected")
	}
	if g.Accept(7, 0, true) {
		t.Fatalf("stale packet accepted before reset")
	}
	g.Reset()
	if _, ok := g.LastAccepted(7); ok {
		t.Fatalf("reset kept counters")
	}
	if !g.Accept(7, 0, true) {
		t.Fatalf("sequence 0 rejected after reset")
	}
}
