package transport

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/danmuck/tether/internal/testutil/testlog"
)

func TestUDPSendReceive(t *testing.T) {
	testlog.Start(t)
	a, err := ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen a: %v", err)
	}
	defer a.Close()
	b, err := ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen b: %v", err)
	}
	defer b.Close()

	if err := a.Send([]byte("hello"), b.LocalAddr()); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := make(chan []byte, 1)
	from := make(chan netip.AddrPort, 1)
	go func() {
		data, ep, err := b.Receive()
		if err == nil {
			got <- data
			from <- ep
		}
	}()
	select {
	case data := <-got:
		if string(data) != "hello" {
			t.Fatalf("unexpected payload %q", data)
		}
		if ep := <-from; ep != a.LocalAddr() {
			t.Fatalf("unexpected sender %s want %s", ep, a.LocalAddr())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("datagram not received")
	}
}

func TestUDPReceiveAfterCloseIsTerminal(t *testing.T) {
	testlog.Start(t)
	a, err := ListenUDP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, _, err := a.Receive()
		done <- err
	}()
	_ = a.Close()
	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("receive did not unblock on close")
	}
}

func TestMemNetworkDeliveryAndDrop(t *testing.T) {
	testlog.Start(t)
	n := NewNetwork()
	a, _ := n.Listen(":0")
	b, _ := n.Listen("127.0.0.1:9001")
	if _, err := n.Listen("127.0.0.1:9001"); err == nil {
		t.Fatalf("expected address in use error")
	}

	if err := a.Send([]byte("one"), b.LocalAddr()); err != nil {
		t.Fatalf("send: %v", err)
	}
	data, from, err := b.Receive()
	if err != nil || string(data) != "one" || from != a.LocalAddr() {
		t.Fatalf("receive got=%q from=%s err=%v", data, from, err)
	}

	n.SetDrop(func(_, _ netip.AddrPort, b []byte) bool { return string(b) == "lost" })
	_ = a.Send([]byte("lost"), b.LocalAddr())
	_ = a.Send([]byte("two"), b.LocalAddr())
	data, _, _ = b.Receive()
	if string(data) != "two" {
		t.Fatalf("drop filter ignored, got %q", data)
	}

	if err := a.Send([]byte("x"), netip.MustParseAddrPort("127.0.0.1:1")); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
	_ = b.Close()
	if _, _, err := b.Receive(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := b.Send([]byte("x"), a.LocalAddr()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on send, got %v", err)
	}
}
