package transport

import (
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
)

type memDatagram struct {
	data []byte
	from netip.AddrPort
}

// Network is an in-memory datagram fabric for tests and single-process setups.
// A Drop filter can discard datagrams to simulate loss.
type Network struct {
	mu       sync.RWMutex
	nodes    map[netip.AddrPort]*Mem
	nextPort atomic.Uint32
	drop     atomic.Pointer[func(from, to netip.AddrPort, b []byte) bool]
}

func NewNetwork() *Network {
	n := &Network{nodes: make(map[netip.AddrPort]*Mem)}
	n.nextPort.Store(40000)
	return n
}

// SetDrop installs a loss filter; nil delivers everything.
func (n *Network) SetDrop(fn func(from, to netip.AddrPort, b []byte) bool) {
	if fn == nil {
		n.drop.Store(nil)
		return
	}
	n.drop.Store(&fn)
}

// Listen binds a Mem endpoint. Port 0 picks the next free port on 127.0.0.1.
func (n *Network) Listen(addr string) (Datagram, error) {
	ep, err := netip.ParseAddrPort(addr)
	if err != nil {
		if addr != ":0" && addr != "" {
			return nil, fmt.Errorf("transport: parse %q: %w", addr, err)
		}
		ep = netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), 0)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if ep.Port() == 0 {
		for {
			ep = netip.AddrPortFrom(ep.Addr(), uint16(n.nextPort.Add(1)))
			if _, taken := n.nodes[ep]; !taken {
				break
			}
		}
	}
	if _, taken := n.nodes[ep]; taken {
		return nil, fmt.Errorf("transport: address in use: %s", ep)
	}
	m := &Mem{
		net:   n,
		addr:  ep,
		inbox: make(chan memDatagram, 1024),
		done:  make(chan struct{}),
	}
	n.nodes[ep] = m
	return m, nil
}

func (n *Network) deliver(from, to netip.AddrPort, b []byte) error {
	if fn := n.drop.Load(); fn != nil && (*fn)(from, to, b) {
		return nil
	}
	n.mu.RLock()
	dst, ok := n.nodes[to]
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnreachable, to)
	}
	out := make([]byte, len(b))
	copy(out, b)
	select {
	case dst.inbox <- memDatagram{data: out, from: from}:
	case <-dst.done:
	default:
		// full inbox behaves like a lossy socket
	}
	return nil
}

// Mem is one endpoint on a Network.
type Mem struct {
	net    *Network
	addr   netip.AddrPort
	inbox  chan memDatagram
	done   chan struct{}
	closed sync.Once
}

var _ Datagram = (*Mem)(nil)

func (m *Mem) Send(b []byte, to netip.AddrPort) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	return m.net.deliver(m.addr, canonical(to), b)
}

func (m *Mem) Receive() ([]byte, netip.AddrPort, error) {
	select {
	case d := <-m.inbox:
		return d.data, d.from, nil
	case <-m.done:
		return nil, netip.AddrPort{}, ErrClosed
	}
}

func (m *Mem) LocalAddr() netip.AddrPort { return m.addr }

func (m *Mem) Close() error {
	m.closed.Do(func() {
		close(m.done)
		m.net.mu.Lock()
		delete(m.net.nodes, m.addr)
		m.net.mu.Unlock()
	})
	return nil
}
