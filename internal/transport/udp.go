package transport

import (
	"fmt"
	"net"
	"net/netip"
)

// UDP is a Datagram over a single unconnected UDP socket.
type UDP struct {
	conn *net.UDPConn
	buf  []byte
}

var _ Datagram = (*UDP)(nil)

// ListenUDP binds a UDP socket on addr.
func ListenUDP(addr string) (Datagram, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", addr, err)
	}
	return &UDP{conn: conn, buf: make([]byte, MaxDatagramSize)}, nil
}

func (u *UDP) Send(b []byte, to netip.AddrPort) error {
	_, err := u.conn.WriteToUDPAddrPort(b, to)
	return err
}

// Receive blocks for the next datagram and returns a copy of its bytes.
func (u *UDP) Receive() ([]byte, netip.AddrPort, error) {
	n, from, err := u.conn.ReadFromUDPAddrPort(u.buf)
	if err != nil {
		return nil, netip.AddrPort{}, err
	}
	out := make([]byte, n)
	copy(out, u.buf[:n])
	return out, canonical(from), nil
}

// LocalAddr returns the bound endpoint; wildcard binds report 0.0.0.0.
func (u *UDP) LocalAddr() netip.AddrPort {
	ap := canonical(u.conn.LocalAddr().(*net.UDPAddr).AddrPort())
	if ap.Addr().IsUnspecified() {
		return netip.AddrPortFrom(netip.IPv4Unspecified(), ap.Port())
	}
	return ap
}

func (u *UDP) Close() error {
	return u.conn.Close()
}
