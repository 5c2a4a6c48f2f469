// Package transport provides the datagram collaborator the controller runs on.
//
// Ownership boundary:
// - binding a local endpoint
// - sending bytes to an endpoint
// - delivering received bytes with the sender endpoint
//
// Datagram boundaries are preserved; there is no framing on this path.
package transport

import (
	"errors"
	"net"
	"net/netip"
)

// MaxDatagramSize bounds a single received datagram.
const MaxDatagramSize = 64 * 1024

// ErrClosed is returned by every operation after Close. It matches net.ErrClosed.
var ErrClosed = net.ErrClosed

// ErrUnreachable is returned when an in-memory destination does not exist.
var ErrUnreachable = errors.New("transport: destination unreachable")

// Datagram is an unreliable, unordered, message-preserving channel.
// Receive is called from a single goroutine; Send may be called concurrently.
type Datagram interface {
	Send(b []byte, to netip.AddrPort) error
	Receive() ([]byte, netip.AddrPort, error)
	LocalAddr() netip.AddrPort
	Close() error
}

// Listener binds a Datagram on addr; ":0" picks an ephemeral port.
type Listener func(addr string) (Datagram, error)

func canonical(ep netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ep.Addr().Unmap(), ep.Port())
}
