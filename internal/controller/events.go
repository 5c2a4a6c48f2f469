package controller

import (
	"net/netip"

	"github.com/danmuck/tether/internal/protocol/packet"
	"github.com/danmuck/tether/internal/protocol/registry"
	"github.com/danmuck/tether/internal/protocol/session"
)

type EventKind int

const (
	PacketSent EventKind = iota
	PacketReceived
	PacketAccepted
	PacketRejected
	PacketUnknown
	PacketRetransmitted
	PacketAbandoned
	SessionStarted
	SessionEnded
	SessionRejected
	Connected
	Disconnected
)

var eventKindNames = [...]string{
	PacketSent:          "packet_sent",
	PacketReceived:      "packet_received",
	PacketAccepted:      "packet_accepted",
	PacketRejected:      "packet_rejected",
	PacketUnknown:       "packet_unknown",
	PacketRetransmitted: "packet_retransmitted",
	PacketAbandoned:     "packet_abandoned",
	SessionStarted:      "session_started",
	SessionEnded:        "session_ended",
	SessionRejected:     "session_rejected",
	Connected:           "connected",
	Disconnected:        "disconnected",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return "unknown"
	}
	return eventKindNames[k]
}

// Rejection and session-end reasons carried in Event.Reason.
const (
	ReasonMalformedHeader  = "malformed_header"
	ReasonUnknownEndpoint  = "unknown_endpoint"
	ReasonSessionMismatch  = "session_mismatch"
	ReasonStaleSequence    = "stale_sequence"
	ReasonDecodeFailed     = "decode_failed"
	ReasonSecretRejected   = "secret_rejected"
	ReasonTableFull        = "table_full"
	ReasonPeerDisconnected = "peer_disconnected"
	ReasonLocalDisconnect  = "local_disconnect"
	ReasonRemoved          = "removed"
	ReasonExpired          = "expired"
)

// Event is one observable controller transition. Fields that do not apply to
// a kind are left zero.
type Event struct {
	Kind    EventKind
	Remote  netip.AddrPort
	Session *session.Session
	Header  packet.Header
	Payload registry.Payload
	Reason  string
	Err     error
}

// Subscribe registers fn for every event. Callbacks run synchronously on the
// goroutine that raised the event and must not block.
func (c *Controller) Subscribe(fn func(Event)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()
	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Controller) emit(ev Event) {
	c.subMu.RLock()
	subs := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}
