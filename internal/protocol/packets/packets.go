// Package packets defines the reserved packet types every controller ships.
package packets

import (
	"github.com/danmuck/tether/internal/protocol/packet"
	"github.com/danmuck/tether/internal/protocol/registry"
)

const (
	NamePing            = "tether.protocol.Ping"
	NameAck             = "tether.protocol.Ack"
	NameDisconnect      = "tether.protocol.Disconnect"
	NameHandshakeBegin  = "tether.protocol.HandshakeBegin"
	NameHandshakeAccept = "tether.protocol.HandshakeAccept"
)

// Ping keeps sessions alive. It has no payload.
type Ping struct{}

func (*Ping) PacketName() string { return NamePing }
func (*Ping) MarshalPacket(*packet.Buffer) error { return nil }
func (*Ping) UnmarshalPacket(*packet.Buffer) error { return nil }

// Ack confirms delivery of one reliable packet.
type Ack struct {
	AckPacketID int32
	AckSequence uint32
}

func (*Ack) PacketName() string { return NameAck }

func (a *Ack) MarshalPacket(b *packet.Buffer) error {
	b.WriteInt32(a.AckPacketID)
	b.WriteUint32(a.AckSequence)
	return nil
}

func (a *Ack) UnmarshalPacket(b *packet.Buffer) error {
	var err error
	if a.AckPacketID, err = b.ReadInt32(); err != nil {
		return err
	}
	a.AckSequence, err = b.ReadUint32()
	return err
}

// Disconnect tells a peer its session is over. It has no payload.
type Disconnect struct{}

func (*Disconnect) PacketName() string { return NameDisconnect }
func (*Disconnect) MarshalPacket(*packet.Buffer) error { return nil }
func (*Disconnect) UnmarshalPacket(*packet.Buffer) error { return nil }

// HandshakeBegin is sent by a joining peer to the host.
type HandshakeBegin struct {
	Secret string
}

func (*HandshakeBegin) PacketName() string { return NameHandshakeBegin }

func (h *HandshakeBegin) MarshalPacket(b *packet.Buffer) error {
	b.WriteString(h.Secret)
	return nil
}

func (h *HandshakeBegin) UnmarshalPacket(b *packet.Buffer) error {
	var err error
	h.Secret, err = b.ReadString()
	return err
}

// HandshakeAccept is the host's reply: the id assigned to the joiner and the
// host's own session id.
type HandshakeAccept struct {
	AcceptedSessionID int32
	RemoteSessionID   int32
	Secret            string
}

func (*HandshakeAccept) PacketName() string { return NameHandshakeAccept }

func (h *HandshakeAccept) MarshalPacket(b *packet.Buffer) error {
	b.WriteInt32(h.AcceptedSessionID)
	b.WriteInt32(h.RemoteSessionID)
	b.WriteString(h.Secret)
	return nil
}

func (h *HandshakeAccept) UnmarshalPacket(b *packet.Buffer) error {
	var err error
	if h.AcceptedSessionID, err = b.ReadInt32(); err != nil {
		return err
	}
	if h.RemoteSessionID, err = b.ReadInt32(); err != nil {
		return err
	}
	h.Secret, err = b.ReadString()
	return err
}

// Register adds the reserved types to r. It is safe to call once per controller
// on a shared registry.
func Register(r *registry.Registry) error {
	entries := []struct {
		factory func() registry.Payload
		opts    registry.Options
	}{
		{func() registry.Payload { return &Ping{} }, registry.Options{RequiresSession: true}},
		{func() registry.Payload { return &Ack{} }, registry.Options{}},
		{func() registry.Payload { return &Disconnect{} }, registry.Options{}},
		{func() registry.Payload { return &HandshakeBegin{} }, registry.Options{Reliable: true}},
		{func() registry.Payload { return &HandshakeAccept{} }, registry.Options{Reliable: true}},
	}
	for _, e := range entries {
		if _, err := r.Register(e.factory, e.opts); err != nil {
			return err
		}
	}
	return nil
}
