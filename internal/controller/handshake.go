package controller

import (
	"errors"
	"net/netip"

	"github.com/danmuck/tether/internal/protocol/packets"
	"github.com/danmuck/tether/internal/protocol/registry"
	"github.com/danmuck/tether/internal/protocol/session"
)

// Connect starts the handshake with a host. Completion is signalled by the
// Connected event; Begin is retransmitted until the host acknowledges it.
func (c *Controller) Connect(host netip.AddrPort, secret string) error {
	if c.connected.Load() {
		return ErrAlreadyConnected
	}
	c.logger.Info().Str("host", host.String()).Msg("handshake begin")
	return c.Send(&packets.HandshakeBegin{Secret: secret}, host)
}

func (c *Controller) handleReserved(d *registry.Delivery) {
	switch p := d.Payload.(type) {
	case *packets.HandshakeBegin:
		if c.cfg.Role != registry.RoleClientOnly {
			c.handleBegin(d, p)
		}
	case *packets.HandshakeAccept:
		if c.cfg.Role != registry.RoleServerOnly {
			c.handleAccept(d, p)
		}
	case *packets.Disconnect:
		c.handleDisconnect(d)
	}
}

func (c *Controller) handleBegin(d *registry.Delivery, p *packets.HandshakeBegin) {
	if c.cfg.BeginValidator != nil && !c.cfg.BeginValidator(p.Secret, d.From) {
		c.logger.Warn().Str("remote", d.From.String()).Msg("handshake secret rejected")
		c.emit(Event{Kind: SessionRejected, Remote: d.From, Payload: p, Reason: ReasonSecretRejected})
		return
	}

	s, err := c.table.TryAdd(d.From, c.assignID(d.From))
	switch {
	case errors.Is(err, session.ErrDuplicateEndpoint):
		// A restarted peer counts from zero again.
		s.Sequence().Reset()
		c.logger.Debug().Str("remote", d.From.String()).Msg("repeated handshake begin")
		c.sendAccept(s)
		return
	case errors.Is(err, session.ErrTableFull):
		c.logger.Warn().Str("remote", d.From.String()).Int("max", c.cfg.MaxSessions).Msg("session rejected: table full")
		c.emit(Event{Kind: SessionRejected, Remote: d.From, Payload: p, Reason: ReasonTableFull, Err: err})
		return
	case err != nil:
		c.logger.Warn().Err(err).Str("remote", d.From.String()).Msg("handshake begin failed")
		c.emit(Event{Kind: SessionRejected, Remote: d.From, Payload: p, Err: err})
		return
	}

	c.logger.Info().Str("remote", s.Endpoint.String()).Int32("session", s.ID()).Msg("session started")
	c.emit(Event{Kind: SessionStarted, Remote: s.Endpoint, Session: s, Payload: p})
	c.sendAccept(s)
}

func (c *Controller) sendAccept(s *session.Session) {
	err := c.Send(&packets.HandshakeAccept{
		AcceptedSessionID: s.ID(),
		RemoteSessionID:   c.LocalID(),
		Secret:            c.cfg.Secret,
	}, s.Endpoint)
	if err != nil {
		c.logger.Warn().Err(err).Str("remote", s.Endpoint.String()).Msg("handshake accept send failed")
	}
}

// assignID derives the id for a new peer, stepping past ids already in use.
func (c *Controller) assignID(ep netip.AddrPort) int32 {
	id := session.DeriveID(ep)
	for {
		if id <= session.LocalID {
			id = 1
		}
		if _, taken := c.table.ByID(id); !taken && id != c.LocalID() {
			return id
		}
		id++
	}
}

func (c *Controller) handleAccept(d *registry.Delivery, p *packets.HandshakeAccept) {
	if c.connected.Load() {
		c.logger.Warn().Str("remote", d.From.String()).Msg("handshake accept while connected")
		return
	}
	if p.AcceptedSessionID == session.LocalID {
		c.logger.Warn().Str("remote", d.From.String()).Msg("handshake accept without assigned id")
		return
	}
	s, err := c.table.TryAdd(d.From, p.RemoteSessionID)
	if err != nil {
		c.logger.Warn().Err(err).Str("remote", d.From.String()).Msg("handshake accept failed")
		return
	}
	if c.cfg.AcceptValidator != nil && !c.cfg.AcceptValidator(p, d.From) {
		c.table.Remove(s)
		c.logger.Warn().Str("remote", d.From.String()).Msg("handshake accept rejected")
		return
	}

	c.table.SetLocalID(p.AcceptedSessionID)
	c.connected.Store(true)
	c.logger.Info().
		Str("host", s.Endpoint.String()).
		Int32("local_id", p.AcceptedSessionID).
		Int32("host_id", p.RemoteSessionID).
		Msg("connected")
	c.emit(Event{Kind: SessionStarted, Remote: s.Endpoint, Session: s, Payload: p})
	c.emit(Event{Kind: Connected, Remote: s.Endpoint, Session: s, Payload: p})
}

func (c *Controller) handleDisconnect(d *registry.Delivery) {
	s, ok := c.Session(d.From)
	if !ok {
		return
	}
	c.logger.Info().Str("remote", d.From.String()).Int32("session", s.ID()).Msg("peer disconnected")
	c.endSession(s, ReasonPeerDisconnected)
}
