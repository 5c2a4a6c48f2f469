package controller

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/tether/internal/heartbeat"
	"github.com/danmuck/tether/internal/protocol/packet"
	"github.com/danmuck/tether/internal/protocol/packets"
	"github.com/danmuck/tether/internal/protocol/registry"
	"github.com/danmuck/tether/internal/protocol/reliability"
	"github.com/danmuck/tether/internal/protocol/sequence"
	"github.com/danmuck/tether/internal/protocol/session"
	"github.com/danmuck/tether/internal/transport"
)

var (
	ErrNilRegistry      = errors.New("controller: nil registry")
	ErrClosed           = errors.New("controller: closed")
	ErrAlreadyConnected = errors.New("controller: already connected")
)

// Option customizes collaborators at construction.
type Option func(*Controller)

// WithListener replaces the UDP transport.
func WithListener(l transport.Listener) Option {
	return func(c *Controller) { c.listen = l }
}

// WithTicker replaces the internal heartbeat scheduler.
func WithTicker(t heartbeat.Ticker) Option {
	return func(c *Controller) { c.ticker = t }
}

// WithLogger replaces the controller's base logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller binds one datagram endpoint and runs the session protocol on it.
type Controller struct {
	cfg      Config
	reg      *registry.Registry
	instance uuid.UUID
	logger   zerolog.Logger

	listen    transport.Listener
	conn      transport.Datagram
	table     *session.Table
	outbound  *sequence.Guard
	strangers *sequence.Guard
	reliable  *reliability.Manager

	ticker    heartbeat.Ticker
	scheduler *heartbeat.Scheduler
	cancels   []func()

	baseLocalID int32
	connected   atomic.Bool
	closed      atomic.Bool
	closeOnce   sync.Once
	done        chan struct{}

	// callbacks counts receive dispatches and tick callbacks in flight.
	callbacks atomic.Int32

	subMu   sync.RWMutex
	subs    map[int]func(Event)
	nextSub int
}

var _ registry.Link = (*Controller)(nil)

// New binds the transport, registers the reserved packet types in reg and
// starts the receive loop.
func New(cfg Config, reg *registry.Registry, opts ...Option) (*Controller, error) {
	if reg == nil {
		return nil, ErrNilRegistry
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := packets.Register(reg); err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:       cfg,
		reg:       reg,
		instance:  uuid.New(),
		logger:    log.Logger,
		listen:    transport.ListenUDP,
		outbound:  sequence.NewGuard(),
		strangers: sequence.NewGuard(),
		done:      make(chan struct{}),
		subs:      make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().
		Str("node", cfg.NodeID).
		Str("instance", c.instance.String()).
		Str("role", cfg.Role.String()).
		Logger()

	conn, err := c.listen(cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("controller: bind %s: %w", cfg.ListenAddr, err)
	}
	c.conn = conn

	if cfg.Role != registry.RoleClientOnly {
		c.baseLocalID = session.DeriveLocalID(conn.LocalAddr(), c.instance[:])
	}
	c.table = session.NewTable(conn.LocalAddr(), c.baseLocalID, session.TableOptions{
		MaxSessions: cfg.MaxSessions,
		Timeout:     cfg.SessionTimeout,
		OnExpire:    c.onExpire,
	})
	c.reliable = reliability.NewManager(cfg.Retry, c.conn.Send,
		reliability.WithRetryHandler(c.onRetry),
		reliability.WithDropHandler(c.onDrop),
	)

	if c.ticker == nil {
		c.scheduler = heartbeat.NewScheduler()
		c.ticker = c.scheduler
	}
	c.cancels = append(c.cancels, c.ticker.OnTick(c.Tick, cfg.TickInterval))
	if cfg.KeepAliveInterval > 0 {
		c.cancels = append(c.cancels, c.ticker.OnTick(c.keepAlive, cfg.KeepAliveInterval))
	}

	go c.receiveLoop()
	c.logger.Info().Str("addr", conn.LocalAddr().String()).Int32("local_id", c.baseLocalID).Msg("controller bound")
	return c, nil
}

func (c *Controller) Role() registry.Role { return c.cfg.Role }

func (c *Controller) Config() Config { return c.cfg }

func (c *Controller) Registry() *registry.Registry { return c.reg }

func (c *Controller) InstanceID() uuid.UUID { return c.instance }

func (c *Controller) LocalAddr() netip.AddrPort { return c.conn.LocalAddr() }

// LocalID is the id peers know this controller by; 0 until a joiner is accepted.
func (c *Controller) LocalID() int32 { return c.table.Local().ID() }

// IsConnected reports a completed handshake as joiner, or at least one live
// session for a host.
func (c *Controller) IsConnected() bool {
	if c.connected.Load() {
		return true
	}
	return c.cfg.Role != registry.RoleClientOnly && c.table.Count() > 0
}

// Sessions returns a snapshot including the local session.
func (c *Controller) Sessions() []*session.Session { return c.table.Sessions() }

func (c *Controller) SessionCount() int { return c.table.Count() }

// Session returns the session for a remote endpoint.
func (c *Controller) Session(ep netip.AddrPort) (*session.Session, bool) {
	s, ok := c.table.ByEndpoint(ep)
	if !ok || s.IsLocal() {
		return nil, false
	}
	return s, true
}

// Outstanding returns the reliable packets still awaiting an ack from ep.
func (c *Controller) Outstanding(ep netip.AddrPort) []reliability.Outstanding {
	return c.reliable.Pending(session.Canonical(ep))
}

// OutstandingCount returns the number of unacknowledged reliable packets.
func (c *Controller) OutstandingCount() int { return c.reliable.Len() }

// Send stamps, encodes and hands p to the transport. It returns once the
// datagram is written, not once it is delivered.
func (c *Controller) Send(p registry.Payload, to netip.AddrPort) error {
	to = session.Canonical(to)
	if c.closed.Load() {
		return ErrClosed
	}
	def, err := c.reg.LookupPayload(p)
	if err != nil {
		c.emit(Event{Kind: PacketSent, Remote: to, Payload: p, Err: err})
		return err
	}

	h := packet.Header{
		TypeID:    def.ID,
		SessionID: c.LocalID(),
		Sequence:  c.outbound.NextSent(def.ID),
	}
	b := packet.EncodeHeader(h, 32)
	if err := p.MarshalPacket(b); err != nil {
		err = fmt.Errorf("controller: encode %s: %w", def.Name, err)
		c.emit(Event{Kind: PacketSent, Remote: to, Header: h, Payload: p, Err: err})
		return err
	}
	data := b.Bytes()

	if def.Reliable {
		c.reliable.Register(to, reliability.Outstanding{
			TypeID:   h.TypeID,
			Sequence: h.Sequence,
			Data:     data,
		})
	}
	err = c.conn.Send(data, to)
	if err != nil {
		c.logger.Warn().Err(err).Str("remote", to.String()).Str("packet", def.Name).Msg("send failed")
	}
	c.emit(Event{Kind: PacketSent, Remote: to, Header: h, Payload: p, Err: err})
	return err
}

// Broadcast sends p to every remote session.
func (c *Controller) Broadcast(p registry.Payload) error {
	return c.BroadcastExcept(p)
}

// BroadcastTo sends p to each listed endpoint that has a session.
func (c *Controller) BroadcastTo(p registry.Payload, endpoints ...netip.AddrPort) error {
	var errs []error
	for _, ep := range endpoints {
		s, ok := c.Session(ep)
		if !ok {
			continue
		}
		if err := c.Send(p, s.Endpoint); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BroadcastExcept sends p to every remote session not listed.
func (c *Controller) BroadcastExcept(p registry.Payload, endpoints ...netip.AddrPort) error {
	skip := make(map[netip.AddrPort]struct{}, len(endpoints))
	for _, ep := range endpoints {
		skip[session.Canonical(ep)] = struct{}{}
	}
	var errs []error
	for _, s := range c.table.Remotes() {
		if _, ok := skip[s.Endpoint]; ok {
			continue
		}
		if err := c.Send(p, s.Endpoint); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Tick runs one retransmission pass. The heartbeat scheduler calls it every
// TickInterval.
func (c *Controller) Tick(now time.Time) {
	c.callbacks.Add(1)
	defer c.callbacks.Add(-1)
	if c.closed.Load() {
		return
	}
	c.reliable.Tick(now)
}

func (c *Controller) keepAlive(time.Time) {
	c.callbacks.Add(1)
	defer c.callbacks.Add(-1)
	if c.closed.Load() || c.table.Count() == 0 {
		return
	}
	if err := c.Broadcast(&packets.Ping{}); err != nil {
		c.logger.Debug().Err(err).Msg("keep-alive broadcast failed")
	}
}

func (c *Controller) onRetry(item reliability.Outstanding, err error) {
	ev := c.logger.Debug()
	if err != nil {
		ev = c.logger.Warn().Err(err)
	}
	ev.Str("remote", item.Endpoint.String()).
		Int32("type", item.TypeID).
		Uint32("seq", item.Sequence).
		Int("attempt", item.Attempts).
		Msg("reliable packet resent")
	c.emit(Event{
		Kind:   PacketRetransmitted,
		Remote: item.Endpoint,
		Header: packet.Header{TypeID: item.TypeID, Sequence: item.Sequence},
		Err:    err,
	})
}

func (c *Controller) onDrop(item reliability.Outstanding) {
	c.logger.Warn().
		Str("remote", item.Endpoint.String()).
		Int32("type", item.TypeID).
		Uint32("seq", item.Sequence).
		Int("attempts", item.Attempts).
		Msg("reliable packet abandoned")
	c.emit(Event{
		Kind:   PacketAbandoned,
		Remote: item.Endpoint,
		Header: packet.Header{TypeID: item.TypeID, Sequence: item.Sequence},
	})
}

func (c *Controller) receiveLoop() {
	defer close(c.done)
	for {
		data, from, err := c.conn.Receive()
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				c.logger.Debug().Msg("receive loop stopped")
				return
			}
			c.logger.Warn().Err(err).Msg("receive failed")
			continue
		}
		c.callbacks.Add(1)
		c.handleDatagram(data, session.Canonical(from))
		c.callbacks.Add(-1)
	}
}

func (c *Controller) handleDatagram(data []byte, from netip.AddrPort) {
	buf := packet.FromBytes(data)
	h, err := packet.DecodeHeader(buf)
	if err != nil {
		c.reject(Event{Remote: from, Reason: ReasonMalformedHeader, Err: err})
		return
	}
	c.emit(Event{Kind: PacketReceived, Remote: from, Header: h})

	def, err := c.reg.Lookup(h.TypeID)
	if err != nil {
		c.logger.Debug().Str("remote", from.String()).Int32("type", h.TypeID).Msg("unknown packet")
		c.emit(Event{Kind: PacketUnknown, Remote: from, Header: h, Err: err})
		return
	}

	s, reason := c.validate(def, h, from)
	if reason != "" {
		c.reject(Event{Remote: from, Session: s, Header: h, Reason: reason})
		return
	}

	guard := c.strangers
	if s != nil {
		guard = s.Sequence()
	}
	if !guard.Accept(h.TypeID, h.Sequence, def.Ordered) {
		if def.Reliable {
			c.ack(h, from)
		}
		c.reject(Event{Remote: from, Session: s, Header: h, Reason: ReasonStaleSequence})
		return
	}
	if s != nil {
		s.Touch()
	}

	p := def.New()
	if err := p.UnmarshalPacket(buf); err != nil {
		c.reject(Event{Remote: from, Session: s, Header: h, Reason: ReasonDecodeFailed, Err: err})
		return
	}

	if ack, ok := p.(*packets.Ack); ok {
		c.reliable.Unregister(from, ack.AckPacketID, ack.AckSequence)
	} else if def.Reliable {
		c.ack(h, from)
	}
	c.emit(Event{Kind: PacketAccepted, Remote: from, Session: s, Header: h, Payload: p})

	d := &registry.Delivery{
		Link:      c,
		From:      from,
		SessionID: h.SessionID,
		Header:    h,
		Payload:   p,
	}
	c.handleReserved(d)
	c.reg.Dispatch(def, d, c.cfg.Role)
}

// validate resolves the sender's session. Session-exempt packets pass with
// whatever session the endpoint has, possibly none.
func (c *Controller) validate(def *registry.Definition, h packet.Header, from netip.AddrPort) (*session.Session, string) {
	s, ok := c.table.ByEndpoint(from)
	if ok && s.IsLocal() {
		s, ok = nil, false
	}
	if !def.RequiresSession {
		return s, ""
	}
	if c.cfg.ValidateEndpoint && !ok {
		return nil, ReasonUnknownEndpoint
	}
	if c.cfg.ValidateID {
		if h.SessionID == session.LocalID {
			return s, ReasonSessionMismatch
		}
		if ok {
			if s.ID() != h.SessionID {
				return s, ReasonSessionMismatch
			}
			return s, ""
		}
		byID, found := c.table.ByID(h.SessionID)
		if !found {
			return nil, ReasonSessionMismatch
		}
		return byID, ""
	}
	return s, ""
}

func (c *Controller) ack(h packet.Header, to netip.AddrPort) {
	err := c.Send(&packets.Ack{AckPacketID: h.TypeID, AckSequence: h.Sequence}, to)
	if err != nil {
		c.logger.Debug().Err(err).Str("remote", to.String()).Msg("ack send failed")
	}
}

func (c *Controller) reject(ev Event) {
	ev.Kind = PacketRejected
	c.logger.Debug().
		Str("remote", ev.Remote.String()).
		Int32("type", ev.Header.TypeID).
		Str("reason", ev.Reason).
		Msg("packet rejected")
	c.emit(ev)
}

// Disconnect notifies every remote session, clears the table and raises
// Disconnected. With no sessions it only logs a warning.
func (c *Controller) Disconnect() {
	remotes := c.table.Remotes()
	if len(remotes) == 0 {
		c.logger.Warn().Msg("disconnect with no active sessions")
		return
	}
	for _, s := range remotes {
		if err := c.Send(&packets.Disconnect{}, s.Endpoint); err != nil {
			c.logger.Warn().Err(err).Str("remote", s.Endpoint.String()).Msg("disconnect notice failed")
		}
	}
	for _, s := range c.table.Reset() {
		c.reliable.Forget(s.Endpoint)
		c.emit(Event{Kind: SessionEnded, Remote: s.Endpoint, Session: s, Reason: ReasonLocalDisconnect})
	}
	c.markDisconnected("")
}

// RemoveSession sends a Disconnect notice to s and drops it. Passing the
// local session or nil panics.
func (c *Controller) RemoveSession(s *session.Session) bool {
	if s == nil {
		panic("controller: remove of nil session")
	}
	if s.IsLocal() {
		panic("controller: remove of local session")
	}
	if err := c.Send(&packets.Disconnect{}, s.Endpoint); err != nil {
		c.logger.Warn().Err(err).Str("remote", s.Endpoint.String()).Msg("disconnect notice failed")
	}
	return c.endSession(s, ReasonRemoved)
}

func (c *Controller) endSession(s *session.Session, reason string) bool {
	if !c.table.Remove(s) {
		return false
	}
	c.sessionEnded(s, reason)
	return true
}

func (c *Controller) onExpire(s *session.Session) {
	c.logger.Info().Str("remote", s.Endpoint.String()).Int32("session", s.ID()).Msg("session expired")
	c.sessionEnded(s, ReasonExpired)
}

func (c *Controller) sessionEnded(s *session.Session, reason string) {
	c.reliable.Forget(s.Endpoint)
	c.emit(Event{Kind: SessionEnded, Remote: s.Endpoint, Session: s, Reason: reason})
	if c.table.Count() == 0 && c.connected.Load() {
		c.markDisconnected(reason)
	}
}

func (c *Controller) markDisconnected(reason string) {
	c.connected.Store(false)
	c.table.SetLocalID(c.baseLocalID)
	c.logger.Info().Str("reason", reason).Msg("disconnected")
	c.emit(Event{Kind: Disconnected, Reason: reason})
}

// Done is closed once the receive loop has exited.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Close disconnects live sessions, stops the scheduler, closes the transport
// and waits for the receive loop to exit. Called from a packet handler or an
// event subscriber, it returns without waiting and the teardown finishes once
// the callback returns; use Done to observe it.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.table.Count() > 0 {
			c.Disconnect()
		}
		c.closed.Store(true)
		for _, cancel := range c.cancels {
			cancel()
		}
		err = c.conn.Close()
		if c.callbacks.Load() > 0 {
			go c.finishClose()
			return
		}
		c.finishClose()
	})
	return err
}

func (c *Controller) finishClose() {
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	<-c.done
	c.table.Close()
	c.reliable.Clear()
	c.logger.Info().Msg("controller closed")
}
