package registry

import (
	"errors"
	"fmt"
	"hash/fnv"
	"net/netip"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/tether/internal/protocol/packet"
)

var (
	ErrNotFound           = errors.New("registry: packet not found")
	ErrIDCollision        = errors.New("registry: packet id collision")
	ErrDefinitionConflict = errors.New("registry: conflicting definition")
	ErrInvalidName        = errors.New("registry: invalid packet name")
	ErrNilFactory         = errors.New("registry: nil payload factory")
	ErrNilHandler         = errors.New("registry: nil handler")
)

// Payload is a typed packet body.
//
// PacketName must return a constant fully-qualified name and must not touch the
// receiver, so a nil pointer of the concrete type can report it.
type Payload interface {
	PacketName() string
	MarshalPacket(b *packet.Buffer) error
	UnmarshalPacket(b *packet.Buffer) error
}

// Role selects which controllers a handler runs on.
type Role int

const (
	RoleAgnostic Role = iota
	RoleServerOnly
	RoleClientOnly
)

func (r Role) String() string {
	switch r {
	case RoleServerOnly:
		return "server"
	case RoleClientOnly:
		return "client"
	default:
		return "agnostic"
	}
}

// Matches reports whether a handler registered for r runs on a controller of role self.
func (r Role) Matches(self Role) bool {
	return r == RoleAgnostic || r == self
}

// Link is the controller surface handlers may use.
type Link interface {
	Send(p Payload, to netip.AddrPort) error
	Role() Role
}

// Delivery is one accepted inbound packet handed to handlers.
type Delivery struct {
	Link      Link
	From      netip.AddrPort
	SessionID int32
	Header    packet.Header
	Payload   Payload
}

// Reply sends p back to the delivery's sender.
func (d *Delivery) Reply(p Payload) error {
	return d.Link.Send(p, d.From)
}

// Handler consumes a decoded delivery.
type Handler func(d *Delivery)

// Options declares delivery flags for a packet type.
type Options struct {
	ID              int32
	Ordered         bool
	Reliable        bool
	RequiresSession bool
}

type handlerEntry struct {
	role Role
	fn   Handler
}

// Definition is registry metadata for one packet type.
type Definition struct {
	ID              int32
	Name            string
	Ordered         bool
	Reliable        bool
	RequiresSession bool

	factory  func() Payload
	mu       sync.RWMutex
	handlers []handlerEntry
}

// New returns an empty payload ready for decoding.
func (d *Definition) New() Payload {
	return d.factory()
}

// HandlerCount returns the number of registered handlers.
func (d *Definition) HandlerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

func (d *Definition) sameFlags(opts Options) bool {
	return d.Ordered == opts.Ordered &&
		d.Reliable == opts.Reliable &&
		d.RequiresSession == opts.RequiresSession &&
		(opts.ID == 0 || opts.ID == d.ID)
}

// Registry maps packet ids and names to definitions. It is safe to populate
// while controllers are dispatching.
type Registry struct {
	mu     sync.RWMutex
	byID   map[int32]*Definition
	byName map[string]*Definition
}

func New() *Registry {
	return &Registry{
		byID:   make(map[int32]*Definition),
		byName: make(map[string]*Definition),
	}
}

// DeriveID hashes a fully-qualified packet name into a stable id.
func DeriveID(name string) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return int32(h.Sum32())
}

// Register adds a packet type. Registering the same name with the same flags
// returns the existing definition.
func (r *Registry) Register(factory func() Payload, opts Options) (*Definition, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	name := strings.TrimSpace(factory().PacketName())
	if name == "" {
		return nil, ErrInvalidName
	}
	id := opts.ID
	if id == 0 {
		id = DeriveID(name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if def, ok := r.byName[name]; ok {
		if !def.sameFlags(opts) {
			return nil, fmt.Errorf("%w: %s", ErrDefinitionConflict, name)
		}
		return def, nil
	}
	if other, ok := r.byID[id]; ok {
		return nil, fmt.Errorf("%w: id=%d %s vs %s", ErrIDCollision, id, name, other.Name)
	}
	def := &Definition{
		ID:              id,
		Name:            name,
		Ordered:         opts.Ordered,
		Reliable:        opts.Reliable,
		RequiresSession: opts.RequiresSession,
		factory:         factory,
	}
	r.byID[id] = def
	r.byName[name] = def
	return def, nil
}

// MustRegister is Register for package-level wiring; it panics on error.
func (r *Registry) MustRegister(factory func() Payload, opts Options) *Definition {
	def, err := r.Register(factory, opts)
	if err != nil {
		panic(err)
	}
	return def
}

// Handle appends a handler to an already registered packet type.
func (r *Registry) Handle(name string, role Role, fn Handler) error {
	if fn == nil {
		return ErrNilHandler
	}
	def, err := r.LookupName(name)
	if err != nil {
		return err
	}
	def.mu.Lock()
	def.handlers = append(def.handlers, handlerEntry{role: role, fn: fn})
	def.mu.Unlock()
	return nil
}

// OnReceive binds fn to the packet type of its payload parameter.
func OnReceive[P Payload](r *Registry, role Role, fn func(d *Delivery, p P)) error {
	if fn == nil {
		return ErrNilHandler
	}
	var zero P
	return r.Handle(zero.PacketName(), role, func(d *Delivery) {
		p, ok := d.Payload.(P)
		if !ok {
			return
		}
		fn(d, p)
	})
}

func (r *Registry) Lookup(id int32) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id=%d", ErrNotFound, id)
	}
	return def, nil
}

func (r *Registry) LookupName(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return def, nil
}

// LookupPayload returns the definition for p's packet type.
func (r *Registry) LookupPayload(p Payload) (*Definition, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrNotFound)
	}
	return r.LookupName(p.PacketName())
}

// Definitions returns all definitions ordered by name.
func (r *Registry) Definitions() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.byName))
	for _, def := range r.byName {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// Dispatch runs every handler of d's packet type whose role matches self.
// It returns the number of handlers invoked.
func (r *Registry) Dispatch(def *Definition, d *Delivery, self Role) int {
	def.mu.RLock()
	handlers := make([]handlerEntry, len(def.handlers))
	copy(handlers, def.handlers)
	def.mu.RUnlock()

	n := 0
	for _, h := range handlers {
		if !h.role.Matches(self) {
			continue
		}
		h.fn(d)
		n++
	}
	return n
}
