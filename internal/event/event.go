// Package event implements the typed event registry and the in-world event
// sink. Events are opaque payloads tagged Local or Order; a registry maps
// concrete Go types to stable wire indices assigned in registration order.
package event

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/andersfylling/hooksmp/internal/codec"
)

// Class tags whether an event crosses the wire.
type Class int

const (
	// Local events never leave the world that produced them.
	Local Class = iota
	// Order events are broadcast to clients via the tick stream.
	Order
)

// Classed may be implemented by an event type to report a Class other than
// the default (Local).
type Classed interface {
	Class() Class
}

// Event is any registered payload. No methods are required; registration
// supplies the encode/decode behaviour out of band.
type Event any

// TypeIndex is the stable wire index of a registered event type.
type TypeIndex uint16

// ErrInvalidTypeIndex is returned by Read when the wire index is out of the
// range of registered types.
var ErrInvalidTypeIndex = errors.New("event: invalid type index")

type entry struct {
	typ    reflect.Type
	write  func(Event, *codec.Writer)
	read   func(*codec.Reader) (Event, error)
	class  Class
}

// Registry maps concrete event types to TypeIndex in registration order.
// Registration happens during setup (including after ecs.Registry.Finalize,
// as session.RegisterEvents does); a mutex makes it safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	index   map[reflect.Type]TypeIndex
}

// NewRegistry returns an empty event registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[reflect.Type]TypeIndex)}
}

// Register adds event type T with its encode/decode functions and class.
// Calling Register twice for the same T is a programmer error and panics.
func Register[T any](r *Registry, class Class, write func(*T, *codec.Writer), read func(*codec.Reader) (*T, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := reflect.TypeOf((*T)(nil))
	if _, ok := r.index[t]; ok {
		panic(fmt.Sprintf("event: type %v already registered", t))
	}
	idx := TypeIndex(len(r.entries))
	r.entries = append(r.entries, entry{
		typ: t,
		write: func(e Event, w *codec.Writer) {
			write(e.(*T), w)
		},
		read: func(rd *codec.Reader) (Event, error) {
			return read(rd)
		},
		class: class,
	})
	r.index[t] = idx
}

// Write prepends the type index and encodes e. Writing an unregistered type
// is a programmer error and panics, per the event system's design.
func (r *Registry) Write(e Event, w *codec.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t := reflect.TypeOf(e)
	idx, ok := r.index[t]
	if !ok {
		panic(fmt.Sprintf("event: type %v not registered", t))
	}
	w.WriteUint16(uint16(idx))
	r.entries[idx].write(e, w)
}

// Read decodes the type index and dispatches to the registered reader.
func (r *Registry) Read(rd *codec.Reader) (Event, error) {
	idx, err := rd.ReadUint16()
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(idx) >= len(r.entries) {
		return nil, ErrInvalidTypeIndex
	}
	return r.entries[idx].read(rd)
}

// ClassOf reports the registered class of e, defaulting to Local for values
// that do not implement Classed and falling back to the registry entry for
// the concrete type when present.
func (r *Registry) ClassOf(e Event) Class {
	if c, ok := e.(Classed); ok {
		return c.Class()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx, ok := r.index[reflect.TypeOf(e)]; ok {
		return r.entries[idx].class
	}
	return Local
}

// Sink is the ordered event buffer carried by every World. Systems push
// events into it; handlers drain it. While Ignore is set, pushes are
// silently dropped -- used by prediction replay to suppress duplicate
// Order-event emission.
type Sink struct {
	mu       sync.Mutex
	Ignore   bool
	registry *Registry
	pending  []Event
	orderLog []Event
}

// NewSink returns a sink that classifies events via reg.
func NewSink(reg *Registry) *Sink {
	return &Sink{registry: reg}
}

// Push appends e unless Ignore is set. If e classifies as Order it is also
// appended to the tick's order log for replication.
func (s *Sink) Push(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Ignore {
		return
	}
	s.pending = append(s.pending, e)
	if s.registry.ClassOf(e) == Order {
		s.orderLog = append(s.orderLog, e)
	}
}

// DrainPending removes and returns everything pushed since the last drain.
// Handlers call this at their phase boundary.
func (s *Sink) DrainPending() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.pending
	s.pending = nil
	return ev
}

// BeginTick resets the order log at the start of a tick.
func (s *Sink) BeginTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderLog = nil
}

// DrainOrder returns every Order event pushed since the last BeginTick,
// regardless of whether it was already consumed via DrainPending.
func (s *Sink) DrainOrder() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.orderLog
	s.orderLog = nil
	return ev
}
