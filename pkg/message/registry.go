package message

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrDuplicateID = errors.New("message: id already registered")
	ErrUnknownID   = errors.New("message: unknown id")
)

// Factory returns a fresh, decodable (pointer) message value.
type Factory func() Message

type entry struct {
	name    string
	factory Factory
}

// Registry maps wire ids to message types.
type Registry struct {
	mu   sync.RWMutex
	byID map[uint32]entry
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[uint32]entry)}
}

func (r *Registry) Register(id uint32, name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byID[id]; ok {
		return fmt.Errorf("%w: %d (%s)", ErrDuplicateID, id, e.name)
	}
	r.byID[id] = entry{name: name, factory: f}
	return nil
}

func (r *Registry) MustRegister(id uint32, name string, f Factory) {
	if err := r.Register(id, name, f); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(id uint32) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	return e.factory, ok
}

// Name returns the registered name, or "unknown(id)".
func (r *Registry) Name(id uint32) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byID[id]; ok {
		return e.name
	}
	return fmt.Sprintf("unknown(%d)", id)
}

// New instantiates the message registered under id.
func (r *Registry) New(id uint32) (Message, error) {
	f, ok := r.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	return f(), nil
}

// IDs lists registered ids in ascending order.
func (r *Registry) IDs() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint32, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Registered holds the built-in messages.
var Registered = NewRegistry()
