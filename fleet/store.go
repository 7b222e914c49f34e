// Package fleet holds the authoritative in-memory state of the tracked
// satellites and applies the per-tick update rule to all of them at once.
package fleet

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/signalsfoundry/constellation-telemetry/model"
)

var (
	// ErrDuplicateEntity indicates two seed entities share an ID.
	ErrDuplicateEntity = errors.New("duplicate entity id")
	// ErrInvalidEntity indicates a seed entity failed validation.
	ErrInvalidEntity = errors.New("invalid entity")
	// ErrEntityNotFound indicates a requested entity does not exist.
	ErrEntityNotFound = errors.New("entity not found")
)

const (
	// MinLatency is the floor applied to jittered latency, in milliseconds.
	MinLatency = 20.0
	// JitterSpan is the width of the uniform latency perturbation.
	JitterSpan = 20.0
)

// Source yields uniformly distributed values in [0, 1).
type Source interface {
	Float64() float64
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func() float64

// Float64 implements Source.
func (f SourceFunc) Float64() float64 { return f() }

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// Option customises Store construction.
type Option func(*Store)

// WithSource replaces the random source used for latency jitter.
func WithSource(src Source) Option {
	return func(s *Store) {
		if src != nil {
			s.rand = src
		}
	}
}

// WithDefaultTasks overrides the rotation used for entities without a
// configured task list.
func WithDefaultTasks(tasks []string) Option {
	return func(s *Store) {
		if len(tasks) > 0 {
			s.defaultTasks = append([]string(nil), tasks...)
		}
	}
}

// Store is an in-memory, thread-safe collection of entities.
//
// The set of IDs and their order are fixed at construction.
type Store struct {
	mu sync.RWMutex

	entities []model.Entity
	index    map[string]int

	tasks        map[string][]string
	defaultTasks []string
	cursors      map[string]int

	rand Source
	subs map[int]func([]model.Entity)
	next int
}

// NewStore validates the seed entities and builds a Store. Every task cursor
// starts at the first task of its list.
func NewStore(entities []model.Entity, tasks map[string][]string, opts ...Option) (*Store, error) {
	s := &Store{
		entities:     make([]model.Entity, 0, len(entities)),
		index:        make(map[string]int, len(entities)),
		tasks:        make(map[string][]string, len(tasks)),
		defaultTasks: model.DefaultTaskList(),
		cursors:      make(map[string]int, len(entities)),
		rand:         globalSource{},
		subs:         make(map[int]func([]model.Entity)),
	}
	for _, opt := range opts {
		opt(s)
	}

	for id, list := range tasks {
		if len(list) == 0 {
			continue
		}
		s.tasks[id] = append([]string(nil), list...)
	}

	for _, e := range entities {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: empty id", ErrInvalidEntity)
		}
		if _, exists := s.index[e.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateEntity, e.ID)
		}
		if e.Latency < 0 || math.IsNaN(e.Latency) {
			return nil, fmt.Errorf("%w: %q has latency %v", ErrInvalidEntity, e.ID, e.Latency)
		}
		if e.Status == "" {
			e.Status = model.StatusNominal
		}
		s.index[e.ID] = len(s.entities)
		s.entities = append(s.entities, e)
		s.cursors[e.ID] = 0
	}
	return s, nil
}

// TaskList returns the rotation used for id, falling back to the default list.
func (s *Store) TaskList(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.taskListLocked(id)...)
}

func (s *Store) taskListLocked(id string) []string {
	if list, ok := s.tasks[id]; ok {
		return list
	}
	return s.defaultTasks
}

// AdvanceAll applies one tick to every entity: the task cursor moves one step
// forward (wrapping) and non-zero latency is jittered then floored at
// MinLatency. The new collection is computed from the previous one and
// swapped in as a whole.
func (s *Store) AdvanceAll() {
	s.mu.Lock()
	prev := s.entities
	next := make([]model.Entity, len(prev))
	cursors := make(map[string]int, len(s.cursors))
	for i, e := range prev {
		list := s.taskListLocked(e.ID)
		cursor := (s.cursors[e.ID] + 1) % len(list)
		cursors[e.ID] = cursor

		e.Task = list[cursor]
		if e.Latency != 0 {
			e.Latency = jitter(e.Latency, s.rand.Float64())
		}
		next[i] = e
	}
	s.entities = next
	s.cursors = cursors

	view := append([]model.Entity(nil), next...)
	subs := make([]func([]model.Entity), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, fn := range subs {
		fn(view)
	}
}

func jitter(latency, r float64) float64 {
	return math.Max(MinLatency, latency+(r-0.5)*JitterSpan)
}

// Entities returns a copy of the current collection in seed order.
func (s *Store) Entities() []model.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Entity(nil), s.entities...)
}

// Entity returns the entity with the given ID.
func (s *Store) Entity(id string) (model.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return model.Entity{}, false
	}
	return s.entities[i], true
}

// FindBySlot returns the entity displayed under the given orbit slot label.
func (s *Store) FindBySlot(slot string) (model.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entities {
		if e.OrbitSlot == slot {
			return e, true
		}
	}
	return model.Entity{}, false
}

// Len returns the fleet size.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// SetStatus records an externally observed status. Ticks never change it.
func (s *Store) SetStatus(id string, status model.Status) error {
	status, err := model.ParseStatus(string(status))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrEntityNotFound, id)
	}
	next := append([]model.Entity(nil), s.entities...)
	next[i].Status = status
	s.entities = next
	return nil
}

// NominalCount returns how many entities are nominal and the fleet size.
func (s *Store) NominalCount() (nominal, total int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entities {
		if e.Status == model.StatusNominal {
			nominal++
		}
	}
	return nominal, len(s.entities)
}

// Subscribe registers a callback invoked with the new collection after every
// AdvanceAll. It returns an unsubscribe function.
func (s *Store) Subscribe(fn func([]model.Entity)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}
