// Package events provides push-style subscriptions to committed project changes.
package events

import (
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Kind names what happened to a project.
type Kind string

const (
	ProjectCreated  Kind = "project_created"
	ProjectDeleted  Kind = "project_deleted"
	ProjectFinished Kind = "project_finished"
	TaskAdded       Kind = "task_added"
	TaskUpdated     Kind = "task_updated"
	TaskDeleted     Kind = "task_deleted"
	TaskMoved       Kind = "task_moved"
	SprintStarted   Kind = "sprint_started"
)

// Change is published after a mutation has been committed to the store.
type Change struct {
	Kind      Kind      `json:"kind"`
	ProjectID string    `json:"project_id"`
	TaskID    string    `json:"task_id,omitempty"`
	At        time.Time `json:"at"`
}

// Handler receives changes.
type Handler func(Change)

// Filter selects which changes a subscriber wants; nil accepts all.
type Filter func(Change) bool

// ForProject accepts changes of a single project.
func ForProject(id string) Filter {
	return func(c Change) bool { return c.ProjectID == id }
}

// Bus fans changes out to subscribers synchronously, in publish order.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]subscriber
	logger *slog.Logger
}

type subscriber struct {
	filter  Filter
	handler Handler
}

// Subscription is the handle returned by Subscribe. It must be cancelled by
// its owner once it no longer wants changes.
type Subscription struct {
	bus  *Bus
	id   uint64
	once sync.Once
}

// NewBus creates a bus with no subscribers.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{subs: make(map[uint64]subscriber), logger: logger}
}

// Subscribe registers handler for changes accepted by filter.
func (b *Bus) Subscribe(filter Filter, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[b.nextID] = subscriber{filter: filter, handler: handler}
	return &Subscription{bus: b, id: b.nextID}
}

// Cancel stops delivery. Calling it more than once is harmless.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()
	})
}

// Publish delivers c to every matching subscriber. A panicking handler is
// logged and does not stop delivery to the others.
func (b *Bus) Publish(c Change) {
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	b.mu.RUnlock()
	slices.Sort(ids)

	for _, id := range ids {
		b.mu.RLock()
		sub, ok := b.subs[id]
		b.mu.RUnlock()
		if !ok || (sub.filter != nil && !sub.filter(c)) {
			continue
		}
		b.deliver(sub.handler, c)
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) deliver(h Handler, c Change) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("change handler panicked", slog.String("kind", string(c.Kind)), slog.Any("panic", r))
		}
	}()
	h(c)
}
