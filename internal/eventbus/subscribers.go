package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/homebus/homebus/internal/events"
	"github.com/homebus/homebus/internal/types"
)

// EventSubscriber receives item commands and state updates.
type EventSubscriber interface {
	ReceiveCommand(item string, cmd types.Command)
	ReceiveUpdate(item string, state types.State)
}

// SystemEventSubscriber receives lifecycle notifications.
type SystemEventSubscriber interface {
	ReceiveSystemEvent(e *events.SystemEvent)
}

// ConfigurationEventSubscriber receives service and item configuration.
type ConfigurationEventSubscriber interface {
	ReceiveConfigurationEvent(e *events.ConfigurationEvent)
}

// EventPublisher is the handle given to bindings for posting results back
// onto the bus. Both calls are fire-and-forget.
type EventPublisher interface {
	PostCommand(item string, cmd types.Command) error
	PostUpdate(item string, state types.State) error
}

// cowList is an insertion-ordered set with copy-on-write semantics.
// Readers load the current slice without locking and may keep iterating it
// while writers publish a new one.
type cowList[T comparable] struct {
	// mu serializes writers
	mu    sync.Mutex
	items atomic.Pointer[[]T]
}

// add appends v unless it is already present. It reports whether the list
// changed.
func (l *cowList[T]) add(v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.snapshot()
	for _, existing := range cur {
		if existing == v {
			return false
		}
	}
	next := make([]T, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, v)
	l.items.Store(&next)
	return true
}

// remove drops v if present. It reports whether the list changed.
func (l *cowList[T]) remove(v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.snapshot()
	for i, existing := range cur {
		if existing != v {
			continue
		}
		next := make([]T, 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		l.items.Store(&next)
		return true
	}
	return false
}

// snapshot returns the current contents. The slice must not be modified.
func (l *cowList[T]) snapshot() []T {
	p := l.items.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (l *cowList[T]) len() int {
	return len(l.snapshot())
}
