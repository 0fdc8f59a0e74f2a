package swarm

import (
	"log"
	"sync"

	"github.com/ShayCichocki/hive/pkg/models"
)

// EventType tags a task lifecycle event.
type EventType string

const (
	// EventClaim fires when a worker takes ownership of a task.
	EventClaim EventType = "claim"
	// EventComplete fires when a task reaches done.
	EventComplete EventType = "complete"
	// EventFail fires when a task reaches failed.
	EventFail EventType = "fail"
	// EventReset fires when a task is forced back to pending.
	EventReset EventType = "reset"
)

// TaskEvent is delivered to every registered hook after a state
// transition commits.
type TaskEvent struct {
	Type EventType
	Task *models.SwarmTask
}

// hookRegistry fans lifecycle events out to subscribers. Subscriber
// panics are isolated: a hook can never affect task state or other
// hooks.
type hookRegistry struct {
	mu    sync.RWMutex
	hooks []func(TaskEvent)
}

func newHookRegistry() *hookRegistry {
	return &hookRegistry{}
}

func (r *hookRegistry) subscribe(fn func(TaskEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

func (r *hookRegistry) emit(event TaskEvent) {
	r.mu.RLock()
	hooks := make([]func(TaskEvent), len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.RUnlock()

	for _, fn := range hooks {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("[swarm] task hook panicked on %s %s: %v", event.Type, event.Task.ID, rec)
				}
			}()
			fn(event)
		}()
	}
}

// OnTaskEvent registers a lifecycle hook. Hooks run synchronously after
// the transition commits; errors and panics inside a hook are logged
// and swallowed.
func (s *Store) OnTaskEvent(fn func(TaskEvent)) {
	s.hooks.subscribe(fn)
}
