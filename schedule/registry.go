package schedule

import (
	"context"
	"sync"

	"github.com/skeinworks/spindle/errors"
)

// WorkFunc is the unit of work a scheduled job runs at fire time. params is
// the resolved specification bundle (nil when the job has no specification).
//
// Work functions MUST be registered under a stable key at process startup;
// the scheduler persists only the key, never a closure. Handlers should
// honor ctx cancellation for long-running work.
type WorkFunc func(ctx context.Context, job *Job, params map[string]any) error

// Registry maps stable string keys to work functions. It is populated at
// process startup; registering a job with an unknown key fails fast at
// registration time, not at fire time.
//
// Thread-safe for concurrent lookup.
type Registry struct {
	works map[string]WorkFunc
	mu    sync.RWMutex
}

// NewRegistry creates an empty work registry.
func NewRegistry() *Registry {
	return &Registry{works: make(map[string]WorkFunc)}
}

// Register adds a work function under a stable key.
// Panics if the key is already registered.
func (r *Registry) Register(key string, fn WorkFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.works[key]; exists {
		panic("work function already registered for key: " + key)
	}
	if fn == nil {
		panic("nil work function for key: " + key)
	}
	r.works[key] = fn
}

// Resolve returns the work function for a key.
// Returns ErrUnresolvableWork when the key is not registered.
func (r *Registry) Resolve(key string) (WorkFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.works[key]
	if !ok {
		return nil, errors.WithDetailf(
			errors.Wrapf(errors.ErrUnresolvableWork, "work key %q", key),
			"Work key: %s", key)
	}
	return fn, nil
}

// Has checks whether a key is registered.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.works[key]
	return ok
}

// Keys returns all registered work keys.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.works))
	for key := range r.works {
		keys = append(keys, key)
	}
	return keys
}
