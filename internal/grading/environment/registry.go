package environment

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry tracks the environments touched during one run. A key is
// registered after its first provisioning attempt, successful or not.
type Registry struct {
	mu      sync.Mutex
	group   singleflight.Group
	created map[string]bool
	order   []string
}

// NewRegistry creates an empty run registry.
func NewRegistry() *Registry {
	return &Registry{created: make(map[string]bool)}
}

// Seen reports whether key was already attempted in this run.
func (r *Registry) Seen(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.created[key]
	return ok
}

// Created reports whether key was provisioned successfully.
func (r *Registry) Created(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created[key]
}

// Keys returns the registered keys in registration order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) record(key string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.created[key]; seen {
		return
	}
	r.created[key] = ok
	r.order = append(r.order, key)
}

// drain hands out every registered key exactly once.
func (r *Registry) drain() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := r.order
	r.order = nil
	return keys
}
