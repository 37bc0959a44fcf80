package permission

import (
	"errors"
	"sync"
)

// Registry is the catalog of permission codes a deployment recognises. Codes are
// immutable once registered, and the registry is frozen before use.
type Registry struct {
	mu     sync.RWMutex
	codes  map[string]struct{}
	order  []string
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{codes: make(map[string]struct{})}
}

// Register adds code. It must be called before Freeze.
func (r *Registry) Register(code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errors.New("registry frozen")
	}
	if !Valid(code) {
		return ErrInvalidCode
	}
	if _, exists := r.codes[code]; exists {
		return errors.New("permission already registered")
	}
	r.codes[code] = struct{}{}
	r.order = append(r.order, code)
	return nil
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Known reports whether code is registered.
func (r *Registry) Known(code string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.codes[code]
	return ok
}

// Codes returns registered codes in registration order.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Count returns the number of registered codes.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.codes)
}
