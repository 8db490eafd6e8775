package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jzx17/gocourier/pkg/task"
	"github.com/jzx17/gocourier/pkg/types"
)

// ErrFrozen is returned when registering into a registry an engine already uses
var ErrFrozen = errors.New("handler registry is frozen")

// Registry maps task types to handlers. It is filled before the engine is
// constructed and frozen by it, after which lookups need no coordination
// with registration.
type Registry[P any] struct {
	mu       sync.RWMutex
	handlers map[task.Type]Handler[P]
	frozen   bool
}

// NewRegistry creates an empty registry
func NewRegistry[P any]() *Registry[P] {
	return &Registry[P]{
		handlers: make(map[task.Type]Handler[P]),
	}
}

// Register binds h to t
func (r *Registry[P]) Register(t task.Type, h Handler[P]) error {
	if t == "" {
		return fmt.Errorf("task type cannot be empty")
	}
	if t.IsReserved() {
		return fmt.Errorf("%w: %s", types.ErrReservedType, t)
	}
	if h == nil {
		return fmt.Errorf("cannot register nil handler for %s", t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler for %s already registered", t)
	}
	r.handlers[t] = h
	return nil
}

// RegisterFunc is Register for a plain function
func (r *Registry[P]) RegisterFunc(t task.Type, fn func(ctx context.Context, provider P, payload any) (any, error)) error {
	if fn == nil {
		return fmt.Errorf("cannot register nil handler for %s", t)
	}
	return r.Register(t, Func[P](fn))
}

// Freeze rejects any further registration
func (r *Registry[P]) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether Freeze has been called
func (r *Registry[P]) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Lookup returns the handler for t. The shutdown type resolves to
// types.ErrStopWorker rather than a handler; an unregistered type resolves
// to types.ErrUnknownType.
func (r *Registry[P]) Lookup(t task.Type) (Handler[P], error) {
	if t.IsReserved() {
		return nil, types.ErrStopWorker
	}

	r.mu.RLock()
	h, ok := r.handlers[t]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownType, t)
	}
	return h, nil
}

// Has reports whether t has a handler
func (r *Registry[P]) Has(t task.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[t]
	return ok
}

// Require checks that every listed type has a handler
func (r *Registry[P]) Require(required ...task.Type) error {
	var missing []string
	for _, t := range required {
		if !r.Has(t) {
			missing = append(missing, string(t))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", types.ErrUnknownType, missing)
	}
	return nil
}

// Types returns the registered types, sorted
func (r *Registry[P]) Types() []task.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]task.Type, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of registered types
func (r *Registry[P]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
