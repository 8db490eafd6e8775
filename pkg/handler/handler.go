// Package handler maps task types to the functions that perform them.
package handler

import (
	"context"
	"fmt"

	"github.com/jzx17/gocourier/pkg/types"
)

// Handler performs the work of one task type against the engine's work
// provider P. It returns the task result, and a non-nil error marks the task
// failed. Handlers may block for as long as the external work takes, but
// must not touch the queue.
type Handler[P any] interface {
	Handle(ctx context.Context, provider P, payload any) (any, error)
}

// Func adapts an ordinary function to Handler
type Func[P any] func(ctx context.Context, provider P, payload any) (any, error)

// Handle calls f
func (f Func[P]) Handle(ctx context.Context, provider P, payload any) (any, error) {
	return f(ctx, provider, payload)
}

// Typed wraps a handler for one payload variant T. The payload is matched to
// T before fn runs; a task carrying any other variant fails with
// types.ErrPayloadType instead of reaching fn.
func Typed[P, T any](fn func(ctx context.Context, provider P, payload T) (any, error)) Handler[P] {
	return Func[P](func(ctx context.Context, provider P, payload any) (any, error) {
		switch v := payload.(type) {
		case T:
			return fn(ctx, provider, v)
		case *T:
			if v != nil {
				return fn(ctx, provider, *v)
			}
		}
		var want T
		return nil, fmt.Errorf("%w: got %T, want %T", types.ErrPayloadType, payload, want)
	})
}
