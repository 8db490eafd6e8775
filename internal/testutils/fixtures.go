package testutils

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jzx17/gocourier/pkg/handler"
	"github.com/jzx17/gocourier/pkg/task"
)

// Task types registered by NewRegistry
const (
	TypeSucceed task.Type = "test.succeed"
	TypeFail    task.Type = "test.fail"
	TypeSleep   task.Type = "test.sleep"
	TypePanic   task.Type = "test.panic"
	TypeBlock   task.Type = "test.block"
)

// ErrFixture is returned by the TypeFail handler
var ErrFixture = errors.New("fixture failure")

// Provider is a shared resource that records handler invocations
type Provider struct {
	mu      sync.Mutex
	calls   map[task.Type]int
	running int64
	maxRun  int64

	// Release unblocks TypeBlock handlers when closed
	Release chan struct{}
}

// NewProvider creates a Provider
func NewProvider() *Provider {
	return &Provider{
		calls:   make(map[task.Type]int),
		Release: make(chan struct{}),
	}
}

func (p *Provider) enter(typ task.Type) func() {
	p.mu.Lock()
	p.calls[typ]++
	p.mu.Unlock()

	n := atomic.AddInt64(&p.running, 1)
	for {
		cur := atomic.LoadInt64(&p.maxRun)
		if n <= cur || atomic.CompareAndSwapInt64(&p.maxRun, cur, n) {
			break
		}
	}
	return func() { atomic.AddInt64(&p.running, -1) }
}

// Calls returns how many times typ has been handled
func (p *Provider) Calls(typ task.Type) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[typ]
}

// MaxConcurrent returns the highest number of handlers seen running at once
func (p *Provider) MaxConcurrent() int64 {
	return atomic.LoadInt64(&p.maxRun)
}

// NewRegistry creates a registry with the fixture handlers:
//   - TypeSucceed returns its payload
//   - TypeFail returns ErrFixture
//   - TypeSleep sleeps for its time.Duration payload, then returns it
//   - TypePanic panics with its payload
//   - TypeBlock waits for Provider.Release
func NewRegistry(t testing.TB) *handler.Registry[*Provider] {
	t.Helper()
	reg := handler.NewRegistry[*Provider]()

	require.NoError(t, reg.RegisterFunc(TypeSucceed, func(_ context.Context, p *Provider, payload any) (any, error) {
		defer p.enter(TypeSucceed)()
		return payload, nil
	}))
	require.NoError(t, reg.RegisterFunc(TypeFail, func(_ context.Context, p *Provider, payload any) (any, error) {
		defer p.enter(TypeFail)()
		return nil, fmt.Errorf("payload %v: %w", payload, ErrFixture)
	}))
	require.NoError(t, reg.Register(TypeSleep, handler.Typed(func(_ context.Context, p *Provider, d time.Duration) (any, error) {
		defer p.enter(TypeSleep)()
		time.Sleep(d)
		return d, nil
	})))
	require.NoError(t, reg.RegisterFunc(TypePanic, func(_ context.Context, p *Provider, payload any) (any, error) {
		defer p.enter(TypePanic)()
		panic(payload)
	}))
	require.NoError(t, reg.RegisterFunc(TypeBlock, func(_ context.Context, p *Provider, _ any) (any, error) {
		defer p.enter(TypeBlock)()
		<-p.Release
		return nil, nil
	}))

	return reg
}
