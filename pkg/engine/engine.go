package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/jzx17/gocourier/internal/metrics"
	"github.com/jzx17/gocourier/pkg/handler"
	"github.com/jzx17/gocourier/pkg/notifier"
	"github.com/jzx17/gocourier/pkg/queue"
	"github.com/jzx17/gocourier/pkg/task"
	"github.com/jzx17/gocourier/pkg/types"
	"github.com/jzx17/gocourier/pkg/worker"
)

// Engine runs tasks on a fixed set of workers and reports completions
// through a pollable descriptor.
type Engine[P any] struct {
	config   *Config
	registry *handler.Registry[P]
	notifier *notifier.Notifier
	queue    *queue.Queue
	workers  []*worker.Worker[P]
	metrics  *metrics.Collector
	logger   *slog.Logger
	clock    quartz.Clock

	// mu orders lifecycle transitions against Submit and Harvest
	mu        sync.RWMutex
	state     int32 // types.EngineState
	joined    chan struct{}
	startedAt time.Time

	submitted int64
	harvested int64
}

// New creates an Engine that runs handlers from reg against provider. The
// registry is frozen and checked against cfg.RequiredTypes.
func New[P any](cfg *Config, provider P, reg *handler.Registry[P]) (*Engine[P], error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, fmt.Errorf("handler registry cannot be nil")
	}

	reg.Freeze()
	if err := reg.Require(cfg.RequiredTypes...); err != nil {
		return nil, err
	}

	n, err := notifier.New()
	if err != nil {
		return nil, err
	}

	m, err := metrics.New(cfg.Registerer, cfg.Namespace)
	if err != nil {
		_ = n.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	e := &Engine[P]{
		config:   cfg,
		registry: reg,
		notifier: n,
		metrics:  m,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
		state:    int32(types.StateCreated),
		joined:   make(chan struct{}),
	}
	e.queue = queue.New(n, queue.WithLogger(cfg.Logger), queue.WithClock(cfg.Clock))

	e.workers = make([]*worker.Worker[P], cfg.Workers)
	for i := range e.workers {
		e.workers[i] = worker.New(i, e.queue, reg, provider,
			worker.WithClock(cfg.Clock),
			worker.WithLogger(cfg.Logger),
			worker.WithCompletionCallback(m.TaskCompleted),
			worker.WithFatalHandler(e.fatal),
		)
	}

	return e, nil
}

// Start launches the workers. Handlers run with a context derived from ctx
// that is never cancelled; use Stop to end the engine.
func (e *Engine[P]) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.State() {
	case types.StateCreated:
	case types.StateRunning:
		return fmt.Errorf("engine is already running")
	case types.StateStopped:
		return types.ErrEngineStopped
	default:
		return types.ErrEngineClosed
	}

	var g errgroup.Group
	for _, w := range e.workers {
		g.Go(func() error {
			return w.Run(ctx)
		})
	}
	go func() {
		if err := g.Wait(); err != nil {
			e.logger.Error("worker exited with error", slog.Any("error", err))
		}
		close(e.joined)
	}()

	e.startedAt = e.clock.Now()
	e.setState(types.StateRunning)
	e.logger.Info("engine started", slog.Int("workers", len(e.workers)))
	return nil
}

// Submit queues a task and returns immediately. Its outcome is reported by
// a later Harvest, with opaque carried through unchanged.
func (e *Engine[P]) Submit(typ task.Type, payload, opaque any) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	switch e.State() {
	case types.StateStopped:
		return types.ErrEngineStopped
	case types.StateClosed:
		return types.ErrEngineClosed
	}

	if typ.IsReserved() {
		return fmt.Errorf("submit %q: %w", typ, types.ErrReservedType)
	}
	if !e.registry.Has(typ) {
		return fmt.Errorf("submit %q: %w", typ, types.ErrUnknownType)
	}

	if err := e.queue.Push(task.New(typ, payload, opaque)); err != nil {
		return err
	}
	atomic.AddInt64(&e.submitted, 1)
	e.metrics.TaskSubmitted(typ)
	return nil
}

// Fd returns the descriptor that becomes readable when tasks are ready to
// harvest. Register it with poll, epoll or kqueue; never read it directly.
func (e *Engine[P]) Fd() int {
	return e.notifier.Fd()
}

// Pending reports whether a Harvest would return tasks
func (e *Engine[P]) Pending() bool {
	return e.queue.Pending()
}

// Harvest returns every finished task in submission order, or nothing when
// no completion is pending. It never blocks on running handlers.
func (e *Engine[P]) Harvest() ([]*task.Task, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.State() == types.StateClosed {
		return nil, types.ErrEngineClosed
	}

	finished, err := e.queue.Harvest()
	if err != nil {
		var invErr *types.InvariantError
		if errors.As(err, &invErr) {
			e.metrics.InvariantViolation()
		}
		e.fatal(err)
		return nil, err
	}

	if len(finished) > 0 {
		atomic.AddInt64(&e.harvested, int64(len(finished)))
		e.metrics.Harvested(len(finished))
		e.metrics.ObserveQueue(e.queue.Stats())
	}
	return finished, nil
}

// Stop queues one shutdown sentinel per worker behind the work already
// submitted and waits for every worker to exit. Finished tasks can still be
// harvested afterwards.
func (e *Engine[P]) Stop() error {
	e.mu.Lock()
	switch e.State() {
	case types.StateCreated:
		close(e.joined)
		e.setState(types.StateStopped)
	case types.StateRunning:
		e.setState(types.StateStopped)
		e.queue.Shutdown(len(e.workers))
		e.logger.Info("engine stopping", slog.Int("queued", e.queue.Len()))
	case types.StateStopped:
	default:
		e.mu.Unlock()
		return types.ErrEngineClosed
	}
	e.mu.Unlock()

	return e.wait()
}

// wait joins the workers, bounded by StopTimeout
func (e *Engine[P]) wait() error {
	if e.config.StopTimeout <= 0 {
		<-e.joined
		return nil
	}

	timer := e.clock.NewTimer(e.config.StopTimeout, "engine", "stop")
	defer timer.Stop()

	select {
	case <-e.joined:
		return nil
	case <-timer.C:
		e.logger.Warn("workers did not stop in time", slog.Duration("timeout", e.config.StopTimeout))
		return types.ErrTimeout
	}
}

// Close stops the engine and releases the notifier. The notifier is only
// released once every worker has been joined; if Stop times out Close
// returns the timeout and leaves the engine open.
func (e *Engine[P]) Close() error {
	if e.State() == types.StateClosed {
		return types.ErrEngineClosed
	}
	if err := e.Stop(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.State() == types.StateClosed {
		return types.ErrEngineClosed
	}
	e.setState(types.StateClosed)
	e.metrics.Unregister(e.config.Registerer)

	err := e.notifier.Close()
	e.logger.Info("engine closed",
		slog.Int64("submitted", atomic.LoadInt64(&e.submitted)),
		slog.Int64("harvested", atomic.LoadInt64(&e.harvested)))
	return err
}

// State returns the lifecycle state
func (e *Engine[P]) State() types.EngineState {
	return types.EngineState(atomic.LoadInt32(&e.state))
}

func (e *Engine[P]) setState(s types.EngineState) {
	atomic.StoreInt32(&e.state, int32(s))
}

// Stats returns engine statistics
func (e *Engine[P]) Stats() types.EngineStats {
	active := 0
	for _, w := range e.workers {
		if w.State() == worker.WorkerStateRunning {
			active++
		}
	}

	e.mu.RLock()
	startedAt := e.startedAt
	e.mu.RUnlock()

	return types.EngineStats{
		State:         e.State(),
		Workers:       len(e.workers),
		ActiveWorkers: active,
		Queue:         e.queue.Stats(),
		Notifier:      e.notifier.Stats(),
		Submitted:     atomic.LoadInt64(&e.submitted),
		Harvested:     atomic.LoadInt64(&e.harvested),
		StartedAt:     startedAt,
	}
}

// WorkerStats returns per-worker statistics
func (e *Engine[P]) WorkerStats() []worker.WorkerStats {
	stats := make([]worker.WorkerStats, len(e.workers))
	for i, w := range e.workers {
		stats[i] = w.Stats()
	}
	return stats
}

// fatal reports an error after which the engine cannot be trusted
func (e *Engine[P]) fatal(err error) {
	if e.config.FatalHandler != nil {
		e.config.FatalHandler(err)
		return
	}
	e.logger.Error("fatal engine error", slog.Any("error", err))
	panic(err)
}
