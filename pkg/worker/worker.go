package worker

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"

	"github.com/jzx17/gocourier/pkg/handler"
	"github.com/jzx17/gocourier/pkg/queue"
	"github.com/jzx17/gocourier/pkg/task"
	"github.com/jzx17/gocourier/pkg/types"
)

// WorkerState defines the state of a Worker
type WorkerState int32

const (
	// WorkerStateIdle represents a worker claiming or waiting for a task
	WorkerStateIdle WorkerState = iota
	// WorkerStateRunning represents a worker inside a handler
	WorkerStateRunning
	// WorkerStateStopped represents a worker whose loop has exited
	WorkerStateStopped
)

// String returns the string representation of WorkerState
func (ws WorkerState) String() string {
	switch ws {
	case WorkerStateIdle:
		return "idle"
	case WorkerStateRunning:
		return "running"
	case WorkerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// CompletionFunc observes every finished task
type CompletionFunc func(typ task.Type, state task.State, elapsed time.Duration)

// FatalFunc receives errors after which the engine cannot be trusted
type FatalFunc func(err error)

// Option configures a Worker
type Option func(*options)

type options struct {
	clock      quartz.Clock
	logger     *slog.Logger
	onComplete CompletionFunc
	onFatal    FatalFunc
}

// WithClock sets the clock used for execution timing
func WithClock(clock quartz.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the worker logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCompletionCallback sets the task completion callback
func WithCompletionCallback(fn CompletionFunc) Option {
	return func(o *options) { o.onComplete = fn }
}

// WithFatalHandler sets the handler for fatal errors. The default logs the
// error and panics.
func WithFatalHandler(fn FatalFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.onFatal = fn
		}
	}
}

// Worker runs the dispatch loop: claim, look up, execute, record, raise.
type Worker[P any] struct {
	id       int
	state    int32 // atomic state
	queue    *queue.Queue
	registry *handler.Registry[P]
	provider P
	done     chan struct{}

	// statistics
	totalSucceeded int64
	totalFailed    int64
	lastTaskTime   int64 // Unix nanosecond timestamp

	clock      quartz.Clock
	logger     *slog.Logger
	onComplete CompletionFunc
	onFatal    FatalFunc
}

// New creates a Worker that takes tasks from q and runs them against provider
func New[P any](id int, q *queue.Queue, reg *handler.Registry[P], provider P, opts ...Option) *Worker[P] {
	o := &options{
		clock:  quartz.NewReal(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger.With(slog.Int("worker_id", id))
	onFatal := o.onFatal
	if onFatal == nil {
		onFatal = func(err error) {
			logger.Error("fatal worker error", slog.Any("error", err))
			panic(err)
		}
	}

	return &Worker[P]{
		id:         id,
		state:      int32(WorkerStateIdle),
		queue:      q,
		registry:   reg,
		provider:   provider,
		done:       make(chan struct{}),
		clock:      o.clock,
		logger:     logger,
		onComplete: o.onComplete,
		onFatal:    onFatal,
	}
}

// ID returns the Worker ID
func (w *Worker[P]) ID() int {
	return w.id
}

// State returns the current Worker state
func (w *Worker[P]) State() WorkerState {
	return WorkerState(atomic.LoadInt32(&w.state))
}

// Done is closed when Run returns
func (w *Worker[P]) Done() <-chan struct{} {
	return w.done
}

// Run executes tasks until it claims a shutdown sentinel. Handlers receive
// a context derived from ctx that is never cancelled: claimed work always
// runs to completion.
func (w *Worker[P]) Run(ctx context.Context) error {
	defer close(w.done)
	defer atomic.StoreInt32(&w.state, int32(WorkerStateStopped))

	hctx := context.WithoutCancel(ctx)
	for {
		t := w.queue.ClaimNext(w.id)

		h, err := w.registry.Lookup(t.Type())
		if errors.Is(err, types.ErrStopWorker) {
			w.logger.Debug("worker received shutdown")
			return nil
		}
		if err != nil {
			// only reachable by bypassing Submit validation
			w.onFatal(types.NewFatalError("handler lookup", err))
			w.record(t, nil, types.NewTaskError(string(t.Type()), err), 0)
			continue
		}

		w.processTask(hctx, h, t)
	}
}

// processTask runs the handler outside the queue lock and records the outcome
func (w *Worker[P]) processTask(ctx context.Context, h handler.Handler[P], t *task.Task) {
	atomic.StoreInt32(&w.state, int32(WorkerStateRunning))
	defer atomic.StoreInt32(&w.state, int32(WorkerStateIdle))

	startTime := w.clock.Now()
	atomic.StoreInt64(&w.lastTaskTime, startTime.UnixNano())

	result, err := w.executeTask(ctx, h, t)
	if err != nil {
		err = types.NewTaskError(string(t.Type()), err).WithContext("worker_id", w.id)
	}

	w.record(t, result, err, w.clock.Since(startTime))
}

// executeTask executes a handler with panic recovery
func (w *Worker[P]) executeTask(ctx context.Context, h handler.Handler[P], t *task.Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			var buf [4096]byte
			n := runtime.Stack(buf[:], false)
			result = nil
			err = &types.PanicError{Value: r, Stack: string(buf[:n]), WorkerID: w.id}
			w.logger.Warn("handler panicked",
				slog.String("task_type", string(t.Type())),
				slog.Any("panic", r))
		}
	}()

	return h.Handle(ctx, w.provider, t.Payload())
}

// record hands the outcome to the queue. The task belongs to the harvester
// as soon as Complete returns, so nothing below reads it.
func (w *Worker[P]) record(t *task.Task, result any, err error, elapsed time.Duration) {
	typ := t.Type()
	state := task.StateSucceeded
	if err != nil {
		state = task.StateFailed
		atomic.AddInt64(&w.totalFailed, 1)
	} else {
		atomic.AddInt64(&w.totalSucceeded, 1)
	}

	if cerr := w.queue.Complete(t, result, err); cerr != nil {
		w.onFatal(types.NewFatalError("complete task", cerr))
		return
	}

	w.logger.Debug("task finished",
		slog.String("task_type", string(typ)),
		slog.String("state", state.String()),
		slog.Duration("elapsed", elapsed))

	if w.onComplete != nil {
		w.onComplete(typ, state, elapsed)
	}
}

// Stats gets Worker statistics
func (w *Worker[P]) Stats() WorkerStats {
	var last time.Time
	if ns := atomic.LoadInt64(&w.lastTaskTime); ns != 0 {
		last = time.Unix(0, ns)
	}
	return WorkerStats{
		ID:             w.id,
		State:          w.State(),
		TotalSucceeded: atomic.LoadInt64(&w.totalSucceeded),
		TotalFailed:    atomic.LoadInt64(&w.totalFailed),
		LastTaskTime:   last,
	}
}

// WorkerStats defines Worker statistics
type WorkerStats struct {
	ID             int
	State          WorkerState
	TotalSucceeded int64
	TotalFailed    int64
	LastTaskTime   time.Time
}

// IsActive checks if Worker is inside a handler
func (ws WorkerStats) IsActive() bool {
	return ws.State == WorkerStateRunning
}

// IsIdle checks if Worker is idle
func (ws WorkerStats) IsIdle() bool {
	return ws.State == WorkerStateIdle
}

// GetSuccessRate gets the success rate
func (ws WorkerStats) GetSuccessRate() float64 {
	total := ws.TotalSucceeded + ws.TotalFailed
	if total == 0 {
		return 0
	}
	return float64(ws.TotalSucceeded) / float64(total)
}

// GetErrorRate gets the error rate
func (ws WorkerStats) GetErrorRate() float64 {
	total := ws.TotalSucceeded + ws.TotalFailed
	if total == 0 {
		return 0
	}
	return float64(ws.TotalFailed) / float64(total)
}
