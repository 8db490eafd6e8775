// Package queue implements the shared task queue that the caller pushes
// into, workers claim from, and harvest drains.
package queue

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/quartz"

	"github.com/jzx17/gocourier/pkg/notifier"
	"github.com/jzx17/gocourier/pkg/task"
	"github.com/jzx17/gocourier/pkg/types"
)

// Option configures a Queue
type Option func(*Queue)

// WithLogger sets the logger used to report invariant violations
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithClock sets the clock used to timestamp task transitions
func WithClock(clock quartz.Clock) Option {
	return func(q *Queue) {
		if clock != nil {
			q.clock = clock
		}
	}
}

// Queue holds every task that has not been harvested yet. Workers scan it
// for the first Created task rather than popping a head, so ordering is
// best-effort: first found wins. All methods take the queue lock
// internally, and the lock is never held across a handler invocation.
//
// The notifier's outstanding flag is only changed while the queue lock is
// held, which keeps "pending" and "some task is finished" consistent.
type Queue struct {
	mu       sync.Mutex
	pending  *sync.Cond
	tasks    []*task.Task
	notifier *notifier.Notifier

	clock  quartz.Clock
	logger *slog.Logger
}

// New creates an empty queue that raises n when tasks finish
func New(n *notifier.Notifier, opts ...Option) *Queue {
	q := &Queue{
		notifier: n,
		clock:    quartz.NewReal(),
		logger:   slog.Default(),
	}
	q.pending = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Push appends a Created task and wakes one sleeping worker. It never waits
// for the task to run and applies no backpressure.
func (q *Queue) Push(t *task.Task) error {
	if t == nil {
		return types.ErrNilTask
	}
	if t.State() != task.StateCreated {
		return fmt.Errorf("%w: pushing %s", types.ErrInvalidTransition, t)
	}

	q.mu.Lock()
	t.Submitted(q.clock.Now())
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	q.pending.Signal()
	return nil
}

// ClaimNext blocks until a Created task exists, moves the first one found to
// Started on behalf of workerID and returns it. A claimed shutdown sentinel
// is removed from the queue immediately so it is never harvested.
func (q *Queue) ClaimNext(workerID int) *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		for i, t := range q.tasks {
			if t.State() != task.StateCreated {
				continue
			}
			_ = t.Start(workerID, q.clock.Now()) // state checked above

			if t.Type() == task.TypeShutdown {
				q.removeAt(i)
			}
			return t
		}

		// spurious wakeups and lost races with other workers both land here
		q.pending.Wait()
	}
}

// Complete records the handler outcome for a claimed task and raises the
// notifier in the same critical section.
func (q *Queue) Complete(t *task.Task, result any, err error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if ferr := t.Finish(result, err, q.clock.Now()); ferr != nil {
		return ferr
	}
	return q.notifier.Raise()
}

// Harvest removes and returns every finished task, in queue order, and
// drains one notification unit. It returns immediately with nothing when
// no notification is pending.
func (q *Queue) Harvest() ([]*task.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.notifier.Pending() {
		return nil, nil
	}

	var finished []*task.Task
	kept := q.tasks[:0]
	for _, t := range q.tasks {
		if t.State().Finished() {
			finished = append(finished, t)
		} else {
			kept = append(kept, t)
		}
	}

	if len(finished) == 0 {
		err := &types.InvariantError{
			Invariant: "harvest",
			Detail:    fmt.Sprintf("notification pending but none of %d queued tasks is finished", len(q.tasks)),
		}
		q.logger.Error("queue bookkeeping is inconsistent",
			slog.Int("queued", len(q.tasks)),
			slog.Any("error", err))
		return nil, err
	}

	clear(q.tasks[len(kept):])
	q.tasks = kept

	if err := q.notifier.Drain(); err != nil {
		return nil, err
	}
	return finished, nil
}

// Shutdown queues one stop sentinel per worker and wakes every sleeper.
// Sentinels go to the back, so Created tasks ahead of them still run.
func (q *Queue) Shutdown(workers int) {
	q.mu.Lock()
	for i := 0; i < workers; i++ {
		q.tasks = append(q.tasks, task.NewShutdown())
	}
	q.mu.Unlock()

	q.pending.Broadcast()
}

// Len returns the number of queued work tasks, sentinels excluded
func (q *Queue) Len() int {
	return q.Stats().Total()
}

// Stats counts queued work tasks by state
func (q *Queue) Stats() types.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var stats types.QueueStats
	for _, t := range q.tasks {
		if t.Type() == task.TypeShutdown {
			continue
		}
		switch s := t.State(); {
		case s == task.StateCreated:
			stats.Created++
		case s == task.StateStarted:
			stats.Started++
		case s.Finished():
			stats.Finished++
		}
	}
	return stats
}

// Pending reports whether a notification is outstanding
func (q *Queue) Pending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.notifier.Pending()
}

// removeAt deletes index i keeping relative order. Caller holds q.mu.
func (q *Queue) removeAt(i int) {
	copy(q.tasks[i:], q.tasks[i+1:])
	q.tasks[len(q.tasks)-1] = nil
	q.tasks = q.tasks[:len(q.tasks)-1]
}
