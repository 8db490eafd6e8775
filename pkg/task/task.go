// Package task defines the unit of work moving through the engine and its
// state machine.
package task

import (
	"fmt"
	"time"

	"github.com/jzx17/gocourier/pkg/types"
)

// Type selects the handler that performs a task
type Type string

// TypeShutdown is the reserved control tag telling a worker to exit. It is
// never accepted from callers.
const TypeShutdown Type = "courier.shutdown"

// IsReserved reports whether t is a control tag rather than work
func (t Type) IsReserved() bool {
	return t == TypeShutdown
}

// State defines the state of a Task
type State int32

const (
	// StateCreated task is queued and waiting for a worker
	StateCreated State = iota
	// StateStarted task has been claimed by a worker
	StateStarted
	// StateSucceeded handler reported success
	StateSucceeded
	// StateFailed handler reported failure
	StateFailed
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Finished reports whether the task is eligible for harvest
func (s State) Finished() bool {
	return s == StateSucceeded || s == StateFailed
}

// Task is submitted once and observed at most once by harvest. Its fields are
// written only by the queue, under the queue lock; after harvest the caller
// owns the task and may read it freely.
type Task struct {
	typ     Type
	payload any
	opaque  any

	state    State
	result   any
	err      error
	workerID int

	submittedAt time.Time
	startedAt   time.Time
	finishedAt  time.Time
}

// New creates a task in StateCreated. opaque is carried through unchanged so
// the caller can correlate the harvested task with its own request.
func New(typ Type, payload, opaque any) *Task {
	return &Task{
		typ:      typ,
		payload:  payload,
		opaque:   opaque,
		state:    StateCreated,
		workerID: -1,
	}
}

// NewShutdown creates the sentinel that stops one worker
func NewShutdown() *Task {
	return New(TypeShutdown, nil, nil)
}

// Type returns the type tag
func (t *Task) Type() Type { return t.typ }

// Payload returns the type-specific input
func (t *Task) Payload() any { return t.payload }

// Opaque returns the caller's correlation handle
func (t *Task) Opaque() any { return t.opaque }

// State returns the current state
func (t *Task) State() State { return t.state }

// Result returns the handler's output. It is set only once the task is finished.
func (t *Task) Result() any { return t.result }

// Err returns the handler's error, nil unless the task failed
func (t *Task) Err() error { return t.err }

// Succeeded reports whether the handler reported success
func (t *Task) Succeeded() bool { return t.state == StateSucceeded }

// WorkerID returns the id of the worker that ran the task, or -1
func (t *Task) WorkerID() int { return t.workerID }

// SubmittedAt returns when the task entered the queue
func (t *Task) SubmittedAt() time.Time { return t.submittedAt }

// StartedAt returns when a worker claimed the task
func (t *Task) StartedAt() time.Time { return t.startedAt }

// FinishedAt returns when the handler returned
func (t *Task) FinishedAt() time.Time { return t.finishedAt }

// Duration returns the handler execution time
func (t *Task) Duration() time.Duration {
	if t.finishedAt.IsZero() || t.startedAt.IsZero() {
		return 0
	}
	return t.finishedAt.Sub(t.startedAt)
}

// Submitted stamps the submission time
func (t *Task) Submitted(now time.Time) {
	t.submittedAt = now
}

// Start moves the task from Created to Started
func (t *Task) Start(workerID int, now time.Time) error {
	if t.state != StateCreated {
		return t.transitionError(StateStarted)
	}
	t.state = StateStarted
	t.workerID = workerID
	t.startedAt = now
	return nil
}

// Finish records the handler outcome. A nil err means success.
func (t *Task) Finish(result any, err error, now time.Time) error {
	if t.state != StateStarted {
		if err == nil {
			return t.transitionError(StateSucceeded)
		}
		return t.transitionError(StateFailed)
	}
	t.result = result
	t.err = err
	t.finishedAt = now
	if err != nil {
		t.state = StateFailed
	} else {
		t.state = StateSucceeded
	}
	return nil
}

func (t *Task) transitionError(to State) error {
	return fmt.Errorf("%w: %s -> %s (type %s)", types.ErrInvalidTransition, t.state, to, t.typ)
}

// String returns a short description for logs
func (t *Task) String() string {
	return fmt.Sprintf("task{type=%s state=%s}", t.typ, t.state)
}
