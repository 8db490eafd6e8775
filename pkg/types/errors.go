// Package types defines error types
package types

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrEngineClosed indicates the engine is closed
	ErrEngineClosed = errors.New("engine is closed")

	// ErrEngineStopped indicates the engine no longer accepts tasks
	ErrEngineStopped = errors.New("engine is stopped")

	// ErrTimeout indicates operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrReservedType indicates a task was submitted with the reserved shutdown type
	ErrReservedType = errors.New("task type is reserved")

	// ErrUnknownType indicates no handler is registered for a task type
	ErrUnknownType = errors.New("no handler registered for task type")

	// ErrStopWorker is returned by registry lookups of the shutdown type
	ErrStopWorker = errors.New("shutdown requested")

	// ErrInvalidTransition indicates an illegal task state transition
	ErrInvalidTransition = errors.New("invalid task state transition")

	// ErrPayloadType indicates a handler received a payload of the wrong variant
	ErrPayloadType = errors.New("unexpected payload type")

	// ErrNilTask indicates a nil task was pushed
	ErrNilTask = errors.New("task cannot be nil")

	// ErrNotifierClosed indicates the readiness notifier has been released
	ErrNotifierClosed = errors.New("notifier is closed")
)

// TaskError is a handler failure attached to a finished task
type TaskError struct {
	// TaskType is the type tag of the failed task
	TaskType string

	// Cause is the underlying error
	Cause error

	// Context contains error context information
	Context map[string]interface{}
}

// Error implements the error interface
func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.TaskType, e.Cause)
}

// Unwrap returns the underlying error
func (e *TaskError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is a specific error
func (e *TaskError) Is(target error) bool {
	return errors.Is(e.Cause, target)
}

// NewTaskError creates a new task error
func NewTaskError(taskType string, cause error) *TaskError {
	return &TaskError{
		TaskType: taskType,
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// WithContext adds error context
func (e *TaskError) WithContext(key string, value interface{}) *TaskError {
	e.Context[key] = value
	return e
}

// PanicError wraps a value recovered from a panicking handler
type PanicError struct {
	Value    interface{}
	Stack    string
	WorkerID int
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic on worker %d: %v", e.WorkerID, e.Value)
}

// Unwrap returns the panic value when it is an error
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// InvariantError reports inconsistent internal bookkeeping. It is a
// programming defect, never a condition callers are expected to recover from.
type InvariantError struct {
	Invariant string
	Detail    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated (%s): %s", e.Invariant, e.Detail)
}

// FatalError wraps a failure of the synchronization or notification
// machinery after which the engine's state cannot be trusted.
type FatalError struct {
	Operation string
	Cause     error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal error in %s: %v", e.Operation, e.Cause)
}

// Unwrap returns the underlying error
func (e *FatalError) Unwrap() error {
	return e.Cause
}

// NewFatalError creates a fatal error for operation
func NewFatalError(operation string, cause error) *FatalError {
	return &FatalError{Operation: operation, Cause: cause}
}

// IsFatal reports whether err must abort the engine
func IsFatal(err error) bool {
	var fatalErr *FatalError
	var invErr *InvariantError
	return errors.As(err, &fatalErr) || errors.As(err, &invErr)
}
