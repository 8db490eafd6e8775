// Package types defines core interfaces and types shared by the courier packages
package types

import (
	"time"
)

// EngineState defines the lifecycle state of an Engine
type EngineState int32

const (
	// StateCreated Engine has been created but not started
	StateCreated EngineState = iota
	// StateRunning Engine workers are running
	StateRunning
	// StateStopped Engine workers have exited; finished tasks may still be harvested
	StateStopped
	// StateClosed Engine has released its notifier
	StateClosed
)

// String returns the string representation of EngineState
func (s EngineState) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// QueueStats counts queued tasks by state
type QueueStats struct {
	// Created tasks are waiting for a worker
	Created int

	// Started tasks are running inside a handler
	Started int

	// Finished tasks are waiting to be harvested
	Finished int
}

// Total returns the number of tasks held by the queue
func (s QueueStats) Total() int {
	return s.Created + s.Started + s.Finished
}

// NotifierStats counts readiness notifier activity
type NotifierStats struct {
	// Raises is the number of Raise calls
	Raises int64

	// Writes is the number of units written to the channel
	Writes int64

	// Drains is the number of units consumed
	Drains int64
}

// EngineStats defines basic statistics for an Engine
type EngineStats struct {
	State EngineState

	// Workers is the size of the worker pool
	Workers int

	// ActiveWorkers is the number of workers currently inside a handler
	ActiveWorkers int

	Queue    QueueStats
	Notifier NotifierStats

	// Submitted and Harvested are lifetime task counters
	Submitted int64
	Harvested int64

	// StartedAt is when Start was called
	StartedAt time.Time
}

// InFlight returns the number of submitted tasks not yet harvested
func (s EngineStats) InFlight() int64 {
	return s.Submitted - s.Harvested
}
