package component

import (
	"context"
)

// State is the lifecycle state of a hosted instance.
type State int

const (
	// StateCreated means the factory ran but the instance is not hosted yet.
	StateCreated State = iota
	// StateStarted means the instance is being driven by the runner.
	StateStarted
	// StateStopped means the runner returned normally.
	StateStopped
	// StateFailed means Prepare or Open failed.
	StateFailed
)

// String returns the state name.
func (cs State) String() string {
	switch cs {
	case StateCreated:
		return "created"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ManagedComponent tracks one hosted instance.
//
// The manager derives a child context per instance so instances can be
// stopped one by one; the instance only ever receives it as a parameter.
type ManagedComponent struct {
	Instance *Instance
	State    State

	Context context.Context
	Cancel  context.CancelFunc

	// Done is closed when the runner returns.
	Done chan struct{}

	LastError error
}
