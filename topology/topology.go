package topology

import (
	"context"
	"time"
)

// DefaultReceiveWait bounds how long a spout may block waiting for its
// client before returning control to the runtime.
const DefaultReceiveWait = 10 * time.Millisecond

// DefaultStream is the stream tuples are emitted on unless stated otherwise.
const DefaultStream = "default"

// Collector is handed to a Bolt in Prepare. Every tuple passed to Execute
// must be acked or failed exactly once.
type Collector interface {
	// Emit sends values downstream, anchored to the input tuple.
	// anchor may be nil for unanchored emits.
	Emit(anchor *Tuple, values ...any) error
	Ack(t *Tuple)
	Fail(t *Tuple)
	// ReportError surfaces a component error without failing a tuple.
	ReportError(err error)
}

// SpoutCollector is handed to a Spout in Open.
type SpoutCollector interface {
	// Emit sends values downstream. id is passed back to Ack or Fail once the
	// tuple tree completes; an empty id disables tracking.
	Emit(id string, values ...any) error
	ReportError(err error)
}

// Bolt processes tuples.
type Bolt interface {
	// Prepare acquires external resources. An error prevents the bolt from
	// starting.
	Prepare(ctx context.Context, collector Collector) error
	// Execute handles one tuple.
	Execute(ctx context.Context, t *Tuple)
	// Cleanup releases resources. It may not be called if the process is killed.
	Cleanup()
	// DeclareOutputFields names the values this bolt emits.
	DeclareOutputFields() Fields
}

// Spout produces tuples.
type Spout interface {
	// Open connects to the source. An error prevents the spout from starting.
	Open(ctx context.Context, collector SpoutCollector) error
	// NextTuple emits at most one tuple and must return promptly,
	// waiting no longer than the spout's receive wait.
	NextTuple(ctx context.Context)
	// Ack confirms the tuple emitted with id was fully processed.
	Ack(id string)
	// Fail reports the tuple emitted with id failed downstream.
	Fail(id string)
	// Close releases the source.
	Close() error
	// DeclareOutputFields names the values this spout emits.
	DeclareOutputFields() Fields
}
