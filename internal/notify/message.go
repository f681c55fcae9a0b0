// Package notify implements the non-blocking, persistent-retry
// notification worker: producers enqueue without ever blocking on
// delivery, and a single background worker drains the queue in strict
// FIFO order, retrying a failed message until it succeeds before moving
// on to the next one.
package notify

import (
	"time"

	"github.com/google/uuid"
)

// Priority tags a message for sinks that support prioritization; it is
// opaque to the worker itself.
type Priority string

const (
	PriorityNormal Priority = ""
	PriorityCrisis Priority = "crisis"
)

// Message is a single notification to deliver.
type Message struct {
	ID       uuid.UUID
	Title    string
	Body     string
	Priority Priority

	EnqueuedAt time.Time
	Seq        uint64 // FIFO ordering key, assigned by the queue
}
