// Package buffer provides generic, thread-safe queues used to decouple a
// producer goroutine from a consumer running at its own pace.
//
// The Unbounded queue never rejects or drops a write for capacity reasons and
// lets readers wait for the next item with a timeout or a context. Statistics
// are always collected; Prometheus metrics are enabled with WithMetrics().
package buffer

import (
	"context"
	"errors"
	"time"
)

// ErrTimedOut is returned by timed reads when no item arrived in time.
var ErrTimedOut = errors.New("buffer read timed out")

// ErrClosed is returned by writes after Close and by reads on a drained, closed buffer.
var ErrClosed = errors.New("buffer closed")

// Buffer represents a generic FIFO queue parameterized by item type T.
type Buffer[T any] interface {
	// Write appends an item. It never blocks.
	Write(item T) error

	// Read retrieves and removes the oldest item without waiting.
	// Returns the zero value and false if the buffer is empty.
	Read() (T, bool)

	// ReadWithTimeout waits up to timeout for the next item.
	// Returns ErrTimedOut when the wait expires.
	ReadWithTimeout(timeout time.Duration) (T, error)

	// ReadContext waits for the next item until ctx is done.
	ReadContext(ctx context.Context) (T, error)

	// ReadBatch retrieves and removes up to max items in arrival order.
	ReadBatch(max int) []T

	// Peek returns the oldest item without removing it.
	Peek() (T, bool)

	// Size returns the current number of queued items.
	Size() int

	// IsEmpty returns true if the buffer contains no items.
	IsEmpty() bool

	// Clear removes all items.
	Clear()

	// Stats returns buffer statistics.
	Stats() *Statistics

	// Close rejects further writes and wakes blocked readers.
	// Items already queued remain readable.
	Close() error
}
