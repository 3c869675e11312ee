package buffer

import (
	"context"
	"sync"
	"time"

	"github.com/c360/gazestream/errors"
)

// Unbounded is a growable ring-backed FIFO queue. Writers never block;
// readers may wait for the next item with a timeout or a context.
type Unbounded[T any] struct {
	mu      sync.Mutex
	items   []T
	head    int // next read position
	size    int
	closed  bool
	ready   chan struct{} // closed and replaced whenever an item arrives
	stats   *Statistics
	metrics *bufferMetrics
}

var _ Buffer[int] = (*Unbounded[int])(nil)

// NewUnbounded creates an empty unbounded queue.
// Returns an error if metrics registration fails when metrics are requested.
func NewUnbounded[T any](options ...Option[T]) (*Unbounded[T], error) {
	opts := applyOptions(options...)

	var metrics *bufferMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "NewUnbounded", "metrics registration")
		}
	}

	return &Unbounded[T]{
		items:   make([]T, opts.initialCapacity),
		ready:   make(chan struct{}),
		stats:   NewStatistics(),
		metrics: metrics,
	}, nil
}

// Write appends item to the tail of the queue.
func (b *Unbounded[T]) Write(item T) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.WrapInvalid(ErrClosed, "buffer", "Write", "enqueue")
	}

	if b.size == len(b.items) {
		b.grow()
	}
	b.items[(b.head+b.size)%len(b.items)] = item
	b.size++
	size := b.size

	close(b.ready)
	b.ready = make(chan struct{})
	b.mu.Unlock()

	b.stats.Write()
	b.stats.UpdateSize(int64(size))
	if b.metrics != nil {
		b.metrics.recordWrite(size)
	}
	return nil
}

// grow doubles the ring, unrolling it so head is at index 0. Caller holds mu.
func (b *Unbounded[T]) grow() {
	n := len(b.items) * 2
	if n == 0 {
		n = 1
	}
	items := make([]T, n)
	for i := 0; i < b.size; i++ {
		items[i] = b.items[(b.head+i)%len(b.items)]
	}
	b.items = items
	b.head = 0
}

// popLocked removes the head item. Caller holds mu and has checked size > 0.
func (b *Unbounded[T]) popLocked() T {
	var zero T
	item := b.items[b.head]
	b.items[b.head] = zero
	b.head = (b.head + 1) % len(b.items)
	b.size--
	return item
}

func (b *Unbounded[T]) recordRead(size int) {
	b.stats.Read()
	b.stats.UpdateSize(int64(size))
	if b.metrics != nil {
		b.metrics.recordRead(size)
	}
}

// Read removes and returns the oldest item without waiting.
func (b *Unbounded[T]) Read() (T, bool) {
	b.mu.Lock()
	if b.size == 0 {
		b.mu.Unlock()
		var zero T
		return zero, false
	}
	item := b.popLocked()
	size := b.size
	b.mu.Unlock()

	b.recordRead(size)
	return item, true
}

// ReadWithTimeout waits up to timeout for the next item.
func (b *Unbounded[T]) ReadWithTimeout(timeout time.Duration) (T, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	return b.wait(context.Background(), timer.C)
}

// ReadContext waits for the next item until ctx is done.
func (b *Unbounded[T]) ReadContext(ctx context.Context) (T, error) {
	return b.wait(ctx, nil)
}

func (b *Unbounded[T]) wait(ctx context.Context, expired <-chan time.Time) (T, error) {
	var zero T
	for {
		b.mu.Lock()
		if b.size > 0 {
			item := b.popLocked()
			size := b.size
			b.mu.Unlock()
			b.recordRead(size)
			return item, nil
		}
		if b.closed {
			b.mu.Unlock()
			return zero, ErrClosed
		}
		ready := b.ready
		b.mu.Unlock()

		select {
		case <-ready:
		case <-expired:
			b.stats.Timeout()
			if b.metrics != nil {
				b.metrics.recordTimeout()
			}
			return zero, ErrTimedOut
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// ReadBatch removes up to max items in arrival order.
func (b *Unbounded[T]) ReadBatch(max int) []T {
	b.mu.Lock()
	n := b.size
	if max < n {
		n = max
	}
	if n <= 0 {
		b.mu.Unlock()
		return nil
	}
	out := make([]T, n)
	for i := range out {
		out[i] = b.popLocked()
	}
	size := b.size
	b.mu.Unlock()

	for range out {
		b.stats.Read()
	}
	b.stats.UpdateSize(int64(size))
	if b.metrics != nil {
		b.metrics.recordReads(len(out), size)
	}
	return out
}

// Peek returns the oldest item without removing it.
func (b *Unbounded[T]) Peek() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size == 0 {
		var zero T
		return zero, false
	}
	return b.items[b.head], true
}

// Size returns the number of queued items.
func (b *Unbounded[T]) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// IsEmpty returns true if no items are queued.
func (b *Unbounded[T]) IsEmpty() bool {
	return b.Size() == 0
}

// Clear drops all queued items.
func (b *Unbounded[T]) Clear() {
	b.mu.Lock()
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head = 0
	b.size = 0
	b.mu.Unlock()

	b.stats.UpdateSize(0)
	if b.metrics != nil {
		b.metrics.updateSize(0)
	}
}

// Stats returns the buffer statistics.
func (b *Unbounded[T]) Stats() *Statistics {
	return b.stats
}

// Close rejects further writes and wakes all waiting readers. Idempotent.
func (b *Unbounded[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.ready)
	b.ready = make(chan struct{})
	return nil
}
