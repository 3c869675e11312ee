// Package buffer provides a thread-safe unbounded FIFO queue with built-in
// statistics and optional Prometheus metrics.
//
// # Overview
//
// The queue decouples a producer that must never block (a network read loop)
// from a consumer that polls at its own rate (a fixed-rate update tick).
// Writes always succeed until Close; reads come in three flavours:
//
//   - Read: non-blocking, returns false when empty
//   - ReadWithTimeout: waits up to a duration, returns ErrTimedOut
//   - ReadContext: waits until an item arrives or the context is done
//
// Items are delivered in arrival order. Nothing is deduplicated, coalesced
// or dropped.
//
// # Quick Start
//
//	queue, err := buffer.NewUnbounded[message.Record](
//		buffer.WithMetrics[message.Record](registry, "records"),
//	)
//	if err != nil {
//		return err
//	}
//
//	_ = queue.Write(record)
//
//	rec, err := queue.ReadWithTimeout(100 * time.Millisecond)
//	if errors.Is(err, buffer.ErrTimedOut) {
//		// nothing new this tick
//	}
//
// # Closing
//
// Close rejects further writes with ErrClosed and wakes blocked readers.
// Items already queued stay readable; once drained, waiting reads return
// ErrClosed.
package buffer
