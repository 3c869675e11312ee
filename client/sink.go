package client

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/gazestream/input/tcp"
	"github.com/c360/gazestream/message"
	"github.com/c360/gazestream/pkg/buffer"
)

// Sink receives decoded records on the network goroutine.
type Sink = tcp.Sink

// QueueSink buffers records for a consumer goroutine. Deliver never blocks;
// the queue is unbounded so nothing is dropped while the sink is open.
type QueueSink struct {
	queue   *buffer.Unbounded[message.Record]
	logger  *slog.Logger
	dropped atomic.Int64
}

// NewQueueSink creates an open queue sink.
func NewQueueSink(logger *slog.Logger, opts ...buffer.Option[message.Record]) (*QueueSink, error) {
	if logger == nil {
		logger = slog.Default().With("component", "queue-sink")
	}
	q, err := buffer.NewUnbounded[message.Record](opts...)
	if err != nil {
		return nil, err
	}
	return &QueueSink{queue: q, logger: logger}, nil
}

// Deliver enqueues r. Records delivered after Close are discarded.
func (s *QueueSink) Deliver(r message.Record) {
	if err := s.queue.Write(r); err != nil {
		if s.dropped.Add(1) == 1 {
			s.logger.Debug("Discarding records delivered after close", "error", err)
		}
	}
}

// Next waits up to timeout for the oldest record. It returns
// buffer.ErrTimedOut on expiry and buffer.ErrClosed once closed and drained.
func (s *QueueSink) Next(timeout time.Duration) (message.Record, error) {
	return s.queue.ReadWithTimeout(timeout)
}

// NextContext waits for the oldest record until ctx is done.
func (s *QueueSink) NextContext(ctx context.Context) (message.Record, error) {
	return s.queue.ReadContext(ctx)
}

// Len returns the number of queued records.
func (s *QueueSink) Len() int {
	return s.queue.Size()
}

// Dropped returns the number of records discarded after Close.
func (s *QueueSink) Dropped() int64 {
	return s.dropped.Load()
}

// Stats returns the queue statistics.
func (s *QueueSink) Stats() buffer.StatsSummary {
	return s.queue.Stats().Summary()
}

// Close stops accepting records. Queued records remain readable.
func (s *QueueSink) Close() error {
	return s.queue.Close()
}

// FuncSink adapts a function to Sink. It runs on the network goroutine.
type FuncSink func(message.Record)

// Deliver calls f(r).
func (f FuncSink) Deliver(r message.Record) { f(r) }

// MultiSink delivers every record to each sink in order.
type MultiSink []Sink

// Deliver fans r out.
func (m MultiSink) Deliver(r message.Record) {
	for _, s := range m {
		s.Deliver(r)
	}
}
