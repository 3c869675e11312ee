package nats

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/gazestream/errors"
	"github.com/c360/gazestream/health"
	"github.com/c360/gazestream/message"
	"github.com/c360/gazestream/metric"
	"github.com/c360/gazestream/tracking"
)

// Publisher publishes a payload to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Config holds output configuration
type Config struct {
	Subject string
	// StateSubject is optional; empty disables state publishing.
	StateSubject   string
	PublishTimeout time.Duration
}

// Deps holds the output's dependencies
type Deps struct {
	Config          Config
	Publisher       Publisher
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// Output publishes records and tracker state to NATS
type Output struct {
	cfg       Config
	publisher Publisher
	logger    *slog.Logger
	core      *metric.Metrics

	published atomic.Int64
	failures  atomic.Int64
	failing   atomic.Bool
	lastErr   atomic.Value // error wrapper
	lastSent  atomic.Value // time.Time
	startTime time.Time
}

type errBox struct{ err error }

// NewOutput creates an output publishing through deps.Publisher.
func NewOutput(deps Deps) (*Output, error) {
	if deps.Publisher == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Output", "NewOutput", "publisher is required")
	}
	if deps.Config.Subject == "" {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Output", "NewOutput", "subject is required")
	}

	cfg := deps.Config
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = time.Second
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	o := &Output{
		cfg:       cfg,
		publisher: deps.Publisher,
		logger:    logger.With("component", "nats_output", "subject", cfg.Subject),
		startTime: time.Now(),
	}
	if deps.MetricsRegistry != nil {
		o.core = deps.MetricsRegistry.CoreMetrics()
	}
	o.lastErr.Store(errBox{})
	o.lastSent.Store(time.Time{})
	return o, nil
}

// Deliver publishes a record. It satisfies the client sink contract.
func (o *Output) Deliver(r message.Record) {
	_ = o.publish(o.cfg.Subject, r)
}

// PublishState publishes a tracker snapshot. Its signature matches
// tracking.Deps.OnUpdate.
func (o *Output) PublishState(s tracking.State) {
	if o.cfg.StateSubject == "" {
		return
	}
	_ = o.publish(o.cfg.StateSubject, s)
}

func (o *Output) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		o.fail(subject, errors.WrapInvalid(err, "Output", "publish", "marshal payload"))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.PublishTimeout)
	defer cancel()

	if err := o.publisher.Publish(ctx, subject, data); err != nil {
		err = errors.WrapTransient(err, "Output", "publish", "publish to "+subject)
		o.fail(subject, err)
		return err
	}

	o.published.Add(1)
	o.lastSent.Store(time.Now())
	if o.failing.CompareAndSwap(true, false) {
		o.logger.Info("NATS publishing recovered")
	}
	if o.core != nil {
		o.core.RecordDelivered("nats")
	}
	return nil
}

// fail counts a publish failure; only the first failure of a run is logged at Warn.
func (o *Output) fail(subject string, err error) {
	o.failures.Add(1)
	o.lastErr.Store(errBox{err})
	if o.core != nil {
		o.core.RecordError("nats_output", errors.Classify(err).String())
	}
	if o.failing.CompareAndSwap(false, true) {
		o.logger.Warn("NATS publish failed", "target", subject, "error", err)
		return
	}
	o.logger.Debug("NATS publish failed", "target", subject, "error", err)
}

// Published returns the number of successful publishes.
func (o *Output) Published() int64 {
	return o.published.Load()
}

// Failures returns the number of failed publishes.
func (o *Output) Failures() int64 {
	return o.failures.Load()
}

// Health is degraded while publishes are failing.
func (o *Output) Health() health.Status {
	var status health.Status
	if o.failing.Load() {
		status = health.FromError("nats_output", health.LevelDegraded,
			o.lastErr.Load().(errBox).err, "publish failing")
	} else {
		status = health.NewHealthy("nats_output", "publishing")
	}
	return status.WithMetrics(&health.Metrics{
		Uptime:           time.Since(o.startTime),
		ErrorCount:       o.failures.Load(),
		RecordsProcessed: o.published.Load(),
		LastActivity:     o.lastSent.Load().(time.Time),
	})
}
