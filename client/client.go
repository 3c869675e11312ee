package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/gazestream/errors"
	"github.com/c360/gazestream/health"
	"github.com/c360/gazestream/input/tcp"
	"github.com/c360/gazestream/message"
	"github.com/c360/gazestream/metric"
	"github.com/c360/gazestream/pkg/buffer"
)

// Delivery selects how records reach the consumer.
type Delivery string

// Delivery disciplines.
const (
	DeliveryPull Delivery = "pull"
	DeliveryPush Delivery = "push"
)

// Deps holds runtime dependencies for a Client.
type Deps struct {
	// Connection supplies timeouts and framing settings. Host and Port are
	// replaced by Connect; zero fields take tcp.DefaultConfig values.
	Connection tcp.Config

	Delivery Delivery             // empty means DeliveryPull
	OnRecord func(message.Record) // required for DeliveryPush
	Sinks    []Sink               // extra fan-out targets, both modes

	Dialer          tcp.Dialer
	MetricsRegistry *metric.MetricsRegistry // nil disables metrics
	Logger          *slog.Logger

	// OnStateChange observes connection state transitions. It runs on the
	// network goroutine and must not call Dispose.
	OnStateChange func(from, to tcp.State)
}

// Client connects to a gaze stream source and hands out its records.
type Client struct {
	deps    Deps
	cfg     tcp.Config
	sink    Sink
	queue   *QueueSink
	logger  *slog.Logger
	metrics *metric.Metrics
	created time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	manager    *tcp.Manager
	addr       string
	connecting bool
	disposed   bool
}

// New creates a client. It does not dial.
func New(deps Deps) (*Client, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "client")
	}

	var sinks []Sink
	var queue *QueueSink
	switch deps.Delivery {
	case "", DeliveryPull:
		deps.Delivery = DeliveryPull
		q, err := NewQueueSink(logger,
			buffer.WithMetrics[message.Record](deps.MetricsRegistry, "client"))
		if err != nil {
			return nil, errors.Wrap(err, "client", "New", "queue creation")
		}
		queue = q
		sinks = append(sinks, q)
	case DeliveryPush:
		if deps.OnRecord == nil {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: push delivery needs OnRecord", errors.ErrMissingConfig),
				"client", "New", "delivery validation")
		}
		sinks = append(sinks, FuncSink(deps.OnRecord))
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown delivery %q", errors.ErrInvalidConfig, deps.Delivery),
			"client", "New", "delivery validation")
	}
	for _, s := range deps.Sinks {
		if s != nil {
			sinks = append(sinks, s)
		}
	}

	var sink Sink = MultiSink(sinks)
	if len(sinks) == 1 {
		sink = sinks[0]
	}

	var core *metric.Metrics
	if deps.MetricsRegistry != nil {
		core = deps.MetricsRegistry.CoreMetrics()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		deps:    deps,
		cfg:     withDefaults(deps.Connection),
		sink:    sink,
		queue:   queue,
		logger:  logger,
		metrics: core,
		created: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func withDefaults(cfg tcp.Config) tcp.Config {
	d := tcp.DefaultConfig()
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = d.HandshakeTimeout
	}
	if cfg.IOTimeout == 0 {
		cfg.IOTimeout = d.IOTimeout
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = d.RetryInterval
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if cfg.MaxPayload == 0 {
		cfg.MaxPayload = d.MaxPayload
	}
	return cfg
}

// Connect performs the initial handshake against host:port and starts the
// stream loop on success. It returns false without dialing when the client
// is already connecting, connected, reconnecting, given up or disposed.
// After a failed handshake Connect may be called again.
func (c *Client) Connect(host string, port int) bool {
	cfg := c.cfg
	cfg.Host = host
	cfg.Port = port
	addr := cfg.Address()

	c.mu.Lock()
	if c.disposed || c.connecting {
		c.mu.Unlock()
		c.logger.Debug("Connect ignored", "addr", addr, "disposed", c.disposed)
		return false
	}
	if c.manager != nil && c.manager.State() != tcp.StateDisconnected {
		state := c.manager.State()
		c.mu.Unlock()
		c.logger.Debug("Connect ignored", "addr", addr, "state", state.String())
		return false
	}

	m := c.manager
	if m == nil || c.addr != addr {
		if m != nil {
			_ = m.Close()
		}
		var err error
		m, err = c.newManager(cfg)
		if err != nil {
			c.manager = nil
			c.mu.Unlock()
			c.logger.Error("Invalid connection settings", "addr", addr, "error", err)
			return false
		}
		c.manager = m
		c.addr = addr
	}
	c.connecting = true
	c.mu.Unlock()

	err := m.Connect(c.ctx)

	c.mu.Lock()
	c.connecting = false
	c.mu.Unlock()

	return err == nil
}

func (c *Client) newManager(cfg tcp.Config) (*tcp.Manager, error) {
	var logger *slog.Logger
	if c.deps.Logger != nil {
		logger = c.deps.Logger.With("component", "tcp-input", "addr", cfg.Address())
	}
	return tcp.NewManager(tcp.Deps{
		Config:          cfg,
		Sink:            c.sink,
		Dialer:          c.deps.Dialer,
		MetricsRegistry: c.deps.MetricsRegistry,
		Logger:          logger,
		OnStateChange:   c.stateChanged,
	})
}

func (c *Client) stateChanged(from, to tcp.State) {
	if c.metrics != nil {
		c.metrics.RecordHealth("source", int(HealthLevel(to)))
	}
	if c.deps.OnStateChange != nil {
		c.deps.OnStateChange(from, to)
	}
}

func (c *Client) current() *tcp.Manager {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manager
}

// IsConnected reports whether records are streaming.
func (c *Client) IsConnected() bool {
	m := c.current()
	return m != nil && m.IsConnected()
}

// State returns the connection state; Disconnected before Connect.
func (c *Client) State() tcp.State {
	if m := c.current(); m != nil {
		return m.State()
	}
	return tcp.StateDisconnected
}

// Stats returns the connection counters; zero before Connect.
func (c *Client) Stats() tcp.Stats {
	if m := c.current(); m != nil {
		return m.Stats()
	}
	return tcp.Stats{}
}

// Err returns the terminal error once the client has given up.
func (c *Client) Err() error {
	if m := c.current(); m != nil {
		return m.Err()
	}
	return nil
}

// Next waits up to timeout for the next record. It returns
// buffer.ErrTimedOut on expiry and buffer.ErrClosed after Dispose once the
// queue is drained. Only valid with pull delivery.
func (c *Client) Next(timeout time.Duration) (message.Record, error) {
	if c.queue == nil {
		return message.Record{}, errors.WrapInvalid(
			fmt.Errorf("%w: push delivery has no queue", errors.ErrInvalidConfig),
			"client", "Next", "read record")
	}
	return c.queue.Next(timeout)
}

// NextContext waits for the next record until ctx is done.
func (c *Client) NextContext(ctx context.Context) (message.Record, error) {
	if c.queue == nil {
		return message.Record{}, errors.WrapInvalid(
			fmt.Errorf("%w: push delivery has no queue", errors.ErrInvalidConfig),
			"client", "NextContext", "read record")
	}
	return c.queue.NextContext(ctx)
}

// Pending returns the number of queued records; always 0 with push delivery.
func (c *Client) Pending() int {
	if c.queue == nil {
		return 0
	}
	return c.queue.Len()
}

// Dispose stops the stream loop, closes the socket and closes the queue.
// Idempotent and safe without Connect. Must not be called from a Sink or
// OnStateChange.
func (c *Client) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	m := c.manager
	c.mu.Unlock()

	c.cancel()
	if m != nil {
		_ = m.Close()
	}
	if c.queue != nil {
		_ = c.queue.Close()
	}
	c.logger.Info("Client disposed")
}

// HealthLevel maps a connection state to a health level.
func HealthLevel(s tcp.State) health.Level {
	switch s {
	case tcp.StateStreaming:
		return health.LevelHealthy
	case tcp.StateConnecting, tcp.StateReconnecting:
		return health.LevelDegraded
	default:
		return health.LevelUnhealthy
	}
}

// Health reports the connection as a health status. It implements
// health.Checker.
func (c *Client) Health() health.Status {
	state := c.State()
	stats := c.Stats()

	var status health.Status
	switch state {
	case tcp.StateGivenUp:
		status = health.FromError("source", health.LevelUnhealthy, c.Err(), "reconnect attempts exhausted")
	case tcp.StateReconnecting:
		status = health.NewDegraded("source",
			fmt.Sprintf("reconnecting, %d failed attempts", stats.ReconnectAttempts))
	default:
		status = health.New("source", HealthLevel(state), state.String())
	}

	return status.WithMetrics(&health.Metrics{
		Uptime:           time.Since(c.created),
		ErrorCount:       stats.FrameErrors + stats.StreamErrors,
		RecordsProcessed: stats.FramesDecoded,
		Reconnects:       stats.Reconnects,
		LastActivity:     stats.LastActivity,
	})
}
