package tcp

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/gazestream/errors"
	"github.com/c360/gazestream/frame"
	"github.com/c360/gazestream/metric"
	"github.com/c360/gazestream/pkg/retry"
)

// Deps holds runtime dependencies for the connection manager
type Deps struct {
	Config          Config
	Sink            Sink
	Dialer          Dialer                  // nil uses net.Dialer
	MetricsRegistry *metric.MetricsRegistry // nil disables metrics
	Logger          *slog.Logger

	// OnStateChange is called on the transitioning goroutine for every state
	// change, including Reconnecting -> Reconnecting after each failed
	// reconnect handshake that will be retried. A stream drop recovered after
	// n failed handshakes therefore reports Streaming -> Reconnecting, n times
	// Reconnecting -> Reconnecting, then Reconnecting -> Streaming: n+1
	// transitions into Reconnecting.
	OnStateChange func(from, to State)
}

// Stats is a snapshot of connection counters.
type Stats struct {
	FramesDecoded     int64     `json:"frames_decoded"`
	FrameErrors       int64     `json:"frame_errors"`
	StreamErrors      int64     `json:"stream_errors"`
	HandshakeFailures int64     `json:"handshake_failures"`
	Reconnects        int64     `json:"reconnects"`
	ReconnectAttempts int       `json:"reconnect_attempts"`
	SessionID         string    `json:"session_id,omitempty"`
	LastActivity      time.Time `json:"last_activity"`
}

// Manager owns the stream connection and its reconnect loop.
type Manager struct {
	cfg           Config
	sink          Sink
	dialer        Dialer
	decoder       *frame.Decoder
	logger        *slog.Logger
	metrics       *Metrics
	onStateChange func(from, to State)

	state    atomic.Int32
	attempts atomic.Int64

	mu        sync.Mutex
	conn      net.Conn
	cancel    context.CancelFunc
	started   bool
	running   bool
	closed    bool
	sessionID string
	err       error
	done      chan struct{}

	framesDecoded     atomic.Int64
	frameErrors       atomic.Int64
	streamErrors      atomic.Int64
	handshakeFailures atomic.Int64
	reconnects        atomic.Int64
	lastActivity      atomic.Value // time.Time
}

// NewManager creates a connection manager. It does not dial.
func NewManager(deps Deps) (*Manager, error) {
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	if deps.Sink == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: nil sink", errors.ErrMissingConfig),
			"tcp", "NewManager", "sink validation")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "tcp-input", "addr", deps.Config.Address())
	}

	dialer := deps.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}

	metrics, err := newMetrics(deps.MetricsRegistry, deps.Config.Address())
	if err != nil {
		return nil, errors.WrapTransient(err, "tcp", "NewManager", "metrics registration")
	}

	m := &Manager{
		cfg:           deps.Config,
		sink:          deps.Sink,
		dialer:        dialer,
		decoder:       frame.NewDecoder(deps.Config.RequestID, deps.Config.MaxPayload),
		logger:        logger,
		metrics:       metrics,
		onStateChange: deps.OnStateChange,
		done:          make(chan struct{}),
	}
	m.lastActivity.Store(time.Time{})
	return m, nil
}

// State returns the current state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// IsConnected reports whether the manager is streaming.
func (m *Manager) IsConnected() bool {
	return m.State().IsConnected()
}

// Attempts returns the number of consecutive failed reconnect handshakes.
func (m *Manager) Attempts() int {
	return int(m.attempts.Load())
}

// Err returns the terminal error once the manager has given up.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Done is closed when the background loop exits.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

func (m *Manager) setState(to State) {
	from := State(m.state.Swap(int32(to)))
	if m.metrics != nil {
		m.metrics.state.Set(float64(to))
	}
	if m.onStateChange != nil {
		m.onStateChange(from, to)
	}
}

// Connect performs the initial handshake and starts the stream loop.
// ctx bounds the whole session: cancelling it stops the loop. On failure the
// manager returns to Disconnected and Connect may be called again.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.WrapFatal(errors.ErrDisposed, "tcp", "Connect", "check state")
	}
	if m.started {
		m.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "tcp", "Connect", "check state")
	}
	m.started = true
	m.mu.Unlock()

	m.setState(StateConnecting)
	m.logger.Info("Connecting to source")

	conn, err := m.handshake(ctx)
	if err != nil {
		m.mu.Lock()
		m.started = false
		m.mu.Unlock()
		m.setState(StateDisconnected)
		m.logger.Error("Failed to connect to source", "error", err)
		return errors.WrapTransient(err, "tcp", "Connect", "handshake")
	}

	loopCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		_ = conn.Close()
		m.setState(StateDisconnected)
		return errors.WrapFatal(errors.ErrDisposed, "tcp", "Connect", "check state")
	}
	m.conn = conn
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	m.logger.Info("Connected to source")
	m.setState(StateStreaming)

	// Closing the socket is what unblocks a pending read on cancellation.
	go func() {
		<-loopCtx.Done()
		m.closeConn()
	}()

	go m.run(loopCtx, cancel, conn)
	return nil
}

// handshake dials once, bounded by HandshakeTimeout.
func (m *Manager) handshake(ctx context.Context) (net.Conn, error) {
	hctx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	defer cancel()

	conn, err := m.dialer.DialContext(hctx, "tcp", m.cfg.Address())
	if err == nil {
		return conn, nil
	}

	m.handshakeFailures.Add(1)
	if m.metrics != nil {
		m.metrics.handshakeFailures.Inc()
	}

	var ne net.Error
	if ctx.Err() == nil && (hctx.Err() == context.DeadlineExceeded || (stderrors.As(err, &ne) && ne.Timeout())) {
		return nil, fmt.Errorf("%w after %s: %w", errors.ErrHandshakeTimeout, m.cfg.HandshakeTimeout, err)
	}
	return nil, fmt.Errorf("%w: %w", errors.ErrHandshakeRefused, err)
}

func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, conn net.Conn) {
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		close(m.done)
	}()
	defer cancel()

	for {
		err := m.stream(ctx, conn)
		m.closeConn()

		if ctx.Err() != nil {
			m.setState(StateDisconnected)
			m.logger.Info("Stream stopped")
			return
		}
		m.recordStreamError(err)

		m.setState(StateReconnecting)
		next, err := m.reconnect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				m.setState(StateDisconnected)
				m.logger.Info("Stream stopped while reconnecting")
				return
			}
			m.mu.Lock()
			m.err = err
			m.mu.Unlock()
			m.setState(StateGivenUp)
			m.logger.Error("Giving up on source", "max_attempts", m.cfg.MaxReconnectAttempts, "error", err)
			return
		}
		conn = next
	}
}

// stream subscribes on conn and forwards decoded records until a failure.
func (m *Manager) stream(ctx context.Context, conn net.Conn) error {
	sessionID := uuid.NewString()
	m.mu.Lock()
	m.sessionID = sessionID
	m.mu.Unlock()
	logger := m.logger.With("session_id", sessionID)

	if err := conn.SetWriteDeadline(time.Now().Add(m.cfg.IOTimeout)); err != nil {
		return streamError(err, "set write deadline")
	}
	if _, err := conn.Write(frame.EncodeRequest(m.cfg.RequestID)); err != nil {
		return streamError(err, "send request")
	}
	logger.Debug("Requested stream", "request_id", m.cfg.RequestID)

	r := bufio.NewReader(conn)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := conn.SetReadDeadline(time.Now().Add(m.cfg.IOTimeout)); err != nil {
			return streamError(err, "set read deadline")
		}

		rec, err := m.decoder.DecodeFrame(r)
		if err != nil {
			return err
		}

		now := time.Now()
		m.framesDecoded.Add(1)
		m.lastActivity.Store(now)
		if m.metrics != nil {
			m.metrics.framesDecoded.Inc()
			m.metrics.lastActivity.Set(float64(now.Unix()))
			m.metrics.core.RecordReceived("tcp")
		}

		m.sink.Deliver(rec)
	}
}

func streamError(err error, action string) error {
	return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrStreamIO, err), "tcp", "stream", action)
}

// reconnect retries the handshake at a fixed interval until it succeeds, the
// ceiling is crossed, or ctx is cancelled.
func (m *Manager) reconnect(ctx context.Context) (net.Conn, error) {
	cfg := retry.Fixed(m.cfg.MaxReconnectAttempts+1, m.cfg.RetryInterval)
	cfg.OnRetry = func(attempt int, err error, next time.Duration) {
		m.logger.Warn("Failed to reconnect to source", "attempt", attempt, "retry_in", next, "error", err)
		m.setState(StateReconnecting)
	}

	conn, err := retry.DoWithResult(ctx, cfg, func() (net.Conn, error) {
		n := m.attempts.Add(1)
		if m.metrics != nil {
			m.metrics.reconnectAttempts.Set(float64(n))
		}
		m.logger.Info("Reconnecting to source", "attempt", n)
		return m.handshake(ctx)
	})
	if err != nil {
		if stderrors.Is(err, retry.ErrExhausted) {
			return nil, errors.WrapFatal(
				fmt.Errorf("%w: %w", errors.ErrReconnectExhausted, err),
				"tcp", "reconnect", "reconnect")
		}
		return nil, err
	}

	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		_ = conn.Close()
		return nil, ctx.Err()
	}
	m.conn = conn
	m.mu.Unlock()

	m.attempts.Store(0)
	m.reconnects.Add(1)
	if m.metrics != nil {
		m.metrics.reconnectAttempts.Set(0)
		m.metrics.reconnects.Inc()
	}
	m.logger.Info("Reconnected to source")
	m.setState(StateStreaming)
	return conn, nil
}

// recordStreamError logs why a session ended and counts it.
func (m *Manager) recordStreamError(err error) {
	var mpe *frame.MalformedPayloadError
	switch {
	case stderrors.As(err, &mpe):
		m.frameErrors.Add(1)
		m.logger.Error("Failed to decode frame payload", "error", err, "payload", mpe.Raw)
	case errors.IsFrameError(err):
		m.frameErrors.Add(1)
		m.logger.Error("Rejected frame", "error", err)
	default:
		m.streamErrors.Add(1)
		m.logger.Error("Failed to read data from source", "error", err)
	}

	if m.metrics == nil {
		return
	}
	if errors.IsFrameError(err) {
		m.metrics.frameErrors.WithLabelValues(frameErrorReason(err)).Inc()
	} else {
		m.metrics.streamErrors.Inc()
	}
	m.metrics.core.RecordError("tcp", errors.Classify(err).String())
}

func frameErrorReason(err error) string {
	switch {
	case stderrors.Is(err, errors.ErrTruncatedHeader):
		return "truncated_header"
	case stderrors.Is(err, errors.ErrUnexpectedFrameType):
		return "unexpected_type"
	case stderrors.Is(err, errors.ErrTruncatedPayload):
		return "truncated_payload"
	case stderrors.Is(err, errors.ErrPayloadTooLarge):
		return "payload_too_large"
	default:
		return "malformed_payload"
	}
}

func (m *Manager) closeConn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
}

// Close stops the loop, closes the socket, waits for the loop to exit and
// unregisters the manager's metrics. Idempotent. Must not be called from a Sink.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cancel := m.cancel
	running := m.running
	m.mu.Unlock()

	// Cancel before closing so the loop reads the failure as a shutdown.
	if cancel != nil {
		cancel()
	}
	m.closeConn()
	if running {
		<-m.done
	}
	m.metrics.unregister()
	return nil
}

// Stats returns a snapshot of the connection counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	sessionID := m.sessionID
	m.mu.Unlock()
	last, _ := m.lastActivity.Load().(time.Time)

	return Stats{
		FramesDecoded:     m.framesDecoded.Load(),
		FrameErrors:       m.frameErrors.Load(),
		StreamErrors:      m.streamErrors.Load(),
		HandshakeFailures: m.handshakeFailures.Load(),
		Reconnects:        m.reconnects.Load(),
		ReconnectAttempts: m.Attempts(),
		SessionID:         sessionID,
		LastActivity:      last,
	}
}
