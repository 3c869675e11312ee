package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/c360/gazestream/errors"
	"github.com/c360/gazestream/health"
	"github.com/c360/gazestream/message"
	"github.com/c360/gazestream/metric"
	"github.com/c360/gazestream/tracking"
)

// Envelope types
const (
	TypeState  = "state"
	TypeRecord = "record"
)

// Config holds configuration for the WebSocket output
type Config struct {
	Host string
	// Port 0 picks a free port; see Addr.
	Port         int
	Path         string
	WriteTimeout time.Duration
	PingInterval time.Duration
	// MaxStateRate caps PublishState broadcasts per second. Zero takes the
	// default; negative removes the cap. Deliver is never throttled.
	MaxStateRate float64
	// SendQueue is the per-client outbound queue length. Messages for a
	// client whose queue is full are dropped.
	SendQueue int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Port:         8081,
		Path:         "/ws",
		WriteTimeout: 5 * time.Second,
		PingInterval: 30 * time.Second,
		MaxStateRate: 30,
		SendQueue:    64,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Output", "Validate",
			fmt.Sprintf("invalid port %d", c.Port))
	}
	if c.Path == "" || c.Path[0] != '/' {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Output", "Validate",
			fmt.Sprintf("path %q must start with /", c.Path))
	}
	return nil
}

// Deps holds the output's dependencies
type Deps struct {
	Config          Config
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// MessageEnvelope wraps every message sent to clients
type MessageEnvelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
	Payload   json.RawMessage `json:"payload"`
}

type outbound struct {
	msgType string
	data    []byte
}

type clientInfo struct {
	conn        *websocket.Conn
	connectedAt time.Time
	send        chan outbound
	done        chan struct{}
	writeMu     sync.Mutex
	closed      atomic.Bool
	closeOnce   sync.Once
}

// Output is a WebSocket server broadcasting tracking state to connected clients
type Output struct {
	cfg      Config
	logger   *slog.Logger
	metrics  *Metrics
	upgrader websocket.Upgrader
	limiter  *rate.Limiter

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*clientInfo

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	shutdown chan struct{}
	wg       sync.WaitGroup
	running  bool

	startTime    time.Time
	messageID    atomic.Uint64
	messagesSent atomic.Int64
	errorCount   atomic.Int64
	lastActivity atomic.Value // time.Time
}

// NewOutput creates an output. Zero Config fields take their defaults.
func NewOutput(deps Deps) (*Output, error) {
	cfg := deps.Config
	def := DefaultConfig()
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.MaxStateRate == 0 {
		cfg.MaxStateRate = def.MaxStateRate
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = def.SendQueue
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	metrics, err := newMetrics(deps.MetricsRegistry)
	if err != nil {
		return nil, errors.WrapTransient(err, "Output", "NewOutput", "metrics registration")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	o := &Output{
		cfg:     cfg,
		logger:  logger.With("component", "websocket_output"),
		metrics: metrics,
		upgrader: websocket.Upgrader{
			// Viewers are local tools served from arbitrary origins.
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		clients:   make(map[*websocket.Conn]*clientInfo),
		shutdown:  make(chan struct{}),
		startTime: time.Now(),
	}
	limit := rate.Inf
	if cfg.MaxStateRate > 0 {
		limit = rate.Limit(cfg.MaxStateRate)
	}
	o.limiter = rate.NewLimiter(limit, 1)
	o.lastActivity.Store(time.Time{})
	return o, nil
}

// Handler returns the HTTP handler serving the upgrade endpoint.
func (o *Output) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(o.cfg.Path, o.handleWebSocket)
	return mux
}

// Start listens on the configured port and serves until Stop.
func (o *Output) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Output", "Start", "check state")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "Output", "Start", "context already cancelled")
	}

	addr := net.JoinHostPort(o.cfg.Host, fmt.Sprint(o.cfg.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return errors.WrapTransient(err, "Output", "Start", "listen on "+addr)
	}

	o.listener = ln
	o.server = &http.Server{
		Handler:           o.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	o.shutdown = make(chan struct{})
	o.running = true
	o.startTime = time.Now()

	o.wg.Add(2)
	go o.serve(o.server, ln)
	go o.maintainClients(o.shutdown)

	o.logger.Info("WebSocket output started", "addr", ln.Addr().String(), "path", o.cfg.Path)
	return nil
}

// Addr returns the listening address, or "" when not started.
func (o *Output) Addr() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.listener == nil {
		return ""
	}
	return o.listener.Addr().String()
}

func (o *Output) serve(server *http.Server, ln net.Listener) {
	defer o.wg.Done()
	if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
		o.errorCount.Add(1)
		o.logger.Error("HTTP server failed", "error", err)
	}
}

// Stop shuts the server down and closes all client connections.
func (o *Output) Stop(timeout time.Duration) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	close(o.shutdown)
	server := o.server
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := server.Shutdown(ctx)

	// Hijacked connections are not tracked by Shutdown.
	o.closeAllClients("shutdown")

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		o.logger.Warn("WebSocket goroutines did not exit within timeout")
	}

	o.mu.Lock()
	o.server = nil
	o.listener = nil
	o.mu.Unlock()

	if err != nil {
		return errors.Wrap(err, "Output", "Stop", "shutdown server")
	}
	return nil
}

func (o *Output) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		o.recordError("connection_upgrade")
		return
	}

	info := &clientInfo{
		conn:        conn,
		connectedAt: time.Now(),
		send:        make(chan outbound, o.cfg.SendQueue),
		done:        make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * o.cfg.PingInterval))
	})

	o.clientsMu.Lock()
	o.clients[conn] = info
	count := len(o.clients)
	o.clientsMu.Unlock()

	if o.metrics != nil {
		o.metrics.connectionTotal.Inc()
		o.metrics.clientsConnected.Set(float64(count))
	}
	o.logger.Debug("WebSocket client connected", "remote", conn.RemoteAddr().String(), "clients", count)

	go o.writeLoop(info)
	o.readLoop(info)
}

// writeLoop sends queued messages to one client until it is removed.
func (o *Output) writeLoop(info *clientInfo) {
	for {
		select {
		case <-info.done:
			return
		case msg := <-info.send:
			o.send(info, msg.msgType, msg.data)
		}
	}
}

// readLoop drains client frames until the connection fails.
func (o *Output) readLoop(info *clientInfo) {
	defer o.removeClient(info, "normal")

	_ = info.conn.SetReadDeadline(time.Now().Add(2 * o.cfg.PingInterval))
	for {
		if _, _, err := info.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (o *Output) removeClient(info *clientInfo, reason string) {
	info.closeOnce.Do(func() {
		info.closed.Store(true)
		close(info.done)

		o.clientsMu.Lock()
		delete(o.clients, info.conn)
		count := len(o.clients)
		o.clientsMu.Unlock()

		if o.metrics != nil {
			o.metrics.disconnectionTotal.WithLabelValues(reason).Inc()
			o.metrics.clientsConnected.Set(float64(count))
		}
		_ = info.conn.Close()
	})
}

func (o *Output) closeAllClients(reason string) {
	for _, info := range o.snapshot() {
		info.writeMu.Lock()
		_ = info.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, reason),
			time.Now().Add(time.Second))
		info.writeMu.Unlock()
		o.removeClient(info, reason)
	}
}

func (o *Output) snapshot() []*clientInfo {
	o.clientsMu.RLock()
	defer o.clientsMu.RUnlock()
	list := make([]*clientInfo, 0, len(o.clients))
	for _, info := range o.clients {
		if !info.closed.Load() {
			list = append(list, info)
		}
	}
	return list
}

// maintainClients pings every client each interval.
func (o *Output) maintainClients(shutdown <-chan struct{}) {
	defer o.wg.Done()
	ticker := time.NewTicker(o.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-shutdown:
			return
		case <-ticker.C:
		}
		for _, info := range o.snapshot() {
			info.writeMu.Lock()
			err := info.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(o.cfg.WriteTimeout))
			info.writeMu.Unlock()
			if err != nil {
				o.removeClient(info, "ping_failed")
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (o *Output) ClientCount() int {
	o.clientsMu.RLock()
	defer o.clientsMu.RUnlock()
	return len(o.clients)
}

// PublishState broadcasts a tracker state snapshot, dropping snapshots
// that exceed MaxStateRate. Its signature matches tracking.Deps.OnUpdate.
func (o *Output) PublishState(s tracking.State) {
	if !o.limiter.Allow() {
		if o.metrics != nil {
			o.metrics.throttled.Inc()
		}
		return
	}
	if err := o.Broadcast(TypeState, s); err != nil {
		o.logger.Debug("Broadcast state failed", "error", err)
	}
}

// Deliver broadcasts a decoded record, so the output can serve as a client sink.
func (o *Output) Deliver(r message.Record) {
	if err := o.Broadcast(TypeRecord, r); err != nil {
		o.logger.Debug("Broadcast record failed", "error", err)
	}
}

// Broadcast wraps payload in an envelope of the given type and queues it for
// every connected client without waiting for the writes. A client whose queue
// is full misses the message; a client whose write fails is dropped.
func (o *Output) Broadcast(msgType string, payload any) error {
	clients := o.snapshot()
	if len(clients) == 0 {
		return nil
	}
	start := time.Now()

	raw, err := json.Marshal(payload)
	if err != nil {
		o.recordError("payload_marshal")
		return errors.WrapInvalid(err, "Output", "Broadcast", "marshal payload")
	}
	data, err := json.Marshal(MessageEnvelope{
		Type:      msgType,
		ID:        fmt.Sprintf("msg-%d", o.messageID.Add(1)),
		Timestamp: start.UnixMilli(),
		Payload:   raw,
	})
	if err != nil {
		o.recordError("envelope_marshal")
		return errors.WrapInvalid(err, "Output", "Broadcast", "marshal envelope")
	}

	msg := outbound{msgType: msgType, data: data}
	for _, info := range clients {
		select {
		case info.send <- msg:
		default:
			if o.metrics != nil {
				o.metrics.messagesDropped.WithLabelValues(msgType).Inc()
			}
		}
	}

	o.lastActivity.Store(time.Now())
	if o.metrics != nil {
		o.metrics.broadcastDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

func (o *Output) send(info *clientInfo, msgType string, data []byte) {
	info.writeMu.Lock()
	_ = info.conn.SetWriteDeadline(time.Now().Add(o.cfg.WriteTimeout))
	err := info.conn.WriteMessage(websocket.TextMessage, data)
	info.writeMu.Unlock()

	if err != nil {
		o.recordError("write")
		o.removeClient(info, "write_failed")
		return
	}

	o.messagesSent.Add(1)
	if o.metrics != nil {
		o.metrics.messagesSent.WithLabelValues(msgType).Inc()
		o.metrics.bytesSent.Add(float64(len(data)))
	}
}

func (o *Output) recordError(kind string) {
	o.errorCount.Add(1)
	if o.metrics != nil {
		o.metrics.errorsTotal.WithLabelValues(kind).Inc()
	}
}

// Health reports whether the server is running.
func (o *Output) Health() health.Status {
	o.mu.Lock()
	running := o.running
	o.mu.Unlock()

	var status health.Status
	if running {
		status = health.NewHealthy("websocket", fmt.Sprintf("%d clients", o.ClientCount()))
	} else {
		status = health.NewUnhealthy("websocket", "not running")
	}
	return status.WithMetrics(&health.Metrics{
		Uptime:           time.Since(o.startTime),
		ErrorCount:       o.errorCount.Load(),
		RecordsProcessed: o.messagesSent.Load(),
		LastActivity:     o.lastActivity.Load().(time.Time),
	})
}
