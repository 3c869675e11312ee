package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/c360/gazestream/errors"
	"github.com/c360/gazestream/filter"
	"github.com/c360/gazestream/frame"
	"github.com/c360/gazestream/input/tcp"
	"github.com/c360/gazestream/tracking"
)

// Delivery modes for the consumer section.
const (
	DeliveryPull = "pull"
	DeliveryPush = "push"
)

// Config represents the complete application configuration
type Config struct {
	Source     SourceConfig     `json:"source"`
	Connection ConnectionConfig `json:"connection"`
	Consumer   ConsumerConfig   `json:"consumer"`
	NATS       NATSConfig       `json:"nats"`
	Metrics    MetricsConfig    `json:"metrics"`
	WebSocket  WebSocketConfig  `json:"websocket"`
}

// SourceConfig is the stream server address.
type SourceConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ConnectionConfig tunes the connection manager.
type ConnectionConfig struct {
	HandshakeTimeout     time.Duration `json:"handshake_timeout"`
	IOTimeout            time.Duration `json:"io_timeout"`
	RetryInterval        time.Duration `json:"retry_interval"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts"`
	RequestID            uint8         `json:"request_id"`
	MaxPayloadBytes      uint32        `json:"max_payload_bytes"`
}

// ConsumerConfig tunes the tracking loop and record delivery.
type ConsumerConfig struct {
	TickInterval        time.Duration `json:"tick_interval"`
	ReadTimeout         time.Duration `json:"read_timeout"`
	FilterWindow        int           `json:"filter_window"`
	MinPupilThresholdMm float32       `json:"min_pupil_threshold_mm"`
	Delivery            string        `json:"delivery"`
	FlipGazeX           bool          `json:"flip_gaze_x,omitempty"`
}

// NATSConfig defines NATS publishing settings
type NATSConfig struct {
	Enabled       bool          `json:"enabled"`
	URLs          []string      `json:"urls,omitempty"`
	Subject       string        `json:"subject"`
	StateSubject  string        `json:"state_subject,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
}

// MetricsConfig defines the Prometheus and health endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// WebSocketConfig defines the eye state broadcast endpoint.
type WebSocketConfig struct {
	Enabled      bool    `json:"enabled"`
	Port         int     `json:"port"`
	Path         string  `json:"path"`
	MaxStateRate float64 `json:"max_state_rate,omitempty"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	conn := tcp.DefaultConfig()
	track := tracking.DefaultConfig()
	return &Config{
		Source: SourceConfig{Host: conn.Host, Port: conn.Port},
		Connection: ConnectionConfig{
			HandshakeTimeout:     conn.HandshakeTimeout,
			IOTimeout:            conn.IOTimeout,
			RetryInterval:        conn.RetryInterval,
			MaxReconnectAttempts: conn.MaxReconnectAttempts,
			RequestID:            frame.DefaultRequestID,
			MaxPayloadBytes:      frame.DefaultMaxPayload,
		},
		Consumer: ConsumerConfig{
			TickInterval:        track.TickInterval,
			ReadTimeout:         track.ReadTimeout,
			FilterWindow:        track.FilterWindow,
			MinPupilThresholdMm: filter.DefaultPupilThresholdMm,
			Delivery:            DeliveryPull,
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			Subject:       "gazestream.records",
			StateSubject:  "gazestream.state",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		WebSocket: WebSocketConfig{
			Port: 8081,
			Path: "/ws",
		},
	}
}

// TCPConfig returns the connection manager settings.
func (c *Config) TCPConfig() tcp.Config {
	return tcp.Config{
		Host:                 c.Source.Host,
		Port:                 c.Source.Port,
		HandshakeTimeout:     c.Connection.HandshakeTimeout,
		IOTimeout:            c.Connection.IOTimeout,
		RetryInterval:        c.Connection.RetryInterval,
		MaxReconnectAttempts: c.Connection.MaxReconnectAttempts,
		RequestID:            c.Connection.RequestID,
		MaxPayload:           c.Connection.MaxPayloadBytes,
	}
}

// TrackerConfig returns the tracker settings.
func (c *Config) TrackerConfig() tracking.Config {
	return tracking.Config{
		TickInterval:        c.Consumer.TickInterval,
		ReadTimeout:         c.Consumer.ReadTimeout,
		FilterWindow:        c.Consumer.FilterWindow,
		MinPupilThresholdMm: c.Consumer.MinPupilThresholdMm,
		FlipGazeX:           c.Consumer.FlipGazeX,
	}
}

// Validate checks cross-field rules the schema cannot express.
func (c *Config) Validate() error {
	var errs []error
	if err := c.TCPConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.TrackerConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Consumer.Delivery != DeliveryPull && c.Consumer.Delivery != DeliveryPush {
		errs = append(errs, fmt.Errorf("consumer.delivery %q must be pull or push", c.Consumer.Delivery))
	}
	if c.NATS.Enabled {
		if len(c.NATS.URLs) == 0 {
			errs = append(errs, stderrors.New("nats.urls is required when nats is enabled"))
		}
		if !isValidNATSSubject(c.NATS.Subject) {
			errs = append(errs, fmt.Errorf("nats.subject %q is not a valid publish subject", c.NATS.Subject))
		}
		if c.NATS.StateSubject != "" && !isValidNATSSubject(c.NATS.StateSubject) {
			errs = append(errs, fmt.Errorf("nats.state_subject %q is not a valid publish subject", c.NATS.StateSubject))
		}
	}
	if c.Metrics.Enabled && c.WebSocket.Enabled && c.Metrics.Port == c.WebSocket.Port {
		errs = append(errs, fmt.Errorf("metrics.port and websocket.port both use %d", c.Metrics.Port))
	}
	if len(errs) > 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, stderrors.Join(errs...)),
			"config", "Validate", "config validation")
	}
	return nil
}

// isValidNATSSubject accepts dot-separated tokens of letters, digits, dashes
// and underscores. Wildcards are rejected: the subject is published to.
func isValidNATSSubject(s string) bool {
	if s == "" {
		return false
	}
	for _, token := range strings.Split(s, ".") {
		if token == "" {
			return false
		}
		for _, r := range token {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
				return false
			}
		}
	}
	return true
}

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{envPrefix: "GAZESTREAM"}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables schema and semantic validation in Load
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads and merges all configuration layers
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(DefaultConfig())
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("failed to load %s: %w", path, err),
				"config", "Load", "load layer")
		}
		merged = deepMergeMaps(merged, raw)
	}

	if l.validation {
		doc, err := json.Marshal(merged)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "encode merged layers")
		}
		if err := ValidateDocument(doc); err != nil {
			return nil, err
		}
	}

	cfg, err := fromMap(merged)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"config", "Load", "decode config")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	// Environment values are checked again after decoding.
	if l.validation {
		if err := ValidateSchema(cfg); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadRaw reads one layer as a map with durations converted.
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	format, err := configFormat(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch format {
	case formatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	default:
		if err := checkJSONDepth(data); err != nil {
			return nil, fmt.Errorf("invalid JSON structure: %w", err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	}

	if err := parseDurations(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// durationFields lists the duration keys per section.
var durationFields = map[string][]string{
	"connection": {"handshake_timeout", "io_timeout", "retry_interval"},
	"consumer":   {"tick_interval", "read_timeout"},
	"nats":       {"reconnect_wait"},
}

// parseDurations converts duration strings to nanoseconds for json unmarshaling
func parseDurations(data map[string]any) error {
	for section, keys := range durationFields {
		m, ok := data[section].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			s, ok := m[key].(string)
			if !ok {
				continue
			}
			d, err := time.ParseDuration(s)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", section, key, err)
			}
			m[key] = d.Nanoseconds()
		}
	}
	return nil
}

// deepMergeMaps recursively merges two maps, with override taking precedence
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}

	return result
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any) (*Config, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	get := func(suffix string) (string, string, error) {
		key := l.envPrefix + "_" + suffix
		val := os.Getenv(key)
		return key, val, checkEnvValue(key, val)
	}
	atoi := func(key, val string) (int, error) {
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, errors.WrapInvalid(fmt.Errorf("%w: %s=%q is not an integer", errors.ErrInvalidConfig, key, val),
				"config", "applyEnvOverrides", "parse env")
		}
		return n, nil
	}

	overrides := []struct {
		suffix string
		apply  func(key, val string) error
	}{
		{"SOURCE_HOST", func(_, val string) error { cfg.Source.Host = val; return nil }},
		{"SOURCE_PORT", func(key, val string) error {
			n, err := atoi(key, val)
			cfg.Source.Port = n
			return err
		}},
		{"NATS_URLS", func(_, val string) error {
			cfg.NATS.URLs = strings.Split(val, ",")
			cfg.NATS.Enabled = true
			return nil
		}},
		{"NATS_SUBJECT", func(_, val string) error { cfg.NATS.Subject = val; return nil }},
		{"METRICS_PORT", func(key, val string) error {
			n, err := atoi(key, val)
			cfg.Metrics.Port = n
			return err
		}},
		{"FILTER_WINDOW", func(key, val string) error {
			n, err := atoi(key, val)
			cfg.Consumer.FilterWindow = n
			return err
		}},
	}

	for _, o := range overrides {
		key, val, err := get(o.suffix)
		if err != nil {
			return errors.WrapInvalid(err, "config", "applyEnvOverrides", "validate env")
		}
		if val == "" {
			continue
		}
		if err := o.apply(key, val); err != nil {
			return err
		}
	}
	return nil
}

// formatDurations is the inverse of parseDurations.
func formatDurations(data map[string]any) {
	for section, keys := range durationFields {
		m, ok := data[section].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range keys {
			if ns, ok := m[key].(float64); ok {
				m[key] = time.Duration(int64(ns)).String()
			}
		}
	}
}

// SaveToFile saves the configuration to a JSON or YAML file by extension.
// Durations are written as strings.
func (c *Config) SaveToFile(path string) error {
	m, err := toMap(c)
	if err != nil {
		return err
	}
	formatDurations(m)

	format, err := configFormat(path)
	if err != nil {
		return err
	}

	var data []byte
	switch format {
	case formatYAML:
		data, err = yaml.Marshal(m)
	default:
		data, err = json.MarshalIndent(m, "", "  ")
	}
	if err != nil {
		return err
	}
	return writeConfigFile(path, data)
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	clone.NATS.URLs = append([]string(nil), c.NATS.URLs...)
	return &clone
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := c.Clone()
	for _, s := range []*string{&masked.NATS.Password, &masked.NATS.Token} {
		if *s != "" {
			*s = "[REDACTED]"
		}
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}
