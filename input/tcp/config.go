package tcp

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/c360/gazestream/errors"
	"github.com/c360/gazestream/frame"
)

// Config holds connection manager settings.
type Config struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	// HandshakeTimeout bounds each TCP connect, initial or reconnect.
	HandshakeTimeout time.Duration `json:"handshake_timeout"`
	// IOTimeout bounds each read and write on an established stream.
	IOTimeout time.Duration `json:"io_timeout"`
	// RetryInterval is the pause after a failed reconnect handshake.
	RetryInterval time.Duration `json:"retry_interval"`
	// MaxReconnectAttempts is the ceiling on consecutive failed reconnect
	// handshakes; the manager gives up once the count exceeds it.
	MaxReconnectAttempts int `json:"max_reconnect_attempts"`

	RequestID  byte   `json:"request_id"`
	MaxPayload uint32 `json:"max_payload_bytes"`
}

// DefaultConfig returns the stock settings for a local source on port 5555.
func DefaultConfig() Config {
	return Config{
		Host:                 "127.0.0.1",
		Port:                 5555,
		HandshakeTimeout:     3 * time.Second,
		IOTimeout:            10 * time.Second,
		RetryInterval:        5 * time.Second,
		MaxReconnectAttempts: 50,
		RequestID:            frame.DefaultRequestID,
		MaxPayload:           frame.DefaultMaxPayload,
	}
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: empty host", errors.ErrInvalidConfig),
			"tcp", "Validate", "host validation")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("%w: port %d out of range", errors.ErrInvalidConfig, c.Port),
			"tcp", "Validate", "port validation")
	}
	if c.HandshakeTimeout <= 0 || c.IOTimeout <= 0 || c.RetryInterval <= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: timeouts must be positive", errors.ErrInvalidConfig),
			"tcp", "Validate", "timeout validation")
	}
	if c.MaxReconnectAttempts < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: negative reconnect ceiling", errors.ErrInvalidConfig),
			"tcp", "Validate", "reconnect validation")
	}
	return nil
}
