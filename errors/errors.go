// Package errors provides the error taxonomy for gazestream components.
// It includes error classification, the sentinel errors raised by the frame
// codec and the connection manager, and helpers for consistent wrapping.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Component lifecycle errors
	ErrAlreadyStarted = errors.New("component already started")
	ErrNotStarted     = errors.New("component not started")
	ErrShuttingDown   = errors.New("component is shutting down")
	ErrDisposed       = errors.New("client disposed")

	// Handshake errors. The initial Connect reports these as a false return.
	ErrHandshakeTimeout = errors.New("handshake timeout")
	ErrHandshakeRefused = errors.New("handshake refused")

	// ErrStreamIO covers read/write failures and timeouts on an established stream.
	ErrStreamIO = errors.New("stream i/o error")

	// Frame errors abort the current session and trigger a reconnect.
	ErrTruncatedHeader     = errors.New("truncated frame header")
	ErrUnexpectedFrameType = errors.New("unexpected frame type")
	ErrTruncatedPayload    = errors.New("truncated frame payload")
	ErrMalformedPayload    = errors.New("malformed frame payload")
	ErrPayloadTooLarge     = errors.New("frame payload too large")

	// ErrReconnectExhausted is terminal: the connection manager has given up.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Publishing errors
	ErrNoConnection = errors.New("no connection available")
	ErrCircuitOpen  = errors.New("circuit breaker open")
)

var (
	transientSentinels = []error{
		ErrHandshakeTimeout,
		ErrHandshakeRefused,
		ErrStreamIO,
		ErrNoConnection,
		ErrCircuitOpen,
		context.DeadlineExceeded,
		context.Canceled,
	}
	invalidSentinels = []error{
		ErrTruncatedHeader,
		ErrUnexpectedFrameType,
		ErrTruncatedPayload,
		ErrMalformedPayload,
		ErrPayloadTooLarge,
	}
	fatalSentinels = []error{
		ErrReconnectExhausted,
		ErrInvalidConfig,
		ErrMissingConfig,
		ErrDisposed,
	}
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if isAny(err, fatalSentinels) || isAny(err, invalidSentinels) {
		return false
	}
	if isAny(err, transientSentinels) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "network", "temporary", "unavailable", "refused", "reset"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return isAny(err, fatalSentinels)
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return isAny(err, invalidSentinels)
}

// IsFrameError reports whether err originated in the frame codec.
func IsFrameError(err error) bool {
	return err != nil && isAny(err, invalidSentinels)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}

	// Unknown errors default to transient so the caller may retry.
	return ErrorTransient
}

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// WrapClassified wraps err with the class Classify assigns to it.
func WrapClassified(err error, component, method, action string) error {
	switch Classify(err) {
	case ErrorFatal:
		return WrapFatal(err, component, method, action)
	case ErrorInvalid:
		return WrapInvalid(err, component, method, action)
	default:
		return WrapTransient(err, component, method, action)
	}
}
