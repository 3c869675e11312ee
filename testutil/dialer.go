package testutil

import (
	"context"
	"errors"
	"net"
	"sync"
)

// ErrDialRefused is returned by ScriptedDialer for scripted failures.
var ErrDialRefused = errors.New("connect: connection refused")

// ScriptedDialer counts dial attempts and fails the ones its script selects.
// Attempts are numbered from 1.
type ScriptedDialer struct {
	mu       sync.Mutex
	attempts int
	fail     func(attempt int) bool
	dialer   net.Dialer
}

// NewScriptedDialer creates a dialer failing every attempt for which fail
// returns true. A nil fail never fails.
func NewScriptedDialer(fail func(attempt int) bool) *ScriptedDialer {
	return &ScriptedDialer{fail: fail}
}

// FailRange fails attempts first..last inclusive.
func FailRange(first, last int) func(int) bool {
	return func(n int) bool { return n >= first && n <= last }
}

// FailFrom fails every attempt from first on.
func FailFrom(first int) func(int) bool {
	return func(n int) bool { return n >= first }
}

// DialContext implements tcp.Dialer.
func (d *ScriptedDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.mu.Lock()
	d.attempts++
	n := d.attempts
	d.mu.Unlock()

	if d.fail != nil && d.fail(n) {
		return nil, &net.OpError{Op: "dial", Net: network, Err: ErrDialRefused}
	}
	return d.dialer.DialContext(ctx, network, address)
}

// Attempts returns the number of dials so far.
func (d *ScriptedDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}
