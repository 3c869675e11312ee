// Package retry provides backoff retry logic for transient failures.
//
// # Overview
//
// Do runs a function until it succeeds, the attempt budget is spent, the
// function returns a NonRetryable error, or the context is cancelled.
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s exponential delay
//   - Fixed(n, d): n attempts, constant delay d, no jitter
//
// The TCP connection manager uses Fixed for its reconnect loop: one attempt
// per handshake, a constant interval between them, and ErrExhausted once the
// ceiling is crossed.
//
// # Usage
//
//	err := retry.Do(ctx, retry.Fixed(51, 5*time.Second), func() error {
//	    return dial(ctx)
//	})
//	if errors.Is(err, retry.ErrExhausted) {
//	    // give up
//	}
package retry
