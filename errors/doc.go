// Package errors provides standardized error handling for gazestream components.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid
// (bad input from the stream, not retryable as-is) and Fatal (unrecoverable,
// stop processing).
//
// The connection manager relies on the classes directly:
//
//   - Transient: handshake timeouts and refusals, stream read/write failures.
//     A failed reconnect handshake counts toward the reconnect ceiling.
//   - Invalid: frame codec failures (truncated header or payload, unexpected
//     frame type, malformed JSON, oversized frame). The session is aborted and
//     a reconnect begins without counting an attempt.
//   - Fatal: ErrReconnectExhausted, configuration errors. Background activity ends.
//
// # Wrapping
//
// Wrap follows the "component.method: action failed: %w" pattern:
//
//	if err := conn.SetReadDeadline(deadline); err != nil {
//	    return errors.WrapTransient(err, "tcp", "readLoop", "set read deadline")
//	}
//
// Sentinels survive wrapping, so errors.Is works across the chain:
//
//	if errors.Is(err, errors.ErrTruncatedPayload) {
//	    // short read mid-frame
//	}
package errors
