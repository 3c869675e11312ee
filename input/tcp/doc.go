// Package tcp provides the connection manager for the eye-tracking stream.
//
// A Manager owns one TCP connection to the source and drives it through a
// small state machine:
//
//	Disconnected -> Connecting -> Streaming <-> Reconnecting -> GivenUp
//
// Connect performs one bounded handshake and, on success, starts a
// background loop that subscribes with the request byte and decodes frames
// until something fails. Any stream or codec failure closes the socket and
// enters Reconnecting. Reconnect handshakes are retried at a fixed interval;
// only failed handshakes count toward the ceiling, and a successful one
// resets the count. Crossing the ceiling moves the manager to GivenUp, which
// is terminal.
//
// Decoded records are handed to a Sink on the network goroutine. Sinks must
// not block.
//
// Cancellation is cooperative: cancelling the Connect context or calling
// Close ends the loop, closes the socket, and leaves the manager Disconnected.
package tcp
