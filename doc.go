// Package gazestream is a resilient client for eye-tracking sample streams
// served over TCP.
//
// A stream source sends length-prefixed JSON frames, one per sample, after a
// one-byte subscribe request. gazestream keeps that connection alive across
// network failures, decodes each frame into a message.Record, and hands the
// records to the host either through a pull queue or a push callback.
//
// # Layout
//
//   - frame: frame header and payload codec
//   - input/tcp: connection manager (handshake, read loop, reconnect policy)
//   - client: the host-facing facade over the manager and its sinks
//   - filter: LowPass smoothing and the pupil MinimumTracker
//   - tracking: per-tick consumer folding records into smoothed eye state
//   - output/nats, output/websocket: optional republishing of records and state
//   - config, metric, health, errors: ambient configuration, Prometheus
//     metrics, health reporting and the error taxonomy
//   - cmd/gazestream: the command wiring all of the above
//
// # Connection lifecycle
//
//	Disconnected -> Connecting -> Streaming <-> Reconnecting -> GivenUp
//
// A failed handshake while reconnecting counts one attempt; a successful
// one resets the count. GivenUp is terminal.
package gazestream
