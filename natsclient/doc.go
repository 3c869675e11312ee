// Package natsclient manages the NATS connection used by the gazestream
// outputs.
//
// Client wraps a *nats.Conn with a connection status, a circuit breaker that
// backs off after repeated connect failures, periodic health checks, and
// Prometheus gauges for connection state and reconnects.
//
//	c, err := natsclient.NewClient("nats://localhost:4222",
//		natsclient.WithName("gazestream"),
//		natsclient.WithLogger(logger),
//		natsclient.WithMetrics(registry),
//	)
//	if err := c.Connect(ctx); err != nil {
//		return err
//	}
//	defer c.Close(context.Background())
//
//	err = c.Publish(ctx, "gazestream.records", payload)
//
// After CircuitThreshold consecutive connect failures the circuit opens and
// Connect returns ErrCircuitOpen until the backoff elapses; the backoff
// doubles on each further round, capped at the configured maximum.
//
// NewTestClient starts a NATS server in a container through testcontainers
// for integration tests.
package natsclient
