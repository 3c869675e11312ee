// Package health reports the health of the stream client and its outputs.
//
// A Status is one of three levels:
//   - healthy: streaming records, or an output accepting them
//   - degraded: connecting or reconnecting; records may resume on their own
//   - unhealthy: disconnected or given up; no records will arrive without operator action
//
// Components either push their status into a Monitor with Update, or register
// a Checker that the Monitor polls whenever it aggregates:
//
//	monitor := health.NewMonitor()
//	monitor.Register("source", client)       // client.Health() health.Status
//	monitor.UpdateHealthy("nats", "connected")
//
//	system := monitor.AggregateHealth("gazestream")
//
// Monitor.Handler serves the aggregate as JSON and answers 503 when the
// aggregate is unhealthy, so it can back a load balancer or container probe.
//
// Error text placed in a status through FromError is sanitized: URLs, paths,
// IP addresses, ports and credential-looking pairs are masked.
package health
