// Package metric provides Prometheus-based metrics collection and the HTTP
// server that exposes them.
//
// The registry holds two kinds of metrics:
//
//  1. Core metrics (Metrics type): records received and delivered, errors by
//     class, per-component health, NATS connection state.
//  2. Component metrics registered through MetricsRegistrar, keyed by
//     "service.metric" so the same component cannot register twice.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry, monitor)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        logger.Error("metrics server failed", "error", err)
//	    }
//	}()
//	defer server.Stop()
//
// Components receive the registry through their Deps and treat a nil
// registry as "metrics disabled".
package metric
