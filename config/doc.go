// Package config loads gazestream configuration.
//
// Configuration is built in layers:
//
//  1. built-in defaults (DefaultConfig)
//  2. each file added with AddLayer, JSON or YAML by extension, deep-merged
//     as maps so a layer only overrides the keys it names
//  3. environment overrides with the GAZESTREAM_ prefix
//  4. structural validation against the embedded JSON Schema
//  5. Config.Validate for cross-field rules
//
// Durations may be written as strings ("3s", "100ms") or integer
// nanoseconds.
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/site.json")
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//
// Recognised environment variables:
//
//	GAZESTREAM_SOURCE_HOST     source.host
//	GAZESTREAM_SOURCE_PORT     source.port
//	GAZESTREAM_NATS_URLS       nats.urls (comma separated), also enables nats
//	GAZESTREAM_NATS_SUBJECT    nats.subject
//	GAZESTREAM_METRICS_PORT    metrics.port
//	GAZESTREAM_FILTER_WINDOW   consumer.filter_window
//
// Config files must be regular files no larger than 10MB; relative paths may
// not resolve outside the working directory.
package config
