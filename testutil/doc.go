// Package testutil provides shared test doubles: an in-process frame server,
// a scripted dialer that counts attempts, a recording sink, record fixtures,
// and an in-memory NATS publisher.
package testutil
