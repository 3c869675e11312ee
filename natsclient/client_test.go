package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gazestream/errors"
	"github.com/c360/gazestream/health"
	"github.com/c360/gazestream/metric"
)

func TestNewClient(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Equal(t, time.Second, client.Backoff())
}

func TestNewClient_Options(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithName("gazestream"),
		WithMaxReconnects(3),
		WithReconnectWait(time.Second),
		WithCircuitBreakerThreshold(0),
		WithMaxBackoff(time.Millisecond),
		WithCredentials("user", "pass"),
		WithHealthInterval(0),
	)
	require.NoError(t, err)

	assert.Equal(t, "gazestream", client.clientName)
	assert.Equal(t, 3, client.maxReconnects)
	assert.Equal(t, int32(5), client.circuitThreshold, "threshold below 1 falls back")
	assert.Equal(t, time.Minute, client.maxBackoff, "backoff below 1s falls back")
	assert.Len(t, client.buildConnectionOptions(), 10)
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	client, err := NewClient("nats://invalid:4222")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		client.recordFailure()
	}
	assert.NotEqual(t, StatusCircuitOpen, client.Status())

	client.recordFailure()
	assert.Equal(t, StatusCircuitOpen, client.Status())
	assert.Equal(t, int32(5), client.Failures())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	require.Equal(t, StatusCircuitOpen, client.Status())

	client.resetCircuit()
	assert.Equal(t, int32(0), client.Failures())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.Equal(t, time.Second, client.Backoff())
}

func TestCircuitBreaker_ExponentialBackoff(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 2*time.Second, client.Backoff())

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	assert.Equal(t, 4*time.Second, client.Backoff())

	for i := 0; i < 100; i++ {
		client.recordFailure()
	}
	assert.Equal(t, time.Minute, client.Backoff())
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}
	require.Equal(t, StatusCircuitOpen, client.Status())

	client.testCircuit()
	assert.Equal(t, StatusDisconnected, client.Status())
}

func TestConnect_CircuitOpenFailsFast(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		client.recordFailure()
	}

	err = client.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCircuitOpen)
	assert.True(t, errors.IsTransient(err))
}

func TestConnect_Unreachable(t *testing.T) {
	client, err := NewClient("nats://127.0.0.1:1",
		WithTimeout(200*time.Millisecond),
		WithHealthInterval(0),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = client.Connect(ctx)
	require.Error(t, err)
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.Equal(t, int32(1), client.Failures())
}

func TestConnect_AfterClose(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	require.NoError(t, client.Close(context.Background()))
	require.NoError(t, client.Close(context.Background()), "close is idempotent")

	err = client.Connect(context.Background())
	assert.ErrorIs(t, err, errors.ErrShuttingDown)
}

func TestPublish_NotConnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	assert.ErrorIs(t, client.Publish(context.Background(), "a.b", []byte("x")), ErrNotConnected)
	assert.ErrorIs(t, client.Subscribe(context.Background(), "a.b", func(context.Context, []byte) {}), ErrNotConnected)
	_, err = client.RTT()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestHealth(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	tests := []struct {
		status ConnectionStatus
		level  health.Level
	}{
		{StatusConnected, health.LevelHealthy},
		{StatusConnecting, health.LevelDegraded},
		{StatusReconnecting, health.LevelDegraded},
		{StatusDisconnected, health.LevelUnhealthy},
		{StatusCircuitOpen, health.LevelUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			client.setStatus(tt.status)
			h := client.Health()
			assert.Equal(t, "nats", h.Component)
			assert.Equal(t, tt.level, h.Level())
		})
	}
}

func TestMetrics_ConnectionGauge(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	client, err := NewClient("nats://localhost:4222", WithMetrics(registry))
	require.NoError(t, err)

	core := registry.CoreMetrics()
	client.setStatus(StatusConnected)
	assert.Equal(t, 1.0, testutil.ToFloat64(core.NATSConnected))

	client.setStatus(StatusReconnecting)
	assert.Equal(t, 0.0, testutil.ToFloat64(core.NATSConnected))
}

func TestConnectionStatus_String(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "circuit_open", StatusCircuitOpen.String())
	assert.Equal(t, "unknown", ConnectionStatus(42).String())
}
