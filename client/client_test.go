package client

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gazestream/errors"
	"github.com/c360/gazestream/health"
	"github.com/c360/gazestream/input/tcp"
	"github.com/c360/gazestream/message"
	"github.com/c360/gazestream/metric"
	"github.com/c360/gazestream/pkg/buffer"
	tu "github.com/c360/gazestream/testutil"
)

const waitTimeout = 5 * time.Second

func fastConnection() tcp.Config {
	return tcp.Config{
		HandshakeTimeout:     time.Second,
		IOTimeout:            2 * time.Second,
		RetryInterval:        10 * time.Millisecond,
		MaxReconnectAttempts: 3,
	}
}

func newTestClient(t *testing.T, deps Deps) *Client {
	t.Helper()
	if deps.Connection == (tcp.Config{}) {
		deps.Connection = fastConnection()
	}
	c, err := New(deps)
	require.NoError(t, err)
	t.Cleanup(c.Dispose)
	return c
}

func waitState(t *testing.T, c *Client, want tcp.State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want },
		waitTimeout, 5*time.Millisecond, "state %s", want)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		deps    Deps
		wantErr error
	}{
		{"default pull", Deps{}, nil},
		{"explicit pull", Deps{Delivery: DeliveryPull}, nil},
		{"push with callback", Deps{Delivery: DeliveryPush, OnRecord: func(message.Record) {}}, nil},
		{"push without callback", Deps{Delivery: DeliveryPush}, errors.ErrMissingConfig},
		{"unknown delivery", Deps{Delivery: "carrier-pigeon"}, errors.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.deps)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			require.NoError(t, err)
			c.Dispose()
		})
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := withDefaults(tcp.Config{IOTimeout: time.Second})
	d := tcp.DefaultConfig()

	assert.Equal(t, time.Second, cfg.IOTimeout)
	assert.Equal(t, d.HandshakeTimeout, cfg.HandshakeTimeout)
	assert.Equal(t, d.RetryInterval, cfg.RetryInterval)
	assert.Equal(t, d.MaxReconnectAttempts, cfg.MaxReconnectAttempts)
	assert.Equal(t, d.MaxPayload, cfg.MaxPayload)
}

func TestClient_PullDelivery(t *testing.T) {
	records := tu.SampleRecords(3)
	srv := tu.NewFrameServer(t, tu.SendRecords(records...))
	c := newTestClient(t, Deps{})

	assert.False(t, c.IsConnected())
	require.True(t, c.Connect(srv.Host(), srv.Port()))
	assert.True(t, c.IsConnected())

	for i, want := range records {
		got, err := c.Next(waitTimeout)
		require.NoError(t, err, "record %d", i)
		assert.Equal(t, want, got)
	}

	_, err := c.Next(20 * time.Millisecond)
	assert.ErrorIs(t, err, buffer.ErrTimedOut)
	assert.Equal(t, 0, c.Pending())
}

func TestClient_ConnectTwiceReturnsFalse(t *testing.T) {
	srv := tu.NewFrameServer(t, tu.Hold)
	c := newTestClient(t, Deps{})

	require.True(t, c.Connect(srv.Host(), srv.Port()))
	assert.False(t, c.Connect(srv.Host(), srv.Port()))
	assert.Equal(t, 1, srv.Accepted())
}

func TestClient_ConnectFailureThenRetry(t *testing.T) {
	srv := tu.NewFrameServer(t, tu.SendRecords(tu.SampleRecord(0)))
	dialer := tu.NewScriptedDialer(tu.FailRange(1, 1))
	c := newTestClient(t, Deps{Dialer: dialer})

	assert.False(t, c.Connect(srv.Host(), srv.Port()))
	assert.Equal(t, tcp.StateDisconnected, c.State())
	assert.False(t, c.IsConnected())

	require.True(t, c.Connect(srv.Host(), srv.Port()))
	assert.Equal(t, 2, dialer.Attempts())

	_, err := c.Next(waitTimeout)
	require.NoError(t, err)
}

func TestClient_ConnectAfterDispose(t *testing.T) {
	srv := tu.NewFrameServer(t, tu.Hold)
	c := newTestClient(t, Deps{})

	c.Dispose()
	c.Dispose()

	assert.False(t, c.Connect(srv.Host(), srv.Port()))
	assert.Equal(t, 0, srv.Accepted())
}

func TestClient_InvalidPort(t *testing.T) {
	c := newTestClient(t, Deps{})
	assert.False(t, c.Connect("127.0.0.1", 0))
	assert.Equal(t, tcp.StateDisconnected, c.State())
}

func TestClient_DisposeStopsStream(t *testing.T) {
	srv := tu.NewFrameServer(t, tu.StreamEvery(5*time.Millisecond))
	c := newTestClient(t, Deps{})

	require.True(t, c.Connect(srv.Host(), srv.Port()))
	_, err := c.Next(waitTimeout)
	require.NoError(t, err)

	c.Dispose()
	assert.False(t, c.IsConnected())
	assert.Equal(t, tcp.StateDisconnected, c.State())

	// Remaining records drain, then the closed queue reports ErrClosed.
	for {
		_, err = c.Next(waitTimeout)
		if err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, buffer.ErrClosed)
}

func TestClient_DisposeUnblocksNext(t *testing.T) {
	c := newTestClient(t, Deps{})

	errc := make(chan error, 1)
	go func() {
		_, err := c.Next(waitTimeout)
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	c.Dispose()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, buffer.ErrClosed)
	case <-time.After(waitTimeout):
		t.Fatal("Next did not return after Dispose")
	}
}

func TestClient_PushDelivery(t *testing.T) {
	records := tu.SampleRecords(4)
	srv := tu.NewFrameServer(t, tu.SendRecords(records...))

	var mu sync.Mutex
	var pushed []message.Record
	extra := &tu.RecordingSink{}

	c := newTestClient(t, Deps{
		Delivery: DeliveryPush,
		OnRecord: func(r message.Record) {
			mu.Lock()
			pushed = append(pushed, r)
			mu.Unlock()
		},
		Sinks: []Sink{extra},
	})

	require.True(t, c.Connect(srv.Host(), srv.Port()))
	assert.Equal(t, records, extra.WaitFor(t, 4, waitTimeout))

	mu.Lock()
	assert.Equal(t, records, pushed)
	mu.Unlock()

	_, err := c.Next(time.Millisecond)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.Equal(t, 0, c.Pending())
}

func TestClient_ReconnectsTransparently(t *testing.T) {
	first, second := tu.SampleRecord(1), tu.SampleRecord(2)
	srv := tu.NewFrameServer(t, tu.Sequence(tu.SendRecords(first), tu.SendRecords(second)))

	var mu sync.Mutex
	var states []tcp.State
	c := newTestClient(t, Deps{OnStateChange: func(_, to tcp.State) {
		mu.Lock()
		states = append(states, to)
		mu.Unlock()
	}})

	require.True(t, c.Connect(srv.Host(), srv.Port()))
	got, err := c.Next(waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	srv.DropConnections()

	got, err = c.Next(waitTimeout)
	require.NoError(t, err)
	assert.Equal(t, second, got)
	waitState(t, c, tcp.StateStreaming)
	assert.Equal(t, int64(1), c.Stats().Reconnects)

	mu.Lock()
	assert.Contains(t, states, tcp.StateReconnecting)
	mu.Unlock()
}

func TestClient_GivesUp(t *testing.T) {
	srv := tu.NewFrameServer(t, tu.Hold)
	dialer := tu.NewScriptedDialer(tu.FailFrom(2))
	c := newTestClient(t, Deps{Dialer: dialer})

	require.True(t, c.Connect(srv.Host(), srv.Port()))
	srv.DropConnections()

	waitState(t, c, tcp.StateGivenUp)
	assert.Equal(t, 1+4, dialer.Attempts())
	assert.ErrorIs(t, c.Err(), errors.ErrReconnectExhausted)

	h := c.Health()
	assert.True(t, h.IsUnhealthy())
	assert.Equal(t, "source", h.Component)

	assert.False(t, c.Connect(srv.Host(), srv.Port()))
	assert.Equal(t, 1+4, dialer.Attempts())
}

func TestHealthLevel(t *testing.T) {
	tests := []struct {
		state tcp.State
		want  health.Level
	}{
		{tcp.StateDisconnected, health.LevelUnhealthy},
		{tcp.StateConnecting, health.LevelDegraded},
		{tcp.StateStreaming, health.LevelHealthy},
		{tcp.StateReconnecting, health.LevelDegraded},
		{tcp.StateGivenUp, health.LevelUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, HealthLevel(tt.state))
		})
	}
}

func TestClient_Health(t *testing.T) {
	srv := tu.NewFrameServer(t, tu.SendRecords(tu.SampleRecords(2)...))
	c := newTestClient(t, Deps{})

	assert.True(t, c.Health().IsUnhealthy())

	require.True(t, c.Connect(srv.Host(), srv.Port()))
	_, err := c.Next(waitTimeout)
	require.NoError(t, err)
	_, err = c.Next(waitTimeout)
	require.NoError(t, err)

	h := c.Health()
	assert.True(t, h.IsHealthy())
	require.NotNil(t, h.Metrics)
	assert.Equal(t, int64(2), h.Metrics.RecordsProcessed)

	monitor := health.NewMonitor()
	monitor.Register("source", c)
	assert.True(t, monitor.AggregateHealth("gazestream").IsHealthy())
}

func TestClient_Metrics(t *testing.T) {
	srv := tu.NewFrameServer(t, tu.SendRecords(tu.SampleRecord(0)))
	registry := metric.NewMetricsRegistry()
	c := newTestClient(t, Deps{MetricsRegistry: registry})

	require.True(t, c.Connect(srv.Host(), srv.Port()))
	_, err := c.Next(waitTimeout)
	require.NoError(t, err)

	gauge := registry.CoreMetrics().HealthStatus.WithLabelValues("source")
	assert.Equal(t, float64(health.LevelHealthy), testutil.ToFloat64(gauge))

	c.Dispose()
	assert.Equal(t, float64(health.LevelUnhealthy), testutil.ToFloat64(gauge))
}

func TestClient_MetricsSwitchAddressAndBack(t *testing.T) {
	srv := tu.NewFrameServer(t, tu.SendRecords(tu.SampleRecord(0)))
	dialer := tu.NewScriptedDialer(tu.FailRange(1, 2))
	registry := metric.NewMetricsRegistry()
	c := newTestClient(t, Deps{Dialer: dialer, MetricsRegistry: registry})

	assert.False(t, c.Connect(srv.Host(), srv.Port()))
	assert.False(t, c.Connect(srv.Host(), srv.Port()+1))
	assert.Equal(t, 2, dialer.Attempts())

	require.True(t, c.Connect(srv.Host(), srv.Port()), "returning to an earlier address dials again")
	assert.Equal(t, 3, dialer.Attempts())

	_, err := c.Next(waitTimeout)
	require.NoError(t, err)
}

func TestClient_NextContextPushMode(t *testing.T) {
	c := newTestClient(t, Deps{Delivery: DeliveryPush, OnRecord: func(message.Record) {}})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	_, err := c.NextContext(ctx)
	require.Error(t, err)
	assert.False(t, stderrors.Is(err, buffer.ErrClosed))
}
