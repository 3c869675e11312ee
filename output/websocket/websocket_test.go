package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gazestream/errors"
	"github.com/c360/gazestream/health"
	"github.com/c360/gazestream/message"
	"github.com/c360/gazestream/metric"
	"github.com/c360/gazestream/tracking"
)

func newTestOutput(t *testing.T, registry *metric.MetricsRegistry) (*Output, string) {
	t.Helper()
	out, err := NewOutput(Deps{
		Config:          Config{Path: "/ws", WriteTimeout: time.Second, MaxStateRate: -1},
		MetricsRegistry: registry,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(out.Handler())
	t.Cleanup(func() {
		out.closeAllClients("test_done")
		srv.Close()
	})
	return out, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) MessageEnvelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env MessageEnvelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"free port", Config{Port: 0, Path: "/ws"}, false},
		{"negative port", Config{Port: -1, Path: "/ws"}, true},
		{"port too large", Config{Port: 70000, Path: "/ws"}, true},
		{"relative path", Config{Port: 8081, Path: "ws"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPublishState_ReachesAllClients(t *testing.T) {
	out, url := newTestOutput(t, nil)
	a := dial(t, url)
	b := dial(t, url)
	require.Eventually(t, func() bool { return out.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	state := tracking.State{
		Left:               tracking.EyeState{Gaze: message.Vector2{X: 0.25, Y: -0.5}, Openness: 0.8, PupilDiameterMm: 3.5},
		Right:              tracking.EyeState{Openness: 1},
		MinPupilDiameterMm: 3.1,
		MinPupilValid:      true,
		Records:            7,
	}
	out.PublishState(state)

	for _, conn := range []*websocket.Conn{a, b} {
		env := readEnvelope(t, conn)
		assert.Equal(t, TypeState, env.Type)
		assert.NotEmpty(t, env.ID)

		var got tracking.State
		require.NoError(t, json.Unmarshal(env.Payload, &got))
		assert.Equal(t, state.Left, got.Left)
		assert.Equal(t, int64(7), got.Records)
		assert.True(t, got.MinPupilValid)
	}
}

func TestDeliver_SendsRecordEnvelope(t *testing.T) {
	out, url := newTestOutput(t, nil)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return out.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	out.Deliver(message.Record{Left: message.Eye{PupilDiameterMm: 4, PupilDiameterValid: true}})

	env := readEnvelope(t, conn)
	assert.Equal(t, TypeRecord, env.Type)
	assert.Contains(t, string(env.Payload), "4")
}

func TestBroadcast_NoClients(t *testing.T) {
	out, _ := newTestOutput(t, nil)
	assert.NoError(t, out.Broadcast(TypeState, tracking.State{}))
}

func TestBroadcast_UnmarshalablePayload(t *testing.T) {
	out, url := newTestOutput(t, nil)
	dial(t, url)
	require.Eventually(t, func() bool { return out.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	err := out.Broadcast(TypeState, make(chan int))
	assert.True(t, errors.IsInvalid(err))
}

func TestClientDisconnect_Removed(t *testing.T) {
	out, url := newTestOutput(t, nil)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return out.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return out.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStartStop(t *testing.T) {
	out, err := NewOutput(Deps{Config: Config{Host: "127.0.0.1", Port: 0, Path: "/ws"}})
	require.NoError(t, err)
	assert.Equal(t, health.LevelUnhealthy, out.Health().Level())

	require.NoError(t, out.Start(context.Background()))
	assert.Error(t, out.Start(context.Background()), "second start is rejected")
	assert.Equal(t, health.LevelHealthy, out.Health().Level())

	conn := dial(t, "ws://"+out.Addr()+"/ws")
	require.Eventually(t, func() bool { return out.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, out.Stop(2*time.Second))
	assert.Equal(t, 0, out.ClientCount())
	assert.Empty(t, out.Addr())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "client sees the close")

	require.NoError(t, out.Stop(time.Second), "stop is idempotent")
}

func TestStart_CancelledContext(t *testing.T) {
	out, err := NewOutput(Deps{Config: Config{Port: 0, Path: "/ws"}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, out.Start(ctx))
}

func TestMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	out, url := newTestOutput(t, registry)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return out.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	out.PublishState(tracking.State{})
	readEnvelope(t, conn)

	assert.Equal(t, 1.0, testutil.ToFloat64(out.metrics.clientsConnected))
	assert.Equal(t, 1.0, testutil.ToFloat64(out.metrics.connectionTotal))
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(out.metrics.messagesSent.WithLabelValues(TypeState)) == 1.0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Greater(t, testutil.ToFloat64(out.metrics.bytesSent), 0.0)

	_, err := NewOutput(Deps{Config: Config{Path: "/ws"}, MetricsRegistry: registry})
	assert.Error(t, err, "second output on the same registry collides")
}

func TestPublishState_Throttled(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	out, err := NewOutput(Deps{
		Config:          Config{Path: "/ws", MaxStateRate: 1},
		MetricsRegistry: registry,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(out.Handler())
	defer srv.Close()
	defer out.closeAllClients("test_done")

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws")
	require.Eventually(t, func() bool { return out.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	for i := 0; i < 5; i++ {
		out.PublishState(tracking.State{Records: int64(i)})
	}

	env := readEnvelope(t, conn)
	var got tracking.State
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, int64(0), got.Records, "first snapshot passes the burst")
	assert.Equal(t, 4.0, testutil.ToFloat64(out.metrics.throttled))
}

func TestBroadcast_StalledClientDoesNotBlock(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	out, err := NewOutput(Deps{
		Config:          Config{Path: "/ws", WriteTimeout: time.Second, MaxStateRate: -1, SendQueue: 4},
		MetricsRegistry: registry,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(out.Handler())
	t.Cleanup(func() {
		out.closeAllClients("test_done")
		srv.Close()
	})

	// The viewer never reads, so the server's socket buffer fills up.
	dial(t, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws")
	require.Eventually(t, func() bool { return out.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	payload := strings.Repeat("x", 256<<10)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, out.Broadcast(TypeRecord, payload))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond, "broadcast returns without waiting for writes")
	assert.Greater(t, testutil.ToFloat64(out.metrics.messagesDropped.WithLabelValues(TypeRecord)), 0.0)

	// The blocked write hits its deadline and the viewer is dropped.
	assert.Eventually(t, func() bool { return out.ClientCount() == 0 }, 5*time.Second, 20*time.Millisecond)
}
