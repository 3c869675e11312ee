package health

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "healthy", LevelHealthy.String())
	assert.Equal(t, "degraded", LevelDegraded.String())
	assert.Equal(t, "unhealthy", LevelUnhealthy.String())
	assert.Equal(t, "unhealthy", Level(42).String())
}

func TestStatus_Level(t *testing.T) {
	tests := []struct {
		status string
		want   Level
	}{
		{"healthy", LevelHealthy},
		{"degraded", LevelDegraded},
		{"unhealthy", LevelUnhealthy},
		{"", LevelUnhealthy},
		{"bogus", LevelUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, Status{Status: tt.status}.Level())
		})
	}
}

func TestStatus_Predicates(t *testing.T) {
	h := NewHealthy("source", "streaming")
	d := NewDegraded("source", "reconnecting")
	u := NewUnhealthy("source", "given up")

	assert.True(t, h.IsHealthy())
	assert.True(t, h.Healthy)
	assert.True(t, d.IsDegraded())
	assert.False(t, d.Healthy)
	assert.True(t, u.IsUnhealthy())
	assert.False(t, u.Healthy)
	assert.False(t, h.Timestamp.IsZero())
}

func TestStatus_WithMetrics(t *testing.T) {
	m := &Metrics{RecordsProcessed: 10, Reconnects: 2}
	s := NewHealthy("source", "ok").WithMetrics(m)
	assert.Same(t, m, s.Metrics)
}

func TestWithSubStatus_SliceIsolation(t *testing.T) {
	original := Status{
		Component:   "parent",
		Status:      "healthy",
		SubStatuses: []Status{{Component: "child1", Status: "healthy"}},
	}

	modified := original.WithSubStatus(Status{Component: "child2", Status: "unhealthy"})

	assert.Len(t, original.SubStatuses, 1)
	assert.Len(t, modified.SubStatuses, 2)

	original.SubStatuses[0].Status = "degraded"
	assert.Equal(t, "healthy", modified.SubStatuses[0].Status)
}

func TestFromError(t *testing.T) {
	s := FromError("source", LevelUnhealthy,
		fmt.Errorf("dial tcp 192.168.1.20:5555: connection refused"), "unused")
	assert.True(t, s.IsUnhealthy())
	assert.Equal(t, "dial tcp [IP][PORT]: connection refused", s.Message)

	s = FromError("source", LevelDegraded, nil, "reconnecting")
	assert.True(t, s.IsDegraded())
	assert.Equal(t, "reconnecting", s.Message)
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"plain", "reconnect attempts exhausted", "reconnect attempts exhausted"},
		{"nats url", "connect to nats://user:pw@broker:4222 failed", "connect to [URL] failed"},
		{"websocket url", "upgrade ws://viewer/ws refused", "upgrade [URL] refused"},
		{"unix path", "open /etc/gazestream/config.yaml: denied", "open [PATH]: denied"},
		{"ip and port", "dial 10.0.0.5:5555 timeout", "dial [IP][PORT] timeout"},
		{"credential", "auth failed token=abc123", "auth failed [REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeErrorMessage(tt.input))
		})
	}
}
