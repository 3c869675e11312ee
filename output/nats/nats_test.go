package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gazestream/errors"
	"github.com/c360/gazestream/health"
	"github.com/c360/gazestream/message"
	"github.com/c360/gazestream/metric"
	gstestutil "github.com/c360/gazestream/testutil"
	"github.com/c360/gazestream/tracking"
)

type failingPublisher struct {
	fail bool
}

func (p *failingPublisher) Publish(context.Context, string, []byte) error {
	if p.fail {
		return fmt.Errorf("connection refused")
	}
	return nil
}

func TestNewOutput_Validation(t *testing.T) {
	_, err := NewOutput(Deps{Config: Config{Subject: "a"}})
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	_, err = NewOutput(Deps{Publisher: gstestutil.NewMockNATSClient()})
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestDeliver_PublishesRecordJSON(t *testing.T) {
	mock := gstestutil.NewMockNATSClient()
	out, err := NewOutput(Deps{Config: Config{Subject: "gazestream.records"}, Publisher: mock})
	require.NoError(t, err)

	rec := gstestutil.SampleRecord(3)
	out.Deliver(rec)
	out.Deliver(gstestutil.SampleRecord(4))

	msgs := mock.GetMessages("gazestream.records")
	require.Len(t, msgs, 2)

	var got message.Record
	require.NoError(t, json.Unmarshal(msgs[0], &got))
	assert.Equal(t, rec, got)
	assert.Equal(t, int64(2), out.Published())
}

func TestPublishState(t *testing.T) {
	mock := gstestutil.NewMockNATSClient()
	out, err := NewOutput(Deps{
		Config:    Config{Subject: "gazestream.records", StateSubject: "gazestream.state"},
		Publisher: mock,
	})
	require.NoError(t, err)

	out.PublishState(tracking.State{MinPupilDiameterMm: 2.5, MinPupilValid: true, Records: 9})

	msgs := mock.GetMessages("gazestream.state")
	require.Len(t, msgs, 1)

	var got tracking.State
	require.NoError(t, json.Unmarshal(msgs[0], &got))
	assert.Equal(t, float32(2.5), got.MinPupilDiameterMm)
	assert.Equal(t, int64(9), got.Records)
}

func TestPublishState_DisabledWithoutSubject(t *testing.T) {
	mock := gstestutil.NewMockNATSClient()
	out, err := NewOutput(Deps{Config: Config{Subject: "gazestream.records"}, Publisher: mock})
	require.NoError(t, err)

	out.PublishState(tracking.State{})
	assert.Equal(t, int64(0), out.Published())
}

func TestPublishFailure_DegradesHealthUntilRecovery(t *testing.T) {
	pub := &failingPublisher{fail: true}
	registry := metric.NewMetricsRegistry()
	out, err := NewOutput(Deps{
		Config:          Config{Subject: "gazestream.records"},
		Publisher:       pub,
		MetricsRegistry: registry,
	})
	require.NoError(t, err)

	out.Deliver(gstestutil.SampleRecord(0))
	out.Deliver(gstestutil.SampleRecord(1))
	assert.Equal(t, int64(2), out.Failures())

	h := out.Health()
	assert.Equal(t, health.LevelDegraded, h.Level())
	assert.Equal(t, int64(2), h.Metrics.ErrorCount)

	core := registry.CoreMetrics()
	assert.Equal(t, 2.0, testutil.ToFloat64(core.ErrorsTotal.WithLabelValues("nats_output", "transient")))

	pub.fail = false
	out.Deliver(gstestutil.SampleRecord(2))
	assert.Equal(t, health.LevelHealthy, out.Health().Level())
	assert.Equal(t, 1.0, testutil.ToFloat64(core.RecordsDelivered.WithLabelValues("nats")))
}
