package tracking

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/gazestream/errors"
	"github.com/c360/gazestream/filter"
	"github.com/c360/gazestream/message"
	"github.com/c360/gazestream/metric"
	"github.com/c360/gazestream/pkg/buffer"
)

// Source yields records with a bounded wait. *client.Client and
// *client.QueueSink implement it.
type Source interface {
	Next(timeout time.Duration) (message.Record, error)
}

// EyeState is the smoothed output for one eye.
type EyeState struct {
	Gaze            message.Vector2 `json:"gaze"`
	Openness        float32         `json:"openness"`
	PupilDiameterMm float32         `json:"pupil_diameter_mm"`
}

// State is the tracker output after the latest record.
type State struct {
	Left  EyeState `json:"left"`
	Right EyeState `json:"right"`

	// MinPupilDiameterMm is valid once MinPupilValid is set.
	MinPupilDiameterMm float32 `json:"min_pupil_diameter_mm"`
	MinPupilValid      bool    `json:"min_pupil_valid"`

	Records   int64     `json:"records"`
	UpdatedAt time.Time `json:"updated_at"`
}

type eyeFilters struct {
	openness *filter.LowPass
	pupil    *filter.LowPass
}

func newEyeFilters(window int) (eyeFilters, error) {
	openness, err := filter.NewFilter(window)
	if err != nil {
		return eyeFilters{}, err
	}
	pupil, err := filter.NewFilter(window)
	if err != nil {
		return eyeFilters{}, err
	}
	return eyeFilters{openness: openness, pupil: pupil}, nil
}

// Deps holds runtime dependencies for a Tracker.
type Deps struct {
	Config          Config
	Source          Source
	MetricsRegistry *metric.MetricsRegistry // nil disables metrics
	Logger          *slog.Logger

	// OnUpdate receives the state after every applied record, on the
	// tracker goroutine.
	OnUpdate func(State)
}

// Tracker owns the per-eye filters and the pupil minimum.
type Tracker struct {
	cfg      Config
	source   Source
	logger   *slog.Logger
	metrics  *Metrics
	onUpdate func(State)

	mu      sync.RWMutex
	left    eyeFilters
	right   eyeFilters
	minimum *filter.MinimumTracker
	state   State
}

// NewTracker creates a tracker. Source may be nil when only Apply is used.
func NewTracker(deps Deps) (*Tracker, error) {
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "tracker")
	}

	left, err := newEyeFilters(deps.Config.FilterWindow)
	if err != nil {
		return nil, errors.Wrap(err, "tracking", "NewTracker", "filter creation")
	}
	right, err := newEyeFilters(deps.Config.FilterWindow)
	if err != nil {
		return nil, errors.Wrap(err, "tracking", "NewTracker", "filter creation")
	}

	metrics, err := newMetrics(deps.MetricsRegistry)
	if err != nil {
		return nil, errors.WrapTransient(err, "tracking", "NewTracker", "metrics registration")
	}

	return &Tracker{
		cfg:      deps.Config,
		source:   deps.Source,
		logger:   logger,
		metrics:  metrics,
		onUpdate: deps.OnUpdate,
		left:     left,
		right:    right,
		minimum:  filter.NewMinimumTracker(deps.Config.MinPupilThresholdMm),
		state:    State{Left: EyeState{Openness: 1}, Right: EyeState{Openness: 1}},
	}, nil
}

// Apply folds r into the tracker state and returns the new state.
func (t *Tracker) Apply(r message.Record) State {
	t.mu.Lock()
	t.applyEye(&t.state.Left, r.Left, t.left)
	t.applyEye(&t.state.Right, r.Right, t.right)

	t.minimum.Observe(r)
	if r.Left.PupilDiameterValid || r.Right.PupilDiameterValid {
		if v, ok := t.minimum.Value(); ok {
			t.state.MinPupilDiameterMm = v
			t.state.MinPupilValid = true
		}
	}

	t.state.Records++
	t.state.UpdatedAt = time.Now()
	state := t.state
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.recordApplied(state)
	}
	if t.onUpdate != nil {
		t.onUpdate(state)
	}
	return state
}

func (t *Tracker) applyEye(out *EyeState, in message.Eye, f eyeFilters) {
	if in.GazeDirectionValid {
		g := in.GazeDirection
		if t.cfg.FlipGazeX {
			g.X = -g.X
		}
		out.Gaze = g
	}

	openness := float32(1)
	if in.OpennessValid {
		openness = in.Openness
	}
	out.Openness = f.openness.FilterValue(openness)

	if in.PupilDiameterValid {
		out.PupilDiameterMm = f.pupil.FilterValue(in.PupilDiameterMm)
	}
}

// State returns the latest state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Reset clears the filters, the pupil minimum and the state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range []eyeFilters{t.left, t.right} {
		f.openness.Reset()
		f.pupil.Reset()
	}
	t.minimum.Reset()
	t.state = State{Left: EyeState{Openness: 1}, Right: EyeState{Openness: 1}}
}

// Tick waits up to ReadTimeout for one record and applies it. It reports
// false when no record arrived in time.
func (t *Tracker) Tick() (State, bool, error) {
	if t.source == nil {
		return State{}, false, errors.WrapInvalid(
			fmt.Errorf("%w: no source", errors.ErrMissingConfig), "tracking", "Tick", "read record")
	}
	if t.metrics != nil {
		t.metrics.ticks.Inc()
	}

	r, err := t.source.Next(t.cfg.ReadTimeout)
	if err != nil {
		if stderrors.Is(err, buffer.ErrTimedOut) {
			if t.metrics != nil {
				t.metrics.idleTicks.Inc()
			}
			return t.State(), false, nil
		}
		return State{}, false, err
	}
	return t.Apply(r), true, nil
}

// Run ticks every TickInterval until ctx is done or the source closes.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.TickInterval)
	defer ticker.Stop()

	t.logger.Info("Tracker started", "tick", t.cfg.TickInterval, "read_timeout", t.cfg.ReadTimeout)
	defer t.logger.Info("Tracker stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, _, err := t.Tick(); err != nil {
			if stderrors.Is(err, buffer.ErrClosed) {
				return nil
			}
			return errors.Wrap(err, "tracking", "Run", "tick")
		}
	}
}
