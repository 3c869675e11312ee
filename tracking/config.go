package tracking

import (
	"fmt"
	"time"

	"github.com/c360/gazestream/errors"
	"github.com/c360/gazestream/filter"
)

// Config holds tracker settings.
type Config struct {
	// TickInterval is the host update period.
	TickInterval time.Duration `json:"tick_interval"`
	// ReadTimeout bounds the wait for a record on each tick.
	ReadTimeout time.Duration `json:"read_timeout"`
	// FilterWindow is the low-pass window size for openness and pupil.
	FilterWindow int `json:"filter_window"`
	// MinPupilThresholdMm rejects pupil readings at or below it when
	// tracking the minimum.
	MinPupilThresholdMm float32 `json:"min_pupil_threshold_mm"`
	// FlipGazeX mirrors the horizontal gaze component for hosts whose
	// x axis points the other way.
	FlipGazeX bool `json:"flip_gaze_x"`
}

// DefaultConfig returns a 10ms tick with a 100ms read wait and window 5.
func DefaultConfig() Config {
	return Config{
		TickInterval:        10 * time.Millisecond,
		ReadTimeout:         100 * time.Millisecond,
		FilterWindow:        5,
		MinPupilThresholdMm: filter.DefaultPupilThresholdMm,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.TickInterval <= 0 || c.ReadTimeout <= 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: tick interval and read timeout must be positive", errors.ErrInvalidConfig),
			"tracking", "Validate", "timing validation")
	}
	if c.FilterWindow < 2 {
		return errors.WrapInvalid(fmt.Errorf("%w: filter window %d below 2", errors.ErrInvalidConfig, c.FilterWindow),
			"tracking", "Validate", "filter validation")
	}
	if c.MinPupilThresholdMm < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: negative pupil threshold", errors.ErrInvalidConfig),
			"tracking", "Validate", "threshold validation")
	}
	return nil
}
