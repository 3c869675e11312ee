package filter

import (
	"fmt"

	"github.com/c360/gazestream/errors"
)

// MinWindowSize is the smallest accepted window.
const MinWindowSize = 2

// LowPass averages the most recent windowSize-1 samples.
type LowPass struct {
	samples []float32
	cursor  int
	value   float32
}

// NewFilter creates a LowPass with windowSize-1 zeroed sample slots.
func NewFilter(windowSize int) (*LowPass, error) {
	if windowSize < MinWindowSize {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: window size %d, need at least %d", errors.ErrInvalidConfig, windowSize, MinWindowSize),
			"filter", "NewFilter", "validate window")
	}
	return &LowPass{samples: make([]float32, windowSize-1)}, nil
}

// FilterValue advances the cursor, stores v in the freed slot and returns the
// mean of the window.
func (f *LowPass) FilterValue(v float32) float32 {
	f.cursor++
	if f.cursor == len(f.samples) {
		f.cursor = 0
	}
	f.samples[f.cursor] = v

	var sum float32
	for _, s := range f.samples {
		sum += s
	}
	f.value = sum / float32(len(f.samples))
	return f.value
}

// Value returns the last output of FilterValue.
func (f *LowPass) Value() float32 {
	return f.value
}

// WindowSize returns the configured window size.
func (f *LowPass) WindowSize() int {
	return len(f.samples) + 1
}

// Reset zeroes the window.
func (f *LowPass) Reset() {
	for i := range f.samples {
		f.samples[i] = 0
	}
	f.cursor = 0
	f.value = 0
}
