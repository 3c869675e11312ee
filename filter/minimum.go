package filter

import "github.com/c360/gazestream/message"

// DefaultPupilThresholdMm rejects readings at or below one millimetre, which
// the tracker reports while the headset is off.
const DefaultPupilThresholdMm float32 = 1.0

// MinimumTracker accumulates the smallest mean pupil diameter observed across
// both eyes. It only moves down and survives reconnects; the owner decides
// when to Reset it.
type MinimumTracker struct {
	threshold float32
	min       float32
	seen      bool
}

// NewMinimumTracker creates a tracker ignoring readings <= thresholdMm.
func NewMinimumTracker(thresholdMm float32) *MinimumTracker {
	return &MinimumTracker{threshold: thresholdMm}
}

// Observe folds r into the running minimum. Both eyes must report a valid
// pupil diameter above the threshold. Returns true if the minimum changed.
func (m *MinimumTracker) Observe(r message.Record) bool {
	l, rt := r.Left, r.Right
	if !l.PupilDiameterValid || !rt.PupilDiameterValid {
		return false
	}
	if l.PupilDiameterMm <= m.threshold || rt.PupilDiameterMm <= m.threshold {
		return false
	}

	mean := (l.PupilDiameterMm + rt.PupilDiameterMm) / 2
	if m.seen && mean >= m.min {
		return false
	}
	m.min = mean
	m.seen = true
	return true
}

// Value returns the running minimum and whether any reading was accepted.
func (m *MinimumTracker) Value() (float32, bool) {
	return m.min, m.seen
}

// Reset forgets the accumulated minimum.
func (m *MinimumTracker) Reset() {
	m.min = 0
	m.seen = false
}
