// Package tracking turns the raw record stream into the per-eye state a
// face-tracking host consumes.
//
// A Tracker runs on its own goroutine at a fixed tick. Each tick performs one
// bounded-wait read from its Source and, when a record arrives, folds it in:
//
//   - gaze direction is kept from the last valid sample of each eye
//   - openness falls back to 1 (fully open) when invalid, then passes through
//     a per-eye low-pass filter
//   - pupil diameter is filtered per eye and only updated when valid
//   - the minimum mean pupil diameter (filter.MinimumTracker) is reported
//     once any pupil sample in the current record is valid
//
// The accumulated minimum survives reconnects; only Reset clears it.
package tracking
