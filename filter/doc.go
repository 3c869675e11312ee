// Package filter provides the smoothing and accumulation primitives the
// consumer applies to decoded records.
//
// LowPass is a fixed-window moving average over the last windowSize-1
// samples. The window starts zero-filled, so outputs ramp up from zero
// during warm-up. Each scalar channel needs its own instance; LowPass is not
// safe for concurrent use and performs no allocation after construction.
//
//	f, err := filter.NewFilter(4)
//	f.FilterValue(10) // 3.33
//	f.FilterValue(10) // 6.67
//	f.FilterValue(10) // 10
//
// MinimumTracker keeps the smallest plausible pupil diameter seen so far.
package filter
