package spectrum

import (
	"gonum.org/v1/gonum/stat"
)

// RateStats keeps every per-tick count rate since the last Reset. Mean and
// StdDev are recomputed over the whole history on each call.
type RateStats struct {
	values []float64
}

// Push records one tick's rate.
func (r *RateStats) Push(cps float64) {
	r.values = append(r.values, cps)
}

// Len returns the number of recorded ticks.
func (r *RateStats) Len() int {
	return len(r.values)
}

// Instant returns the most recent rate, or 0 if none was recorded.
func (r *RateStats) Instant() float64 {
	if len(r.values) == 0 {
		return 0
	}
	return r.values[len(r.values)-1]
}

// Mean returns the arithmetic mean of all recorded rates.
func (r *RateStats) Mean() float64 {
	if len(r.values) == 0 {
		return 0
	}
	return stat.Mean(r.values, nil)
}

// StdDev returns the sample standard deviation (n-1 divisor) of all
// recorded rates. It is 0 until two rates are recorded.
func (r *RateStats) StdDev() float64 {
	if len(r.values) < 2 {
		return 0
	}
	return stat.StdDev(r.values, nil)
}

// Values returns a copy of the recorded rates.
func (r *RateStats) Values() []float64 {
	out := make([]float64, len(r.values))
	copy(out, r.values)
	return out
}

// Reset clears the rate history. Histograms are not affected.
func (r *RateStats) Reset() {
	r.values = nil
}
