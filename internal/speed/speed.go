// Package speed turns command durations and byte counts into throughput
// figures for drive retuning and progress reporting.
package speed

import (
	"math"
	"time"
)

// Threshold is the amount of accumulated command time after which a sample
// window is converted to throughput and reset.
const Threshold = time.Second

const mib = 1024 * 1024

// Sample is one batch's contribution to the current window.
type Sample struct {
	Bytes   uint64
	Elapsed time.Duration
}

// Estimator accumulates samples. The zero value is ready to use.
type Estimator struct {
	window    Sample
	total     Sample
	min, max  float64
	emitted   int
	threshold time.Duration
}

// New returns an estimator that emits once per threshold of command time.
// A zero threshold selects Threshold.
func New(threshold time.Duration) *Estimator {
	return &Estimator{threshold: threshold}
}

// Add accumulates a sample. When the window reaches the threshold the
// throughput in MiB/s is returned with ok set and the window resets.
func (e *Estimator) Add(s Sample) (mibPerSec float64, ok bool) {
	e.window.Bytes += s.Bytes
	e.window.Elapsed += s.Elapsed
	e.total.Bytes += s.Bytes
	e.total.Elapsed += s.Elapsed

	threshold := e.threshold
	if threshold <= 0 {
		threshold = Threshold
	}
	if e.window.Elapsed < threshold {
		return 0, false
	}
	v := rate(e.window)
	e.window = Sample{}
	if e.emitted == 0 || v < e.min {
		e.min = v
	}
	if v > e.max {
		e.max = v
	}
	e.emitted++
	return v, true
}

// Min returns the slowest emitted throughput, or zero before the first.
func (e *Estimator) Min() float64 { return e.min }

// Max returns the fastest emitted throughput.
func (e *Estimator) Max() float64 { return e.max }

// Average returns the throughput over every sample added so far.
func (e *Estimator) Average() float64 { return rate(e.total) }

// Total returns the accumulated bytes and command time.
func (e *Estimator) Total() Sample { return e.total }

func rate(s Sample) float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	v := float64(s.Bytes) / mib / secs
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v
}
