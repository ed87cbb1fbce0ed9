package logging

import "strings"

// ProgressSampler thins sector progress to one log line per percentage
// bucket. A new phase, or a position that moves backwards (a rewind or a
// retry pass restarting), starts the buckets over.
type ProgressSampler struct {
	bucketSize float64
	phase      string
	bucket     int
	position   uint64
}

// NewProgressSampler returns a sampler with bucketSize percent steps; values
// of zero or less select 5%.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	return &ProgressSampler{bucketSize: bucketSize, bucket: -1}
}

// ShouldLog reports whether progress at current of total sectors is worth a
// log line. An unknown total logs phase changes only.
func (s *ProgressSampler) ShouldLog(current, total uint64, phase string) bool {
	if s == nil {
		return true
	}
	emit := false
	if phase = strings.TrimSpace(phase); phase != s.phase {
		s.phase = phase
		s.bucket = -1
		emit = true
	}
	if current < s.position {
		s.bucket = -1
	}
	s.position = current
	if total == 0 {
		return emit
	}
	if current > total {
		current = total
	}
	bucket := int(float64(current) * 100 / float64(total) / s.bucketSize)
	if bucket > s.bucket {
		s.bucket = bucket
		emit = true
	}
	return emit
}

// Reset clears the sampler state.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.phase = ""
	s.bucket = -1
	s.position = 0
}
