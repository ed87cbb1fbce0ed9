package extents

import (
	"fmt"
	"sort"
	"strings"
)

// Range is a closed interval of sector addresses.
type Range struct {
	Start uint64
	End   uint64
}

// Len returns the number of addresses in the range.
func (r Range) Len() uint64 {
	return r.End - r.Start + 1
}

// Contains reports whether addr lies inside the range.
func (r Range) Contains(addr uint64) bool {
	return addr >= r.Start && addr <= r.End
}

func (r Range) String() string {
	if r.Start == r.End {
		return fmt.Sprintf("%d", r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Set is a sorted list of non-overlapping, non-touching ranges. The zero value
// is an empty set ready to use. A Set is not safe for concurrent mutation.
type Set struct {
	ranges []Range
}

// New returns a set seeded with the given ranges.
func New(ranges ...Range) *Set {
	s := &Set{}
	for _, r := range ranges {
		s.AddRange(r.Start, r.End)
	}
	return s
}

// search returns the index of the first range whose End is >= addr.
func (s *Set) search(addr uint64) int {
	return sort.Search(len(s.ranges), func(i int) bool {
		return s.ranges[i].End >= addr
	})
}

// Contains reports whether addr is a member of the set.
func (s *Set) Contains(addr uint64) bool {
	if s == nil {
		return false
	}
	i := s.search(addr)
	return i < len(s.ranges) && s.ranges[i].Start <= addr
}

// Find returns the range holding addr.
func (s *Set) Find(addr uint64) (Range, bool) {
	if s == nil {
		return Range{}, false
	}
	i := s.search(addr)
	if i < len(s.ranges) && s.ranges[i].Start <= addr {
		return s.ranges[i], true
	}
	return Range{}, false
}

// Add inserts a single address.
func (s *Set) Add(addr uint64) {
	s.AddRange(addr, addr)
}

// AddRange inserts the closed interval [start, end]. Arguments given in
// reverse order are swapped.
func (s *Set) AddRange(start, end uint64) {
	if start > end {
		start, end = end, start
	}
	// First range that overlaps or touches start.
	lo := start
	if lo > 0 {
		lo--
	}
	i := s.search(lo)
	j := i
	for j < len(s.ranges) {
		r := s.ranges[j]
		if end != ^uint64(0) && r.Start > end+1 {
			break
		}
		if r.Start < start {
			start = r.Start
		}
		if r.End > end {
			end = r.End
		}
		j++
	}
	merged := Range{Start: start, End: end}
	switch {
	case i == j:
		s.ranges = append(s.ranges, Range{})
		copy(s.ranges[i+1:], s.ranges[i:])
		s.ranges[i] = merged
	default:
		s.ranges[i] = merged
		s.ranges = append(s.ranges[:i+1], s.ranges[j:]...)
	}
}

// Remove deletes a single address, reporting whether it was present.
func (s *Set) Remove(addr uint64) bool {
	if !s.Contains(addr) {
		return false
	}
	s.RemoveRange(addr, addr)
	return true
}

// RemoveRange deletes every address in [start, end].
func (s *Set) RemoveRange(start, end uint64) {
	if s == nil || len(s.ranges) == 0 {
		return
	}
	if start > end {
		start, end = end, start
	}
	out := make([]Range, 0, len(s.ranges)+1)
	for _, r := range s.ranges {
		if r.End < start || r.Start > end {
			out = append(out, r)
			continue
		}
		if r.Start < start {
			out = append(out, Range{Start: r.Start, End: start - 1})
		}
		if r.End > end {
			out = append(out, Range{Start: end + 1, End: r.End})
		}
	}
	s.ranges = out
}

// Ranges returns a copy of the contiguous runs in ascending order.
func (s *Set) Ranges() []Range {
	if s == nil {
		return nil
	}
	out := make([]Range, len(s.ranges))
	copy(out, s.ranges)
	return out
}

// Each calls fn for every address in ascending order until fn returns false.
// The set must not be mutated from fn; iterate over a Clone for that.
func (s *Set) Each(fn func(addr uint64) bool) {
	if s == nil {
		return
	}
	for _, r := range s.ranges {
		for addr := r.Start; ; addr++ {
			if !fn(addr) {
				return
			}
			if addr == r.End {
				break
			}
		}
	}
}

// Count returns the number of addresses in the set.
func (s *Set) Count() uint64 {
	if s == nil {
		return 0
	}
	var n uint64
	for _, r := range s.ranges {
		n += r.Len()
	}
	return n
}

// Empty reports whether the set holds no addresses.
func (s *Set) Empty() bool {
	return s == nil || len(s.ranges) == 0
}

// Clone returns an independent copy of the set.
func (s *Set) Clone() *Set {
	return &Set{ranges: s.Ranges()}
}

// Overlaps reports whether any address in [start, end] is a member.
func (s *Set) Overlaps(start, end uint64) bool {
	if s == nil {
		return false
	}
	if start > end {
		start, end = end, start
	}
	i := s.search(start)
	return i < len(s.ranges) && s.ranges[i].Start <= end
}

func (s *Set) String() string {
	if s.Empty() {
		return "[]"
	}
	parts := make([]string, 0, len(s.ranges))
	for _, r := range s.ranges {
		parts = append(parts, r.String())
	}
	return "[" + strings.Join(parts, " ") + "]"
}
