package extents_test

import (
	"reflect"
	"testing"

	"discdump/internal/extents"
)

func TestAddRangeMergesTouchingAndOverlapping(t *testing.T) {
	tests := []struct {
		name   string
		inputs []extents.Range
		want   []extents.Range
	}{
		{
			name:   "disjoint stays sorted",
			inputs: []extents.Range{{Start: 20, End: 29}, {Start: 0, End: 9}},
			want:   []extents.Range{{Start: 0, End: 9}, {Start: 20, End: 29}},
		},
		{
			name:   "touching merges",
			inputs: []extents.Range{{Start: 0, End: 9}, {Start: 10, End: 19}},
			want:   []extents.Range{{Start: 0, End: 19}},
		},
		{
			name:   "bridge swallows neighbours",
			inputs: []extents.Range{{Start: 0, End: 4}, {Start: 10, End: 14}, {Start: 20, End: 24}, {Start: 5, End: 19}},
			want:   []extents.Range{{Start: 0, End: 24}},
		},
		{
			name:   "contained is noop",
			inputs: []extents.Range{{Start: 0, End: 99}, {Start: 40, End: 59}},
			want:   []extents.Range{{Start: 0, End: 99}},
		},
		{
			name:   "reversed arguments",
			inputs: []extents.Range{{Start: 9, End: 3}},
			want:   []extents.Range{{Start: 3, End: 9}},
		},
		{
			name:   "max address",
			inputs: []extents.Range{{Start: ^uint64(0) - 1, End: ^uint64(0)}, {Start: 5, End: 5}},
			want:   []extents.Range{{Start: 5, End: 5}, {Start: ^uint64(0) - 1, End: ^uint64(0)}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s extents.Set
			for _, r := range tt.inputs {
				s.AddRange(r.Start, r.End)
			}
			if got := s.Ranges(); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ranges = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRemoveSplitsRange(t *testing.T) {
	s := extents.New(extents.Range{Start: 40, End: 59})
	if !s.Remove(50) {
		t.Fatal("expected 50 to be removed")
	}
	if s.Remove(50) {
		t.Fatal("second removal should report absent")
	}
	want := []extents.Range{{Start: 40, End: 49}, {Start: 51, End: 59}}
	if got := s.Ranges(); !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges = %v, want %v", got, want)
	}
	s.RemoveRange(0, 45)
	s.RemoveRange(58, 100)
	want = []extents.Range{{Start: 46, End: 49}, {Start: 51, End: 57}}
	if got := s.Ranges(); !reflect.DeepEqual(got, want) {
		t.Fatalf("ranges = %v, want %v", got, want)
	}
	if s.Count() != 11 {
		t.Fatalf("count = %d, want 11", s.Count())
	}
}

func TestContainsAndOverlaps(t *testing.T) {
	s := extents.New(extents.Range{Start: 10, End: 19}, extents.Range{Start: 30, End: 30})
	for addr, want := range map[uint64]bool{0: false, 10: true, 19: true, 20: false, 30: true, 31: false} {
		if got := s.Contains(addr); got != want {
			t.Errorf("Contains(%d) = %v, want %v", addr, got, want)
		}
	}
	if !s.Overlaps(0, 10) || s.Overlaps(20, 29) || !s.Overlaps(25, 35) {
		t.Fatalf("unexpected overlap results for %s", s)
	}
	if r, ok := s.Find(15); !ok || r.Start != 10 || r.End != 19 {
		t.Fatalf("Find(15) = %v %v", r, ok)
	}
}

func TestEachStopsEarlyAndCloneIsIndependent(t *testing.T) {
	s := extents.New(extents.Range{Start: 1, End: 3}, extents.Range{Start: 7, End: 8})
	var seen []uint64
	s.Each(func(addr uint64) bool {
		seen = append(seen, addr)
		return addr != 7
	})
	if !reflect.DeepEqual(seen, []uint64{1, 2, 3, 7}) {
		t.Fatalf("Each visited %v", seen)
	}
	c := s.Clone()
	c.Add(4)
	if s.Contains(4) {
		t.Fatal("clone mutation leaked into original")
	}
	if got := c.String(); got != "[1-4 7-8]" {
		t.Fatalf("String() = %q", got)
	}
}
