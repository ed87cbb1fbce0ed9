package speed_test

import (
	"testing"
	"time"

	"discdump/internal/speed"
)

func TestEstimatorEmitsAtThreshold(t *testing.T) {
	e := speed.New(0)
	if _, ok := e.Add(speed.Sample{Bytes: 1 << 20, Elapsed: 400 * time.Millisecond}); ok {
		t.Fatal("should not emit below threshold")
	}
	v, ok := e.Add(speed.Sample{Bytes: 1 << 20, Elapsed: 600 * time.Millisecond})
	if !ok {
		t.Fatal("expected emission at one second")
	}
	if v != 2 {
		t.Fatalf("throughput = %v, want 2", v)
	}
	if _, ok := e.Add(speed.Sample{Bytes: 1, Elapsed: time.Millisecond}); ok {
		t.Fatal("window should reset after emission")
	}
}

func TestEstimatorMinMaxAverage(t *testing.T) {
	e := speed.New(time.Second)
	e.Add(speed.Sample{Bytes: 4 << 20, Elapsed: time.Second})
	e.Add(speed.Sample{Bytes: 1 << 20, Elapsed: time.Second})
	e.Add(speed.Sample{Bytes: 7 << 20, Elapsed: time.Second})
	if e.Min() != 1 || e.Max() != 7 {
		t.Fatalf("min/max = %v/%v", e.Min(), e.Max())
	}
	if e.Average() != 4 {
		t.Fatalf("average = %v", e.Average())
	}
	if tot := e.Total(); tot.Bytes != 12<<20 || tot.Elapsed != 3*time.Second {
		t.Fatalf("total = %+v", tot)
	}
}

func TestEstimatorZeroElapsed(t *testing.T) {
	var e speed.Estimator
	if e.Average() != 0 {
		t.Fatal("empty estimator should average zero")
	}
}
