package observability

import (
	"sync"
	"testing"
	"time"
)

func TestResponseMonitor(t *testing.T) {
	m := NewResponseMonitor()

	m.Record(200, 10*time.Millisecond)
	m.Record(200, 20*time.Millisecond)
	m.Record(200, 30*time.Millisecond)
	m.Record(404, 200*time.Microsecond)

	snaps := m.Snapshot()
	if len(snaps) != 2 || snaps[0].Code != 200 || snaps[1].Code != 404 {
		t.Fatalf("Expected snapshots for 200 and 404 in order, got %+v", snaps)
	}

	ok := snaps[0]
	if ok.Count != 3 {
		t.Errorf("Expected 3 responses, got %d", ok.Count)
	}
	if ok.Avg != 20*time.Millisecond {
		t.Errorf("Expected 20ms avg, got %v", ok.Avg)
	}
	if ok.Min != 10*time.Millisecond || ok.Max != 30*time.Millisecond {
		t.Errorf("Expected min 10ms max 30ms, got %v %v", ok.Min, ok.Max)
	}
	if m.Total() != 4 {
		t.Errorf("Expected 4 total, got %d", m.Total())
	}
}

func TestResponseMonitorZeroMinimum(t *testing.T) {
	m := NewResponseMonitor()

	m.Record(200, 0)
	m.Record(200, 5*time.Microsecond)

	snap := m.Snapshot()[0]
	if snap.Min != 0 || snap.Max != 5*time.Microsecond {
		t.Errorf("Expected min 0 max 5µs, got %v %v", snap.Min, snap.Max)
	}
}

func TestLatencyBuckets(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{50 * time.Microsecond, 0},
		{100 * time.Microsecond, 1},
		{2 * time.Millisecond, 3},
		{time.Second, 9},
		{time.Minute, 9},
	}
	for _, tt := range tests {
		if got := bucketFor(tt.d); got != tt.want {
			t.Errorf("bucketFor(%v): expected %d, got %d", tt.d, tt.want, got)
		}
	}
}

func TestResponseMonitorConcurrent(t *testing.T) {
	m := NewResponseMonitor()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				m.Record(200, time.Duration(i)*time.Microsecond)
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()[0]
	if snap.Count != 8000 {
		t.Errorf("Expected 8000 responses, got %d", snap.Count)
	}
	if snap.Max != 999*time.Microsecond {
		t.Errorf("Expected max 999µs, got %v", snap.Max)
	}
}

func BenchmarkRecord(b *testing.B) {
	m := NewResponseMonitor()
	for i := 0; i < b.N; i++ {
		m.Record(200, time.Millisecond)
	}
}
