// Package observability records per-status response metrics.
package observability

import (
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// bucketBounds are the upper bounds of the latency histogram; the last
// bucket takes everything slower.
var bucketBounds = [...]time.Duration{
	100 * time.Microsecond,
	500 * time.Microsecond,
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// NumBuckets is the length of every latency histogram
const NumBuckets = len(bucketBounds) + 1

// ResponseMonitor counts responses and their latency per status code. It
// is safe for concurrent use; workers record, anyone may snapshot.
type ResponseMonitor struct {
	statuses sync.Map // int -> *statusMetrics
	total    atomic.Uint64
}

type statusMetrics struct {
	count         atomic.Uint64
	totalDuration atomic.Uint64
	minDuration   atomic.Uint64
	maxDuration   atomic.Uint64
	buckets       [NumBuckets]atomic.Uint64
}

// StatusSnapshot is a point-in-time copy of one status code's metrics
type StatusSnapshot struct {
	Code    int                `json:"code"`
	Count   uint64             `json:"count"`
	Avg     time.Duration      `json:"avg"`
	Min     time.Duration      `json:"min"`
	Max     time.Duration      `json:"max"`
	Buckets [NumBuckets]uint64 `json:"latency_buckets"`
}

// NewResponseMonitor creates an empty monitor
func NewResponseMonitor() *ResponseMonitor {
	return &ResponseMonitor{}
}

// Record adds one response with status code that took d from parse to
// the last byte written.
func (m *ResponseMonitor) Record(code int, d time.Duration) {
	if d < 0 {
		d = 0
	}
	val, ok := m.statuses.Load(code)
	if !ok {
		fresh := &statusMetrics{}
		fresh.minDuration.Store(math.MaxUint64)
		val, _ = m.statuses.LoadOrStore(code, fresh)
	}
	s := val.(*statusMetrics)

	ns := uint64(d)
	s.count.Add(1)
	s.totalDuration.Add(ns)
	updateMinMax(s, ns)
	s.buckets[bucketFor(d)].Add(1)

	m.total.Add(1)
}

func updateMinMax(s *statusMetrics, d uint64) {
	for {
		cur := s.minDuration.Load()
		if d >= cur {
			break
		}
		if s.minDuration.CompareAndSwap(cur, d) {
			break
		}
	}
	for {
		cur := s.maxDuration.Load()
		if d <= cur {
			break
		}
		if s.maxDuration.CompareAndSwap(cur, d) {
			break
		}
	}
}

func bucketFor(d time.Duration) int {
	for i, bound := range bucketBounds {
		if d < bound {
			return i
		}
	}
	return len(bucketBounds)
}

// Total returns the number of recorded responses
func (m *ResponseMonitor) Total() uint64 {
	return m.total.Load()
}

// Snapshot returns metrics for every status code seen, ordered by code
func (m *ResponseMonitor) Snapshot() []StatusSnapshot {
	var out []StatusSnapshot
	m.statuses.Range(func(key, value any) bool {
		s := value.(*statusMetrics)
		snap := StatusSnapshot{
			Code:  key.(int),
			Count: s.count.Load(),
			Max:   time.Duration(s.maxDuration.Load()),
		}
		// no sample has landed yet while the minimum is still unset
		if minDur := s.minDuration.Load(); minDur != math.MaxUint64 {
			snap.Min = time.Duration(minDur)
		}
		if snap.Count > 0 {
			snap.Avg = time.Duration(s.totalDuration.Load() / snap.Count)
		}
		for i := range s.buckets {
			snap.Buckets[i] = s.buckets[i].Load()
		}
		out = append(out, snap)
		return true
	})

	slices.SortFunc(out, func(a, b StatusSnapshot) int { return a.Code - b.Code })
	return out
}
