package pools

import (
	"sync"
	"sync/atomic"
)

// ConnectionPoolable defines the interface for poolable connection objects
type ConnectionPoolable interface {
	Reset()
}

// ConnectionPool recycles connection objects between accepts
type ConnectionPool[T ConnectionPoolable] struct {
	pool sync.Pool
	gets atomic.Uint64
	puts atomic.Uint64
	news atomic.Uint64
}

// NewConnectionPool creates a connection pool that allocates with newFunc
func NewConnectionPool[T ConnectionPoolable](newFunc func() T) *ConnectionPool[T] {
	cp := &ConnectionPool[T]{}
	cp.pool.New = func() any {
		cp.news.Add(1)
		return newFunc()
	}
	return cp
}

// Get retrieves a connection from the pool
func (cp *ConnectionPool[T]) Get() T {
	cp.gets.Add(1)
	return cp.pool.Get().(T)
}

// Put resets a connection and returns it to the pool
func (cp *ConnectionPool[T]) Put(obj T) {
	obj.Reset()
	cp.puts.Add(1)
	cp.pool.Put(obj)
}

// Stats returns pool statistics. Hit rate is the share of Gets served
// without allocating.
func (cp *ConnectionPool[T]) Stats() ConnectionPoolStats {
	g := cp.gets.Load()
	n := cp.news.Load()

	stats := ConnectionPoolStats{Gets: g, Puts: cp.puts.Load(), News: n}
	if g > 0 && n <= g {
		stats.HitRate = float64(g-n) / float64(g)
	}
	return stats
}

// ConnectionPoolStats contains connection pool statistics
type ConnectionPoolStats struct {
	Gets    uint64  `json:"gets"`
	Puts    uint64  `json:"puts"`
	News    uint64  `json:"news"`
	HitRate float64 `json:"hit_rate"`
}
