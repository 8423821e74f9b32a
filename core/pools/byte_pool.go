package pools

import (
	"sync"
	"sync/atomic"
)

// BytePool is a multi-tiered byte slice pool for different size classes
type BytePool struct {
	pools []*sync.Pool
	sizes []int

	gets      atomic.Uint64
	puts      atomic.Uint64
	oversized atomic.Uint64
}

// Size tiers for read scratch space and small response buffers
var defaultSizes = []int{
	512,
	2048,
	8192,
	32768,
}

// NewBytePool creates a new byte pool with standard size tiers
func NewBytePool() *BytePool {
	return NewBytePoolWithSizes(defaultSizes)
}

// NewBytePoolWithSizes creates a byte pool with custom size tiers (ascending)
func NewBytePoolWithSizes(sizes []int) *BytePool {
	bp := &BytePool{
		pools: make([]*sync.Pool, len(sizes)),
		sizes: sizes,
	}

	for i, size := range sizes {
		sz := size
		bp.pools[i] = &sync.Pool{
			New: func() any {
				buf := make([]byte, sz)
				return &buf
			},
		}
	}

	return bp
}

// tier returns the index of the smallest tier holding size bytes, or -1
func (bp *BytePool) tier(size int) int {
	for i, poolSize := range bp.sizes {
		if size <= poolSize {
			return i
		}
	}
	return -1
}

// Get returns a byte slice of exactly size bytes
func (bp *BytePool) Get(size int) []byte {
	bp.gets.Add(1)

	i := bp.tier(size)
	if i < 0 {
		bp.oversized.Add(1)
		return make([]byte, size)
	}

	buf := *bp.pools[i].Get().(*[]byte)
	return buf[:size]
}

// Put returns a slice obtained from Get. Slices of foreign capacity are dropped.
func (bp *BytePool) Put(buf []byte) {
	capacity := cap(buf)
	for i, poolSize := range bp.sizes {
		if capacity == poolSize {
			buf = buf[:capacity]
			bp.pools[i].Put(&buf)
			bp.puts.Add(1)
			return
		}
	}
}

// Stats returns pool statistics
func (bp *BytePool) Stats() BytePoolStats {
	return BytePoolStats{
		Gets:      bp.gets.Load(),
		Puts:      bp.puts.Load(),
		Oversized: bp.oversized.Load(),
	}
}

// BytePoolStats contains byte pool statistics
type BytePoolStats struct {
	Gets      uint64 `json:"gets"`
	Puts      uint64 `json:"puts"`
	Oversized uint64 `json:"oversized"`
}

var globalBytePool = NewBytePool()

// GetBytes is a convenience function using the global pool
func GetBytes(size int) []byte {
	return globalBytePool.Get(size)
}

// PutBytes returns bytes to the global pool
func PutBytes(buf []byte) {
	globalBytePool.Put(buf)
}

// GlobalBytePoolStats returns statistics for the global byte pool
func GlobalBytePoolStats() BytePoolStats {
	return globalBytePool.Stats()
}
