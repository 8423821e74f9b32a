package pools

import (
	"runtime/debug"
	"testing"
)

func TestBytePool_Tiers(t *testing.T) {
	bp := NewBytePool()

	tests := []struct {
		size    int
		wantCap int
	}{
		{100, 512},
		{512, 512},
		{513, 2048},
		{8000, 8192},
		{32768, 32768},
		{40000, 40000},
	}

	for _, tt := range tests {
		buf := bp.Get(tt.size)
		if len(buf) != tt.size {
			t.Errorf("Get(%d): expected len %d, got %d", tt.size, tt.size, len(buf))
		}
		if cap(buf) != tt.wantCap {
			t.Errorf("Get(%d): expected cap %d, got %d", tt.size, tt.wantCap, cap(buf))
		}
		bp.Put(buf)
	}

	stats := bp.Stats()
	if stats.Gets != 6 || stats.Oversized != 1 || stats.Puts != 5 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

type fakeConn struct {
	fd int
}

func (c *fakeConn) Reset() { c.fd = -1 }

func TestConnectionPool_ResetsOnPut(t *testing.T) {
	cp := NewConnectionPool(func() *fakeConn { return &fakeConn{fd: -1} })

	c := cp.Get()
	c.fd = 42
	cp.Put(c)

	if c.fd != -1 {
		t.Errorf("Expected Put to reset the connection, fd=%d", c.fd)
	}

	stats := cp.Stats()
	if stats.Gets != 1 || stats.Puts != 1 || stats.News != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestApplyGCConfig(t *testing.T) {
	orig := debug.SetGCPercent(100)
	defer debug.SetGCPercent(orig)

	prev := ApplyGCConfig(GCConfig{GOGC: 250})
	if prev != 100 {
		t.Errorf("Expected previous GOGC 100, got %d", prev)
	}
	if cur := debug.SetGCPercent(100); cur != 250 {
		t.Errorf("Expected GOGC 250 applied, got %d", cur)
	}

	if got := GetGCStats().NumGoroutine; got <= 0 {
		t.Errorf("Expected a positive goroutine count, got %d", got)
	}
}
