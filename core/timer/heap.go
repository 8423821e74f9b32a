// Package timer keeps per-connection idle deadlines in a binary min-heap.
//
// The heap array and the id→index table live in one type and are only
// changed through whole operations, so callers never see them disagree.
package timer

import "time"

// Callback runs when a timer expires or is triggered
type Callback func()

type node struct {
	id      int
	expires time.Time
	cb      Callback
}

// Heap is a min-heap of timers ordered by expiry, keyed by id.
// It is not safe for concurrent use; the reactor goroutine owns it.
type Heap struct {
	nodes []node
	index map[int]int
	now   func() time.Time
}

// NewHeap creates an empty timer heap on the wall clock
func NewHeap() *Heap {
	return newHeapWithClock(time.Now)
}

func newHeapWithClock(now func() time.Time) *Heap {
	return &Heap{
		nodes: make([]node, 0, 64),
		index: make(map[int]int, 64),
		now:   now,
	}
}

// Len returns the number of pending timers
func (h *Heap) Len() int {
	return len(h.nodes)
}

// Has reports whether id has a pending timer
func (h *Heap) Has(id int) bool {
	_, ok := h.index[id]
	return ok
}

// Add schedules cb to run timeout from now. An existing timer for id is
// overwritten and moved in whichever direction the new expiry requires.
func (h *Heap) Add(id int, timeout time.Duration, cb Callback) {
	expires := h.now().Add(timeout)

	i, ok := h.index[id]
	if !ok {
		i = len(h.nodes)
		h.index[id] = i
		h.nodes = append(h.nodes, node{id: id, expires: expires, cb: cb})
		h.siftUp(i)
		return
	}

	h.nodes[i].expires = expires
	h.nodes[i].cb = cb
	if !h.siftDown(i, len(h.nodes)) {
		h.siftUp(i)
	}
}

// Adjust moves id's expiry to timeout from now, keeping its callback.
// It reports false if id has no pending timer.
func (h *Heap) Adjust(id int, timeout time.Duration) bool {
	i, ok := h.index[id]
	if !ok {
		return false
	}
	h.Add(id, timeout, h.nodes[i].cb)
	return true
}

// Trigger removes id's timer and runs its callback immediately
func (h *Heap) Trigger(id int) bool {
	i, ok := h.index[id]
	if !ok {
		return false
	}
	cb := h.nodes[i].cb
	h.remove(i)
	if cb != nil {
		cb()
	}
	return true
}

// Remove cancels id's timer without running it
func (h *Heap) Remove(id int) bool {
	i, ok := h.index[id]
	if !ok {
		return false
	}
	h.remove(i)
	return true
}

// Tick runs and removes every timer whose expiry has passed. Each node is
// detached before its callback runs, so callbacks may use the heap.
func (h *Heap) Tick() {
	for len(h.nodes) > 0 {
		root := h.nodes[0]
		if root.expires.After(h.now()) {
			break
		}
		h.remove(0)
		if root.cb != nil {
			root.cb()
		}
	}
}

// NextTimeout expires due timers, then returns the milliseconds until the
// next expiry (rounded up), or -1 when no timer is pending.
func (h *Heap) NextTimeout() int {
	h.Tick()
	if len(h.nodes) == 0 {
		return -1
	}

	d := h.nodes[0].expires.Sub(h.now())
	if d <= 0 {
		return 0
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}

// Clear drops every timer without running callbacks
func (h *Heap) Clear() {
	clear(h.nodes)
	h.nodes = h.nodes[:0]
	clear(h.index)
}

func (h *Heap) less(i, j int) bool {
	return h.nodes[i].expires.Before(h.nodes[j].expires)
}

func (h *Heap) swap(i, j int) {
	h.nodes[i], h.nodes[j] = h.nodes[j], h.nodes[i]
	h.index[h.nodes[i].id] = i
	h.index[h.nodes[j].id] = j
}

func (h *Heap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(i, parent) {
			break
		}
		h.swap(i, parent)
		i = parent
	}
}

// siftDown restores order below i within the first n nodes and reports
// whether the node moved.
func (h *Heap) siftDown(i, n int) bool {
	start := i
	for {
		child := 2*i + 1
		if child >= n {
			break
		}
		if right := child + 1; right < n && h.less(right, child) {
			child = right
		}
		if !h.less(child, i) {
			break
		}
		h.swap(i, child)
		i = child
	}
	return i > start
}

// remove swaps node i with the last node, drops the last and re-sifts i
func (h *Heap) remove(i int) {
	last := len(h.nodes) - 1
	if i != last {
		h.swap(i, last)
	}

	delete(h.index, h.nodes[last].id)
	h.nodes[last] = node{}
	h.nodes = h.nodes[:last]

	if i < last && !h.siftDown(i, last) {
		h.siftUp(i)
	}
}
