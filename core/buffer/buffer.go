package buffer

import "fmt"

// DefaultSize is the initial capacity of a connection buffer
const DefaultSize = 1024

// Buffer is a growable byte store with independent read and write cursors.
//
// Unread bytes live in [readPos, writePos), writable space in [writePos, cap).
// A Buffer is not safe for concurrent use.
type Buffer struct {
	buf      []byte
	readPos  int
	writePos int
}

// New creates a buffer with the given initial capacity
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{buf: make([]byte, size)}
}

// Cap returns the current capacity of the backing store
func (b *Buffer) Cap() int {
	return len(b.buf)
}

// ReadableBytes returns the number of unread bytes
func (b *Buffer) ReadableBytes() int {
	return b.writePos - b.readPos
}

// WritableBytes returns the free space after the write cursor
func (b *Buffer) WritableBytes() int {
	return len(b.buf) - b.writePos
}

// PrependableBytes returns the already consumed space before the read cursor
func (b *Buffer) PrependableBytes() int {
	return b.readPos
}

// Peek returns the unread region. The slice aliases the buffer and is only
// valid until the next mutating call.
func (b *Buffer) Peek() []byte {
	return b.buf[b.readPos:b.writePos]
}

// WriteRegion returns the writable tail. Call HasWritten after filling it.
func (b *Buffer) WriteRegion() []byte {
	return b.buf[b.writePos:]
}

// Retrieve advances the read cursor by n bytes
func (b *Buffer) Retrieve(n int) {
	if n < 0 || n > b.ReadableBytes() {
		panic(fmt.Sprintf("buffer: retrieve %d of %d readable bytes", n, b.ReadableBytes()))
	}
	b.readPos += n
	if b.readPos == b.writePos {
		b.readPos, b.writePos = 0, 0
	}
}

// RetrieveAll drops every unread byte and resets the buffer
func (b *Buffer) RetrieveAll() {
	b.Reset()
}

// RetrieveAllString drains the unread bytes into a string and resets the buffer
func (b *Buffer) RetrieveAllString() string {
	s := string(b.Peek())
	b.Reset()
	return s
}

// HasWritten advances the write cursor after a direct write into WriteRegion
func (b *Buffer) HasWritten(n int) {
	if n < 0 || n > b.WritableBytes() {
		panic(fmt.Sprintf("buffer: commit %d of %d writable bytes", n, b.WritableBytes()))
	}
	b.writePos += n
}

// EnsureWritable makes room for at least n bytes after the write cursor
func (b *Buffer) EnsureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}
	b.makeSpace(n)
}

// makeSpace compacts the unread region to offset 0 when the consumed prefix
// plus the free tail can hold n bytes, otherwise grows the store.
func (b *Buffer) makeSpace(n int) {
	if b.readPos+b.WritableBytes() < n {
		grown := make([]byte, b.writePos+n+1)
		copy(grown, b.buf[:b.writePos])
		b.buf = grown
		return
	}
	unread := b.ReadableBytes()
	copy(b.buf, b.buf[b.readPos:b.writePos])
	b.readPos = 0
	b.writePos = unread
}

// Append copies p after the unread bytes, growing the buffer as needed
func (b *Buffer) Append(p []byte) {
	b.EnsureWritable(len(p))
	b.writePos += copy(b.buf[b.writePos:], p)
}

// AppendString is Append for strings
func (b *Buffer) AppendString(s string) {
	b.EnsureWritable(len(s))
	b.writePos += copy(b.buf[b.writePos:], s)
}

// Reset zeroes the cursors and clears the contents, keeping the capacity
func (b *Buffer) Reset() {
	clear(b.buf)
	b.readPos = 0
	b.writePos = 0
}
