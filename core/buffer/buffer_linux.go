//go:build linux

package buffer

import (
	"github.com/searchktools/fast-static/core/pools"
	"golang.org/x/sys/unix"
)

// scratchSize is the overflow region handed to readv next to the writable tail
const scratchSize = 32 * 1024

// ReadFd reads from fd with a single readv over the writable tail and a
// pooled scratch region, so one syscall can take more than currently fits.
// Overflow is appended afterwards, growing the buffer.
func (b *Buffer) ReadFd(fd int) (int, error) {
	scratch := pools.GetBytes(scratchSize)
	defer pools.PutBytes(scratch)

	writable := b.WritableBytes()
	n, err := unix.Readv(fd, [][]byte{b.buf[b.writePos:], scratch})
	if err != nil {
		return 0, err
	}

	if n <= writable {
		b.writePos += n
	} else {
		b.writePos = len(b.buf)
		b.Append(scratch[:n-writable])
	}
	return n, nil
}

// WriteFd writes the unread bytes to fd and advances the read cursor by
// what the kernel accepted.
func (b *Buffer) WriteFd(fd int) (int, error) {
	n, err := unix.Write(fd, b.Peek())
	if err != nil {
		return 0, err
	}
	b.Retrieve(n)
	return n, nil
}
