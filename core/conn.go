//go:build linux

package core

import (
	"io"
	"net/netip"
	"time"

	"golang.org/x/sys/unix"

	"github.com/searchktools/fast-static/core/buffer"
	"github.com/searchktools/fast-static/core/http"
)

// largeWrite is the queued size above which a level-triggered Write keeps
// looping instead of waiting for the next writable event.
const largeWrite = 10240

// connSettings is shared by every connection of one Engine
type connSettings struct {
	root string
	edge bool
}

// Connection owns one client socket. Between a dispatch and the matching
// completion exactly one worker uses it; otherwise only the reactor does.
type Connection struct {
	fd     int
	addr   netip.AddrPort
	closed bool

	readBuf  *buffer.Buffer
	writeBuf *buffer.Buffer
	req      http.Request
	resp     http.Response

	// iov[0] is the unsent part of writeBuf, iov[1] the unsent mapped file
	iov [2][]byte

	settings *connSettings
	writev   func(fd int, iovs [][]byte) (int, error)

	// when the current response was built
	started time.Time

	// reactor-owned
	busy         bool
	closePending bool
}

func newConnection() *Connection {
	return &Connection{
		fd:       -1,
		readBuf:  buffer.New(buffer.DefaultSize),
		writeBuf: buffer.New(buffer.DefaultSize),
		writev:   unix.Writev,
	}
}

func (c *Connection) init(fd int, addr netip.AddrPort, settings *connSettings) {
	c.fd = fd
	c.addr = addr
	c.closed = false
	c.settings = settings
	c.readBuf.Reset()
	c.writeBuf.Reset()
	c.req.Init()
	c.iov = [2][]byte{}
}

// Read drains the socket into the read buffer. Edge-triggered connections
// read until the kernel reports EAGAIN, which is returned with the count.
// A closed peer yields io.EOF.
func (c *Connection) Read() (int, error) {
	total := 0
	for {
		n, err := c.readBuf.ReadFd(c.fd)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.EOF
		}
		total += n
		if !c.settings.edge {
			return total, nil
		}
	}
}

// Handle parses the buffered request and renders its response. It returns
// false when there is nothing to answer yet.
func (c *Connection) Handle() bool {
	c.req.Init()
	if c.readBuf.ReadableBytes() <= 0 {
		return false
	}

	done, err := c.req.Parse(c.readBuf)
	switch {
	case err != nil:
		c.resp.Init(c.settings.root, c.req.Path, false, http.StatusBadRequest)
	case !done:
		return false
	default:
		c.resp.Init(c.settings.root, c.req.Path, c.req.KeepAlive(), http.CodeUndecided)
	}

	c.started = time.Now()
	c.resp.Build(c.writeBuf)
	c.iov[0] = c.writeBuf.Peek()
	c.iov[1] = c.resp.File()
	return true
}

// Write sends the pending header bytes and mapped file with writev. Each
// partial write advances the two slots by exactly the bytes accepted.
// Edge-triggered connections, and any connection with more than largeWrite
// bytes queued, keep writing until done or EAGAIN.
func (c *Connection) Write() (int, error) {
	total := 0
	for c.PendingBytes() > 0 {
		n, err := c.writev(c.fd, c.pending())
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
		c.advance(n)

		if !c.settings.edge && c.PendingBytes() <= largeWrite {
			break
		}
	}

	if c.PendingBytes() == 0 {
		c.resp.Release()
		c.iov = [2][]byte{}
	}
	return total, nil
}

func (c *Connection) pending() [][]byte {
	iovs := make([][]byte, 0, 2)
	for _, b := range c.iov {
		if len(b) > 0 {
			iovs = append(iovs, b)
		}
	}
	return iovs
}

func (c *Connection) advance(n int) {
	if head := len(c.iov[0]); n >= head {
		if head > 0 {
			c.writeBuf.RetrieveAll()
			c.iov[0] = nil
		}
		c.iov[1] = c.iov[1][n-head:]
		return
	}
	c.iov[0] = c.iov[0][n:]
	c.writeBuf.Retrieve(n)
}

// PendingBytes returns the bytes still to be written
func (c *Connection) PendingBytes() int {
	return len(c.iov[0]) + len(c.iov[1])
}

// Elapsed returns the time since the current response was built
func (c *Connection) Elapsed() time.Duration {
	return time.Since(c.started)
}

// KeepAlive reports whether the last response keeps the connection open
func (c *Connection) KeepAlive() bool {
	return c.resp.KeepAlive()
}

// Close releases the mapped file and closes the socket. Only the reactor
// calls it, after removing the fd from the poller and the timer heap.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.resp.Release()
	c.iov = [2][]byte{}
	return unix.Close(c.fd)
}

// Reset implements pools.ConnectionPoolable
func (c *Connection) Reset() {
	c.resp.Release()
	c.fd = -1
	c.addr = netip.AddrPort{}
	c.settings = nil
	c.busy = false
	c.closePending = false
	c.iov = [2][]byte{}
	c.readBuf.Reset()
	c.writeBuf.Reset()
}

// Fd returns the socket descriptor
func (c *Connection) Fd() int {
	return c.fd
}

// Addr returns the peer address
func (c *Connection) Addr() netip.AddrPort {
	return c.addr
}
