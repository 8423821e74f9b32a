//go:build linux

package core

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/sys/unix"
)

func newTestRoot(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		os.Chmod(p, 0o644)
	}
	return root
}

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { unix.Close(fds[1]) })
	return fds[0], fds[1]
}

// chunkedWritev accepts at most sizes[i] bytes on the i-th call; a zero
// size reports EAGAIN.
func chunkedWritev(out *bytes.Buffer, sizes []int) func(int, [][]byte) (int, error) {
	call := 0
	return func(_ int, iovs [][]byte) (int, error) {
		limit := sizes[call%len(sizes)]
		call++
		if limit == 0 {
			return 0, unix.EAGAIN
		}
		n := 0
		for _, b := range iovs {
			take := min(len(b), limit-n)
			out.Write(b[:take])
			n += take
			if n == limit {
				break
			}
		}
		return n, nil
	}
}

// preparedConn returns a connection on a dummy fd with request already
// buffered and handled.
func preparedConn(t *testing.T, settings *connSettings, request string) *Connection {
	t.Helper()
	c := newConnection()
	c.init(-1, netip.AddrPort{}, settings)
	c.readBuf.AppendString(request)
	if !c.Handle() {
		t.Fatal("expected Handle to produce a response")
	}
	t.Cleanup(func() { c.resp.Release() })
	return c
}

func writeAll(t *testing.T, c *Connection) {
	t.Helper()
	for i := 0; c.PendingBytes() > 0; i++ {
		if i > 100000 {
			t.Fatal("Write made no progress")
		}
		if _, err := c.Write(); err != nil && !errors.Is(err, unix.EAGAIN) {
			t.Fatalf("Write: %v", err)
		}
	}
}

func TestConnectionPartialWritesMatchSingleShot(t *testing.T) {
	page := strings.Repeat("0123456789abcdef", 4096) // 64 KiB
	root := newTestRoot(t, map[string]string{"big.txt": page})
	request := "GET /big.txt HTTP/1.1\r\nConnection: keep-alive\r\n\r\n"

	var want bytes.Buffer
	for _, edge := range []bool{false, true} {
		settings := &connSettings{root: root, edge: edge}

		want.Reset()
		single := preparedConn(t, settings, request)
		single.writev = chunkedWritev(&want, []int{1 << 30})
		writeAll(t, single)
		if !strings.HasSuffix(want.String(), page) || !strings.HasPrefix(want.String(), "HTTP/1.1 200 OK\r\n") {
			t.Fatalf("unexpected single-shot encoding prefix %q", want.String()[:40])
		}

		rng := rand.New(rand.NewSource(42))
		for round := 0; round < 20; round++ {
			sizes := make([]int, 16)
			for i := range sizes {
				sizes[i] = rng.Intn(9000)
				if i == 0 && sizes[i] == 0 {
					sizes[i] = 1
				}
			}

			var got bytes.Buffer
			c := preparedConn(t, settings, request)
			c.writev = chunkedWritev(&got, sizes)
			writeAll(t, c)

			if !bytes.Equal(got.Bytes(), want.Bytes()) {
				t.Fatalf("edge=%v round %d: partial writes delivered %d bytes differing from the %d byte single-shot encoding",
					edge, round, got.Len(), want.Len())
			}
			if c.resp.File() != nil {
				t.Error("expected the mapping released once everything was written")
			}
		}
	}
}

func TestConnectionWriteLoopThreshold(t *testing.T) {
	page := strings.Repeat("x", 30000)
	root := newTestRoot(t, map[string]string{"p.txt": page})

	var out bytes.Buffer
	calls := 0
	c := preparedConn(t, &connSettings{root: root}, "GET /p.txt HTTP/1.1\r\n\r\n")
	inner := chunkedWritev(&out, []int{5000})
	c.writev = func(fd int, iovs [][]byte) (int, error) {
		calls++
		return inner(fd, iovs)
	}

	c.Write()
	// level-triggered: keep going while more than largeWrite bytes remain
	if c.PendingBytes() > largeWrite {
		t.Errorf("expected looping down to %d pending bytes, got %d", largeWrite, c.PendingBytes())
	}
	if c.PendingBytes() == 0 {
		t.Error("expected a level-triggered Write to stop once below the threshold")
	}

	before := calls
	c.Write()
	if calls != before+1 && c.PendingBytes() > 0 {
		t.Errorf("expected a single attempt below the threshold, got %d", calls-before)
	}
}

func TestConnectionEAGAINIsNotFatal(t *testing.T) {
	root := newTestRoot(t, map[string]string{"a.txt": "abc"})
	c := preparedConn(t, &connSettings{root: root, edge: true}, "GET /a.txt HTTP/1.1\r\n\r\n")

	var out bytes.Buffer
	c.writev = chunkedWritev(&out, []int{0})
	n, err := c.Write()
	if !errors.Is(err, unix.EAGAIN) || n != 0 {
		t.Fatalf("expected EAGAIN with nothing written, got n=%d err=%v", n, err)
	}
	if c.PendingBytes() == 0 {
		t.Fatal("expected bytes to remain queued")
	}
}

func TestConnectionReadHandleWrite(t *testing.T) {
	root := newTestRoot(t, map[string]string{"index.html": "<h1>home</h1>"})
	fd, peer := socketPair(t)

	c := newConnection()
	c.init(fd, netip.MustParseAddrPort("127.0.0.1:4000"), &connSettings{root: root, edge: true})
	defer c.Close()

	unix.Write(peer, []byte("GET / HTTP/1.1\r\nConnection: keep-alive\r\n\r\n"))

	n, err := c.Read()
	if !errors.Is(err, unix.EAGAIN) || n == 0 {
		t.Fatalf("expected edge-triggered Read to drain until EAGAIN, n=%d err=%v", n, err)
	}
	if !c.Handle() {
		t.Fatal("expected a complete request")
	}
	if _, err := c.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if c.PendingBytes() != 0 || !c.KeepAlive() {
		t.Errorf("expected response fully written on a keep-alive connection")
	}

	buf := make([]byte, 4096)
	m, _ := unix.Read(peer, buf)
	resp := string(buf[:m])
	if !strings.HasPrefix(resp, "HTTP/1.1 200 OK\r\n") || !strings.HasSuffix(resp, "<h1>home</h1>") {
		t.Errorf("unexpected response %q", resp)
	}
	if c.Addr().Port() != 4000 || c.Fd() != fd {
		t.Errorf("unexpected identity %v %d", c.Addr(), c.Fd())
	}
}

func TestConnectionHandleNeedsData(t *testing.T) {
	c := newConnection()
	c.init(-1, netip.AddrPort{}, &connSettings{root: t.TempDir()})

	if c.Handle() {
		t.Error("expected nothing to do with an empty buffer")
	}
	c.readBuf.AppendString("GET / HTTP/1.1\r\nHost")
	if c.Handle() {
		t.Error("expected an incomplete request to wait for more data")
	}
}

func TestConnectionBadRequest(t *testing.T) {
	c := preparedConn(t, &connSettings{root: t.TempDir()}, "NONSENSE\r\n\r\n")
	head := string(c.iov[0])
	if !strings.HasPrefix(head, "HTTP/1.1 400 Bad Request\r\nConnection: close\r\n") {
		t.Errorf("unexpected response %q", head)
	}
	if c.KeepAlive() {
		t.Error("expected a bad request to close the connection")
	}
}

func TestConnectionReadEOF(t *testing.T) {
	fd, peer := socketPair(t)
	c := newConnection()
	c.init(fd, netip.AddrPort{}, &connSettings{})
	defer c.Close()

	unix.Shutdown(peer, unix.SHUT_WR)
	if _, err := c.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF from a closed peer, got %v", err)
	}
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	fd, _ := socketPair(t)
	c := newConnection()
	c.init(fd, netip.AddrPort{}, &connSettings{})

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	c.Reset()
	if c.Fd() != -1 || c.readBuf.ReadableBytes() != 0 || c.busy || c.closePending {
		t.Error("expected Reset to clear the connection")
	}
}
