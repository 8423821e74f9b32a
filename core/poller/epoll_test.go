//go:build linux

package poller

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func newPipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestEpollReadiness(t *testing.T) {
	p, err := NewEpollPoller(16)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	r, w := newPipe(t)
	if err := p.Add(r, In); err != nil {
		t.Fatal(err)
	}

	events, err := p.Wait(0)
	if err != nil || len(events) != 0 {
		t.Fatalf("expected no events on an empty pipe, got %v err=%v", events, err)
	}

	unix.Write(w, []byte("x"))
	events, err = p.Wait(1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Fd != r || events[0].Events&In == 0 {
		t.Fatalf("expected read readiness on %d, got %+v", r, events)
	}
}

func TestEpollOneShotRearm(t *testing.T) {
	p, err := NewEpollPoller(16)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	r, w := newPipe(t)
	p.Add(r, In|OneShot)
	unix.Write(w, []byte("x"))

	if events, _ := p.Wait(1000); len(events) != 1 {
		t.Fatalf("expected one event, got %+v", events)
	}
	if events, _ := p.Wait(0); len(events) != 0 {
		t.Fatalf("expected one-shot interest to be disarmed, got %+v", events)
	}

	if err := p.Mod(r, In|OneShot); err != nil {
		t.Fatal(err)
	}
	if events, _ := p.Wait(1000); len(events) != 1 {
		t.Fatalf("expected event after re-arm, got %+v", events)
	}
}

func TestEpollRemove(t *testing.T) {
	p, _ := NewEpollPoller(16)
	defer p.Close()

	r, w := newPipe(t)
	p.Add(r, In)
	if err := p.Remove(r); err != nil {
		t.Fatal(err)
	}
	unix.Write(w, []byte("x"))

	if events, _ := p.Wait(0); len(events) != 0 {
		t.Errorf("expected no events after Remove, got %+v", events)
	}
}

func TestEpollWake(t *testing.T) {
	p, err := NewEpollPoller(16)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Wake()
		p.Wake()
	}()

	start := time.Now()
	events, err := p.Wait(5000)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("expected wake-ups to be hidden, got %+v", events)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Wake did not interrupt Wait")
	}

	// the counter was drained, so the next Wait times out
	if events, _ := p.Wait(0); len(events) != 0 {
		t.Errorf("expected drained wake fd, got %+v", events)
	}
}
