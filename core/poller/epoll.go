//go:build linux

package poller

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Interest and readiness flags
const (
	In            = uint32(unix.EPOLLIN)
	Out           = uint32(unix.EPOLLOUT)
	RDHup         = uint32(unix.EPOLLRDHUP)
	Hup           = uint32(unix.EPOLLHUP)
	Err           = uint32(unix.EPOLLERR)
	EdgeTriggered = uint32(unix.EPOLLET)
	OneShot       = uint32(unix.EPOLLONESHOT)
)

// EpollPoller is an epoll-based I/O multiplexer with an eventfd for
// cross-goroutine wake-ups.
type EpollPoller struct {
	epfd   int
	wakefd int
	events []unix.EpollEvent
	ready  []Event
}

// NewPoller creates a new Poller (Linux)
func NewPoller() (Poller, error) {
	return NewEpollPoller(1024)
}

// NewEpollPoller creates an epoll instance reporting up to maxEvents per Wait
func NewEpollPoller(maxEvents int) (*EpollPoller, error) {
	if maxEvents <= 0 {
		maxEvents = 1024
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	p := &EpollPoller{
		epfd:   epfd,
		wakefd: wakefd,
		events: make([]unix.EpollEvent, maxEvents),
		ready:  make([]Event, 0, maxEvents),
	}
	if err := p.Add(wakefd, In); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Add adds a file descriptor to the watch list
func (p *EpollPoller) Add(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Mod replaces the interest set of fd, re-arming one-shot registrations
func (p *EpollPoller) Mod(fd int, events uint32) error {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Remove removes a file descriptor from the watch list
func (p *EpollPoller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks for up to timeout milliseconds (-1 forever). The returned
// slice is reused by the next call. Wake-ups are consumed here and never
// reported as events.
func (p *EpollPoller) Wait(timeout int) ([]Event, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeout)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, err
	}

	p.ready = p.ready[:0]
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Fd)
		if fd == p.wakefd {
			p.drainWake()
			continue
		}
		p.ready = append(p.ready, Event{Fd: fd, Events: p.events[i].Events})
	}
	return p.ready, nil
}

// Wake interrupts a blocked Wait. It is safe for concurrent use.
func (p *EpollPoller) Wake() error {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	_, err := unix.Write(p.wakefd, one[:])
	// a full counter still leaves the fd readable
	if errors.Is(err, unix.EAGAIN) {
		return nil
	}
	return err
}

func (p *EpollPoller) drainWake() {
	var buf [8]byte
	unix.Read(p.wakefd, buf[:])
}

// Close closes the Poller
func (p *EpollPoller) Close() error {
	err := unix.Close(p.wakefd)
	if cerr := unix.Close(p.epfd); err == nil {
		err = cerr
	}
	return err
}
