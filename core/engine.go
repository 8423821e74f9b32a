//go:build linux

package core

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/searchktools/fast-static/core/observability"
	"github.com/searchktools/fast-static/core/poller"
	"github.com/searchktools/fast-static/core/pools"
	"github.com/searchktools/fast-static/core/timer"
)

// Options configures an Engine
type Options struct {
	Port     int
	TrigMode int // 0 LT, 1 ET connections, 2 ET listener, 3+ ET both

	// IdleTimeout evicts connections without activity; <= 0 disables it
	IdleTimeout time.Duration
	OptLinger   bool

	Workers        int
	QueueSize      int
	MaxBurst       int
	MaxConnections int

	Root string
}

// action is what a worker asks the reactor to do once its task is done
type action uint8

const (
	armRead action = iota
	armWrite
	closeConn
)

type completion struct {
	conn *Connection
	act  action
}

// Engine is the reactor. One goroutine runs Serve and owns the poller
// registrations, the connection table and the timer heap. Workers hand
// results back through completions and never touch any of them.
type Engine struct {
	opts Options
	log  zerolog.Logger

	settings     connSettings
	listenEvents uint32
	connEvents   uint32

	listenFd int
	addr     netip.AddrPort
	poller   poller.Poller
	timers   *timer.Heap
	workers  *pools.WorkerPool
	connPool *pools.ConnectionPool[*Connection]
	conns    map[int]*Connection
	monitor  *observability.ResponseMonitor

	mu          sync.Mutex
	completions []completion
	spare       []completion

	serving      atomic.Bool
	closing      atomic.Bool
	teardownOnce sync.Once
	done         chan struct{}

	stats struct {
		active   atomic.Int64
		accepted atomic.Uint64
		rejected atomic.Uint64
		evicted  atomic.Uint64
		closed   atomic.Uint64
	}
}

// NewEngine creates an engine; zero Options fields take their defaults
func NewEngine(opts Options, log zerolog.Logger) *Engine {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = DefaultMaxConnections
	}
	if opts.Root == "" {
		opts.Root = DefaultRoot
	}

	e := &Engine{
		opts:     opts,
		log:      log,
		listenFd: -1,
		timers:   timer.NewHeap(),
		connPool: pools.NewConnectionPool(newConnection),
		conns:    make(map[int]*Connection, 1024),
		monitor:  observability.NewResponseMonitor(),
		done:     make(chan struct{}),
	}
	e.settings.root = opts.Root
	e.initEventMode(opts.TrigMode)
	return e
}

func (e *Engine) initEventMode(mode int) {
	e.listenEvents = poller.RDHup
	e.connEvents = poller.OneShot | poller.RDHup

	switch mode {
	case 0:
	case 1:
		e.connEvents |= poller.EdgeTriggered
	case 2:
		e.listenEvents |= poller.EdgeTriggered
	default:
		e.listenEvents |= poller.EdgeTriggered
		e.connEvents |= poller.EdgeTriggered
	}
	e.settings.edge = e.connEvents&poller.EdgeTriggered != 0
}

// Listen binds the listening socket and starts the worker pool
func (e *Engine) Listen() error {
	if e.closing.Load() {
		return ErrEngineClosed
	}

	fd, addr, err := listenSocket(e.opts.Port, e.opts.OptLinger)
	if err != nil {
		return err
	}

	p, err := poller.NewPoller()
	if err != nil {
		unix.Close(fd)
		return err
	}
	if err := p.Add(fd, poller.In|e.listenEvents); err != nil {
		p.Close()
		unix.Close(fd)
		return fmt.Errorf("register listener: %w", err)
	}

	e.listenFd = fd
	e.addr = addr
	e.poller = p
	e.workers = pools.NewWorkerPoolWithConfig(pools.WorkerPoolConfig{
		Workers:   e.opts.Workers,
		QueueSize: e.opts.QueueSize,
		MaxBurst:  e.opts.MaxBurst,
	})

	e.log.Info().
		Str("addr", addr.String()).
		Int("trig_mode", e.opts.TrigMode).
		Bool("edge_conn", e.settings.edge).
		Bool("edge_listen", e.listenEvents&poller.EdgeTriggered != 0).
		Dur("idle_timeout", e.opts.IdleTimeout).
		Str("root", e.opts.Root).
		Msg("listening")
	return nil
}

// Addr returns the bound address, useful when listening on port 0
func (e *Engine) Addr() netip.AddrPort {
	return e.addr
}

// Run listens and serves until Shutdown
func (e *Engine) Run() error {
	if err := e.Listen(); err != nil {
		return err
	}
	return e.Serve()
}

// Serve runs the event loop on the calling goroutine until Shutdown
func (e *Engine) Serve() error {
	if e.poller == nil {
		return ErrNotListening
	}
	if !e.serving.CompareAndSwap(false, true) {
		return ErrAlreadyServing
	}
	defer e.teardown()

	for !e.closing.Load() {
		timeout := -1
		if e.opts.IdleTimeout > 0 {
			timeout = e.timers.NextTimeout()
		}

		events, err := e.poller.Wait(timeout)
		if err != nil {
			return fmt.Errorf("epoll wait: %w", err)
		}
		for _, ev := range events {
			e.dispatch(ev)
		}
		e.drainCompletions()
	}
	return nil
}

// Shutdown stops the event loop, waits for in-flight tasks and closes
// every connection. It returns ctx.Err() if that takes longer than ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.closing.Store(true)
	if !e.serving.Load() {
		e.teardown()
		return nil
	}
	if e.poller != nil {
		e.poller.Wake()
	}

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) dispatch(ev poller.Event) {
	if ev.Fd == e.listenFd {
		e.acceptConnections()
		return
	}

	c, ok := e.conns[ev.Fd]
	if !ok {
		return
	}

	switch {
	case ev.Events&(poller.RDHup|poller.Hup|poller.Err) != 0:
		e.closeConnection(c)
	case ev.Events&poller.In != 0:
		e.extendTimer(c)
		e.submit(c, e.onRead)
	case ev.Events&poller.Out != 0:
		e.extendTimer(c)
		e.submit(c, e.onWrite)
	default:
		e.log.Warn().Int("fd", ev.Fd).Uint32("events", ev.Events).Msg("unexpected event")
	}
}

func (e *Engine) acceptConnections() {
	for {
		nfd, sa, err := unix.Accept4(e.listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if !errors.Is(err, unix.EAGAIN) {
				e.log.Warn().Err(err).Msg("accept failed")
			}
			return
		}

		if len(e.conns) >= e.opts.MaxConnections {
			e.stats.rejected.Add(1)
			e.log.Warn().
				Str("peer", sockaddrToAddrPort(sa).String()).
				Int("max_connections", e.opts.MaxConnections).
				Msg("server busy, connection rejected")
			unix.Close(nfd)
			return
		}

		e.addConnection(nfd, sockaddrToAddrPort(sa))

		if e.listenEvents&poller.EdgeTriggered == 0 {
			return
		}
	}
}

func (e *Engine) addConnection(fd int, addr netip.AddrPort) {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		e.log.Debug().Err(err).Int("fd", fd).Msg("set TCP_NODELAY")
	}

	c := e.connPool.Get()
	c.init(fd, addr, &e.settings)

	if err := e.poller.Add(fd, poller.In|e.connEvents); err != nil {
		e.log.Error().Err(err).Int("fd", fd).Msg("register connection")
		c.Close()
		e.connPool.Put(c)
		return
	}
	e.conns[fd] = c
	if e.opts.IdleTimeout > 0 {
		e.timers.Add(fd, e.opts.IdleTimeout, func() { e.expire(c) })
	}

	e.stats.accepted.Add(1)
	e.stats.active.Add(1)
	e.log.Debug().Int("fd", fd).Str("peer", addr.String()).Msg("client connected")
}

func (e *Engine) extendTimer(c *Connection) {
	if e.opts.IdleTimeout > 0 {
		e.timers.Adjust(c.fd, e.opts.IdleTimeout)
	}
}

func (e *Engine) expire(c *Connection) {
	e.stats.evicted.Add(1)
	e.log.Debug().Int("fd", c.fd).Str("peer", c.addr.String()).Msg("idle connection evicted")
	e.closeConnection(c)
}

// submit hands c to a worker. c stays busy until its completion is drained.
func (e *Engine) submit(c *Connection, fn func(*Connection) action) {
	c.busy = true
	_, err := e.workers.Submit(func() error {
		e.complete(c, fn(c))
		return nil
	})
	if err != nil {
		c.busy = false
		e.closeConnection(c)
	}
}

// complete runs on a worker goroutine
func (e *Engine) complete(c *Connection, act action) {
	e.mu.Lock()
	e.completions = append(e.completions, completion{conn: c, act: act})
	e.mu.Unlock()
	e.poller.Wake()
}

func (e *Engine) drainCompletions() {
	e.mu.Lock()
	batch := e.completions
	e.completions = e.spare[:0]
	e.mu.Unlock()

	for _, cp := range batch {
		c := cp.conn
		c.busy = false

		if c.closePending || cp.act == closeConn {
			c.closePending = false
			e.closeConnection(c)
			continue
		}

		events := e.connEvents | poller.In
		if cp.act == armWrite {
			events = e.connEvents | poller.Out
		}
		if err := e.poller.Mod(c.fd, events); err != nil {
			e.log.Error().Err(err).Int("fd", c.fd).Msg("re-arm connection")
			e.closeConnection(c)
		}
	}

	clear(batch)
	e.spare = batch[:0]
}

// closeConnection is the only way a connection leaves the table. A close
// that arrives while a worker holds c is deferred to its completion.
func (e *Engine) closeConnection(c *Connection) {
	if c.busy {
		c.closePending = true
		return
	}
	if cur, ok := e.conns[c.fd]; !ok || cur != c {
		return
	}

	fd := c.fd
	e.poller.Remove(fd)
	e.timers.Remove(fd)
	delete(e.conns, fd)
	if err := c.Close(); err != nil {
		e.log.Warn().Err(err).Int("fd", fd).Msg("close connection")
	}
	e.connPool.Put(c)

	e.stats.closed.Add(1)
	e.stats.active.Add(-1)
	e.log.Debug().Int("fd", fd).Msg("client closed")
}

func (e *Engine) onRead(c *Connection) action {
	if _, err := c.Read(); err != nil && !errors.Is(err, unix.EAGAIN) {
		return closeConn
	}
	return e.process(c)
}

func (e *Engine) process(c *Connection) action {
	if c.Handle() {
		return armWrite
	}
	return armRead
}

func (e *Engine) onWrite(c *Connection) action {
	_, err := c.Write()
	if c.PendingBytes() == 0 {
		e.monitor.Record(c.resp.Code(), c.Elapsed())
		if c.KeepAlive() {
			return e.process(c)
		}
		return closeConn
	}
	if err == nil || errors.Is(err, unix.EAGAIN) {
		return armWrite
	}
	return closeConn
}

func (e *Engine) teardown() {
	e.teardownOnce.Do(func() {
		defer close(e.done)

		if e.listenFd >= 0 {
			if e.poller != nil {
				e.poller.Remove(e.listenFd)
			}
			unix.Close(e.listenFd)
			e.listenFd = -1
		}
		if e.workers != nil {
			e.workers.Close()
		}

		e.drainCompletions()
		for _, c := range e.conns {
			c.busy = false
			e.closeConnection(c)
		}
		e.timers.Clear()

		if e.poller != nil {
			e.poller.Close()
		}
		e.log.Info().Uint64("accepted", e.stats.accepted.Load()).Msg("engine stopped")
	})
}
