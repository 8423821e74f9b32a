package pools

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ErrPoolClosed is returned by Submit after Close
var ErrPoolClosed = errors.New("worker pool closed")

// Task represents a unit of work
type Task func() error

// Future is the handle to a submitted task's eventual result
type Future struct {
	done chan struct{}
	err  error
}

// Done is closed once the task has run
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the task's error. Only meaningful after Done is closed.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the task has run or ctx is done
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type job struct {
	task   Task
	future *Future
}

// WorkerPoolConfig configures a WorkerPool
type WorkerPoolConfig struct {
	Workers   int           // fixed number of workers, defaults to NumCPU
	QueueSize int           // capacity of the shared task queue
	MaxBurst  int           // tasks a worker runs back to back before yielding
	IdleWait  time.Duration // how long an idle worker waits before re-checking shutdown
}

// WorkerPool runs submitted tasks on a fixed set of OS-thread-locked workers
// pulling from one shared queue. No ordering is guaranteed between tasks.
type WorkerPool struct {
	numWorkers int
	maxBurst   int
	idleWait   time.Duration

	queue  chan job
	mu     sync.RWMutex
	closed atomic.Bool
	wg     sync.WaitGroup

	stats struct {
		tasksSubmitted atomic.Uint64
		tasksCompleted atomic.Uint64
		tasksFailed    atomic.Uint64
		yields         atomic.Uint64
		active         atomic.Int64
	}
}

type worker struct {
	id    int
	pool  *WorkerPool
	burst int
}

// NewWorkerPool creates a pool with default queue, burst and idle settings
func NewWorkerPool(numWorkers int) *WorkerPool {
	return NewWorkerPoolWithConfig(WorkerPoolConfig{Workers: numWorkers})
}

// NewWorkerPoolWithConfig creates and starts a worker pool
func NewWorkerPoolWithConfig(cfg WorkerPoolConfig) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.MaxBurst <= 0 {
		cfg.MaxBurst = 500
	}
	if cfg.IdleWait <= 0 {
		cfg.IdleWait = 100 * time.Millisecond
	}

	pool := &WorkerPool{
		numWorkers: cfg.Workers,
		maxBurst:   cfg.MaxBurst,
		idleWait:   cfg.IdleWait,
		queue:      make(chan job, cfg.QueueSize),
	}

	pool.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		w := &worker{id: i, pool: pool}
		go w.run()
	}

	return pool
}

// Submit enqueues a task, blocking while the queue is full
func (p *WorkerPool) Submit(task Task) (*Future, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	f := &Future{done: make(chan struct{})}
	p.stats.tasksSubmitted.Add(1)
	p.queue <- job{task: task, future: f}
	return f, nil
}

// run is the main loop for a worker goroutine
func (w *worker) run() {
	defer w.pool.wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	idle := time.NewTimer(w.pool.idleWait)
	defer idle.Stop()

	for {
		// Read the flag before draining: once closed is observed every
		// accepted job is already in the queue.
		closing := w.pool.closed.Load()

		select {
		case j := <-w.pool.queue:
			w.execute(j)
			continue
		default:
		}

		if closing {
			return
		}

		idle.Reset(w.pool.idleWait)
		select {
		case j := <-w.pool.queue:
			w.execute(j)
		case <-idle.C:
		}
	}
}

func (w *worker) execute(j job) {
	p := w.pool
	p.stats.active.Add(1)

	j.future.err = runTask(j.task)
	if j.future.err != nil {
		p.stats.tasksFailed.Add(1)
	}
	close(j.future.done)

	p.stats.active.Add(-1)
	p.stats.tasksCompleted.Add(1)

	w.burst++
	if w.burst >= p.maxBurst {
		w.burst = 0
		p.stats.yields.Add(1)
		runtime.Gosched()
	}
}

func runTask(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task()
}

// Close stops accepting tasks, lets workers drain the queue and waits for them
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if !p.closed.CompareAndSwap(false, true) {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats returns pool statistics
func (p *WorkerPool) Stats() WorkerPoolStats {
	completed := p.stats.tasksCompleted.Load()
	submitted := p.stats.tasksSubmitted.Load()
	return WorkerPoolStats{
		NumWorkers:     p.numWorkers,
		TasksSubmitted: submitted,
		TasksCompleted: completed,
		TasksFailed:    p.stats.tasksFailed.Load(),
		TasksPending:   submitted - completed,
		Active:         p.stats.active.Load(),
		Yields:         p.stats.yields.Load(),
	}
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	NumWorkers     int    `json:"num_workers"`
	TasksSubmitted uint64 `json:"tasks_submitted"`
	TasksCompleted uint64 `json:"tasks_completed"`
	TasksFailed    uint64 `json:"tasks_failed"`
	TasksPending   uint64 `json:"tasks_pending"`
	Active         int64  `json:"active"`
	Yields         uint64 `json:"yields"`
}
