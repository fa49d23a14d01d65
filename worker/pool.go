package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/id"
	"github.com/alimaamoun/DM-Agent/task"
)

// Submitter runs a task on a bounded set of workers.
type Submitter interface {
	Submit(ctx context.Context, t task.Task) (task.Result, error)
}

type outcome struct {
	res task.Result
	err error
}

type request struct {
	ctx  context.Context
	task task.Task
	done chan outcome
}

// Pool runs tasks on a fixed set of worker goroutines fed by a bounded
// queue. The worker count is the only admission control against the
// collaborators; the pool never grows.
type Pool struct {
	executor   *Executor
	workers    int
	queue      chan *request
	submitWait time.Duration
	workerID   id.WorkerID
	logger     *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	// mu guards running. Submit holds the read lock while enqueueing so
	// Stop never strands a request in the queue.
	mu      sync.RWMutex
	running bool

	activeTasks map[*request]context.CancelFunc
	activeMu    sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithQueueSize sets how many tasks may wait for a worker.
func WithQueueSize(n int) PoolOption {
	return func(p *Pool) {
		if n >= 0 {
			p.queue = make(chan *request, n)
		}
	}
}

// WithSubmitWait sets how long Submit waits for queue space before failing
// with ErrPoolSaturated. Zero fails immediately.
func WithSubmitWait(d time.Duration) PoolOption {
	return func(p *Pool) { p.submitWait = d }
}

// NewPool creates a worker pool.
func NewPool(executor *Executor, logger *slog.Logger, opts ...PoolOption) *Pool {
	p := &Pool{
		executor:    executor,
		workers:     4,
		queue:       make(chan *request, 32),
		workerID:    id.NewWorkerID(),
		logger:      logger,
		stopCh:      make(chan struct{}),
		activeTasks: make(map[*request]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("workers", p.workers),
		slog.Int("queue_size", cap(p.queue)),
	)

	for range p.workers {
		p.wg.Add(1)
		go p.workLoop()
	}
	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// If the context has a deadline, in-flight tasks are cancelled when time
// runs out. Queued tasks that never started fail with ErrPoolStopped.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active tasks")
		p.cancelActiveTasks()
		<-done
	}

	for {
		select {
		case req := <-p.queue:
			req.done <- outcome{err: dmagent.ErrPoolStopped}
		default:
			return nil
		}
	}
}

// Submit queues t and waits for its result. It fails with
// ErrPoolSaturated when the queue stays full for the configured submit
// wait, and with ErrPoolStopped when the pool is not running.
func (p *Pool) Submit(ctx context.Context, t task.Task) (task.Result, error) {
	req := &request{ctx: ctx, task: t, done: make(chan outcome, 1)}
	if err := p.enqueue(ctx, req); err != nil {
		return task.Result{}, err
	}

	select {
	case out := <-req.done:
		return out.res, out.err
	case <-ctx.Done():
		// The worker sees the same ctx and abandons the task.
		return task.Result{}, ctx.Err()
	}
}

func (p *Pool) enqueue(ctx context.Context, req *request) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return dmagent.ErrPoolStopped
	}

	select {
	case p.queue <- req:
		return nil
	default:
	}
	if p.submitWait <= 0 {
		return dmagent.ErrPoolSaturated
	}

	timer := time.NewTimer(p.submitWait)
	defer timer.Stop()
	select {
	case p.queue <- req:
		return nil
	case <-timer.C:
		return dmagent.ErrPoolSaturated
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Queued returns the number of tasks waiting for a worker.
func (p *Pool) Queued() int { return len(p.queue) }

// Active returns the number of tasks currently running.
func (p *Pool) Active() int {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	return len(p.activeTasks)
}

func (p *Pool) workLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case req := <-p.queue:
			p.run(req)
		}
	}
}

func (p *Pool) run(req *request) {
	ctx, cancel := context.WithCancel(req.ctx)
	defer cancel()
	p.track(req, cancel)
	defer p.untrack(req)

	res, err := p.executor.Execute(ctx, req.task)
	if err != nil {
		p.logger.Debug("task failed",
			slog.String("kind", string(req.task.Kind)),
			slog.String("job_id", req.task.JobID.String()),
			slog.Int("attempts", res.Attempts),
			slog.String("error", err.Error()),
		)
	}
	req.done <- outcome{res: res, err: err}
}

func (p *Pool) track(req *request, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeTasks[req] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrack(req *request) {
	p.activeMu.Lock()
	delete(p.activeTasks, req)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveTasks() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for req, cancel := range p.activeTasks {
		p.logger.Warn("cancelling active task",
			slog.String("kind", string(req.task.Kind)),
			slog.String("job_id", req.task.JobID.String()),
		)
		cancel()
	}
}
