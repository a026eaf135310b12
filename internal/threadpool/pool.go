package threadpool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/homebus/homebus/internal/metrics"
)

// Task is a unit of work run by a pool. ctx is cancelled when the owning
// job is cancelled or the registry shuts down.
type Task func(ctx context.Context)

// Pool runs tasks from a FIFO queue on a bounded, elastic set of workers.
type Pool struct {
	id      PoolID
	cfg     PoolConfig
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	// mu protects queue, workers, busy and closed
	mu      sync.Mutex
	queue   []Task
	workers int
	busy    int
	closed  bool

	// wake nudges idle workers when a task is queued
	wake chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// PoolStats is a point-in-time view of a plain pool.
type PoolStats struct {
	ID         PoolID `json:"id"`
	MinWorkers int    `json:"min_workers"`
	MaxWorkers int    `json:"max_workers"`
	Workers    int    `json:"workers"`
	Busy       int    `json:"busy"`
	Queued     int    `json:"queued"`
}

func newPool(id PoolID, cfg PoolConfig, clk clock.Clock, logger *slog.Logger, m *metrics.Metrics) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		id:      id,
		cfg:     cfg,
		clock:   clk,
		logger:  logger.With("pool", string(id)),
		metrics: m,
		wake:    make(chan struct{}, cfg.MaxWorkers),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ID returns the pool identifier.
func (p *Pool) ID() PoolID { return p.id }

// Submit queues task for execution. It never blocks on a busy pool.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrRegistryClosed
	}
	p.queue = append(p.queue, task)
	idle := p.workers - p.busy
	spawn := p.workers < p.cfg.MinWorkers ||
		(len(p.queue) > idle && p.workers < p.cfg.MaxWorkers)
	if spawn {
		p.workers++
		p.wg.Add(1)
	}
	p.mu.Unlock()

	p.metrics.TaskSubmitted(string(p.id))
	if spawn {
		p.metrics.WorkersChanged(string(p.id), 1)
		go p.worker()
		return nil
	}

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		if task, ok := p.next(); ok {
			p.run(task)
			continue
		}

		idle := p.clock.Timer(p.cfg.KeepAlive)
		select {
		case <-p.wake:
			idle.Stop()
		case <-idle.C:
			if p.retire() {
				return
			}
		case <-p.ctx.Done():
			idle.Stop()
			p.exit()
			return
		}
	}
}

// next pops the head of the queue and marks the worker busy.
func (p *Pool) next() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || len(p.queue) == 0 {
		return nil, false
	}
	task := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	p.busy++
	return task, true
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
		p.mu.Lock()
		p.busy--
		p.mu.Unlock()
	}()
	task(p.ctx)
}

// retire lets an idle worker exit once the pool is above its minimum.
func (p *Pool) retire() bool {
	p.mu.Lock()
	if len(p.queue) > 0 || p.workers <= p.cfg.MinWorkers {
		p.mu.Unlock()
		return false
	}
	p.workers--
	p.mu.Unlock()

	p.metrics.WorkersChanged(string(p.id), -1)
	p.logger.Debug("Idle worker retired")
	return true
}

func (p *Pool) exit() {
	p.mu.Lock()
	p.workers--
	p.mu.Unlock()
	p.metrics.WorkersChanged(string(p.id), -1)
}

// Stats returns the current worker and queue counts.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		ID:         p.id,
		MinWorkers: p.cfg.MinWorkers,
		MaxWorkers: p.cfg.MaxWorkers,
		Workers:    p.workers,
		Busy:       p.busy,
		Queued:     len(p.queue),
	}
}

// shutdown stops accepting tasks, drops the queue, cancels running tasks
// and waits for workers to exit or ctx to expire.
func (p *Pool) shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	dropped := len(p.queue)
	p.queue = nil
	p.mu.Unlock()

	p.cancel()
	if dropped > 0 {
		p.logger.Warn("Dropped queued tasks on shutdown", "count", dropped)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool %s: %w", p.id, ctx.Err())
	}
}
