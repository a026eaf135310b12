package threadpool

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/homebus/homebus/internal/metrics"
	"golang.org/x/sync/semaphore"
)

// Job is a handle to a scheduled task.
type Job struct {
	ID     uuid.UUID
	Key    string
	Period time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	runs   atomic.Int64
}

// Cancel stops future runs. A run already in progress sees its context
// cancelled and is not waited for.
func (j *Job) Cancel() { j.cancel() }

// Done is closed once the job will not run again.
func (j *Job) Done() <-chan struct{} { return j.done }

// Runs reports how many times the task has started.
func (j *Job) Runs() int64 { return j.runs.Load() }

// ScheduledPool runs delayed and periodic jobs with at most Size of them
// executing at once.
type ScheduledPool struct {
	id      PoolID
	size    int
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	slots   *semaphore.Weighted

	// mu protects jobs and closed
	mu     sync.Mutex
	jobs   map[string][]*Job
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ScheduledStats is a point-in-time view of a scheduled pool.
type ScheduledStats struct {
	ID   PoolID   `json:"id"`
	Size int      `json:"size"`
	Jobs int      `json:"jobs"`
	Keys []string `json:"keys"`
}

func newScheduledPool(id PoolID, cfg ScheduledConfig, clk clock.Clock, logger *slog.Logger, m *metrics.Metrics) *ScheduledPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &ScheduledPool{
		id:      id,
		size:    cfg.Size,
		clock:   clk,
		logger:  logger.With("pool", string(id)),
		metrics: m,
		slots:   semaphore.NewWeighted(int64(cfg.Size)),
		jobs:    make(map[string][]*Job),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ID returns the pool identifier.
func (s *ScheduledPool) ID() PoolID { return s.id }

// Schedule runs task once after delay. A non-positive delay runs it as
// soon as a slot is free.
func (s *ScheduledPool) Schedule(key string, delay time.Duration, task Task) (*Job, error) {
	if task == nil {
		return nil, ErrNilTask
	}
	return s.schedule(key, delay, 0, task)
}

// ScheduleRepeating runs task after initialDelay and then every period.
// Runs never overlap for the same job; a run that takes longer than period
// delays the next one.
func (s *ScheduledPool) ScheduleRepeating(key string, initialDelay, period time.Duration, task Task) (*Job, error) {
	if task == nil {
		return nil, ErrNilTask
	}
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	return s.schedule(key, initialDelay, period, task)
}

func (s *ScheduledPool) schedule(key string, delay, period time.Duration, task Task) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrRegistryClosed
	}

	ctx, cancel := context.WithCancel(s.ctx)
	j := &Job{
		ID:     uuid.New(),
		Key:    key,
		Period: period,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	// The timer is armed before returning so that a mock clock advanced
	// right after scheduling observes it.
	var timer *clock.Timer
	if delay > 0 {
		timer = s.clock.Timer(delay)
	}

	s.jobs[key] = append(s.jobs[key], j)
	s.wg.Add(1)
	go s.loop(j, timer, task)

	s.metrics.JobsChanged(string(s.id), 1)
	s.logger.Debug("Job scheduled",
		"key", key,
		"job_id", j.ID,
		"delay", delay,
		"period", period,
	)
	return j, nil
}

func (s *ScheduledPool) loop(j *Job, timer *clock.Timer, task Task) {
	defer s.wg.Done()
	defer s.finish(j)

	if timer != nil {
		select {
		case <-timer.C:
		case <-j.ctx.Done():
			timer.Stop()
			return
		}
	}

	if j.Period <= 0 {
		s.run(j, task)
		return
	}

	ticker := s.clock.Ticker(j.Period)
	defer ticker.Stop()

	s.run(j, task)
	for {
		select {
		case <-ticker.C:
			s.run(j, task)
		case <-j.ctx.Done():
			return
		}
	}
}

func (s *ScheduledPool) run(j *Job, task Task) {
	if j.ctx.Err() != nil {
		return
	}
	if err := s.slots.Acquire(j.ctx, 1); err != nil {
		return
	}
	defer s.slots.Release(1)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Scheduled task panicked",
				"key", j.Key,
				"job_id", j.ID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	j.runs.Add(1)
	task(j.ctx)
}

func (s *ScheduledPool) finish(j *Job) {
	s.mu.Lock()
	list := s.jobs[j.Key]
	for i, other := range list {
		if other == j {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.jobs, j.Key)
	} else {
		s.jobs[j.Key] = list
	}
	s.mu.Unlock()

	j.cancel()
	close(j.done)
	s.metrics.JobsChanged(string(s.id), -1)
}

// Cancel cancels every job scheduled under key and returns how many there
// were. The key is released at once; jobs already running are not
// interrupted beyond their context and finish in the background.
func (s *ScheduledPool) Cancel(key string) int {
	s.mu.Lock()
	jobs := s.jobs[key]
	delete(s.jobs, key)
	s.mu.Unlock()

	for _, j := range jobs {
		j.Cancel()
	}
	if len(jobs) > 0 {
		s.logger.Debug("Jobs cancelled", "key", key, "count", len(jobs))
	}
	return len(jobs)
}

// HasJobs reports whether key has a job that will fire again. A run still
// in progress after Cancel does not count; wait on Job.Done for that.
func (s *ScheduledPool) HasJobs(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs[key]) > 0
}

// Stats returns the current job counts.
func (s *ScheduledPool) Stats() ScheduledStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := ScheduledStats{ID: s.id, Size: s.size, Keys: make([]string, 0, len(s.jobs))}
	for key, jobs := range s.jobs {
		stats.Jobs += len(jobs)
		stats.Keys = append(stats.Keys, key)
	}
	sort.Strings(stats.Keys)
	return stats
}

func (s *ScheduledPool) shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool %s: %w", s.id, ctx.Err())
	}
}
