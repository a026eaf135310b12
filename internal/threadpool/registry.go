package threadpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/homebus/homebus/internal/metrics"
	"go.uber.org/multierr"
)

// Registry creates and owns the pools. It is safe for concurrent use.
type Registry struct {
	cfg     Config
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	pools     map[PoolID]*Pool
	scheduled map[PoolID]*ScheduledPool
	closed    bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithLogger sets the parent logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry returns a registry that lazily creates pools sized by cfg.
func NewRegistry(cfg Config, opts ...Option) *Registry {
	r := &Registry{
		cfg:       cfg,
		clock:     clock.New(),
		logger:    slog.Default(),
		pools:     make(map[PoolID]*Pool),
		scheduled: make(map[PoolID]*ScheduledPool),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "ThreadPoolRegistry")
	return r
}

// Pool returns the plain pool for id, creating it on first use.
func (r *Registry) Pool(id PoolID) (*Pool, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPool, id)
	}
	if id.Scheduled() {
		return nil, fmt.Errorf("%w: %s is scheduled", ErrPoolKind, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	p, ok := r.pools[id]
	if !ok {
		cfg := r.cfg.poolConfig(id)
		p = newPool(id, cfg, r.clock, r.logger, r.metrics)
		r.pools[id] = p
		r.logger.Info("Pool created", "pool", string(id), "config", cfg.String())
	}
	return p, nil
}

// Scheduled returns the scheduled pool for id, creating it on first use.
func (r *Registry) Scheduled(id PoolID) (*ScheduledPool, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPool, id)
	}
	if !id.Scheduled() {
		return nil, fmt.Errorf("%w: %s is not scheduled", ErrPoolKind, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	s, ok := r.scheduled[id]
	if !ok {
		cfg := r.cfg.Background.normalized()
		s = newScheduledPool(id, cfg, r.clock, r.logger, r.metrics)
		r.scheduled[id] = s
		r.logger.Info("Scheduled pool created", "pool", string(id), "size", cfg.Size)
	}
	return s, nil
}

// Submit runs task on the plain pool id.
func (r *Registry) Submit(id PoolID, task Task) error {
	p, err := r.Pool(id)
	if err != nil {
		return err
	}
	return p.Submit(task)
}

// Stats describes every pool created so far, in declaration order.
type Stats struct {
	Pools     []PoolStats      `json:"pools"`
	Scheduled []ScheduledStats `json:"scheduled"`
}

// Stats returns a snapshot of every created pool.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	pools := make([]*Pool, 0, len(r.pools))
	scheduled := make([]*ScheduledPool, 0, len(r.scheduled))
	for _, id := range IDs() {
		if p, ok := r.pools[id]; ok {
			pools = append(pools, p)
		}
		if s, ok := r.scheduled[id]; ok {
			scheduled = append(scheduled, s)
		}
	}
	r.mu.Unlock()

	stats := Stats{
		Pools:     make([]PoolStats, 0, len(pools)),
		Scheduled: make([]ScheduledStats, 0, len(scheduled)),
	}
	for _, p := range pools {
		stats.Pools = append(stats.Pools, p.Stats())
	}
	for _, s := range scheduled {
		stats.Scheduled = append(stats.Scheduled, s.Stats())
	}
	return stats
}

// Closed reports whether Shutdown has been called.
func (r *Registry) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Shutdown stops every pool. Queued tasks are dropped, running tasks see
// their context cancelled, and Shutdown waits for workers until ctx
// expires. Calling it again is a no-op.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pools := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	scheduled := make([]*ScheduledPool, 0, len(r.scheduled))
	for _, s := range r.scheduled {
		scheduled = append(scheduled, s)
	}
	r.mu.Unlock()

	r.logger.Info("Shutting down pools", "pools", len(pools)+len(scheduled))

	var err error
	// Scheduled jobs go first so they stop feeding the plain pools.
	for _, s := range scheduled {
		err = multierr.Append(err, s.shutdown(ctx))
	}
	for _, p := range pools {
		err = multierr.Append(err, p.shutdown(ctx))
	}

	if err != nil {
		r.logger.Warn("Pool shutdown incomplete", "error", err)
		return err
	}
	r.logger.Info("Pools stopped")
	return nil
}
