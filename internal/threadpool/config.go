package threadpool

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRegistryClosed is returned by every operation after Shutdown.
	ErrRegistryClosed = errors.New("threadpool: registry closed")
	// ErrUnknownPool is returned for a PoolID outside the declared set.
	ErrUnknownPool = errors.New("threadpool: unknown pool")
	// ErrPoolKind is returned when a plain pool is requested for a scheduled
	// id or the other way round.
	ErrPoolKind = errors.New("threadpool: wrong pool kind")
	// ErrNilTask is returned when a nil task is submitted.
	ErrNilTask = errors.New("threadpool: nil task")
	// ErrInvalidPeriod is returned for a non-positive repeat period.
	ErrInvalidPeriod = errors.New("threadpool: period must be positive")
)

// PoolID identifies a pool by purpose.
type PoolID string

const (
	Bindings   PoolID = "bindings"
	Events     PoolID = "events"
	Background PoolID = "background"
)

// IDs lists every pool in a stable order.
func IDs() []PoolID {
	return []PoolID{Bindings, Events, Background}
}

// Valid reports whether id is a declared pool.
func (id PoolID) Valid() bool {
	switch id {
	case Bindings, Events, Background:
		return true
	}
	return false
}

// Scheduled reports whether id names a scheduled pool.
func (id PoolID) Scheduled() bool {
	return id == Background
}

func (id PoolID) String() string { return string(id) }

// Defaults used when no override is configured.
const (
	DefaultMinWorkers    = 4
	DefaultMaxWorkers    = 16
	DefaultKeepAlive     = 1000 * time.Millisecond
	DefaultScheduledSize = 8
)

// PoolConfig sizes a plain worker pool.
type PoolConfig struct {
	MinWorkers int
	MaxWorkers int
	KeepAlive  time.Duration
}

// ScheduledConfig sizes the scheduled pool.
type ScheduledConfig struct {
	Size int
}

// Config sizes every pool of a Registry.
type Config struct {
	Bindings   PoolConfig
	Events     PoolConfig
	Background ScheduledConfig
}

// DefaultConfig returns the built-in sizes.
func DefaultConfig() Config {
	def := PoolConfig{
		MinWorkers: DefaultMinWorkers,
		MaxWorkers: DefaultMaxWorkers,
		KeepAlive:  DefaultKeepAlive,
	}
	return Config{
		Bindings:   def,
		Events:     def,
		Background: ScheduledConfig{Size: DefaultScheduledSize},
	}
}

func (c Config) poolConfig(id PoolID) PoolConfig {
	switch id {
	case Bindings:
		return c.Bindings.normalized()
	case Events:
		return c.Events.normalized()
	}
	return PoolConfig{}.normalized()
}

func (c PoolConfig) normalized() PoolConfig {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.MinWorkers < 0 {
		c.MinWorkers = 0
	}
	if c.MinWorkers > c.MaxWorkers {
		c.MinWorkers = c.MaxWorkers
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	return c
}

func (c ScheduledConfig) normalized() ScheduledConfig {
	if c.Size <= 0 {
		c.Size = DefaultScheduledSize
	}
	return c
}

func (c PoolConfig) String() string {
	return fmt.Sprintf("min=%d max=%d keep_alive=%s", c.MinWorkers, c.MaxWorkers, c.KeepAlive)
}
