// Package workerpool runs fire-and-forget background tasks on a bounded ants pool.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pitabwire/util"
	"github.com/rs/xid"
)

// ErrPoolClosed is returned when submitting to a pool that was shut down.
var ErrPoolClosed = errors.New("worker pool is closed")

// ErrPoolOverloaded is returned by a nonblocking pool with no free worker.
var ErrPoolOverloaded = errors.New("worker pool is overloaded")

// Options defines configurable options for the worker pool.
type Options struct {
	Capacity       int
	ExpiryDuration time.Duration
	Nonblocking    bool
	PanicHandler   func(any)
	Logger         *util.LogEntry
}

// Option defines a function that configures worker pool options.
type Option func(*Options)

// WithCapacity sets the maximum number of concurrently running tasks.
func WithCapacity(capacity int) Option {
	return func(opts *Options) {
		opts.Capacity = capacity
	}
}

// WithPoolExpiryDuration sets how long an idle worker is kept.
func WithPoolExpiryDuration(duration time.Duration) Option {
	return func(opts *Options) {
		opts.ExpiryDuration = duration
	}
}

// WithPoolNonblocking makes Submit fail instead of waiting for a free worker.
func WithPoolNonblocking(nonblocking bool) Option {
	return func(opts *Options) {
		opts.Nonblocking = nonblocking
	}
}

// WithPoolPanicHandler sets a panic handler for the pool.
func WithPoolPanicHandler(handler func(any)) Option {
	return func(opts *Options) {
		opts.PanicHandler = handler
	}
}

// WithPoolLogger sets a logger for the pool.
func WithPoolLogger(logger *util.LogEntry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// Pool is a bounded pool of goroutines.
type Pool struct {
	pool *ants.Pool
	log  *util.LogEntry
}

const defaultCapacity = 100

// New creates a pool. Capacity defaults to 100 workers.
func New(ctx context.Context, opts ...Option) (*Pool, error) {
	log := util.Log(ctx)
	wopts := &Options{
		Capacity:       defaultCapacity,
		ExpiryDuration: time.Minute,
		Nonblocking:    true,
		Logger:         log,
	}
	for _, opt := range opts {
		opt(wopts)
	}
	if wopts.Capacity <= 0 {
		wopts.Capacity = defaultCapacity
	}

	panicHandler := wopts.PanicHandler
	if panicHandler == nil {
		panicHandler = func(p any) {
			wopts.Logger.WithField("panic", fmt.Sprint(p)).Error("background task panicked")
		}
	}

	antsOpts := []ants.Option{
		ants.WithExpiryDuration(wopts.ExpiryDuration),
		ants.WithNonblocking(wopts.Nonblocking),
		ants.WithPanicHandler(panicHandler),
		ants.WithLogger(wopts.Logger),
	}

	p, err := ants.NewPool(wopts.Capacity, antsOpts...)
	if err != nil {
		return nil, err
	}
	return &Pool{pool: p, log: wopts.Logger}, nil
}

// Submit schedules task. It returns once the task is queued, not when it has run.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	id := xid.New().String()
	err := p.pool.Submit(func() {
		util.Log(ctx).WithField("task", id).Debug("running background task")
		task()
	})
	switch {
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrPoolClosed
	case errors.Is(err, ants.ErrPoolOverload):
		return ErrPoolOverloaded
	default:
		return err
	}
}

// Running reports how many tasks are executing.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Shutdown releases the pool and waits up to timeout for running tasks.
func (p *Pool) Shutdown(timeout time.Duration) error {
	if timeout <= 0 {
		p.pool.Release()
		return nil
	}
	return p.pool.ReleaseTimeout(timeout)
}
