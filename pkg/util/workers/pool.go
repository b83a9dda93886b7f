// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Mark Feghali

package workers

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Task represents a unit of work to be executed
type Task func(ctx context.Context) error

// Result contains the result of a task execution
type Result struct {
	Index int   // Index of the task in submission order
	Err   error // Error if task failed
}

// Pool runs tasks with a bounded number in flight and an optional rate limit
type Pool struct {
	limiter   *rate.Limiter
	semaphore chan struct{}
	mu        sync.Mutex
	results   []Result
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// Config contains configuration for a worker pool
type Config struct {
	Workers   int     // Maximum tasks in flight
	RateLimit float64 // Task starts per second (0 = no limit)
	BurstSize int     // Burst size for rate limiter
}

// NewPool creates a new worker pool
func NewPool(ctx context.Context, cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = cfg.Workers
	}

	poolCtx, cancel := context.WithCancel(ctx)

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.BurstSize)
	}

	return &Pool{
		limiter:   limiter,
		semaphore: make(chan struct{}, cfg.Workers),
		ctx:       poolCtx,
		cancel:    cancel,
	}
}

// Submit schedules a task. Tasks never block Submit; they queue on the
// semaphore instead.
func (p *Pool) Submit(index int, task Task) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.record(index, p.run(task))
	}()
}

func (p *Pool) run(task Task) error {
	select {
	case p.semaphore <- struct{}{}:
		defer func() { <-p.semaphore }()
	case <-p.ctx.Done():
		return p.ctx.Err()
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(p.ctx); err != nil {
			return err
		}
	}

	return task(p.ctx)
}

func (p *Pool) record(index int, err error) {
	p.mu.Lock()
	p.results = append(p.results, Result{Index: index, Err: err})
	p.mu.Unlock()
}

// Wait blocks until every submitted task finished and returns one result
// per task, ordered by index regardless of completion order. The pool
// cannot be reused afterwards.
func (p *Pool) Wait() []Result {
	p.wg.Wait()
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	results := make([]Result, len(p.results))
	copy(results, p.results)
	slices.SortFunc(results, func(a, b Result) int {
		return cmp.Compare(a.Index, b.Index)
	})
	return results
}

// Stop cancels all pending tasks
func (p *Pool) Stop() {
	p.cancel()
}

// RetryConfig contains configuration for retry logic
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns the retry policy used for discovery requests
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// permanentError marks an error that must not be retried
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Retry returns it without further attempts
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry executes a function with exponential backoff, at most
// cfg.MaxAttempts times
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-time.After(delay):
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
