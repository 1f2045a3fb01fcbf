package core

// limiter.go bounds how many node evaluations run at once. Reading or
// writing a table holds the whole table in memory, so evaluations queue for
// a slot and give up with ErrTooManyEvaluations after maxWait.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyEvaluations is returned when no evaluation slot frees up within
// the wait time. Clients should retry after a short delay.
var ErrTooManyEvaluations = errors.New("too many concurrent evaluations, please try again later")

// DefaultMaxConcurrentEvaluations is the default limit for parallel evaluations.
const DefaultMaxConcurrentEvaluations = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// EvalLimiter is a counting semaphore over node evaluations.
type EvalLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewEvalLimiter allows at most maxConcurrent simultaneous evaluations.
// Non-positive arguments fall back to the defaults.
func NewEvalLimiter(maxConcurrent int, maxWait time.Duration) *EvalLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentEvaluations
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &EvalLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire waits for a slot. It returns ctx.Err() if ctx ends first and
// ErrTooManyEvaluations if maxWait elapses. Callers must Release a slot
// they acquired.
func (l *EvalLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyEvaluations
	}
}

// TryAcquire takes a slot without blocking.
func (l *EvalLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *EvalLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.semaphore
}

// Do runs fn while holding a slot.
func (l *EvalLimiter) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn(ctx)
}

// ActiveCount returns the number of running evaluations.
func (l *EvalLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// MaxConcurrent returns the slot count.
func (l *EvalLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// Available returns the number of free slots.
func (l *EvalLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until no evaluation is running or ctx ends.
// Used during shutdown.
func (l *EvalLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a snapshot of the limiter for health output.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *EvalLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: l.MaxConcurrent(),
	}
}
