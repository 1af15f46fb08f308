// Package backpressure provides a counting semaphore and a circuit breaker
// with retry helpers.
package backpressure

import (
	"context"
	"sync/atomic"

	"lateral/engine/internal/errors"
)

// Semaphore provides a counting semaphore for limiting concurrent operations.
type Semaphore struct {
	ch    chan struct{}
	count int32
	max   int
}

// NewSemaphore creates a new semaphore with the given capacity.
// If max <= 0, the semaphore is unlimited (always succeeds).
func NewSemaphore(max int) *Semaphore {
	if max <= 0 {
		return &Semaphore{max: 0}
	}
	return &Semaphore{
		ch:  make(chan struct{}, max),
		max: max,
	}
}

// Acquire acquires a permit, blocking until one is available or context is cancelled.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if s.max <= 0 {
		return nil // Unlimited
	}

	select {
	case s.ch <- struct{}{}:
		atomic.AddInt32(&s.count, 1)
		return nil
	case <-ctx.Done():
		return errors.Classify(ctx.Err())
	}
}

// TryAcquire attempts to acquire a permit without blocking.
func (s *Semaphore) TryAcquire() bool {
	if s.max <= 0 {
		return true // Unlimited
	}

	select {
	case s.ch <- struct{}{}:
		atomic.AddInt32(&s.count, 1)
		return true
	default:
		return false
	}
}

// Release releases a permit.
func (s *Semaphore) Release() {
	if s.max <= 0 {
		return // Unlimited
	}

	select {
	case <-s.ch:
		atomic.AddInt32(&s.count, -1)
	default:
		// Don't panic on release without acquire
	}
}

// Count returns the current number of acquired permits.
func (s *Semaphore) Count() int {
	return int(atomic.LoadInt32(&s.count))
}

// Max returns the maximum number of permits.
func (s *Semaphore) Max() int {
	return s.max
}

// Available returns the number of available permits.
func (s *Semaphore) Available() int {
	if s.max <= 0 {
		return -1 // Unlimited
	}
	return s.max - s.Count()
}

