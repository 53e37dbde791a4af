package ratelimit

import (
	"context"
	"sync"
	"time"
)

// memorySweepEvery bounds how often stale windows are dropped.
const memorySweepEvery = 1024

type memoryEntry struct {
	window int64
	count  int
}

// MemoryLimiter implements a fixed-window in-memory rate limiter.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*memoryEntry
	calls    int
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
	}
}

// Allow checks whether the request should be allowed in the current second.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	sec := now.Unix()
	reset := time.Unix(sec+1, 0).UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls >= memorySweepEvery {
		l.calls = 0
		l.sweepLocked(sec)
	}

	entry := l.counters[key]
	if entry == nil {
		entry = &memoryEntry{window: sec}
		l.counters[key] = entry
	}
	if entry.window != sec {
		entry.window = sec
		entry.count = 0
	}
	if entry.count >= limit {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	entry.count++
	return Result{Allowed: true, Remaining: limit - entry.count, Reset: reset}, nil
}

// sweepLocked drops counters whose window has passed. Caller holds l.mu.
func (l *MemoryLimiter) sweepLocked(sec int64) {
	for key, entry := range l.counters {
		if entry.window < sec {
			delete(l.counters, key)
		}
	}
}

// Len reports how many keys are tracked.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}
