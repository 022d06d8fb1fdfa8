// Package ratelimit implements a fixed-window request counter keyed by
// client address. The limiter is injected into the router so tests can reset
// it deterministically instead of restarting the process.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window

	windowSize time.Duration
	max        int
	now        func() time.Time
}

func New(windowSize time.Duration, max int) *Limiter {
	if windowSize <= 0 {
		windowSize = 15 * time.Minute
	}
	if max <= 0 {
		max = 300
	}
	return &Limiter{
		windows:    make(map[string]*window),
		windowSize: windowSize,
		max:        max,
		now:        time.Now,
	}
}

// Allow records one request for key and reports whether it is within the
// current window's cap.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.windowSize {
		l.windows[key] = &window{start: now, count: 1}
		return true
	}

	w.count++
	return w.count <= l.max
}

// Reset clears every counter. Test hook.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = make(map[string]*window)
}

// SetClock overrides the time source. Test hook.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
