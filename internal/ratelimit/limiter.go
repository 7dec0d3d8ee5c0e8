// Package ratelimit implements sliding-window admission control for the
// generation service. The upstream quota is global, so a single Limiter is
// shared by every caller in the process.
package ratelimit

import (
	"errors"
	"sync"
	"time"

	"github.com/mfenderov/knowra/internal/clock"
)

// ErrRateLimited is returned when the window is full.
var ErrRateLimited = errors.New("rate limit exceeded, try again later")

// Reference values for the generation service quota.
const (
	DefaultMaxRequests = 60
	DefaultWindow      = time.Minute
)

// Limiter admits at most max calls in any rolling window.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	stamps []time.Time // admission times, oldest first
	clock  clock.Clock
}

// New creates a Limiter. A nil clock means wall time.
func New(max int, window time.Duration, c clock.Clock) *Limiter {
	if max <= 0 {
		max = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Limiter{
		max:    max,
		window: window,
		stamps: make([]time.Time, 0, max),
		clock:  c,
	}
}

// Allow trims expired admissions and records a new one if there is room.
// A rejected call leaves the window untouched.
func (l *Limiter) Allow() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.trim(now)

	if len(l.stamps) >= l.max {
		return ErrRateLimited
	}
	l.stamps = append(l.stamps, now)
	return nil
}

// Remaining reports how many admissions the current window still allows.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.trim(l.clock.Now())
	return l.max - len(l.stamps)
}

func (l *Limiter) trim(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && l.stamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
