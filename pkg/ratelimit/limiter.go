// Package ratelimit gates outbound writes to the hub.
package ratelimit

import (
	"sync"
	"time"
)

// DefaultMaxRate is the maximum sends per second accepted by the hub.
const DefaultMaxRate = 20

// Window is the span over which MaxRate is enforced.
const Window = time.Second

// Limiter admits at most MaxRate sends within any rolling Window.
// It keeps the admit times of the last MaxRate sends; a send is denied while
// the oldest of them is less than one Window old. Allow never blocks.
type Limiter struct {
	// Now provides the time, defaults to time.Now.
	Now func() time.Time

	lock    sync.Mutex
	admits  []time.Time
	next    int
	maxRate int
}

// New creates a Limiter admitting at most maxRate sends per rolling second.
// A fresh Limiter admits a burst of maxRate immediately.
func New(maxRate int) *Limiter {
	if maxRate <= 0 {
		maxRate = DefaultMaxRate
	}
	return &Limiter{
		Now:     time.Now,
		admits:  make([]time.Time, 0, maxRate),
		maxRate: maxRate,
	}
}

// Allow records a send and returns true if it fits in the window.
func (l *Limiter) Allow() bool {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	t := now()

	l.lock.Lock()
	defer l.lock.Unlock()
	if len(l.admits) < l.maxRate {
		l.admits = append(l.admits, t)
		return true
	}
	// admits is a ring once full, next points at the oldest entry.
	if t.Sub(l.admits[l.next]) < Window {
		return false
	}
	l.admits[l.next] = t
	l.next = (l.next + 1) % l.maxRate
	return true
}

// MaxRate returns the configured rate per second.
func (l *Limiter) MaxRate() int {
	return l.maxRate
}
