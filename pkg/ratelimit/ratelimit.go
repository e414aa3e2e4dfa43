// Package ratelimit is a per-user sliding window limiter used to cap AI
// requests per user.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter allows up to limit events per user within period.
type Limiter struct {
	limit  int
	period time.Duration

	mu         sync.Mutex
	timestamps map[int64][]time.Time
	now        func() time.Time
}

func New(limit int, period time.Duration) *Limiter {
	return &Limiter{
		limit:      limit,
		period:     period,
		timestamps: make(map[int64][]time.Time),
		now:        time.Now,
	}
}

// Allow reports whether userID may proceed, recording the event when it may.
func (l *Limiter) Allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.period)

	kept := l.timestamps[userID][:0]
	for _, ts := range l.timestamps[userID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.timestamps[userID] = kept

	if len(kept) >= l.limit {
		return false
	}
	l.timestamps[userID] = append(kept, now)
	return true
}
