package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// sessionLimiter keeps one token bucket per session id.
type sessionLimiter struct {
	mu     sync.Mutex
	every  rate.Limit
	burst  int
	limits map[string]*limiterEntry
}

func newSessionLimiter(perMinute, burst int) *sessionLimiter {
	return &sessionLimiter{
		every:  rate.Every(time.Minute / time.Duration(perMinute)),
		burst:  burst,
		limits: make(map[string]*limiterEntry),
	}
}

func (l *sessionLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	entry, ok := l.limits[key]
	if !ok {
		if len(l.limits) >= 1024 {
			l.sweep(now)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.limits[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *sessionLimiter) sweep(now time.Time) {
	for key, e := range l.limits {
		if now.Sub(e.lastSeen) > limiterIdle {
			delete(l.limits, key)
		}
	}
}
