package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// subjectLimiter keeps one token bucket per subject. Entries are created
// lazily and never expire; the number of distinct subjects refreshing
// within one process lifetime is expected to stay small.
type subjectLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newSubjectLimiter(perMinute int) *subjectLimiter {
	return &subjectLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

func (l *subjectLimiter) allow(subject string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[subject]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[subject] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}
