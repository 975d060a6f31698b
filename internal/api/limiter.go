package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// keyedLimiter hands out one token bucket per client key.
type keyedLimiter struct {
	limiters sync.Map
	rps      float64
	burst    int
}

func newKeyedLimiter(rps float64, burst int) *keyedLimiter {
	if burst <= 0 {
		burst = 5
	}
	return &keyedLimiter{rps: rps, burst: burst}
}

func (l *keyedLimiter) allow(key string) bool {
	if l == nil || l.rps <= 0 {
		return true
	}
	return l.getLimiter(key).Allow()
}

func (l *keyedLimiter) getLimiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	lim := rate.NewLimiter(rate.Limit(l.rps), l.burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}
