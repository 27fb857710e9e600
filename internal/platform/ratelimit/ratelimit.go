package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter applies per-(team, method) admission control on outbound Slack
// API calls. It is constructed once and passed to whichever component
// needs it; there is no package-level instance.
type Limiter struct {
	mu       sync.Mutex
	perMin   int
	burst    int
	limiters map[string]*rate.Limiter
}

func New(perMinute int) *Limiter {
	if perMinute <= 0 {
		perMinute = 50
	}
	return &Limiter{
		perMin:   perMinute,
		burst:    max(perMinute/10, 1),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the (team, method) pair may proceed or the context
// is done.
func (l *Limiter) Wait(ctx context.Context, teamID, method string) error {
	return l.limiterFor(teamID, method).Wait(ctx)
}

// Allow reports whether the call may proceed without waiting.
func (l *Limiter) Allow(teamID, method string) bool {
	return l.limiterFor(teamID, method).Allow()
}

func (l *Limiter) limiterFor(teamID, method string) *rate.Limiter {
	key := teamID + ":" + method
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[key]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMin)), l.burst)
	l.limiters[key] = lim
	return lim
}
