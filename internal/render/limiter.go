package render

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// limiter bounds the renderer's own resource use: a weighted semaphore caps
// concurrent browser sessions and a per-origin token bucket paces navigation
// so one busy target cannot be hammered by parallel tasks.
type limiter struct {
	sessions *semaphore.Weighted

	mu      sync.Mutex
	origins map[string]*rate.Limiter
	qps     rate.Limit
}

func newLimiter(maxSessions int64, qps float64) *limiter {
	if maxSessions <= 0 {
		maxSessions = 1
	}
	if qps <= 0 {
		qps = 1
	}
	return &limiter{
		sessions: semaphore.NewWeighted(maxSessions),
		origins:  make(map[string]*rate.Limiter),
		qps:      rate.Limit(qps),
	}
}

// Acquire blocks until a session slot is free and the origin's pacing allows
// another navigation. The returned release function must run on every exit
// path of the caller.
func (l *limiter) Acquire(ctx context.Context, origin string) (func(), error) {
	if err := l.sessions.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := l.forOrigin(origin).Wait(ctx); err != nil {
		l.sessions.Release(1)
		return nil, err
	}
	return func() { l.sessions.Release(1) }, nil
}

func (l *limiter) forOrigin(origin string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.origins[origin]
	if !ok {
		lim = rate.NewLimiter(l.qps, 1)
		l.origins[origin] = lim
	}
	return lim
}

// originOf reduces a URL to its scheme://host pacing key. Unparseable URLs
// share one bucket; they will fail navigation anyway.
func originOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Scheme + "://" + parsed.Host
}
