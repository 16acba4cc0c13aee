package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RateLimiter spaces requests per host for politeness
type RateLimiter struct {
	hostLastRequest   map[string]time.Time // hostname -> last request attempt time
	hostLastRequestMu sync.Mutex
	defaultDelay      time.Duration // Used when the caller passes a non-positive delay
	jitter            float64       // Fraction of the delay randomized either way; 0.5 turns 1s into 0.5s..1.5s
	log               *logrus.Entry
}

// NewRateLimiter creates a RateLimiter. jitter is clamped to [0, 1].
func NewRateLimiter(defaultDelay time.Duration, jitter float64, log *logrus.Entry) *RateLimiter {
	if jitter < 0 {
		jitter = 0
	}
	if jitter > 1 {
		jitter = 1
	}
	return &RateLimiter{
		hostLastRequest: make(map[string]time.Time),
		defaultDelay:    defaultDelay,
		jitter:          jitter,
		log:             log,
	}
}

// jittered spreads d uniformly over [d*(1-jitter), d*(1+jitter)]
func (rl *RateLimiter) jittered(d time.Duration) time.Duration {
	if rl.jitter == 0 || d <= 0 {
		return d
	}
	factor := 1 - rl.jitter + rand.Float64()*2*rl.jitter
	return time.Duration(float64(d) * factor)
}

// ApplyDelay sleeps until a jittered minDelay has passed since the last request to host.
// The first request to a host is never delayed. Returns ctx.Err() if cancelled while waiting.
func (rl *RateLimiter) ApplyDelay(ctx context.Context, host string, minDelay time.Duration) error {
	if minDelay <= 0 {
		minDelay = rl.defaultDelay
	}
	if minDelay <= 0 {
		return ctx.Err()
	}

	rl.hostLastRequestMu.Lock()
	lastReqTime, exists := rl.hostLastRequest[host]
	rl.hostLastRequestMu.Unlock()
	if !exists {
		return ctx.Err()
	}

	required := rl.jittered(minDelay)
	elapsed := time.Since(lastReqTime)
	if elapsed >= required {
		return ctx.Err()
	}
	sleep := required - elapsed
	rl.log.WithFields(logrus.Fields{
		"host": host, "sleep": sleep, "required_delay": required, "elapsed": elapsed,
	}).Debug("Rate limit applying sleep")
	return sleepCtx(ctx, sleep)
}

// UpdateLastRequestTime records now as the last request time for host; call it after each attempt
func (rl *RateLimiter) UpdateLastRequestTime(host string) {
	rl.hostLastRequestMu.Lock()
	rl.hostLastRequest[host] = time.Now()
	rl.hostLastRequestMu.Unlock()
}
