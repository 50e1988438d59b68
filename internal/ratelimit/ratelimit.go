package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// JitterLimiter sleeps for a duration drawn uniformly from [min, max] on
// every Wait. It paces requests by pause, not by throughput.
type JitterLimiter struct {
	minDelay time.Duration
	maxDelay time.Duration
	mu       sync.Mutex
}

func NewJitterLimiter(minDelay, maxDelay time.Duration) *JitterLimiter {
	l := &JitterLimiter{}
	l.SetDelay(minDelay, maxDelay)
	return l
}

func (l *JitterLimiter) Wait(ctx context.Context) error {
	delay := l.nextDelay()
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *JitterLimiter) SetDelay(min, max time.Duration) {
	if min < 0 {
		min = 0
	}
	if max < min {
		max = min
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.minDelay = min
	l.maxDelay = max
}

func (l *JitterLimiter) nextDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.minDelay == l.maxDelay {
		return l.minDelay
	}
	return l.minDelay + time.Duration(rand.Int64N(int64(l.maxDelay-l.minDelay)+1))
}
