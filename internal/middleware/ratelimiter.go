package middleware

import (
	"sync/atomic"
	"time"
)

// RateLimiter is a lock-free token bucket, one per websocket connection.
type RateLimiter struct {
	token    int32
	rate     time.Duration
	burst    int32
	lastTick int64
}

func NewRateLimiter(tokens int32, rate time.Duration) *RateLimiter {
	return &RateLimiter{
		token:    tokens,
		rate:     rate,
		burst:    tokens,
		lastTick: time.Now().Unix(),
	}
}

func (l *RateLimiter) Allow() bool {
	now := time.Now().Unix()
	last := atomic.LoadInt64(&l.lastTick)
	elapsed := now - last

	generated := int32(time.Duration(elapsed) * time.Second / l.rate)
	if generated > 0 {
		if atomic.CompareAndSwapInt64(&l.lastTick, last, now) {
			current := atomic.LoadInt32(&l.token)
			newBalance := current + generated
			if newBalance > l.burst {
				newBalance = l.burst
			}
			atomic.StoreInt32(&l.token, newBalance)
		}
	}

	for {
		current := atomic.LoadInt32(&l.token)
		if current <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(&l.token, current, current-1) {
			return true
		}
	}
}
