package http

import (
	"sync/atomic"
	"time"
)

// rateLimiter counts inbound frames per connection and resets every minute.
// allow runs on the read loop while the reset runs on its own goroutine.
type rateLimiter struct {
	limit   int64
	counter atomic.Int64
	reset   *time.Ticker
}

func newRateLimiter(limit int) *rateLimiter {
	if limit <= 0 {
		return &rateLimiter{}
	}
	return &rateLimiter{
		limit: int64(limit),
		reset: time.NewTicker(time.Minute),
	}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	return r.counter.Add(1) <= r.limit
}

func (r *rateLimiter) startReset(stop <-chan struct{}) {
	if r == nil || r.reset == nil {
		return
	}
	go func() {
		defer r.reset.Stop()
		for {
			select {
			case <-r.reset.C:
				r.counter.Store(0)
			case <-stop:
				return
			}
		}
	}()
}
