package bot

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	throttleBurst     = 5
	throttleMaxKeys   = 1024
	throttleIdleAfter = 10 * time.Minute
)

// throttle is a token bucket per channel. A rate <= 0 disables it.
type throttle struct {
	mu       sync.Mutex
	perSec   int
	limiters map[string]*channelLimiter
}

type channelLimiter struct {
	lim      *rate.Limiter
	lastUsed time.Time
}

func newThrottle(perSec int) *throttle {
	return &throttle{perSec: perSec, limiters: map[string]*channelLimiter{}}
}

// SetRate resets all buckets to the new rate.
func (t *throttle) SetRate(perSec int) {
	t.mu.Lock()
	t.perSec = perSec
	t.limiters = map[string]*channelLimiter{}
	t.mu.Unlock()
}

// Wait blocks until channel has a token or ctx ends.
func (t *throttle) Wait(ctx context.Context, channel string) error {
	lim := t.limiter(channel)
	if lim == nil {
		return nil
	}
	return lim.Wait(ctx)
}

func (t *throttle) limiter(channel string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.perSec <= 0 {
		return nil
	}
	now := time.Now()
	if cl, ok := t.limiters[channel]; ok {
		cl.lastUsed = now
		return cl.lim
	}
	if len(t.limiters) >= throttleMaxKeys {
		t.pruneLocked(now)
	}
	cl := &channelLimiter{lim: rate.NewLimiter(rate.Limit(t.perSec), throttleBurst), lastUsed: now}
	t.limiters[channel] = cl
	return cl.lim
}

func (t *throttle) pruneLocked(now time.Time) {
	for k, cl := range t.limiters {
		if now.Sub(cl.lastUsed) > throttleIdleAfter {
			delete(t.limiters, k)
		}
	}
}
