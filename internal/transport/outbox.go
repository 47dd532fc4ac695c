package transport

import (
	"context"
	"sync/atomic"
	"time"

	logx "audiolink/pkg/logx"
)

// Outbox forwards platform events to the current update channel without
// blocking the platform client. Updates are dropped when the consumer lags;
// drops are counted and reported periodically instead of per update.
type Outbox struct {
	out     atomic.Pointer[chan<- Update]
	dropped atomic.Uint64
}

// Set swaps the destination channel. A nil channel discards updates.
func (o *Outbox) Set(ch chan<- Update) {
	if ch == nil {
		o.out.Store(nil)
		return
	}
	o.out.Store(&ch)
}

// Send reports whether up was queued.
func (o *Outbox) Send(up Update) bool {
	p := o.out.Load()
	if p == nil {
		return false
	}
	select {
	case *p <- up:
		return true
	default:
		o.dropped.Add(1)
		return false
	}
}

func (o *Outbox) Dropped() uint64 { return o.dropped.Load() }

// ReportLoop logs the drop count every interval until ctx ends.
func (o *Outbox) ReportLoop(ctx context.Context, log logx.Logger, every time.Duration) {
	if every <= 0 {
		every = 5 * time.Second
	}
	var last uint64
	flush := func() {
		n := o.dropped.Load()
		if n == last {
			return
		}
		capacity := 0
		if p := o.out.Load(); p != nil {
			capacity = cap(*p)
		}
		log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n-last), logx.Int("chan_cap", capacity))
		last = n
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-t.C:
			flush()
		}
	}
}
