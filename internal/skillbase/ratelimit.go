package skillbase

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// intentRateLimiter drops inbound intent messages once the per-interval
// budget is spent. A single misbehaving intent engine republishing in a
// loop would otherwise fan out into one database query per message.
// Counters are atomic; allow() stays lock-free on the receive path.
type intentRateLimiter struct {
	count    atomic.Int64
	dropped  atomic.Int64
	limit    int64
	interval time.Duration
	logger   *slog.Logger
}

func newIntentRateLimiter(limit int64, interval time.Duration, logger *slog.Logger) *intentRateLimiter {
	return &intentRateLimiter{
		limit:    limit,
		interval: interval,
		logger:   logger,
	}
}

// start runs the interval reset loop until ctx is cancelled. Each
// interval that saw drops is summarized in a single warning so the log
// records the overload without being part of it.
func (r *intentRateLimiter) start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			received := r.count.Swap(0)
			dropped := r.dropped.Swap(0)
			if dropped > 0 {
				r.logger.Warn("intent overload summary",
					"received", received,
					"dropped", dropped,
					"interval", r.interval.String(),
					"limit", r.limit,
				)
			}
		}
	}
}

// allow reports whether the intent may be processed. The first message
// over the budget logs a warning immediately; the rest of the interval
// is dropped silently and accounted for in the reset summary.
func (r *intentRateLimiter) allow() bool {
	n := r.count.Add(1)
	if n <= r.limit {
		return true
	}
	if n == r.limit+1 {
		r.logger.Warn("intent rate limit hit, dropping until next interval",
			"limit", r.limit,
			"interval", r.interval.String(),
		)
	}
	r.dropped.Add(1)
	return false
}
