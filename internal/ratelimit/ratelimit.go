// Package ratelimit provides fixed-window counters keyed by caller. A window
// opens at a key's first hit and the count resets once it lapses.
package ratelimit

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is how long a rejected caller should wait.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.ResetAt.After(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Limiter counts one hit for key and decides whether it is within limit.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

var rejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ratelimit_rejections_total",
	Help: "Requests rejected by a fixed-window limiter",
}, []string{"scope"})

func decide(scope string, limit, count int, resetAt time.Time) Decision {
	d := Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   resetAt,
	}
	if !d.Allowed {
		rejections.WithLabelValues(scope).Inc()
	}
	return d
}
