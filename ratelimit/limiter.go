// Package ratelimit implements a fixed-window request counter per client identifier.
package ratelimit

import (
	"crypto/md5"
	"encoding/hex"
	"log"
	"time"

	"vlagserver/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "vlag_rate_limit_rejections_total",
	Help: "Requests refused because their identifier exceeded the window cap.",
})

// Limiter allows at most max requests per identifier within each window.
// A window starts at the first request and resets on the first request after it elapsed.
type Limiter struct {
	store  Store
	max    int
	window int64 // seconds
	now    func() time.Time
}

// New creates a Limiter over store.
func New(store Store, max int, window time.Duration) *Limiter {
	return &Limiter{
		store:  store,
		max:    max,
		window: int64(window / time.Second),
		now:    time.Now,
	}
}

// Key returns the store key for an identifier.
func Key(identifier string) string {
	sum := md5.Sum([]byte(identifier))
	return hex.EncodeToString(sum[:])
}

// Allow counts one request for identifier and reports whether it is within the cap.
// The count is persisted even when the cap is exceeded, so it keeps growing until the window resets.
// Store failures are logged and the request is allowed.
func (l *Limiter) Allow(identifier string) bool {
	now := l.now().Unix()

	rec, err := l.store.Update(Key(identifier), func(current models.RateLimitRecord, found bool) models.RateLimitRecord {
		if !found || now-current.WindowStart > l.window {
			return models.RateLimitRecord{Requests: 1, WindowStart: now}
		}
		current.Requests++
		return current
	})
	if err != nil {
		log.Printf("WARN: Rate limit store failed for identifier key %s: %v. Allowing request.", Key(identifier), err)
		return true
	}

	if rec.Requests > l.max {
		rejectionsTotal.Inc()
		return false
	}
	return true
}
