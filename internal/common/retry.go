package common

import (
	"math/rand"
	"time"
)

// RetryPolicy is an explicit backoff schedule. Attempt numbering starts at 1;
// Backoff(n) is the wait before attempt n+1.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
}

// DefaultRetryPolicy mirrors the provider-call discipline: base 1s, factor 2,
// max 3 attempts, capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, Factor: 2}
}

// Backoff returns the exponential delay after the given attempt with up to
// 25% jitter added.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Factor
	}
	if max := float64(p.MaxDelay); p.MaxDelay > 0 && d > max {
		d = max
	}
	jitter := d * 0.25 * rand.Float64()
	return time.Duration(d + jitter)
}
