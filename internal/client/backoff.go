package client

import "time"

// Backoff computes reconnect delays: min(Max, Base * 2^attempt).
// Consecutive delays are non-decreasing up to the cap.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff mirrors the browser client: 1s base, 30s cap.
var DefaultBackoff = Backoff{Base: time.Second, Max: 30 * time.Second}

// Delay returns the wait before reconnect attempt number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBackoff.Base
	}
	max := b.Max
	if max <= 0 {
		max = DefaultBackoff.Max
	}

	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}
