package transport

import (
	"math"
	"time"
)

// Backoff computes reconnect delays: Base grows by Growth per attempt and is
// capped at Max. Attempt numbering starts at zero, so the first reconnect
// waits exactly Base.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Growth float64
}

// DefaultBackoff matches the service's reconnect policy: 1s growing by 1.5x,
// capped at 5s.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   time.Second,
		Max:    5 * time.Second,
		Growth: 1.5,
	}
}

// Delay returns the wait before the given reconnect attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(b.Base) * math.Pow(b.Growth, float64(attempt))
	if d > float64(b.Max) {
		return b.Max
	}
	return time.Duration(d)
}
