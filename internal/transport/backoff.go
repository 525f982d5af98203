package transport

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
)

// Backoff is a capped exponential delay with jitter. There is no attempt
// ceiling; callers retry forever.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (b Backoff) normalized() (initial, max time.Duration) {
	initial, max = b.Initial, b.Max
	if initial <= 0 {
		initial = DefaultInitialDelay
	}
	if max <= 0 {
		max = DefaultMaxDelay
	}
	if max < initial {
		max = initial
	}
	return initial, max
}

// Delay returns the wait before retry number attempt (0-based): the base
// Initial*2^attempt capped at Max, jittered into [base/2, base].
func (b Backoff) Delay(attempt int) time.Duration {
	initial, max := b.normalized()
	base := float64(initial) * math.Pow(2, float64(attempt))
	if base > float64(max) {
		base = float64(max)
	}
	half := base / 2
	return time.Duration(half + rand.Float64()*half)
}
