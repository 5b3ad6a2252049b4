package retry

import (
	"math"
	"time"
)

// Backoff computes the delay before the next retry attempt.
type Backoff interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff grows delays by powers of two, capped at Max.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// Next returns the delay for the given attempt (1-based): Base*2^(attempt-1),
// never above Max.
func (b ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	// shifting past 62 bits overflows time.Duration
	shift := attempt - 1
	if shift > 32 {
		shift = 32
	}
	delay := base << shift
	if delay <= 0 || (b.Max > 0 && delay > b.Max) {
		if b.Max > 0 {
			return b.Max
		}
		return time.Duration(math.MaxInt64)
	}
	return delay
}

// Policy couples a backoff with an attempt budget.
type Policy struct {
	Backoff     Backoff
	MaxAttempts int
}

// Allow reports whether another attempt may be scheduled after failed
// consecutive failures. A non-positive MaxAttempts means unlimited.
func (p Policy) Allow(failed int) bool {
	return p.MaxAttempts <= 0 || failed < p.MaxAttempts
}

// Delay returns the wait before attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return DefaultBackoff().Next(attempt)
	}
	return p.Backoff.Next(attempt)
}

// DefaultBackoff returns the default HTTP retry policy.
func DefaultBackoff() Backoff {
	return ExponentialBackoff{
		Base: 100 * time.Millisecond,
		Max:  2 * time.Second,
	}
}

// ReconnectPolicy is the realtime reconnect schedule: 1s doubling up to 30s,
// ten attempts.
func ReconnectPolicy() Policy {
	return Policy{
		Backoff:     ExponentialBackoff{Base: time.Second, Max: 30 * time.Second},
		MaxAttempts: 10,
	}
}
