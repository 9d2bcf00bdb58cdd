package feed

import (
	"time"

	"github.com/jpillora/backoff"
)

// DefaultReconnectDelay is the pause before re-dialing a dropped stream.
const DefaultReconnectDelay = 5 * time.Second

// Backoff yields the wait before each reconnect attempt and is reset once a
// connection opens. *backoff.Backoff satisfies it.
type Backoff interface {
	Duration() time.Duration
	Reset()
	Attempt() float64
}

// FixedDelay waits the same delay before every attempt, with unbounded retries.
func FixedDelay(d time.Duration) *backoff.Backoff {
	return &backoff.Backoff{Min: d, Max: d, Factor: 1}
}

// Exponential doubles the wait per consecutive failure, with jitter, capped at max.
func Exponential(min, max time.Duration) *backoff.Backoff {
	return &backoff.Backoff{Min: min, Max: max, Factor: 2, Jitter: true}
}

// NewBackoff picks the policy from configuration: a cap above the base delay
// enables exponential growth, anything else keeps the fixed delay.
func NewBackoff(base, maxDelay time.Duration) *backoff.Backoff {
	if base <= 0 {
		base = DefaultReconnectDelay
	}
	if maxDelay > base {
		return Exponential(base, maxDelay)
	}
	return FixedDelay(base)
}
