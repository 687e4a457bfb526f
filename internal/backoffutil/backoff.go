// Package backoffutil builds the exponential-backoff policy a Dialer
// uses to schedule reconnect attempts, wrapping cenkalti/backoff/v4
// the way agent/backoffconfig already does for this codebase's other
// retry needs, but tuned to spec.md section 4.4's policy instead:
// deterministic doubling with no jitter and no elapsed-time cap, since
// a Dialer must retry forever until explicitly closed.
package backoffutil

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// minFloor is the delay substituted for a configured reconnect_time_min
// of zero. spec.md section 9 flags the source behavior of an
// immediate, delay-free retry loop on reconnect_time_min=0 as worth
// fixing in the rewrite; a Dialer instead retries at this floor so a
// broken endpoint cannot spin a goroutine in a busy loop.
const minFloor = time.Millisecond

// New returns a policy that starts at min (floored to minFloor) and
// doubles on every failure up to max, resetting to min after a
// successful connect. It never reports Stop: the Dialer's reconnect
// loop in dialer.go is responsible for honoring Dialer.Close, not the
// backoff policy.
func New(min, max time.Duration) *backoff.ExponentialBackOff {
	if min <= 0 {
		min = minFloor
	}
	if max < min {
		max = min
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min
	b.MaxInterval = max
	b.Multiplier = 2.0
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // retry forever
	b.Reset()
	return b
}
