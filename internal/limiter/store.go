// Package limiter provides the counter store backing the gateway's rate
// limiting. Counters are ephemeral and TTL-bound: losing them on restart
// fails open for at most one window, which is acceptable.
package limiter

import (
	"errors"
	"time"
)

// ErrContention is returned when a counter could not be incremented after
// repeated attempts because it kept expiring mid-operation. Callers should
// treat it as an infrastructure failure, not as a limit decision.
var ErrContention = errors.New("limiter: counter contention")

// CounterStore is the single shared-mutation primitive the pipeline relies
// on. Hit must be atomic with respect to concurrent callers on the same
// key: two racing requests must observe distinct post-increment counts.
type CounterStore interface {
	// Hit increments the counter for key, creating it with a fresh window
	// of the given duration when absent or expired. It returns the
	// post-increment count and the time remaining in the current window.
	Hit(key string, window time.Duration) (count int64, remaining time.Duration, err error)

	// Peek returns the current count and remaining window without
	// incrementing. A zero count means no live window exists.
	Peek(key string) (count int64, remaining time.Duration)

	// Reset discards the counter for key.
	Reset(key string)
}
