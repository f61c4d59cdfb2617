package retry

import (
	"math"
	"time"

	"github.com/marcelsud/commerce-webhooks/webhook"
)

const (
	DefaultBase        = 60 * time.Second
	DefaultCap         = time.Hour
	DefaultMaxAttempts = webhook.DefaultMaxAttempts
)

/* Policy is exponential backoff with a cap and an attempt limit
 * The delay after the n-th failure (n counted from zero) is min(Base*2^n, Cap)
 */
type Policy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// DefaultPolicy returns the 60s / 1h / 5 attempts policy
func DefaultPolicy() Policy {
	return Policy{Base: DefaultBase, Cap: DefaultCap, MaxAttempts: DefaultMaxAttempts}
}

// Backoff returns the delay before the attempt following n previous failures
func (p Policy) Backoff(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if p.Base <= 0 {
		return 0
	}
	delay := p.Base
	for i := 0; i < n; i++ {
		if p.Cap > 0 && delay >= p.Cap {
			break
		}
		// stop doubling before overflow
		if delay > math.MaxInt64/2 {
			break
		}
		delay *= 2
	}
	if p.Cap > 0 && delay > p.Cap {
		return p.Cap
	}
	return delay
}

// Decision is what happens to an item after a failed attempt
type Decision struct {
	// Terminal is true when the item must be marked Failed
	Terminal      bool
	Attempts      int
	NextAttemptAt time.Time
	Delay         time.Duration
	Entry         webhook.ErrorEntry
}

/* Decide applies the policy to a failed attempt of item
 * The policy's MaxAttempts is the configured limit and wins when set,
 * the item's stored limit only covers a zero policy
 */
func (p Policy) Decide(item webhook.QueueItem, cause string, now time.Time) Decision {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = item.MaxAttempts
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	attempts := item.Attempts + 1
	d := Decision{
		Attempts: attempts,
		Entry:    webhook.ErrorEntry{Attempt: attempts, Error: cause, At: now},
	}
	if attempts >= maxAttempts {
		d.Terminal = true
		return d
	}
	d.Delay = p.Backoff(item.Attempts)
	d.NextAttemptAt = now.Add(d.Delay)
	return d
}
