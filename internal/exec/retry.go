package exec

import "time"

// RetryPolicy is an explicit bounded-retry schedule used for compensating
// unwinds. Delays grow exponentially from BaseDelay and are capped at
// MaxDelay so the whole effort stays inside the latency budget.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy bounds unwind attempts to a short burst.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
	}
}

// Delay returns the backoff before the given zero-based attempt. Attempt 0
// has no delay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	if attempt > 30 {
		return p.MaxDelay
	}
	d := p.BaseDelay * time.Duration(1<<(attempt-1))
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
