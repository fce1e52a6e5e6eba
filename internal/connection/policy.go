package connection

import "time"

// RetryPolicy bounds automatic reconnection.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first handshake, so a
	// chain makes at most MaxRetries+1 handshakes.
	MaxRetries int
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// DefaultRetryPolicy waits 1s, 2s, 4s between four handshakes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Multiplier: 2,
		MaxDelay:   30 * time.Second,
	}
}

// Allow reports whether another retry may be scheduled after retries have
// already been made.
func (p RetryPolicy) Allow(retries int) bool {
	return retries < p.MaxRetries
}

// Delay returns the wait before the n-th retry (1-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < n; i++ {
		d *= mult
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}
