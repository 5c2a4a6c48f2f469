package reliability

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy defines when outstanding packets are resent.
// The default is a fixed 200ms delay with no attempt limit.
type RetryPolicy struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	// MaxAttempts drops a packet after this many resends; 0 retries forever.
	MaxAttempts int
	Jitter      bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: 200 * time.Millisecond,
		Multiplier:   1.0,
	}
}

// WithDefaults fills zero fields from DefaultRetryPolicy.
func (p RetryPolicy) WithDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = def.Multiplier
	}
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	return p
}

// NextDelay returns the wait before resend attempt N (1-based).
func NextDelay(p RetryPolicy, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 || p.Multiplier <= 1.0 {
		return jitter(p, float64(p.InitialDelay), rng)
	}
	if p.InitialDelay <= 0 {
		return 0
	}
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return jitter(p, delay, rng)
}

func jitter(p RetryPolicy, delay float64, rng *rand.Rand) time.Duration {
	if p.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}
