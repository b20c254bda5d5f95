// Package backoff computes retry delays for connection attempts.
package backoff

import (
	"math/rand"
	"time"
)

// Policy describes how the delay between failed connection attempts grows.
// The zero value is not useful; use DefaultPolicy or fill in the fields.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Exponential bool
	Jitter      bool

	// Rand returns a value in [0, 1). Defaults to math/rand; tests inject a
	// fixed source to make jitter deterministic.
	Rand func() float64
}

// DefaultPolicy returns the standard exponential policy with jitter.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:   1 * time.Second,
		MaxDelay:    60 * time.Second,
		Exponential: true,
		Jitter:      true,
	}
}

// Delay returns the wait before retry number attempt. Attempts are 1-indexed:
// the first retry is attempt 1. With Exponential set the delay doubles per
// attempt, capped at MaxDelay. With Jitter set a uniformly random value in
// [0, 0.1*delay] is added to spread out reconnecting clients.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.BaseDelay
	if p.Exponential {
		delay = p.BaseDelay << (attempt - 1)
		// Shifting far enough overflows to non-positive; treat as capped.
		if delay <= 0 || delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	if p.Jitter {
		random := p.Rand
		if random == nil {
			random = rand.Float64
		}
		delay += time.Duration(random() * 0.1 * float64(delay))
	}

	return delay
}
