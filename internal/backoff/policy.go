// Package backoff provides exponential backoff computation with jitter and
// context-aware sleeping for retry loops.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Max caps the delay regardless of attempt number.
	Max time.Duration
	// Factor is the exponential factor applied per attempt.
	Factor float64
	// Jitter is the randomization factor (0.0 to 1.0) added on top of the base delay.
	Jitter float64
}

// Compute calculates the backoff duration for a given attempt number.
// The formula is: base = initial * factor^(attempt-1), jitter = base * jitter * random()
// Returns min(max, base + jitter). Attempt numbers start at 1.
func Compute(policy Policy, attempt int) time.Duration {
	return ComputeWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// ComputeWithRand calculates the backoff duration using a provided random
// value. This is useful for testing to provide deterministic results.
// The randomValue should be in the range [0.0, 1.0).
func ComputeWithRand(policy Policy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)

	base := float64(policy.Initial) * math.Pow(policy.Factor, exp)
	jitterAmount := base * policy.Jitter * randomValue
	total := math.Min(float64(policy.Max), base+jitterAmount)

	return time.Duration(math.Round(total/float64(time.Millisecond))) * time.Millisecond
}

// ModelCallPolicy returns the policy used for model completion retries.
// Initial: 1s, Max: 60s, Factor: 2, Jitter: 10%
func ModelCallPolicy() Policy {
	return Policy{
		Initial: time.Second,
		Max:     60 * time.Second,
		Factor:  2,
		Jitter:  0.1,
	}
}

// QuickPolicy returns a policy for fast retries against local services.
// Initial: 50ms, Max: 5s, Factor: 1.5, Jitter: 5%
func QuickPolicy() Policy {
	return Policy{
		Initial: 50 * time.Millisecond,
		Max:     5 * time.Second,
		Factor:  1.5,
		Jitter:  0.05,
	}
}
