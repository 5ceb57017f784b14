package cdx

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes retry delays for failed index queries. The zero value is
// not usable; build one with DefaultBackoff or from configuration.
type Backoff struct {
	Base       float64 // exponent base in seconds (default 2)
	MaxRetries int     // retries allowed after the first attempt (default 5)
}

// DefaultBackoff returns the tuning used against the public index:
// 2^attempt seconds with up to 5 retries.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:       2,
		MaxRetries: 5,
	}
}

// Delay returns the wait before retrying a failed call. Attempt is 0-based:
// base^attempt seconds plus up to one second of uniform jitter.
func (b Backoff) Delay(attempt int) time.Duration {
	seconds := math.Pow(b.Base, float64(attempt)) + rand.Float64()
	return time.Duration(seconds * float64(time.Second))
}

// ShouldRetry reports whether another attempt is allowed after attempt
// failures.
func (b Backoff) ShouldRetry(attempt int) bool {
	return attempt <= b.MaxRetries
}
