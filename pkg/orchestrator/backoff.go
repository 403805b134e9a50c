package orchestrator

import "time"

const (
	// BackoffBase is the base wait unit between passes.
	BackoffBase = 60 * time.Second

	// MaxRetryBound is the upper bound on the retry count. Values
	// outside [0, MaxRetryBound] are silently clamped, not rejected,
	// to keep the tool usable with ad hoc inputs.
	MaxRetryBound = 6
)

// ClampRetries clamps a requested retry count to [0, MaxRetryBound].
func ClampRetries(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxRetryBound {
		return MaxRetryBound
	}
	return n
}

// Backoff computes wait durations between full passes over the zone
// list and decides when to give up. Waiting happens between passes,
// not between individual zone attempts within a pass.
type Backoff struct {
	// Base is the base wait unit. Zero means BackoffBase.
	Base time.Duration

	// MaxRetries is the clamped retry bound. Pass indices 0 through
	// MaxRetries inclusive are run.
	MaxRetries int
}

// NewBackoff creates a Backoff with the given retry count, clamped to
// the allowed range.
func NewBackoff(maxRetries int) Backoff {
	return Backoff{Base: BackoffBase, MaxRetries: ClampRetries(maxRetries)}
}

// WaitDuration returns the wait before the pass following passIndex:
// base * 2^passIndex.
func (b Backoff) WaitDuration(passIndex int) time.Duration {
	base := b.Base
	if base == 0 {
		base = BackoffBase
	}
	return base * time.Duration(1<<uint(passIndex))
}

// ShouldContinue reports whether the pass with the given index may
// still run.
func (b Backoff) ShouldContinue(passIndex int) bool {
	return passIndex <= b.MaxRetries
}
