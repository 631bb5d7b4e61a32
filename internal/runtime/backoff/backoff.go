// Package backoff holds the delay policies used between restarts.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Strategy returns the delay before restart number attempt (1-based).
type Strategy interface {
	Next(attempt int) time.Duration
}

// Func adapts a plain function to Strategy.
type Func func(attempt int) time.Duration

func (f Func) Next(attempt int) time.Duration { return f(attempt) }

// Constant waits the same delay every time.
type Constant time.Duration

func (c Constant) Next(int) time.Duration { return time.Duration(c) }

// Exponential doubles from Min up to Max. Jitter adds up to that fraction
// of the delay on top (0.2 = +20%).
type Exponential struct {
	Min    time.Duration
	Max    time.Duration
	Jitter float64
}

func (e Exponential) Next(attempt int) time.Duration {
	lo := e.Min
	if lo <= 0 {
		lo = 250 * time.Millisecond
	}
	hi := e.Max
	if hi < lo {
		hi = lo
	}
	if attempt < 1 {
		attempt = 1
	}

	wait := lo
	for i := 1; i < attempt && wait < hi; i++ {
		wait *= 2
	}
	if wait > hi {
		wait = hi
	}
	if e.Jitter > 0 {
		if j := int64(float64(wait) * e.Jitter); j > 0 {
			wait += time.Duration(rand.Int64N(j + 1))
		}
	}
	return wait
}
