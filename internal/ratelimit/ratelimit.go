// Package ratelimit implements the rate-limited logging decision rule
// used by the normalizer's two error classes: the first 10 occurrences
// of a given error kind are logged in full, then only every 1000th
// occurrence afterwards. This is plain counter arithmetic, not a
// logging-framework feature, per SPEC_FULL.md §9.
package ratelimit

import "sync/atomic"

// Gate tracks occurrences of one error kind and decides whether the
// current occurrence should be logged, and at what detail.
type Gate struct {
	count atomic.Uint64
}

// Decision describes whether to log the current occurrence and whether
// full detail is warranted.
type Decision struct {
	ShouldLog bool
	Detailed  bool
}

// Observe records one more occurrence and returns the logging decision
// for it. Safe for concurrent use.
func (g *Gate) Observe() Decision {
	n := g.count.Add(1)
	switch {
	case n <= 10:
		return Decision{ShouldLog: true, Detailed: true}
	case n%1000 == 0:
		return Decision{ShouldLog: true, Detailed: false}
	default:
		return Decision{ShouldLog: false, Detailed: false}
	}
}

// Count returns the number of occurrences observed so far.
func (g *Gate) Count() uint64 {
	return g.count.Load()
}
