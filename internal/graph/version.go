package graph

import "sync/atomic"

// Version is the graph's monotonic mutation counter.
//
// Every mutation stamps the graph with the next value; memoized queries
// compare their stamp against Current to detect staleness.
type Version struct {
	n atomic.Uint64
}

// Next advances the counter and returns the new value.
func (v *Version) Next() uint64 {
	return v.n.Add(1)
}

// Current returns the counter without advancing it.
func (v *Version) Current() uint64 {
	return v.n.Load()
}
