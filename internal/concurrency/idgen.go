// File: internal/concurrency/idgen.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection and message identifiers built from Unix milliseconds.

package concurrency

import (
	"sync/atomic"
	"time"
)

// MaxSafeID is the largest id a JSON client decoding numbers as IEEE-754
// doubles can hold without losing precision.
const MaxSafeID = 1<<53 - 1

// IDGenerator issues strictly increasing ids equal to Unix milliseconds
// times 1000 plus a counter of ids issued within that millisecond. When a
// millisecond runs out of suffixes the next value is borrowed from the
// following one, so ids stay unique per process. Values stay below
// MaxSafeID until the year 2255.
type IDGenerator struct {
	last atomic.Int64
	now  func() time.Time
}

// NewIDGenerator returns a generator reading the system clock.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// NewIDGeneratorWithClock returns a generator reading now.
func NewIDGeneratorWithClock(now func() time.Time) *IDGenerator {
	return &IDGenerator{now: now}
}

// Next returns the next id.
func (g *IDGenerator) Next() int64 {
	base := Stamp(g.now()) * 1000
	for {
		last := g.last.Load()
		next := base
		if next <= last {
			next = last + 1
		}
		if g.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Stamp returns t as Unix milliseconds.
func Stamp(t time.Time) int64 {
	return t.UnixMilli()
}
