// Package tstime implements the TimeStamp/TimeSpan/TimeBounds types of
// spec.md §3: a lexicographically ordered (seconds, nanoseconds, pulseId)
// triple, the half-open interval it bounds, and the N-way fold over such
// intervals the aligner and reactor use to decide when to emit.
package tstime

import "math"

// TimeStamp is {seconds, nanoseconds, pulseId}, ordered lexicographically.
// Equality requires all three parts to match.
type TimeStamp struct {
	Seconds     uint32
	Nanoseconds uint32
	PulseID     uint64
}

// MinTS and MaxTS are the saturation sentinels used to reset a TimeSpan to
// an invalid empty state so that monoidal merge (min-of-starts,
// max-of-ends) is correct even before any contributor is valid.
var (
	MinTS = TimeStamp{Seconds: 0, Nanoseconds: 0, PulseID: 0}
	MaxTS = TimeStamp{Seconds: math.MaxUint32, Nanoseconds: math.MaxUint32, PulseID: math.MaxUint64}
)

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than
// b, ordering lexicographically on (seconds, nanoseconds, pulseId).
func Compare(a, b TimeStamp) int {
	if a.Seconds != b.Seconds {
		if a.Seconds < b.Seconds {
			return -1
		}
		return 1
	}
	if a.Nanoseconds != b.Nanoseconds {
		if a.Nanoseconds < b.Nanoseconds {
			return -1
		}
		return 1
	}
	if a.PulseID != b.PulseID {
		if a.PulseID < b.PulseID {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports a < b.
func Less(a, b TimeStamp) bool { return Compare(a, b) < 0 }

// LessEqual reports a <= b.
func LessEqual(a, b TimeStamp) bool { return Compare(a, b) <= 0 }

// Equal reports a == b.
func Equal(a, b TimeStamp) bool { return a == b }

// NanosSince returns the signed nanosecond gap from a to b; with uint32
// seconds the result always fits an int64. It ignores pulseId (used for
// by-window alignment and for the adjacent-row cadence histogram, both of
// which are wall-clock concepts).
func NanosSince(a, b TimeStamp) int64 {
	return int64(b.Seconds)*1e9 + int64(b.Nanoseconds) - int64(a.Seconds)*1e9 - int64(a.Nanoseconds)
}

// AddMicros returns ts advanced by the given number of microseconds.
func AddMicros(ts TimeStamp, micros int64) TimeStamp {
	totalNanos := int64(ts.Seconds)*1e9 + int64(ts.Nanoseconds) + micros*1000
	sec := totalNanos / 1e9
	nsec := totalNanos % 1e9
	if nsec < 0 {
		nsec += 1e9
		sec--
	}
	return TimeStamp{Seconds: uint32(sec), Nanoseconds: uint32(nsec), PulseID: ts.PulseID}
}

// AlignDown rounds ts down to the nearest multiple of granularityMicros,
// used by the by-window extraction dialect.
func AlignDown(ts TimeStamp, granularityMicros uint32) TimeStamp {
	if granularityMicros == 0 {
		return ts
	}
	totalMicros := (int64(ts.Seconds)*1e9 + int64(ts.Nanoseconds)) / 1000
	aligned := (totalMicros / int64(granularityMicros)) * int64(granularityMicros)
	nanos := aligned * 1000
	return TimeStamp{Seconds: uint32(nanos / 1e9), Nanoseconds: uint32(nanos % 1e9)}
}
