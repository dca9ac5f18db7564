package tstime

// TimeSpan is the half-open-in-spirit interval [Start, End] a TableBuffer
// currently holds unconsumed rows over. Invariant: Valid ⇒ Start <= End.
type TimeSpan struct {
	Valid bool
	Start TimeStamp
	End   TimeStamp
}

// Reset returns an invalid, empty TimeSpan with Start=MaxTS and End=MinTS,
// so that folding (min-of-starts, max-of-ends) over a set that includes a
// reset span is correct without a special case (spec.md §3).
func Reset() TimeSpan {
	return TimeSpan{Valid: false, Start: MaxTS, End: MinTS}
}

// Update folds (start, end) into s, marking it valid and widening the
// interval. Calling Update on a freshly Reset span is equivalent to
// constructing the span from scratch.
func (s TimeSpan) Update(start, end TimeStamp) TimeSpan {
	if Less(start, s.Start) {
		s.Start = start
	}
	if Less(s.End, end) {
		s.End = end
	}
	s.Valid = true
	return s
}
