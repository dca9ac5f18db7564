package tabschema

import "github.com/tabjoin/tabjoin/internal/tstime"

// RowTimestamp reads the TimeStamp of row idx from v's time-prefix
// columns. It clips to the shortest of the three (or two) time columns if
// their lengths disagree, per spec.md §4.2's "clips to the common minimum
// length" failure semantics for timestamp extraction.
func RowTimestamp(v *Value, idx int) (tstime.TimeStamp, bool) {
	sec, ok := v.Data[ColSecondsPastEpoch].([]uint32)
	if !ok || idx >= len(sec) {
		return tstime.TimeStamp{}, false
	}
	nsec, ok := v.Data[ColNanoseconds].([]uint32)
	if !ok || idx >= len(nsec) {
		return tstime.TimeStamp{}, false
	}
	ts := tstime.TimeStamp{Seconds: sec[idx], Nanoseconds: nsec[idx]}
	if pulse, ok := v.Data[ColPulseID].([]uint64); ok {
		if idx >= len(pulse) {
			return tstime.TimeStamp{}, false
		}
		ts.PulseID = pulse[idx]
	}
	return ts, true
}
