package aligner

import (
	"fmt"
	"sort"

	"github.com/tabjoin/tabjoin/internal/errs"
	"github.com/tabjoin/tabjoin/internal/tabschema"
	"github.com/tabjoin/tabjoin/internal/tstime"
)

// rowKey is the row-identity used to union per-stream timestamps. It
// deliberately excludes pulseId: two streams at the same wall-clock
// instant but disagreeing pulseId values describe the same output row,
// with the disagreement reported as a Mismatch rather than splitting the
// row (a design decision recorded in DESIGN.md's aligner entry).
type rowKey struct {
	Seconds     uint32
	Nanoseconds uint32
}

func tsKey(ts tstime.TimeStamp) rowKey { return rowKey{ts.Seconds, ts.Nanoseconds} }

func keyLess(a, b rowKey) bool {
	if a.Seconds != b.Seconds {
		return a.Seconds < b.Seconds
	}
	return a.Nanoseconds < b.Nanoseconds
}

// streamDest holds one stream's per-extract output arrays, sized to R.
type streamDest struct {
	validCol []bool
	dataCols map[string]interface{} // buffer's own column name -> dest slice
}

// newOutputColumns allocates per-stream destination arrays sized R for
// every stream, all zero-filled (the closed set's defaults) by
// AllocateContainers/make.
func (t *Table) newOutputColumns(R int) ([]streamDest, error) {
	dests := make([]streamDest, len(t.streamOrder))
	for i, name := range t.streamOrder {
		cols, err := t.buffers[name].AllocateContainers(R)
		if err != nil {
			return nil, err
		}
		dests[i] = streamDest{validCol: make([]bool, R), dataCols: cols}
	}
	return dests, nil
}

// assemble builds the final combined Value from per-stream destination
// arrays plus the shared time columns, validating the assembled column
// count against the combined schema (spec.md §4.3's fatal internal
// invariant check).
func (t *Table) assemble(sec, nsec []uint32, pulse []uint64, dests []streamDest) (*tabschema.Value, error) {
	width := hexWidth(len(t.streamOrder))
	order := t.combined.ColumnNames()
	labels := t.combined.Labels()

	data := make(map[string]interface{}, len(order))
	data[tabschema.ColSecondsPastEpoch] = sec
	data[tabschema.ColNanoseconds] = nsec
	if t.combined.HasPulseID() {
		data[tabschema.ColPulseID] = pulse
	}
	for i, name := range t.streamOrder {
		prefix := fmt.Sprintf("tbl%0*x", width, i)
		data[prefix+t.cfg.ColSep+"valid"] = dests[i].validCol
		for _, dc := range t.buffers[name].DataColumns() {
			data[prefix+t.cfg.ColSep+dc.Name] = dests[i].dataCols[dc.Name]
		}
	}
	if len(data) != len(order) {
		errs.Abort(fmt.Sprintf("assembled %d columns, schema has %d", len(data), len(order)))
	}
	return tabschema.NewValue(order, labels, data), nil
}

func (t *Table) extractByPulseLocked(start, end tstime.TimeStamp) (*tabschema.Value, []Mismatch, error) {
	keySet := make(map[rowKey]struct{})
	for _, name := range t.streamOrder {
		seen := make(map[tstime.TimeStamp]struct{})
		t.buffers[name].ExtractTimestampsBetween(start, end, seen)
		for ts := range seen {
			keySet[tsKey(ts)] = struct{}{}
		}
	}

	keys := make([]rowKey, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })

	R := len(keys)
	sec := make([]uint32, R)
	nsec := make([]uint32, R)
	for i, k := range keys {
		sec[i], nsec[i] = k.Seconds, k.Nanoseconds
	}

	hasPulseID := t.combined.HasPulseID()
	var pulse []uint64
	var pulseSet []bool
	if hasPulseID {
		pulse = make([]uint64, R)
		pulseSet = make([]bool, R)
	}

	dests, err := t.newOutputColumns(R)
	if err != nil {
		return nil, nil, err
	}

	var mismatches []Mismatch
	for si, name := range t.streamOrder {
		dest := dests[si]
		dataColumns := t.buffers[name].DataColumns()
		uIdx := 0
		t.buffers[name].ConsumeEachRow(func(ts tstime.TimeStamp, update *tabschema.Value, rowInUpdate int) bool {
			if !tstime.Less(ts, end) {
				return true
			}
			key := tsKey(ts)
			for uIdx < R && keyLess(keys[uIdx], key) {
				uIdx++
			}
			if uIdx >= R {
				return true
			}
			if keys[uIdx] != key {
				return false // stale/duplicate: ts lies strictly behind the current U cursor
			}

			dest.validCol[uIdx] = true
			for _, dc := range dataColumns {
				if err := tabschema.CopyElem(dest.dataCols[dc.Name], update.Data[dc.Name], uIdx, rowInUpdate); err != nil {
					t.logger.Error().Err(err).Str("stream", name).Str("column", dc.Name).Msg("row copy failed")
				}
			}
			if hasPulseID {
				var rowPulse uint64
				if pc, ok := update.Data[tabschema.ColPulseID].([]uint64); ok && rowInUpdate < len(pc) {
					rowPulse = pc[rowInUpdate]
				}
				if !pulseSet[uIdx] {
					pulse[uIdx] = rowPulse
					pulseSet[uIdx] = true
				} else if pulse[uIdx] != rowPulse {
					mismatches = append(mismatches, Mismatch{RowIndex: uIdx, Stream: name, Expected: pulse[uIdx], Got: rowPulse})
					t.logger.Warn().
						Int("row", uIdx).
						Str("stream", name).
						Uint64("expected_pulse_id", pulse[uIdx]).
						Uint64("got_pulse_id", rowPulse).
						Msg("pulseId mismatch across streams at equal timestamp")
				}
			}
			uIdx++
			return false
		})
	}

	out, err := t.assemble(sec, nsec, pulse, dests)
	if err != nil {
		return nil, nil, err
	}
	return out, mismatches, nil
}

func (t *Table) extractByWindowLocked(start, end tstime.TimeStamp) (*tabschema.Value, []Mismatch, error) {
	granularity := t.granularity
	alignedStart := tstime.AlignDown(start, granularity)
	alignedEnd := tstime.AlignDown(end, granularity)

	totalMicros := tstime.NanosSince(alignedStart, alignedEnd) / 1000
	R := 0
	if totalMicros > 0 {
		R = int(totalMicros / int64(granularity))
	}

	keys := make([]rowKey, R)
	for i := 0; i < R; i++ {
		g := tstime.AddMicros(alignedStart, int64(i)*int64(granularity))
		keys[i] = tsKey(g)
	}

	sec := make([]uint32, R)
	nsec := make([]uint32, R)
	for i, k := range keys {
		sec[i], nsec[i] = k.Seconds, k.Nanoseconds
	}

	hasPulseID := t.combined.HasPulseID()
	var pulse []uint64
	if hasPulseID {
		pulse = make([]uint64, R)
	}

	dests, err := t.newOutputColumns(R)
	if err != nil {
		return nil, nil, err
	}

	for si, name := range t.streamOrder {
		dest := dests[si]
		dataColumns := t.buffers[name].DataColumns()
		uIdx := 0
		t.buffers[name].ConsumeEachRow(func(ts tstime.TimeStamp, update *tabschema.Value, rowInUpdate int) bool {
			aligned := tstime.AlignDown(ts, granularity)
			if !tstime.Less(aligned, alignedEnd) {
				return true
			}
			key := tsKey(aligned)
			for uIdx < R && keyLess(keys[uIdx], key) {
				uIdx++
			}
			if uIdx >= R {
				return true
			}
			if keys[uIdx] != key {
				return false
			}

			dest.validCol[uIdx] = true
			for _, dc := range dataColumns {
				if err := tabschema.CopyElem(dest.dataCols[dc.Name], update.Data[dc.Name], uIdx, rowInUpdate); err != nil {
					t.logger.Error().Err(err).Str("stream", name).Str("column", dc.Name).Msg("row copy failed")
				}
			}
			if hasPulseID {
				if pc, ok := update.Data[tabschema.ColPulseID].([]uint64); ok && rowInUpdate < len(pc) {
					pulse[uIdx] = pc[rowInUpdate]
				}
			}
			uIdx++
			return false
		})
	}

	out, err := t.assemble(sec, nsec, pulse, dests)
	if err != nil {
		return nil, nil, err
	}
	return out, nil, nil
}

// Extract implements the central join-and-extract algorithm of spec.md
// §4.3 over the half-open window [start, end). It returns the merged
// Value, any pulseId mismatches observed while copying, or
// ErrInvalidRange if start > end.
func (t *Table) Extract(start, end tstime.TimeStamp) (*tabschema.Value, []Mismatch, error) {
	if tstime.Less(end, start) {
		return nil, nil, errs.ErrInvalidRange
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.combined == nil {
		return nil, nil, fmt.Errorf("aligner: extract called before initialization")
	}

	if t.cfg.Mode == ByWindow {
		return t.extractByWindowLocked(start, end)
	}
	return t.extractByPulseLocked(start, end)
}
