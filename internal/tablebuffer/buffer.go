// Package tablebuffer implements the per-stream FIFO of typed updates
// described in spec.md §4.2: schema capture/validation on push, row-wise
// iteration with a partial-consumption cursor, and the time-span/
// histogram extraction helpers the TimeAlignedTable needs.
//
// A Buffer is not internally synchronized — spec.md §4.5's concurrency
// contract puts a single mutex around the owning TimeAlignedTable, held
// across push/initialize/extract, so the buffer itself stays a plain,
// sequential data structure (grounded on how basekick-labs/arc's WAL
// writer keeps its own state lock-free and lets the caller own ordering).
package tablebuffer

import (
	"fmt"

	"github.com/tabjoin/tabjoin/internal/errs"
	"github.com/tabjoin/tabjoin/internal/tabschema"
	"github.com/tabjoin/tabjoin/internal/tstime"
)

// Buffer is one stream's FIFO of typed updates.
type Buffer struct {
	schema   *tabschema.Schema
	updates  []*tabschema.Value
	innerIdx int // cursor into updates[0]: next unconsumed row

	startTS    tstime.TimeStamp
	endTS      tstime.TimeStamp
	spanValid  bool
}

// New returns an empty, uninitialized Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Initialized reports whether a Schema has been captured yet.
func (b *Buffer) Initialized() bool { return b.schema != nil }

// Empty reports whether the buffer holds any unconsumed update.
func (b *Buffer) Empty() bool { return len(b.updates) == 0 }

// Schema returns the captured Schema, or nil if uninitialized.
func (b *Buffer) Schema() *tabschema.Schema { return b.schema }

// Columns returns the captured Schema's full column list.
func (b *Buffer) Columns() []tabschema.ColumnSpec {
	if b.schema == nil {
		return nil
	}
	return b.schema.Columns()
}

// DataColumns returns the captured Schema's non-time-prefix columns.
func (b *Buffer) DataColumns() []tabschema.ColumnSpec {
	if b.schema == nil {
		return nil
	}
	return b.schema.DataColumns()
}

// Push captures the Schema from v on the first call; on later calls it
// verifies strict schema equality and rejects disagreement with
// ErrSchemaMismatch, leaving the buffer's prior state untouched (spec.md
// §4.2, §8 scenario S4).
func (b *Buffer) Push(v *tabschema.Value) error {
	if b.schema == nil {
		schema, err := tabschema.FromValue(v)
		if err != nil {
			return err
		}
		if !schema.IsValid(v) {
			return fmt.Errorf("%w: derived schema does not describe pushed value", errs.ErrSchemaMismatch)
		}
		b.schema = schema
	} else if !b.schema.IsValid(v) {
		return fmt.Errorf("%w: value does not match captured schema", errs.ErrSchemaMismatch)
	}

	b.updates = append(b.updates, v)
	b.refreshSpan()
	return nil
}

// refreshSpan recomputes startTS (time of row innerIdx of the front
// update) and endTS (time of the last row of the last update).
func (b *Buffer) refreshSpan() {
	if len(b.updates) == 0 {
		b.spanValid = false
		return
	}
	front := b.updates[0]
	if ts, ok := tabschema.RowTimestamp(front, b.innerIdx); ok {
		b.startTS = ts
		b.spanValid = true
	} else {
		b.spanValid = false
		return
	}
	back := b.updates[len(b.updates)-1]
	if ts, ok := tabschema.RowTimestamp(back, back.RowCount()-1); ok {
		b.endTS = ts
	}
}

// TimeSpan returns the buffer's current unconsumed window.
func (b *Buffer) TimeSpan() tstime.TimeSpan {
	if !b.spanValid {
		return tstime.Reset()
	}
	return tstime.TimeSpan{Valid: true, Start: b.startTS, End: b.endTS}
}

// AllocateContainers returns one empty per-data-column array sized to n,
// typed per the captured schema, for use by the aligned extractor.
func (b *Buffer) AllocateContainers(n int) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(b.DataColumns()))
	for _, c := range b.DataColumns() {
		slice, err := tabschema.NewSlice(c.Type, n)
		if err != nil {
			return nil, err
		}
		out[c.Name] = slice
	}
	return out, nil
}

// RowVisitor is called once per unconsumed row during ConsumeEachRow. ts
// is the row's timestamp, update is the update it belongs to (so the
// caller can copy update.Data[col][rowInUpdate]), and rowInUpdate is the
// row's index within update. Returning true stops iteration.
type RowVisitor func(ts tstime.TimeStamp, update *tabschema.Value, rowInUpdate int) (stop bool)

// ConsumeEachRow visits rows starting at innerIdx of the front update,
// then row 0 of each subsequent update, until f returns true or rows are
// exhausted. On return, fully consumed front updates are dropped and
// innerIdx is advanced to the last visited row within the new front
// update; startTS/endTS are refreshed.
func (b *Buffer) ConsumeEachRow(f RowVisitor) {
	for len(b.updates) > 0 {
		update := b.updates[0]
		n := update.RowCount()
		for b.innerIdx < n {
			ts, ok := tabschema.RowTimestamp(update, b.innerIdx)
			if !ok {
				break
			}
			stop := f(ts, update, b.innerIdx)
			if stop {
				b.refreshSpan()
				return
			}
			b.innerIdx++
		}
		// Front update fully consumed; drop it and move to the next.
		b.updates = b.updates[1:]
		b.innerIdx = 0
	}
	b.refreshSpan()
}

// ExtractTimestampsBetween inserts every row's TimeStamp in [start, end)
// into out, without consuming anything (pulse-id dialect helper).
func (b *Buffer) ExtractTimestampsBetween(start, end tstime.TimeStamp, out map[tstime.TimeStamp]struct{}) {
	idx := b.innerIdx
	for _, update := range b.updates {
		n := update.RowCount()
		for ; idx < n; idx++ {
			ts, ok := tabschema.RowTimestamp(update, idx)
			if !ok {
				break
			}
			if tstime.Less(ts, start) {
				continue
			}
			if !tstime.Less(ts, end) {
				return
			}
			out[ts] = struct{}{}
		}
		idx = 0
	}
}

// ExtractTimeDiffs accumulates counts of nanosecond gaps between adjacent
// rows within the front update, into hist keyed by the gap in
// nanoseconds. Used to auto-detect the by-window alignment granularity.
func (b *Buffer) ExtractTimeDiffs(hist map[int64]int64) {
	if len(b.updates) == 0 {
		return
	}
	front := b.updates[0]
	n := front.RowCount()
	for i := b.innerIdx; i+1 < n; i++ {
		a, ok1 := tabschema.RowTimestamp(front, i)
		bb, ok2 := tabschema.RowTimestamp(front, i+1)
		if !ok1 || !ok2 {
			break
		}
		hist[tstime.NanosSince(a, bb)]++
	}
}
