// Package tabschema implements the immutable Schema and typed Value types
// described in spec.md §3/§4.1: an ordered, labeled column specification
// with a fixed two- or three-column time prefix, plus the typed table
// update ("Value") it describes.
package tabschema

import (
	"fmt"

	"github.com/tabjoin/tabjoin/internal/errs"
)

// ColumnSpec describes one column: its element type, wire name, and
// human-readable label.
type ColumnSpec struct {
	Type  ColType
	Name  string
	Label string
}

// Fixed names of the time-prefix columns, in order.
const (
	ColSecondsPastEpoch = "secondsPastEpoch"
	ColNanoseconds      = "nanoseconds"
	ColPulseID          = "pulseId"
)

// Schema is the immutable, ordered column specification of a table. The
// first two or three columns are always the time prefix; see New.
type Schema struct {
	columns    []ColumnSpec
	hasPulseID bool
}

func timePrefix(withPulseID bool) []ColumnSpec {
	prefix := []ColumnSpec{
		{Type: Uint32, Name: ColSecondsPastEpoch, Label: "Seconds Past Epoch"},
		{Type: Uint32, Name: ColNanoseconds, Label: "Nanoseconds"},
	}
	if withPulseID {
		prefix = append(prefix, ColumnSpec{Type: Uint64, Name: ColPulseID, Label: "Pulse Id"})
	}
	return prefix
}

// New prepends the fixed time prefix to dataColumns and returns an
// immutable Schema. withPulseID selects the two- vs three-column prefix
// dialect (spec.md §3).
func New(dataColumns []ColumnSpec, withPulseID bool) (*Schema, error) {
	cols := append(timePrefix(withPulseID), dataColumns...)
	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate column name %q", errs.ErrSchemaMismatch, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return &Schema{columns: cols, hasPulseID: withPulseID}, nil
}

// FromValue derives a Schema by introspecting a Value's labels and typed
// columns. It fails with ErrSchemaMismatch when the labels array is absent
// or mismatched in length, or when the reserved time-prefix indices
// disagree with the fixed prefix names/types.
func FromValue(v *Value) (*Schema, error) {
	if v == nil || v.Labels == nil {
		return nil, fmt.Errorf("%w: value has no labels array", errs.ErrSchemaMismatch)
	}
	if len(v.Labels) != len(v.order) {
		return nil, fmt.Errorf("%w: labels length %d != column count %d", errs.ErrSchemaMismatch, len(v.Labels), len(v.order))
	}

	withPulseID := len(v.order) >= 3 && v.order[2] == ColPulseID
	prefix := timePrefix(withPulseID)

	cols := make([]ColumnSpec, 0, len(v.order))
	for i, name := range v.order {
		col, ok := v.Data[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing column %q", errs.ErrSchemaMismatch, name)
		}
		t, ok := TypeOf(col)
		if !ok {
			return nil, fmt.Errorf("%w: column %q has unsupported type %T", errs.ErrSchemaMismatch, name, col)
		}
		if i < len(prefix) {
			if name != prefix[i].Name || t != prefix[i].Type {
				return nil, fmt.Errorf("%w: time-prefix column %d is %q (want %q)", errs.ErrSchemaMismatch, i, name, prefix[i].Name)
			}
		}
		cols = append(cols, ColumnSpec{Type: t, Name: name, Label: v.Labels[i]})
	}
	return &Schema{columns: cols, hasPulseID: withPulseID}, nil
}

// Columns returns the full ordered column list, including the time prefix.
func (s *Schema) Columns() []ColumnSpec { return append([]ColumnSpec(nil), s.columns...) }

// DataColumns returns the columns after the time prefix.
func (s *Schema) DataColumns() []ColumnSpec {
	n := s.PrefixLen()
	return append([]ColumnSpec(nil), s.columns[n:]...)
}

// PrefixLen returns 2 or 3 depending on whether this Schema carries a
// pulseId column.
func (s *Schema) PrefixLen() int {
	if s.hasPulseID {
		return 3
	}
	return 2
}

// HasPulseID reports whether this Schema's time prefix includes pulseId.
func (s *Schema) HasPulseID() bool { return s.hasPulseID }

// ColumnNames returns the ordered column names.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.Name
	}
	return names
}

// Labels returns the ordered column labels.
func (s *Schema) Labels() []string {
	labels := make([]string, len(s.columns))
	for i, c := range s.columns {
		labels[i] = c.Label
	}
	return labels
}

// Equal reports whether two Schemas describe the same ordered, typed,
// labeled column list (strict schema equality). TableBuffer.Push checks
// conformance with IsValid, not Equal.
func (s *Schema) Equal(o *Schema) bool {
	if o == nil || len(s.columns) != len(o.columns) {
		return false
	}
	for i, c := range s.columns {
		oc := o.columns[i]
		if c.Name != oc.Name || c.Type != oc.Type || c.Label != oc.Label {
			return false
		}
	}
	return true
}

// IsValid reports (without erroring) whether v conforms to s: a labels
// array of matching length, a column set matching count/order/name/type/
// label, and identical row counts across all data columns. Used on every
// TableBuffer.push and by the Writer before append.
func (s *Schema) IsValid(v *Value) bool {
	if v == nil || v.Labels == nil {
		return false
	}
	if len(v.order) != len(s.columns) || len(v.Labels) != len(s.columns) {
		return false
	}
	rowCount := -1
	for i, c := range s.columns {
		if v.order[i] != c.Name || v.Labels[i] != c.Label {
			return false
		}
		col, ok := v.Data[c.Name]
		if !ok {
			return false
		}
		t, ok := TypeOf(col)
		if !ok || t != c.Type {
			return false
		}
		n := Len(col)
		if rowCount == -1 {
			rowCount = n
		} else if n != rowCount {
			return false
		}
	}
	return true
}

// Create returns an empty Value with labels prefilled and a zero-length
// typed slice for every column.
func (s *Schema) Create() *Value {
	v := &Value{
		Labels: s.Labels(),
		Data:   make(map[string]interface{}, len(s.columns)),
		order:  s.ColumnNames(),
	}
	for _, c := range s.columns {
		slice, _ := NewSlice(c.Type, 0)
		v.Data[c.Name] = slice
	}
	return v
}
