package tabschema

// Value is one typed table update: a labels array parallel to an ordered
// set of named, typed column arrays. All columns in one Value must have
// identical row counts (spec.md §3). A Value is built empty from a Schema,
// filled once, and shared immutably after that (spec.md's "Lifecycle").
type Value struct {
	Labels []string
	Data   map[string]interface{}
	order  []string
}

// NewValue builds a Value from explicit column order, labels, and data.
// Schema.Create builds an empty Value from a Schema instead.
func NewValue(order, labels []string, data map[string]interface{}) *Value {
	return &Value{Labels: labels, Data: data, order: append([]string(nil), order...)}
}

// Order returns the column name order this Value was constructed with.
func (v *Value) Order() []string { return append([]string(nil), v.order...) }

// Column returns the named column's typed slice.
func (v *Value) Column(name string) (interface{}, bool) {
	col, ok := v.Data[name]
	return col, ok
}

// RowCount returns the row count of this Value's columns, or 0 if it has
// none.
func (v *Value) RowCount() int {
	for _, name := range v.order {
		if col, ok := v.Data[name]; ok {
			if n := Len(col); n >= 0 {
				return n
			}
		}
	}
	return 0
}
