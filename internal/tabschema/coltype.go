package tabschema

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// ColType identifies the element type of one column. The closed set
// mirrors spec.md's {bool, i8..i64, u8..u64, f32, f64, string} and is
// expressed with Arrow's own type-id enum so column dispatch (row copy,
// zero-fill, Arrow schema construction for the archive) shares one
// vocabulary end to end.
type ColType = arrow.Type

const (
	Bool    = arrow.BOOL
	Int8    = arrow.INT8
	Int16   = arrow.INT16
	Int32   = arrow.INT32
	Int64   = arrow.INT64
	Uint8   = arrow.UINT8
	Uint16  = arrow.UINT16
	Uint32  = arrow.UINT32
	Uint64  = arrow.UINT64
	Float32 = arrow.FLOAT32
	Float64 = arrow.FLOAT64
	String  = arrow.STRING
)

// ArrowDataType returns the concrete Arrow type for a ColType, for building
// arrow.Field values in the archive writer.
func ArrowDataType(t ColType) (arrow.DataType, error) {
	switch t {
	case Bool:
		return arrow.FixedWidthTypes.Boolean, nil
	case Int8:
		return arrow.PrimitiveTypes.Int8, nil
	case Int16:
		return arrow.PrimitiveTypes.Int16, nil
	case Int32:
		return arrow.PrimitiveTypes.Int32, nil
	case Int64:
		return arrow.PrimitiveTypes.Int64, nil
	case Uint8:
		return arrow.PrimitiveTypes.Uint8, nil
	case Uint16:
		return arrow.PrimitiveTypes.Uint16, nil
	case Uint32:
		return arrow.PrimitiveTypes.Uint32, nil
	case Uint64:
		return arrow.PrimitiveTypes.Uint64, nil
	case Float32:
		return arrow.PrimitiveTypes.Float32, nil
	case Float64:
		return arrow.PrimitiveTypes.Float64, nil
	case String:
		return arrow.BinaryTypes.String, nil
	default:
		return nil, fmt.Errorf("tabschema: unsupported column type %s", t)
	}
}

// TypeCode returns the on-disk byte code used for the /meta pvxs_types
// column of the archive (spec.md 4.4). The mapping is stable and
// deliberately independent of arrow.Type's own numeric values so archive
// files do not silently change shape if the Arrow enum is renumbered.
func TypeCode(t ColType) (byte, error) {
	switch t {
	case Bool:
		return 0, nil
	case Int8:
		return 1, nil
	case Int16:
		return 2, nil
	case Int32:
		return 3, nil
	case Int64:
		return 4, nil
	case Uint8:
		return 5, nil
	case Uint16:
		return 6, nil
	case Uint32:
		return 7, nil
	case Uint64:
		return 8, nil
	case Float32:
		return 9, nil
	case Float64:
		return 10, nil
	case String:
		return 11, nil
	default:
		return 0, fmt.Errorf("tabschema: unsupported column type %s", t)
	}
}

// ColTypeFromCode inverts TypeCode, for decoding the archive's/wire
// format's stable on-disk type codes back into a ColType.
func ColTypeFromCode(code byte) (ColType, error) {
	switch code {
	case 0:
		return Bool, nil
	case 1:
		return Int8, nil
	case 2:
		return Int16, nil
	case 3:
		return Int32, nil
	case 4:
		return Int64, nil
	case 5:
		return Uint8, nil
	case 6:
		return Uint16, nil
	case 7:
		return Uint32, nil
	case 8:
		return Uint64, nil
	case 9:
		return Float32, nil
	case 10:
		return Float64, nil
	case 11:
		return String, nil
	default:
		return 0, fmt.Errorf("tabschema: unknown type code %d", code)
	}
}

// NewSlice allocates a zero-filled slice of length n of the Go type backing
// t, wrapped as interface{} the way the rest of the pipeline stores columns.
func NewSlice(t ColType, n int) (interface{}, error) {
	switch t {
	case Bool:
		return make([]bool, n), nil
	case Int8:
		return make([]int8, n), nil
	case Int16:
		return make([]int16, n), nil
	case Int32:
		return make([]int32, n), nil
	case Int64:
		return make([]int64, n), nil
	case Uint8:
		return make([]uint8, n), nil
	case Uint16:
		return make([]uint16, n), nil
	case Uint32:
		return make([]uint32, n), nil
	case Uint64:
		return make([]uint64, n), nil
	case Float32:
		return make([]float32, n), nil
	case Float64:
		return make([]float64, n), nil
	case String:
		return make([]string, n), nil
	default:
		return nil, fmt.Errorf("tabschema: unsupported column type %s", t)
	}
}

// Len returns the row count of a typed column slice, or -1 if col is not
// one of the closed set's Go types.
func Len(col interface{}) int {
	switch c := col.(type) {
	case []bool:
		return len(c)
	case []int8:
		return len(c)
	case []int16:
		return len(c)
	case []int32:
		return len(c)
	case []int64:
		return len(c)
	case []uint8:
		return len(c)
	case []uint16:
		return len(c)
	case []uint32:
		return len(c)
	case []uint64:
		return len(c)
	case []float32:
		return len(c)
	case []float64:
		return len(c)
	case []string:
		return len(c)
	default:
		return -1
	}
}

// TypeOf reports the ColType backing a Go typed-slice column, and false if
// col does not belong to the closed set.
func TypeOf(col interface{}) (ColType, bool) {
	switch col.(type) {
	case []bool:
		return Bool, true
	case []int8:
		return Int8, true
	case []int16:
		return Int16, true
	case []int32:
		return Int32, true
	case []int64:
		return Int64, true
	case []uint8:
		return Uint8, true
	case []uint16:
		return Uint16, true
	case []uint32:
		return Uint32, true
	case []uint64:
		return Uint64, true
	case []float32:
		return Float32, true
	case []float64:
		return Float64, true
	case []string:
		return String, true
	default:
		return 0, false
	}
}

// CopyElem copies element srcIdx of src into element dstIdx of dst. Both
// must be typed slices of the same ColType; the caller dispatches this once
// per column, not once per cell, per spec.md's design note in 4.3/9.
func CopyElem(dst, src interface{}, dstIdx, srcIdx int) error {
	switch d := dst.(type) {
	case []bool:
		s, ok := src.([]bool)
		if !ok {
			return fmt.Errorf("tabschema: type mismatch copying bool column")
		}
		d[dstIdx] = s[srcIdx]
	case []int8:
		s := src.([]int8)
		d[dstIdx] = s[srcIdx]
	case []int16:
		s := src.([]int16)
		d[dstIdx] = s[srcIdx]
	case []int32:
		s := src.([]int32)
		d[dstIdx] = s[srcIdx]
	case []int64:
		s := src.([]int64)
		d[dstIdx] = s[srcIdx]
	case []uint8:
		s := src.([]uint8)
		d[dstIdx] = s[srcIdx]
	case []uint16:
		s := src.([]uint16)
		d[dstIdx] = s[srcIdx]
	case []uint32:
		s := src.([]uint32)
		d[dstIdx] = s[srcIdx]
	case []uint64:
		s := src.([]uint64)
		d[dstIdx] = s[srcIdx]
	case []float32:
		s := src.([]float32)
		d[dstIdx] = s[srcIdx]
	case []float64:
		s := src.([]float64)
		d[dstIdx] = s[srcIdx]
	case []string:
		s := src.([]string)
		d[dstIdx] = s[srcIdx]
	default:
		return fmt.Errorf("tabschema: unsupported column type in copy")
	}
	return nil
}

// ZeroElem sets element idx of dst to the closed set's default value for
// its type ("" for string, per spec.md 4.3).
func ZeroElem(dst interface{}, idx int) error {
	switch d := dst.(type) {
	case []bool:
		d[idx] = false
	case []int8:
		d[idx] = 0
	case []int16:
		d[idx] = 0
	case []int32:
		d[idx] = 0
	case []int64:
		d[idx] = 0
	case []uint8:
		d[idx] = 0
	case []uint16:
		d[idx] = 0
	case []uint32:
		d[idx] = 0
	case []uint64:
		d[idx] = 0
	case []float32:
		d[idx] = 0
	case []float64:
		d[idx] = 0
	case []string:
		d[idx] = ""
	default:
		return fmt.Errorf("tabschema: unsupported column type in zero-fill")
	}
	return nil
}

// AppendElem appends element srcIdx of src onto dst, returning the grown
// slice.
func AppendElem(dst, src interface{}, srcIdx int) (interface{}, error) {
	switch d := dst.(type) {
	case []bool:
		return append(d, src.([]bool)[srcIdx]), nil
	case []int8:
		return append(d, src.([]int8)[srcIdx]), nil
	case []int16:
		return append(d, src.([]int16)[srcIdx]), nil
	case []int32:
		return append(d, src.([]int32)[srcIdx]), nil
	case []int64:
		return append(d, src.([]int64)[srcIdx]), nil
	case []uint8:
		return append(d, src.([]uint8)[srcIdx]), nil
	case []uint16:
		return append(d, src.([]uint16)[srcIdx]), nil
	case []uint32:
		return append(d, src.([]uint32)[srcIdx]), nil
	case []uint64:
		return append(d, src.([]uint64)[srcIdx]), nil
	case []float32:
		return append(d, src.([]float32)[srcIdx]), nil
	case []float64:
		return append(d, src.([]float64)[srcIdx]), nil
	case []string:
		return append(d, src.([]string)[srcIdx]), nil
	default:
		return nil, fmt.Errorf("tabschema: unsupported column type in append")
	}
}
