package tabschema

import "testing"

func TestTypeCodeRoundTripsThroughColTypeFromCode(t *testing.T) {
	types := []ColType{Bool, Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64, Float32, Float64, String}
	for _, tp := range types {
		code, err := TypeCode(tp)
		if err != nil {
			t.Fatalf("TypeCode(%s): %v", tp, err)
		}
		back, err := ColTypeFromCode(code)
		if err != nil {
			t.Fatalf("ColTypeFromCode(%d): %v", code, err)
		}
		if back != tp {
			t.Errorf("round trip mismatch: %s -> %d -> %s", tp, code, back)
		}
	}
}

func TestNewSliceAndTypeOfAgree(t *testing.T) {
	types := []ColType{Bool, Int8, Int16, Int32, Int64, Uint8, Uint16, Uint32, Uint64, Float32, Float64, String}
	for _, tp := range types {
		s, err := NewSlice(tp, 3)
		if err != nil {
			t.Fatalf("NewSlice(%s): %v", tp, err)
		}
		if Len(s) != 3 {
			t.Errorf("Len() = %d, want 3", Len(s))
		}
		got, ok := TypeOf(s)
		if !ok || got != tp {
			t.Errorf("TypeOf() = (%s, %v), want (%s, true)", got, ok, tp)
		}
	}
}

func TestCopyElemAndZeroElem(t *testing.T) {
	src := []float64{1.5, 2.5, 3.5}
	dst := make([]float64, 3)
	if err := CopyElem(dst, src, 0, 2); err != nil {
		t.Fatalf("CopyElem: %v", err)
	}
	if dst[0] != 3.5 {
		t.Errorf("dst[0] = %v, want 3.5", dst[0])
	}
	if err := ZeroElem(dst, 0); err != nil {
		t.Fatalf("ZeroElem: %v", err)
	}
	if dst[0] != 0 {
		t.Errorf("dst[0] after zero = %v, want 0", dst[0])
	}
}

func TestZeroElemStringDefaultsToEmpty(t *testing.T) {
	dst := []string{"x"}
	if err := ZeroElem(dst, 0); err != nil {
		t.Fatalf("ZeroElem: %v", err)
	}
	if dst[0] != "" {
		t.Errorf("dst[0] = %q, want empty string", dst[0])
	}
}

func TestAppendElem(t *testing.T) {
	dst := []int32{1, 2}
	src := []int32{10, 20, 30}
	grown, err := AppendElem(dst, src, 2)
	if err != nil {
		t.Fatalf("AppendElem: %v", err)
	}
	got := grown.([]int32)
	if len(got) != 3 || got[2] != 30 {
		t.Errorf("AppendElem result = %v, want [1 2 30]", got)
	}
}
