package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/rs/zerolog"

	"github.com/tabjoin/tabjoin/internal/tabschema"
)

func testValue(t *testing.T) *tabschema.Value {
	t.Helper()
	order := []string{tabschema.ColSecondsPastEpoch, tabschema.ColNanoseconds, "tbl0_valid", "tbl0_current"}
	labels := []string{"Seconds Past Epoch", "Nanoseconds", "a.valid", "a.current"}
	data := map[string]interface{}{
		tabschema.ColSecondsPastEpoch: []uint32{1, 2},
		tabschema.ColNanoseconds:      []uint32{0, 0},
		"tbl0_valid":                  []bool{true, true},
		"tbl0_current":                []float64{1.5, 2.5},
	}
	return tabschema.NewValue(order, labels, data)
}

func TestWriteCreatesArchiveAndRejectsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.parquet")

	w := New("merged", path, "root", ".", "_", zerolog.Nop())
	if err := w.Write(testValue(t)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.RowsWritten() != 2 {
		t.Fatalf("RowsWritten = %d, want 2", w.RowsWritten())
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected archive file to exist: %v", err)
	}

	w2 := New("merged", path, "root", ".", "_", zerolog.Nop())
	if err := w2.Write(testValue(t)); err == nil {
		t.Fatal("expected ErrArchiveExists writing to an already-existing path")
	}
}

func TestWriteRejectsSchemaDrift(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.parquet")
	w := New("merged", path, "root", ".", "_", zerolog.Nop())
	defer w.Close()

	if err := w.Write(testValue(t)); err != nil {
		t.Fatalf("first Write: %v", err)
	}

	drifted := tabschema.NewValue(
		[]string{tabschema.ColSecondsPastEpoch, tabschema.ColNanoseconds, "tbl0_valid"},
		[]string{"Seconds Past Epoch", "Nanoseconds", "a.valid"},
		map[string]interface{}{
			tabschema.ColSecondsPastEpoch: []uint32{3},
			tabschema.ColNanoseconds:      []uint32{0},
			"tbl0_valid":                  []bool{true},
		},
	)
	if err := w.Write(drifted); err == nil {
		t.Fatal("expected schema mismatch error on drifted write")
	}
}

// chunkValue builds an n-row update on the {sec, nsec, val} shape S5 uses,
// with val running from base to base+n-1 so concatenation order is easy to
// check.
func chunkValue(n int, base float64) *tabschema.Value {
	sec := make([]uint32, n)
	nsec := make([]uint32, n)
	val := make([]float64, n)
	for i := 0; i < n; i++ {
		sec[i] = uint32(i)
		val[i] = base + float64(i)
	}
	order := []string{tabschema.ColSecondsPastEpoch, tabschema.ColNanoseconds, "tbl0_val"}
	labels := []string{"Seconds Past Epoch", "Nanoseconds", "a.val"}
	data := map[string]interface{}{
		tabschema.ColSecondsPastEpoch: sec,
		tabschema.ColNanoseconds:      nsec,
		"tbl0_val":                    val,
	}
	return tabschema.NewValue(order, labels, data)
}

// TestWriteConcatenatesSequentialWrites covers spec.md §8 scenario S5:
// three sequential Write calls of 5, 7, 5 rows on the same archive
// concatenate into a single 17-row dataset whose val column equals the
// three input arrays laid end to end. Each Write starts a new Parquet row
// group; writer.go's buildStructure sets WithMaxRowGroupLength to the
// first Write's row count (5), so the 7-row Write is split into row
// groups of 5 and 2.
func TestWriteConcatenatesSequentialWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.parquet")

	w := New("merged", path, "root", ".", "_", zerolog.Nop())

	chunks := []*tabschema.Value{
		chunkValue(5, 0),
		chunkValue(7, 100),
		chunkValue(5, 1000),
	}
	var want []float64
	for _, c := range chunks {
		if err := w.Write(c); err != nil {
			t.Fatalf("Write: %v", err)
		}
		want = append(want, c.Data["tbl0_val"].([]float64)...)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.RowsWritten() != 17 {
		t.Fatalf("RowsWritten = %d, want 17", w.RowsWritten())
	}

	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		t.Fatalf("OpenParquetFile: %v", err)
	}
	defer rdr.Close()

	arrowRdr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		t.Fatalf("NewFileReader: %v", err)
	}
	tbl, err := arrowRdr.ReadTable(context.Background())
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	defer tbl.Release()

	if tbl.NumRows() != 17 {
		t.Fatalf("archive NumRows = %d, want 17", tbl.NumRows())
	}

	colIdx := -1
	schema := tbl.Schema()
	for i := 0; i < schema.NumFields(); i++ {
		if schema.Field(i).Name == "tbl0_val" {
			colIdx = i
			break
		}
	}
	if colIdx < 0 {
		t.Fatal("tbl0_val column not found in read-back archive")
	}

	var got []float64
	for _, chunk := range tbl.Column(colIdx).Data().Chunks() {
		arr, ok := chunk.(*array.Float64)
		if !ok {
			t.Fatalf("unexpected chunk type %T for tbl0_val", chunk)
		}
		got = append(got, arr.Float64Values()...)
	}

	if len(got) != len(want) {
		t.Fatalf("val length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("val[%d] = %v, want %v (full got=%v want=%v)", i, got[i], want[i], got, want)
		}
	}
}

func TestParseColumnRequiresSeparators(t *testing.T) {
	if _, err := parseColumn("tbl0_current", "a.current", "_", "."); err != nil {
		t.Fatalf("parseColumn: %v", err)
	}
	if _, err := parseColumn("nosepcurrent", "a.current", "_", "."); err == nil {
		t.Fatal("expected error for missing column separator")
	}
	if _, err := parseColumn("tbl0_current", "nosep", "_", "."); err == nil {
		t.Fatal("expected error for missing label separator")
	}
}
