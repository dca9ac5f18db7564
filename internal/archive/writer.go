// Package archive implements the Writer component of spec.md §4.4: a
// schema-driven, append-only chunked columnar archive, one dataset per
// column, built once per run window and closed on rotation.
//
// The original program's archive format is HDF5 (read by an external
// library the core never links directly); this port substitutes the columnar
// archive library the retrieval pack's ingest path already exercises,
// github.com/apache/arrow-go/v18's parquet/pqarrow writer
// (internal/ingest/arrow_writer.go), and maps spec.md's group/attribute
// layout onto Arrow field and schema metadata — see DESIGN.md for the
// full correspondence table.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/rs/zerolog"

	"github.com/tabjoin/tabjoin/internal/errs"
	"github.com/tabjoin/tabjoin/internal/tabschema"
)

// Metadata keys used on the Arrow schema (file-level) and on each data
// field, corresponding to spec.md §4.4's /meta group, root attribute, and
// per-dataset NTTable attributes.
const (
	metaInputPV         = "Input PV"
	metaRootGroup       = "root_group"
	metaPVNames         = "pvnames"
	metaColumnPrefixes  = "column_prefixes"
	metaColumns         = "columns"
	metaLabels          = "labels"
	metaTypes           = "pvxs_types"
	fieldMetaLabel      = "NTTable label"
	fieldMetaColumn     = "NTTable column"
	fieldMetaSignal     = "Signal"
)

// Writer persists a stream of merged Values into a single append-only
// chunked archive.
type Writer struct {
	inputID   string
	path      string
	rootGroup string
	labelSep  string
	colSep    string
	logger    zerolog.Logger

	mu          sync.Mutex
	file        *os.File
	fw          *pqarrow.FileWriter
	schema      *tabschema.Schema
	arrowSchema *arrow.Schema
	chunkSize   int
	mem         memory.Allocator
	rowsWritten int64
}

// New returns a Writer that will exclusively create path on the first
// Write call.
func New(inputID, path, rootGroup, labelSep, colSep string, logger zerolog.Logger) *Writer {
	return &Writer{
		inputID:   inputID,
		path:      path,
		rootGroup: rootGroup,
		labelSep:  labelSep,
		colSep:    colSep,
		logger:    logger.With().Str("component", "archive-writer").Str("path", path).Logger(),
		mem:       memory.NewGoAllocator(),
	}
}

// GetFilePath returns the archive's file path.
func (w *Writer) GetFilePath() string { return w.path }

// RowsWritten returns the total row count appended so far.
func (w *Writer) RowsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowsWritten
}

// Write appends v to the archive. On the first call it captures v's
// Schema, fixes chunk_size to v's row count, and builds the file
// structure; later calls validate v against the captured Schema before
// appending (spec.md §4.4).
func (w *Writer) Write(v *tabschema.Value) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.schema == nil {
		schema, err := tabschema.FromValue(v)
		if err != nil {
			return err
		}
		if !schema.IsValid(v) {
			return fmt.Errorf("%w: first write does not match its own derived schema", errs.ErrSchemaMismatch)
		}
		if err := w.buildStructure(schema, v.RowCount()); err != nil {
			return err
		}
		w.schema = schema
	} else if !w.schema.IsValid(v) {
		return fmt.Errorf("%w: value does not match archive's captured schema", errs.ErrSchemaMismatch)
	}

	if err := w.appendLocked(v); err != nil {
		return err
	}
	w.rowsWritten += int64(v.RowCount())
	return nil
}

// Close flushes and closes the underlying file. The parquet FileWriter
// takes ownership of the file it was opened with and closes it as part
// of its own Close, so no separate os.File.Close call is needed here.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fw != nil {
		return w.fw.Close()
	}
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// parsedName is the stream/column-prefix decomposition of one output
// column's name and label (spec.md §4.4's "Labels parse as
// {stream_name}{label_sep}{rest}; column names as {prefix}{col_sep}{suffix}").
type parsedName struct {
	prefix     string
	suffix     string
	streamName string
	labelRest  string
}

func parseColumn(name, label, colSep, labelSep string) (parsedName, error) {
	ci := strings.Index(name, colSep)
	if ci < 0 {
		return parsedName{}, fmt.Errorf("%w: column %q has no %q separator", errs.ErrInvalidName, name, colSep)
	}
	li := strings.Index(label, labelSep)
	if li < 0 {
		return parsedName{}, fmt.Errorf("%w: label %q has no %q separator", errs.ErrInvalidName, label, labelSep)
	}
	return parsedName{
		prefix:     name[:ci],
		suffix:     name[ci+len(colSep):],
		streamName: label[:li],
		labelRest:  label[li+len(labelSep):],
	}, nil
}

// buildStructure builds the Arrow schema (and its metadata) that
// corresponds to spec.md §4.4's /meta group, root attribute, and
// per-dataset NTTable attributes, opens the file exclusively, and
// constructs the Parquet writer.
func (w *Writer) buildStructure(schema *tabschema.Schema, chunkSize int) error {
	prefixLen := schema.PrefixLen()
	cols := schema.Columns()

	var pvnames, columnPrefixes, columns, labelList []string
	var types []byte
	seenPrefix := make(map[string]bool)

	fields := make([]arrow.Field, 0, len(cols))
	for i, c := range cols {
		columns = append(columns, c.Name)
		labelList = append(labelList, c.Label)
		code, err := tabschema.TypeCode(c.Type)
		if err != nil {
			return err
		}
		types = append(types, code)

		dt, err := tabschema.ArrowDataType(c.Type)
		if err != nil {
			return err
		}

		if i < prefixLen {
			fields = append(fields, arrow.Field{Name: c.Name, Type: dt})
			continue
		}

		parsed, err := parseColumn(c.Name, c.Label, w.colSep, w.labelSep)
		if err != nil {
			return err
		}
		if !seenPrefix[parsed.prefix] {
			seenPrefix[parsed.prefix] = true
			pvnames = append(pvnames, parsed.streamName)
			columnPrefixes = append(columnPrefixes, parsed.prefix)
		}

		md := arrow.NewMetadata(
			[]string{fieldMetaLabel, fieldMetaColumn, fieldMetaSignal},
			[]string{c.Label, c.Name, parsed.streamName},
		)
		fields = append(fields, arrow.Field{Name: c.Name, Type: dt, Metadata: md})
	}

	schemaMD := arrow.NewMetadata(
		[]string{metaInputPV, metaRootGroup, metaPVNames, metaColumnPrefixes, metaColumns, metaLabels, metaTypes},
		[]string{w.inputID, w.rootGroup, strings.Join(pvnames, ","), strings.Join(columnPrefixes, ","), strings.Join(columns, ","), strings.Join(labelList, ","), typesToString(types)},
	)
	w.arrowSchema = arrow.NewSchema(fields, &schemaMD)
	w.chunkSize = chunkSize

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("archive: creating parent directory: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", errs.ErrArchiveExists, w.path)
		}
		return fmt.Errorf("archive: creating file: %w", err)
	}
	w.file = f

	writerProps := parquet.NewWriterProperties(
		parquet.WithMaxRowGroupLength(int64(chunkSize)),
		parquet.WithStats(true),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())
	fw, err := pqarrow.NewFileWriter(w.arrowSchema, w.file, writerProps, arrowProps)
	if err != nil {
		return fmt.Errorf("archive: creating parquet writer: %w", err)
	}
	w.fw = fw

	w.logger.Info().
		Int("columns", len(cols)).
		Int("chunk_size", chunkSize).
		Strs("pvnames", pvnames).
		Msg("archive structure created")
	return nil
}

func typesToString(types []byte) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = strconv.Itoa(int(t))
	}
	return strings.Join(parts, ",")
}

// appendLocked builds one Arrow record batch from v and writes it as a
// new row group.
func (w *Writer) appendLocked(v *tabschema.Value) error {
	arrays := make([]arrow.Array, len(w.arrowSchema.Fields()))
	for i, field := range w.arrowSchema.Fields() {
		col, ok := v.Data[field.Name]
		if !ok {
			return fmt.Errorf("%w: value missing column %q", errs.ErrSchemaMismatch, field.Name)
		}
		arr, err := buildArray(w.mem, col)
		if err != nil {
			return fmt.Errorf("archive: column %q: %w", field.Name, err)
		}
		arrays[i] = arr
	}

	record := array.NewRecord(w.arrowSchema, arrays, int64(v.RowCount()))
	defer record.Release()
	for _, a := range arrays {
		a.Release()
	}

	if err := w.fw.Write(record); err != nil {
		return fmt.Errorf("archive: writing row group: %w", err)
	}
	return nil
}

// buildArray dispatches once per column (not once per cell, per spec.md
// §9's design note) to the Arrow builder matching col's closed-set type.
func buildArray(mem memory.Allocator, col interface{}) (arrow.Array, error) {
	switch c := col.(type) {
	case []bool:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		b.AppendValues(c, nil)
		return b.NewArray(), nil
	case []int8:
		b := array.NewInt8Builder(mem)
		defer b.Release()
		b.AppendValues(c, nil)
		return b.NewArray(), nil
	case []int16:
		b := array.NewInt16Builder(mem)
		defer b.Release()
		b.AppendValues(c, nil)
		return b.NewArray(), nil
	case []int32:
		b := array.NewInt32Builder(mem)
		defer b.Release()
		b.AppendValues(c, nil)
		return b.NewArray(), nil
	case []int64:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		b.AppendValues(c, nil)
		return b.NewArray(), nil
	case []uint8:
		b := array.NewUint8Builder(mem)
		defer b.Release()
		b.AppendValues(c, nil)
		return b.NewArray(), nil
	case []uint16:
		b := array.NewUint16Builder(mem)
		defer b.Release()
		b.AppendValues(c, nil)
		return b.NewArray(), nil
	case []uint32:
		b := array.NewUint32Builder(mem)
		defer b.Release()
		b.AppendValues(c, nil)
		return b.NewArray(), nil
	case []uint64:
		b := array.NewUint64Builder(mem)
		defer b.Release()
		b.AppendValues(c, nil)
		return b.NewArray(), nil
	case []float32:
		b := array.NewFloat32Builder(mem)
		defer b.Release()
		b.AppendValues(c, nil)
		return b.NewArray(), nil
	case []float64:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		b.AppendValues(c, nil)
		return b.NewArray(), nil
	case []string:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		b.AppendValues(c, nil)
		return b.NewArray(), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", col)
	}
}
