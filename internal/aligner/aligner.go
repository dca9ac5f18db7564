// Package aligner implements the multi-stream TimeAlignedTable of spec.md
// §4.3: one TableBuffer per input stream, a lazily derived combined output
// schema, joint time bounds, and the central extract(start, end)
// algorithm that unions per-stream timestamps into one wide, time-aligned
// chunk.
package aligner

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tabjoin/tabjoin/internal/errs"
	"github.com/tabjoin/tabjoin/internal/tablebuffer"
	"github.com/tabjoin/tabjoin/internal/tabschema"
	"github.com/tabjoin/tabjoin/internal/tstime"
)

// Mode selects one of the two mutually exclusive alignment dialects
// (spec.md §9: "Alignment dialects... do not try to unify them at
// runtime").
type Mode int

const (
	// ByPulse aligns rows by exact (seconds, nanoseconds) equality across
	// streams; no window is involved.
	ByPulse Mode = iota
	// ByWindow aligns rows onto a fixed microsecond grid, auto-detected
	// from the data when WindowUsec is 0.
	ByWindow
)

// Config is the TimeAlignedTable's immutable construction-time
// configuration (spec.md §3).
type Config struct {
	LabelSep   string
	ColSep     string
	Mode       Mode
	WindowUsec uint32 // ByWindow only; 0 = auto-detect on first initialize
}

// Mismatch records a row where a later stream's pulseId disagreed with
// the value already recorded for that (seconds, nanoseconds) — spec.md
// §4.3's "record the row index... and log a warning; do not abort".
type Mismatch struct {
	RowIndex int
	Stream   string
	Expected uint64
	Got      uint64
}

// Table is the multi-stream TimeAlignedTable.
type Table struct {
	cfg Config

	mu          sync.Mutex
	streamOrder []string
	buffers     map[string]*tablebuffer.Buffer
	combined    *tabschema.Schema
	granularity uint32 // resolved microsecond grid, ByWindow only

	logger zerolog.Logger
}

// New constructs a Table over the given ordered stream names, all
// initially empty and uninitialized.
func New(streamNames []string, cfg Config) *Table {
	t := &Table{
		cfg:         cfg,
		streamOrder: append([]string(nil), streamNames...),
		buffers:     make(map[string]*tablebuffer.Buffer, len(streamNames)),
		logger:      log.Logger.With().Str("component", "aligner").Logger(),
	}
	for _, name := range streamNames {
		t.buffers[name] = tablebuffer.New()
	}
	return t
}

// SetLogger overrides the default global logger.
func (t *Table) SetLogger(l zerolog.Logger) { t.logger = l }

// Push routes v to stream's buffer under the table's lock, then attempts
// to initialize the combined schema.
func (t *Table) Push(stream string, v *tabschema.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	buf, ok := t.buffers[stream]
	if !ok {
		return fmt.Errorf("aligner: unknown stream %q", stream)
	}
	if err := buf.Push(v); err != nil {
		return err
	}
	return t.initializeLocked()
}

// Initialized reports whether the combined schema has been derived.
func (t *Table) Initialized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.combined != nil
}

// ForceInitialize drops any stream whose buffer never produced an update,
// then derives the combined schema over the remainder unconditionally. It
// returns the number of streams that survived. Exposed publicly so the
// reactor's preparation-deadline handler can call it directly (spec.md §9
// open question, resolved in SPEC_FULL.md §4.3).
func (t *Table) ForceInitialize() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.streamOrder[:0:0]
	for _, name := range t.streamOrder {
		if t.buffers[name].Initialized() {
			kept = append(kept, name)
		} else {
			delete(t.buffers, name)
			t.logger.Warn().Str("stream", name).Msg("dropping stream with no updates before deadline")
		}
	}
	t.streamOrder = kept
	t.combined = nil
	if err := t.initializeLocked(); err != nil {
		return 0, err
	}
	return len(t.streamOrder), nil
}

// initializeLocked is idempotent and must be called with mu held.
func (t *Table) initializeLocked() error {
	if t.combined != nil {
		return nil
	}
	for _, name := range t.streamOrder {
		if !t.buffers[name].Initialized() {
			return nil
		}
	}
	if len(t.streamOrder) == 0 {
		return nil
	}

	schema, err := t.deriveCombinedSchema()
	if err != nil {
		return err
	}
	t.combined = schema

	if t.cfg.Mode == ByWindow && t.cfg.WindowUsec == 0 {
		g, err := t.detectGranularity()
		if err != nil {
			return err
		}
		t.granularity = g
	} else {
		t.granularity = t.cfg.WindowUsec
	}
	return nil
}

// hexWidth returns ceil(log16(n)), the number of hex digits needed to
// represent every index in [0, n).
func hexWidth(n int) int {
	if n <= 1 {
		return 1
	}
	return (bits.Len(uint(n-1)) + 3) / 4
}

// deriveCombinedSchema builds the wide output schema: per stream, a
// `valid` bool column followed by that stream's renamed data columns
// (spec.md §3's combined-schema rule).
func (t *Table) deriveCombinedSchema() (*tabschema.Schema, error) {
	width := hexWidth(len(t.streamOrder))
	anyPulseID := false
	for _, name := range t.streamOrder {
		if t.buffers[name].Schema().HasPulseID() {
			anyPulseID = true
		}
	}

	var cols []tabschema.ColumnSpec
	for i, name := range t.streamOrder {
		prefix := fmt.Sprintf("tbl%0*x", width, i)
		cols = append(cols, tabschema.ColumnSpec{
			Type:  tabschema.Bool,
			Name:  prefix + t.cfg.ColSep + "valid",
			Label: name + t.cfg.LabelSep + "valid",
		})
		for _, dc := range t.buffers[name].DataColumns() {
			cols = append(cols, tabschema.ColumnSpec{
				Type:  dc.Type,
				Name:  prefix + t.cfg.ColSep + dc.Name,
				Label: name + t.cfg.LabelSep + dc.Label,
			})
		}
	}
	return tabschema.New(cols, anyPulseID)
}

// detectGranularity pools the adjacent-row nanosecond-gap histogram
// across all buffers and takes the statistical mode, per spec.md §9's
// "prefer all-buffers for robustness" resolution.
func (t *Table) detectGranularity() (uint32, error) {
	hist := make(map[int64]int64)
	for _, name := range t.streamOrder {
		t.buffers[name].ExtractTimeDiffs(hist)
	}
	var best int64
	var bestCount int64 = -1
	for gap, count := range hist {
		if count > bestCount || (count == bestCount && gap < best) {
			best, bestCount = gap, count
		}
	}
	if best <= 0 {
		return 0, fmt.Errorf("%w: detected cadence %dns is not positive", errs.ErrInvalidAlignment, best)
	}
	micros := best / 1000
	if micros <= 0 || micros > int64(^uint32(0)) {
		return 0, fmt.Errorf("%w: detected cadence %dns does not fit a u32 microsecond count", errs.ErrInvalidAlignment, best)
	}
	return uint32(micros), nil
}

// GetTimeBounds returns the joint TimeBounds of every stream's current
// span. ByWindow uses the strict-join fold (invalid if any buffer is
// invalid); ByPulse uses the lenient fold over valid spans only (spec.md
// §4.3).
func (t *Table) GetTimeBounds() tstime.TimeBounds {
	t.mu.Lock()
	defer t.mu.Unlock()

	spans := make([]tstime.TimeSpan, 0, len(t.streamOrder))
	for _, name := range t.streamOrder {
		spans = append(spans, t.buffers[name].TimeSpan())
	}
	if t.cfg.Mode == ByWindow {
		return tstime.FoldSpansStrict(spans)
	}
	return tstime.FoldSpans(spans)
}

// Create returns an empty Value built from the combined schema, or an
// empty zero-value Value if not yet initialized (spec.md §4.3).
func (t *Table) Create() *tabschema.Value {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.combined == nil {
		return &tabschema.Value{}
	}
	return t.combined.Create()
}

// CombinedSchema returns the derived output schema, or nil if not yet
// initialized.
func (t *Table) CombinedSchema() *tabschema.Schema {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.combined
}

// Streams returns the table's stream ordering.
func (t *Table) Streams() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.streamOrder...)
}
