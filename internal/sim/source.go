// Package sim provides an in-memory transport.Subscription that
// generates non-decreasing timestamped rows at a configurable rate,
// standing in for a real data-acquisition transport in integration tests
// and local demos. Grounded on basekick-labs/arc's ingest simulators used
// to drive the write path in tests without a live broker.
package sim

import (
	"io"
	"sync"
	"time"

	"github.com/tabjoin/tabjoin/internal/tabschema"
	"github.com/tabjoin/tabjoin/internal/transport"
)

// RowFunc builds the idx'th row's data columns (excluding the time
// columns, which Source fills in itself).
type RowFunc func(idx int) map[string]interface{}

// Source is a synthetic Subscription. Each tick it synthesizes one row
// timestamped at base plus idx*interval, where base is startAt or, if
// startAt is zero, the wall-clock time the ticking goroutine began; it
// wraps the row in a single-row Value and makes it available via PopValue.
type Source struct {
	stream   string
	schema   *tabschema.Schema
	interval time.Duration
	startAt  time.Time
	rowFn    RowFunc
	withPulse bool

	mu       sync.Mutex
	notify   func()
	pending  []*tabschema.Value
	closed   bool
	stopCh   chan struct{}
	stopOnce sync.Once
	idx      int
}

// New constructs a Source over schema, ticking every interval. If
// startAt is the zero Value, the first tick uses time.Now at Start.
func New(stream string, schema *tabschema.Schema, interval time.Duration, startAt time.Time, rowFn RowFunc) *Source {
	return &Source{
		stream:    stream,
		schema:    schema,
		interval:  interval,
		startAt:   startAt,
		rowFn:     rowFn,
		withPulse: schema.HasPulseID(),
		stopCh:    make(chan struct{}),
	}
}

// Stream implements transport.Subscription.
func (s *Source) Stream() string { return s.stream }

// Start begins the ticking goroutine. Safe to call once.
func (s *Source) Start() {
	go s.run()
}

func (s *Source) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	base := s.startAt
	if base.IsZero() {
		base = time.Now()
	}
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.emit(base)
		}
	}
}

func (s *Source) emit(base time.Time) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	idx := s.idx
	s.idx++
	ts := base.Add(time.Duration(idx) * s.interval)
	data := s.rowFn(idx)

	order := s.schema.ColumnNames()
	labels := s.schema.Labels()
	full := make(map[string]interface{}, len(data)+3)
	full[tabschema.ColSecondsPastEpoch] = []uint32{uint32(ts.Unix())}
	full[tabschema.ColNanoseconds] = []uint32{uint32(ts.Nanosecond())}
	if s.withPulse {
		full[tabschema.ColPulseID] = []uint64{uint64(idx)}
	}
	for k, v := range data {
		full[k] = v
	}
	v := tabschema.NewValue(order, labels, full)
	s.pending = append(s.pending, v)
	cb := s.notify
	s.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Arm implements transport.Subscription.
func (s *Source) Arm(notify func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = notify
	if len(s.pending) > 0 && notify != nil {
		go notify()
	}
}

// PopValue implements transport.Subscription.
func (s *Source) PopValue() (*tabschema.Value, transport.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed && len(s.pending) == 0 {
		return nil, transport.EventNone, io.EOF
	}
	if len(s.pending) == 0 {
		return nil, transport.EventNone, nil
	}
	v := s.pending[0]
	s.pending = s.pending[1:]
	return v, transport.EventNone, nil
}

// Close implements transport.Subscription.
func (s *Source) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
