package merger

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tabjoin/tabjoin/internal/aligner"
	"github.com/tabjoin/tabjoin/internal/tabschema"
	"github.com/tabjoin/tabjoin/internal/transport"
)

// fakeSub is an in-memory transport.Subscription driven by pushing
// values directly from the test goroutine.
type fakeSub struct {
	stream string

	mu      sync.Mutex
	notify  func()
	pending []*tabschema.Value
	closed  bool
}

func newFakeSub(stream string) *fakeSub { return &fakeSub{stream: stream} }

func (f *fakeSub) Stream() string { return f.stream }

func (f *fakeSub) Arm(notify func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notify = notify
	if len(f.pending) > 0 && notify != nil {
		go notify()
	}
}

func (f *fakeSub) PopValue() (*tabschema.Value, transport.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		if f.closed {
			return nil, transport.EventNone, io.EOF
		}
		return nil, transport.EventNone, nil
	}
	v := f.pending[0]
	f.pending = f.pending[1:]
	return v, transport.EventNone, nil
}

func (f *fakeSub) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSub) push(v *tabschema.Value) {
	f.mu.Lock()
	f.pending = append(f.pending, v)
	cb := f.notify
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func singleRow(t *testing.T, sec, nsec uint32, col string, val float64) *tabschema.Value {
	t.Helper()
	order := []string{tabschema.ColSecondsPastEpoch, tabschema.ColNanoseconds, col}
	labels := []string{"Seconds Past Epoch", "Nanoseconds", col}
	return tabschema.NewValue(order, labels, map[string]interface{}{
		tabschema.ColSecondsPastEpoch: []uint32{sec},
		tabschema.ColNanoseconds:      []uint32{nsec},
		col:                           []float64{val},
	})
}

func TestListenerPushesArrivingValuesIntoTable(t *testing.T) {
	table := aligner.New([]string{"a"}, aligner.Config{LabelSep: ".", ColSep: "_", Mode: aligner.ByPulse})
	sub := newFakeSub("a")
	l := NewListener(table, []transport.Subscription{sub}, zerolog.Nop(), nil)

	go l.Run()
	sub.push(singleRow(t, 1, 0, "x", 1.0))

	deadline := time.After(2 * time.Second)
	for !table.Initialized() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for table to initialize")
		case <-time.After(time.Millisecond):
		}
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestListenerClosesSubscriptionsOnClose(t *testing.T) {
	table := aligner.New([]string{"a"}, aligner.Config{LabelSep: ".", ColSep: "_", Mode: aligner.ByPulse})
	sub := newFakeSub("a")
	l := NewListener(table, []transport.Subscription{sub}, zerolog.Nop(), nil)

	go l.Run()
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	sub.mu.Lock()
	closed := sub.closed
	sub.mu.Unlock()
	if !closed {
		t.Fatal("expected Close to close every subscription")
	}
}
