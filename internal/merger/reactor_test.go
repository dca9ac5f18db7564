package merger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tabjoin/tabjoin/internal/aligner"
	"github.com/tabjoin/tabjoin/internal/errs"
	"github.com/tabjoin/tabjoin/internal/tabschema"
)

func TestReactorEmitsAfterPeriodElapses(t *testing.T) {
	table := aligner.New([]string{"a"}, aligner.Config{LabelSep: ".", ColSep: "_", Mode: aligner.ByPulse})
	must(t, table.Push("a", singleRow(t, 1, 0, "x", 1.0)))
	must(t, table.Push("a", singleRow(t, 2, 0, "x", 2.0)))

	var mu sync.Mutex
	var emitted []*tabschema.Value
	emit := func(v *tabschema.Value, mismatches []aligner.Mismatch) error {
		mu.Lock()
		emitted = append(emitted, v)
		mu.Unlock()
		return nil
	}

	r := NewReactor(table, 500*time.Millisecond, 0, emit, zerolog.Nop(), nil)
	go r.Run()
	defer r.Close()

	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		n := len(emitted)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for reactor to emit a chunk")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// TestReactorEmitsViaLaggardTimeoutWithPartialValidity covers spec.md §8
// scenario S2: stream B stops producing after its one row while A keeps
// advancing, so shortest (bounded by B's stalled earliest_end) never
// reaches period, but longest (bounded by A's growing latest_end) reaches
// timeout — the OR-variant policy still emits, and the chunk's B-valid
// column is false for every row A alone contributed.
func TestReactorEmitsViaLaggardTimeoutWithPartialValidity(t *testing.T) {
	table := aligner.New([]string{"a", "b"}, aligner.Config{LabelSep: ".", ColSep: "_", Mode: aligner.ByPulse})
	must(t, table.Push("a", singleRow(t, 0, 0, "x", 0)))
	must(t, table.Push("b", singleRow(t, 0, 0, "y", 0)))
	for sec := uint32(1); sec <= 5; sec++ {
		must(t, table.Push("a", singleRow(t, sec, 0, "x", float64(sec))))
	}

	var mu sync.Mutex
	var emitted *tabschema.Value
	emit := func(v *tabschema.Value, mismatches []aligner.Mismatch) error {
		mu.Lock()
		emitted = v
		mu.Unlock()
		return nil
	}

	// period is set far larger than anything the test's synthetic
	// "seconds" values could reach, so only the timeout arm of the OR can
	// fire; timeout is small so it trips on the very first poll tick. That
	// tick comes period/5 = 2s after Run starts, so the wait below must be
	// longer than 2s.
	r := NewReactor(table, 10*time.Second, 50*time.Millisecond, emit, zerolog.Nop(), nil)
	go r.Run()
	defer r.Close()

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		v := emitted
		mu.Unlock()
		if v != nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the laggard-timeout emission")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	v := emitted
	mu.Unlock()
	validB, ok := v.Data["tbl1_valid"].([]bool)
	if !ok {
		t.Fatal("emitted chunk is missing tbl1_valid")
	}
	sawFalse := false
	for _, valid := range validB {
		if !valid {
			sawFalse = true
			break
		}
	}
	if !sawFalse {
		t.Fatalf("valid_B = %v, want at least one false row (B stopped producing)", validB)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReactorPreparationTimeoutWhenNoStreamsInitialize(t *testing.T) {
	table := aligner.New([]string{"a", "b"}, aligner.Config{LabelSep: ".", ColSep: "_", Mode: aligner.ByPulse})
	emit := func(v *tabschema.Value, mismatches []aligner.Mismatch) error { return nil }

	r := NewReactor(table, 100*time.Millisecond, 50*time.Millisecond, emit, zerolog.Nop(), nil)
	err := r.Run()
	if !errors.Is(err, errs.ErrPreparationTimeout) {
		t.Fatalf("Run() = %v, want ErrPreparationTimeout", err)
	}
}

func TestReactorForcesInitializationWhenSomeStreamsReady(t *testing.T) {
	table := aligner.New([]string{"a", "b"}, aligner.Config{LabelSep: ".", ColSep: "_", Mode: aligner.ByPulse})
	must(t, table.Push("a", singleRow(t, 1, 0, "x", 1.0)))

	emit := func(v *tabschema.Value, mismatches []aligner.Mismatch) error { return nil }
	r := NewReactor(table, 100*time.Millisecond, 50*time.Millisecond, emit, zerolog.Nop(), nil)

	done := make(chan struct{})
	go func() {
		_ = r.Run()
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for !table.Initialized() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for forced initialization")
		case <-time.After(10 * time.Millisecond):
		}
	}
	r.Close()
	<-done
}
