package merger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tabjoin/tabjoin/internal/aligner"
	"github.com/tabjoin/tabjoin/internal/errs"
	"github.com/tabjoin/tabjoin/internal/metrics"
	"github.com/tabjoin/tabjoin/internal/tabschema"
	"github.com/tabjoin/tabjoin/internal/tstime"
)

// EmitFunc consumes one merged chunk, along with the alignment mismatches
// (if any) spec.md §4.3 collects while assembling it.
type EmitFunc func(v *tabschema.Value, mismatches []aligner.Mismatch) error

// Reactor polls a TimeAlignedTable on a fixed cadence and emits merged
// chunks per spec.md §4.5: a preparation phase waiting for every stream
// to initialize, then a steady phase emitting whenever the shortest
// buffered span reaches period or the longest reaches timeout.
type Reactor struct {
	table   *aligner.Table
	period  time.Duration
	timeout time.Duration // 0 = wait forever
	emit    EmitFunc
	logger  zerolog.Logger
	metric  *metrics.Merger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewReactor constructs a Reactor. period must be positive; timeout of 0
// disables both the preparation deadline and the laggard watchdog.
func NewReactor(table *aligner.Table, period, timeout time.Duration, emit EmitFunc, logger zerolog.Logger, m *metrics.Merger) *Reactor {
	return &Reactor{
		table:   table,
		period:  period,
		timeout: timeout,
		emit:    emit,
		logger:  logger.With().Str("component", "reactor").Logger(),
		metric:  m,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Run executes the prep phase followed by the steady phase, returning
// when Close is called or an unrecoverable error occurs. It blocks, so
// callers typically invoke it in its own goroutine and collect its
// returned error there.
func (r *Reactor) Run() error {
	defer close(r.doneCh)

	if err := r.prepPhase(); err != nil {
		return err
	}
	return r.steadyPhase()
}

func (r *Reactor) pollInterval() time.Duration {
	iv := r.period / 5
	if iv <= 0 {
		iv = time.Millisecond
	}
	return iv
}

// prepPhase waits for every configured stream to produce at least one
// update, polling every period/5, until the table initializes or timeout
// elapses (spec.md §4.5's "Phase 1: preparation").
func (r *Reactor) prepPhase() error {
	if r.table.Initialized() {
		return nil
	}

	ticker := time.NewTicker(r.pollInterval())
	defer ticker.Stop()

	var deadline <-chan time.Time
	if r.timeout > 0 {
		t := time.NewTimer(r.timeout)
		defer t.Stop()
		deadline = t.C
	}

	for {
		select {
		case <-r.stopCh:
			return nil
		case <-deadline:
			n, err := r.table.ForceInitialize()
			if err != nil {
				return err
			}
			if n == 0 {
				return errs.ErrPreparationTimeout
			}
			r.logger.Warn().Int("surviving_streams", n).Msg("preparation deadline reached, forcing initialization")
			return nil
		case <-ticker.C:
			if r.table.Initialized() {
				return nil
			}
		}
	}
}

// steadyPhase polls GetTimeBounds every period/5 and emits a chunk
// whenever the shortest per-stream span reaches period or the longest
// reaches timeout (spec.md §4.5's OR-variant laggard policy). A watchdog
// aborts with ErrTimeoutWaitingForUpdates if no successful emission
// happens within timeout of the last one, when timeout is nonzero.
func (r *Reactor) steadyPhase() error {
	ticker := time.NewTicker(r.pollInterval())
	defer ticker.Stop()

	lastEmit := time.Now()
	for {
		select {
		case <-r.stopCh:
			return nil
		case <-ticker.C:
			bounds := r.table.GetTimeBounds()
			if !bounds.Valid {
				if r.watchdogExpired(lastEmit) {
					return errs.ErrTimeoutWaitingForUpdates
				}
				continue
			}

			shortest := tstime.NanosSince(bounds.EarliestStart, bounds.EarliestEnd)
			longest := tstime.NanosSince(bounds.EarliestStart, bounds.LatestEnd)
			due := shortest >= r.period.Nanoseconds() || (r.timeout > 0 && longest >= r.timeout.Nanoseconds())
			if !due {
				if r.watchdogExpired(lastEmit) {
					return errs.ErrTimeoutWaitingForUpdates
				}
				continue
			}

			start := bounds.EarliestStart
			end := tstime.AddMicros(start, int64(r.period.Microseconds()))
			v, mismatches, err := r.table.Extract(start, end)
			if err != nil {
				return fmt.Errorf("reactor: extracting chunk: %w", err)
			}
			if err := r.emit(v, mismatches); err != nil {
				return fmt.Errorf("reactor: emitting chunk: %w", err)
			}
			if r.metric != nil {
				r.metric.ChunksEmitted.Add(1)
			}
			lastEmit = time.Now()
		}
	}
}

func (r *Reactor) watchdogExpired(lastEmit time.Time) bool {
	if r.timeout <= 0 {
		return false
	}
	expired := time.Since(lastEmit) >= r.timeout
	if expired && r.metric != nil {
		r.metric.LaggardTimeouts.Add(1)
	}
	return expired
}

// Close stops the reactor loop and waits for Run to return.
func (r *Reactor) Close() error {
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
	<-r.doneCh
	return nil
}

// RunWithContext is a convenience wrapper cancelling Run via ctx as well
// as Close.
func (r *Reactor) RunWithContext(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run() }()
	select {
	case <-ctx.Done():
		_ = r.Close()
		return <-errCh
	case err := <-errCh:
		return err
	}
}
