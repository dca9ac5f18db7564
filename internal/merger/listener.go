// Package merger implements the Merger pipeline of spec.md §4.5: a
// Listener draining per-stream subscriptions into the TimeAlignedTable,
// and a Reactor polling the table on a fixed cadence to emit merged
// chunks, both owned by a Coordinator that sequences shutdown.
package merger

import (
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tabjoin/tabjoin/internal/aligner"
	"github.com/tabjoin/tabjoin/internal/metrics"
	"github.com/tabjoin/tabjoin/internal/transport"
)

// DefaultQueueSize is the Listener's bounded queue capacity (spec.md §5).
const DefaultQueueSize = 1024

// Listener ingests values from every configured subscription into a
// shared TimeAlignedTable via a single drainer goroutine, so all writes
// to the table are serialized without relying on the table's own mutex
// for cross-stream ordering guarantees.
type Listener struct {
	table  *aligner.Table
	subs   []transport.Subscription
	logger zerolog.Logger
	metric *metrics.Merger

	queue    chan struct{}
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewListener constructs a Listener over subs, all of which must name
// streams already known to table.
func NewListener(table *aligner.Table, subs []transport.Subscription, logger zerolog.Logger, m *metrics.Merger) *Listener {
	return &Listener{
		table:  table,
		subs:   subs,
		logger: logger.With().Str("component", "listener").Logger(),
		metric: m,
		queue:  make(chan struct{}, DefaultQueueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Run arms every subscription and drains notifications until Close is
// called or every subscription reports permanent EOF. It blocks until
// the drain loop exits, so callers typically invoke it in its own
// goroutine.
func (l *Listener) Run() {
	defer close(l.doneCh)

	for _, sub := range l.subs {
		sub := sub
		sub.Arm(func() { l.notify() })
	}

	active := len(l.subs)
	eof := make([]bool, len(l.subs))
	for active > 0 {
		select {
		case <-l.stopCh:
			return
		case <-l.queue:
			active -= l.drainReady(eof)
		}
	}
}

// notify enqueues a wake-up signal for the drain loop. The queue is
// bounded (DefaultQueueSize, spec.md §5), and the send blocks when it is
// full, so a transport callback stalls until the drain loop makes room —
// this is how ingest backpressure propagates to the transport layer. The
// stopCh case only exists so a blocked callback is released during
// shutdown rather than leaking the caller's goroutine forever.
func (l *Listener) notify() {
	select {
	case l.queue <- struct{}{}:
	case <-l.stopCh:
	}
}

// drainReady pops every currently-available item from every subscription
// not yet marked in eof and pushes it to the table, returning the count of
// subscriptions that newly reported permanent EOF (which it marks in eof).
func (l *Listener) drainReady(eof []bool) int {
	closed := 0
	for i, sub := range l.subs {
		if eof[i] {
			continue
		}
		for {
			v, ev, err := sub.PopValue()
			if errors.Is(err, io.EOF) {
				eof[i] = true
				closed++
				break
			}
			if err != nil {
				l.logger.Error().Err(err).Str("stream", sub.Stream()).Msg("subscription error")
				break
			}
			if v == nil {
				if ev != transport.EventNone {
					l.logLifecycle(sub.Stream(), ev)
				}
				break
			}
			if pushErr := l.table.Push(sub.Stream(), v); pushErr != nil {
				l.logger.Warn().Err(pushErr).Str("stream", sub.Stream()).Msg("rejecting update")
				if l.metric != nil {
					l.metric.PushesRejected.Add(1)
					l.metric.SchemaMismatches.Add(1)
				}
				continue
			}
			if l.metric != nil {
				l.metric.PushesAccepted.Add(1)
			}
		}
	}
	return closed
}

func (l *Listener) logLifecycle(stream string, ev transport.Event) {
	switch ev {
	case transport.EventConnected:
		l.logger.Info().Str("stream", stream).Msg("subscription connected")
	case transport.EventDisconnected:
		l.logger.Warn().Str("stream", stream).Msg("subscription disconnected")
	case transport.EventError:
		l.logger.Error().Str("stream", stream).Msg("subscription reported a transient error")
	}
}

// Close stops the drain loop and closes every subscription. It satisfies
// shutdown.Shutdownable.
func (l *Listener) Close() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
	var firstErr error
	for _, sub := range l.subs {
		if err := sub.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
