// Package shutdown provides a priority-ordered graceful-shutdown
// coordinator, adapted from basekick-labs/arc's internal/shutdown for the
// merger pipeline's Listener/Reactor/Writer teardown sequencing (spec.md
// §4.5's Coordinator).
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Shutdownable is a component that can be shut down gracefully.
type Shutdownable interface {
	Close() error
}

// Shutdown priorities for the merger/writer binaries: lower runs first.
const (
	PriorityListener = 0
	PriorityReactor  = 10
	PriorityWriter   = 20
)

type namedComponent struct {
	name      string
	component Shutdownable
	priority  int
}

// Coordinator sequences graceful shutdown of registered components by
// priority, with a bounded deadline per spec.md §5 ("awaits exit with a
// 1-second deadline; exceeding it is reported but not escalated").
type Coordinator struct {
	timeout time.Duration
	logger  zerolog.Logger

	mu         sync.Mutex
	components []namedComponent

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New creates a Coordinator with the given per-component shutdown
// deadline.
func New(timeout time.Duration, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		timeout:    timeout,
		logger:     logger.With().Str("component", "shutdown").Logger(),
		shutdownCh: make(chan struct{}),
	}
}

// Register records a component for graceful shutdown. Lower priority
// values shut down first.
func (c *Coordinator) Register(name string, component Shutdownable, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components = append(c.components, namedComponent{name: name, component: component, priority: priority})
}

// WaitForSignal blocks until SIGINT/SIGTERM/SIGQUIT is received.
func (c *Coordinator) WaitForSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	return <-quit
}

// TriggerShutdown runs every registered component's Close, in ascending
// priority order, each bounded by the Coordinator's timeout. It is safe
// to call more than once; only the first call does anything.
func (c *Coordinator) TriggerShutdown() {
	c.shutdownOnce.Do(func() {
		close(c.shutdownCh)
		c.mu.Lock()
		ordered := append([]namedComponent(nil), c.components...)
		c.mu.Unlock()

		sortByPriority(ordered)
		for _, nc := range ordered {
			c.closeWithDeadline(nc)
		}
	})
}

// Done returns a channel closed once TriggerShutdown has run.
func (c *Coordinator) Done() <-chan struct{} { return c.shutdownCh }

func (c *Coordinator) closeWithDeadline(nc namedComponent) {
	done := make(chan error, 1)
	go func() { done <- nc.component.Close() }()

	select {
	case err := <-done:
		if err != nil {
			c.logger.Error().Err(err).Str("name", nc.name).Msg("component returned error on shutdown")
		} else {
			c.logger.Info().Str("name", nc.name).Msg("component shut down")
		}
	case <-time.After(c.timeout):
		c.logger.Warn().Str("name", nc.name).Dur("timeout", c.timeout).Msg("component shutdown exceeded deadline")
	}
}

func sortByPriority(cs []namedComponent) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && cs[j].priority < cs[j-1].priority; j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}

// RunUntilSignalOrErr blocks until either an OS signal arrives or errCh
// yields a value, then triggers shutdown and returns whichever error (if
// any) came from errCh (spec.md §4.5's "main thread blocks on the done
// queue"). Neither binary calls it: merger.Coordinator.Run has its own
// loop of the same shape, and cmd/writer handles signals itself.
func RunUntilSignalOrErr(ctx context.Context, c *Coordinator, errCh <-chan error) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var taskErr error
	select {
	case <-ctx.Done():
	case <-sigCh:
	case taskErr = <-errCh:
	}
	c.TriggerShutdown()
	return taskErr
}
