package merger

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/tabjoin/tabjoin/internal/shutdown"
)

// Coordinator ties a Listener's and Reactor's lifecycles together on top
// of the adapted internal/shutdown.Coordinator: the Listener is closed
// first, then the Reactor, matching the teacher's priority-ordered
// shutdown (spec.md §4.5). Closing the Reactor stops its loop; it does not
// emit a further chunk.
type Coordinator struct {
	listener *Listener
	reactor  *Reactor
	shutdown *shutdown.Coordinator
	logger   zerolog.Logger

	errCh chan error
}

// NewCoordinator wires listener and reactor under a shared shutdown
// deadline.
func NewCoordinator(listener *Listener, reactor *Reactor, shutdownTimeout time.Duration, logger zerolog.Logger) *Coordinator {
	sc := shutdown.New(shutdownTimeout, logger)
	sc.Register("listener", listener, shutdown.PriorityListener)
	sc.Register("reactor", reactor, shutdown.PriorityReactor)
	return &Coordinator{
		listener: listener,
		reactor:  reactor,
		shutdown: sc,
		logger:   logger.With().Str("component", "coordinator").Logger(),
		errCh:    make(chan error, 2),
	}
}

// Run starts the Listener and Reactor and blocks until either exits or
// the process receives a termination signal, then sequences a graceful
// shutdown and returns the Reactor's terminal error, if any.
func (c *Coordinator) Run() error {
	go func() {
		c.listener.Run()
		c.errCh <- nil
	}()
	go func() {
		if err := c.reactor.Run(); err != nil {
			c.errCh <- err
			return
		}
		c.errCh <- nil
	}()

	sigCh := make(chan struct{}, 1)
	go func() {
		c.shutdown.WaitForSignal()
		sigCh <- struct{}{}
	}()

	var reactorErr error
	select {
	case reactorErr = <-c.errCh:
		c.logger.Info().Msg("listener or reactor exited, shutting down")
	case <-sigCh:
		c.logger.Info().Msg("shutdown signal received")
	}

	c.shutdown.TriggerShutdown()
	return reactorErr
}

// Shutdown exposes the underlying shutdown.Coordinator for callers that
// want to trigger shutdown themselves instead of relying on OS signals.
func (c *Coordinator) Shutdown() *shutdown.Coordinator { return c.shutdown }
