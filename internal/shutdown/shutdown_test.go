package shutdown

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeComponent struct {
	name string
	mu   *sync.Mutex
	order *[]string
	delay time.Duration
	err   error
}

func (f fakeComponent) Close() error {
	time.Sleep(f.delay)
	f.mu.Lock()
	*f.order = append(*f.order, f.name)
	f.mu.Unlock()
	return f.err
}

func TestTriggerShutdownRunsInPriorityOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string

	c := New(time.Second, zerolog.Nop())
	c.Register("reactor", fakeComponent{name: "reactor", mu: &mu, order: &order}, PriorityReactor)
	c.Register("listener", fakeComponent{name: "listener", mu: &mu, order: &order}, PriorityListener)
	c.Register("writer", fakeComponent{name: "writer", mu: &mu, order: &order}, PriorityWriter)

	c.TriggerShutdown()

	if len(order) != 3 || order[0] != "listener" || order[1] != "reactor" || order[2] != "writer" {
		t.Fatalf("shutdown order = %v, want [listener reactor writer]", order)
	}
}

func TestTriggerShutdownOnlyRunsOnce(t *testing.T) {
	var mu sync.Mutex
	var order []string
	c := New(time.Second, zerolog.Nop())
	c.Register("x", fakeComponent{name: "x", mu: &mu, order: &order}, 0)

	c.TriggerShutdown()
	c.TriggerShutdown()

	if len(order) != 1 {
		t.Fatalf("expected exactly one Close call, got %d", len(order))
	}
}

func TestClosingWithDeadlineDoesNotBlockOnSlowComponent(t *testing.T) {
	var mu sync.Mutex
	var order []string
	c := New(20*time.Millisecond, zerolog.Nop())
	c.Register("slow", fakeComponent{name: "slow", mu: &mu, order: &order, delay: 200 * time.Millisecond}, 0)

	done := make(chan struct{})
	go func() {
		c.TriggerShutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("TriggerShutdown blocked past its deadline")
	}
}
