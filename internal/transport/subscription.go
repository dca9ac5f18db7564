// Package transport defines the Subscription abstraction the Listener
// (spec.md §4.5) consumes, modeled on basekick-labs/arc's
// internal/mqtt.Manager's separation of connection lifecycle from value
// consumption: a Subscription owns exactly one stream's inbound side and
// hands the Listener fully-formed tabschema.Values plus out-of-band
// connection events.
package transport

import "github.com/tabjoin/tabjoin/internal/tabschema"

// Event is a side-signal a Subscription can report alongside, or instead
// of, a value.
type Event int

const (
	// EventNone means PopValue returned a value with no side-signal.
	EventNone Event = iota
	// EventConnected reports the underlying transport (re)connected.
	EventConnected
	// EventDisconnected reports the underlying transport dropped.
	EventDisconnected
	// EventError reports a non-fatal transport error was logged and
	// swallowed; the subscription remains usable.
	EventError
)

func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	default:
		return "none"
	}
}

// Subscription is one input stream's inbound side. Implementations must
// be safe for the Arm/PopValue/Close calling pattern the Listener uses:
// Arm registers a callback to invoke when a value becomes available (or
// when a side-event fires), and PopValue drains exactly one pending item.
type Subscription interface {
	// Stream returns the stream name this subscription feeds, matching
	// one of the TimeAlignedTable's configured stream names.
	Stream() string

	// Arm registers notify to be called, persistently, once per item
	// (from any goroutine) whenever a value or event becomes available
	// to pop; implementations store notify and keep invoking it for the
	// lifetime of the subscription. The Listener calls Arm exactly once
	// per subscription at startup, not after every PopValue.
	Arm(notify func())

	// PopValue drains at most one pending value or event. A nil Value
	// with EventNone and a nil error means nothing was pending when
	// called (the caller should wait for the next Arm notification).
	// A nil Value with a non-EventNone event reports a side-signal with
	// no data. err is non-nil only for fatal, unrecoverable conditions.
	PopValue() (v *tabschema.Value, ev Event, err error)

	// Close releases the subscription's resources. After Close, Arm's
	// notify must never fire again, and PopValue returns any items still
	// pending and then io.EOF.
	Close() error
}
