// Package mqtt adapts an MQTT topic into a transport.Subscription, using
// github.com/eclipse/paho.mqtt.golang exactly as
// basekick-labs/arc's internal/mqtt.Manager does: one persistent client
// connection, a per-topic message handler, and explicit
// connect/disconnect callbacks surfaced as transport.Event side-signals
// rather than errors. Payloads are msgpack-encoded tabschema.Values
// (github.com/vmihailenco/msgpack/v5), matching the wire codec the
// retrieval pack's WAL and subscriber paths already use.
package mqtt

import (
	"fmt"
	"io"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tabjoin/tabjoin/internal/errs"
	"github.com/tabjoin/tabjoin/internal/tabschema"
	"github.com/tabjoin/tabjoin/internal/transport"
)

// wireValue is the msgpack-encoded form of a tabschema.Value: the typed
// Data map can't round-trip through msgpack's generic decoding without
// losing its Go element types, so the wire form carries explicit type
// codes per column (see encode/decode below).
type wireValue struct {
	Order  []string                 `msgpack:"order"`
	Labels []string                 `msgpack:"labels"`
	Types  []byte                   `msgpack:"types"`
	Data   map[string]msgpack.RawMessage `msgpack:"data"`
}

// Config is an Adapter's connection configuration.
type Config struct {
	Broker   string
	ClientID string
	Topic    string
	Stream   string
	QoS      byte
}

// Adapter is a transport.Subscription backed by a single MQTT topic
// subscription.
type Adapter struct {
	cfg    Config
	logger zerolog.Logger

	client paho.Client

	mu      sync.Mutex
	notify  func()
	pending []item
	closed  bool
}

type item struct {
	v   *tabschema.Value
	ev  transport.Event
	err error
}

// New constructs an Adapter and connects to cfg.Broker. The connection
// is established synchronously so Connect failures surface immediately
// rather than as a later PopValue error. If cfg.ClientID is empty, a
// random one is generated: paho requires a broker-unique client ID, and
// a fixed stream-derived ID would collide across concurrent restarts of
// the same process.
func New(cfg Config, logger zerolog.Logger) (*Adapter, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "tabjoin-" + cfg.Stream + "-" + uuid.NewString()
	}
	a := &Adapter{
		cfg:    cfg,
		logger: logger.With().Str("component", "mqtt-adapter").Str("stream", cfg.Stream).Logger(),
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(a.onConnectionLost).
		SetOnConnectHandler(a.onConnect)

	a.client = paho.NewClient(opts)
	tok := a.client.Connect()
	if !tok.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("%w: timed out connecting to %s", errs.ErrTransportDisconnect, cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrTransportDisconnect, err)
	}

	subTok := a.client.Subscribe(cfg.Topic, cfg.QoS, a.onMessage)
	subTok.Wait()
	if err := subTok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: subscribing to %s: %w", cfg.Topic, err)
	}
	return a, nil
}

// Stream implements transport.Subscription.
func (a *Adapter) Stream() string { return a.cfg.Stream }

func (a *Adapter) onConnect(paho.Client) {
	a.push(item{ev: transport.EventConnected})
}

func (a *Adapter) onConnectionLost(_ paho.Client, err error) {
	a.logger.Warn().Err(err).Msg("mqtt connection lost")
	a.push(item{ev: transport.EventDisconnected})
}

func (a *Adapter) onMessage(_ paho.Client, msg paho.Message) {
	v, err := decodeValue(msg.Payload())
	if err != nil {
		a.logger.Error().Err(err).Msg("discarding malformed message")
		a.push(item{ev: transport.EventError, err: nil})
		return
	}
	a.push(item{v: v})
}

func (a *Adapter) push(it item) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.pending = append(a.pending, it)
	cb := a.notify
	a.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Arm implements transport.Subscription.
func (a *Adapter) Arm(notify func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notify = notify
	if len(a.pending) > 0 && notify != nil {
		go notify()
	}
}

// PopValue implements transport.Subscription.
func (a *Adapter) PopValue() (*tabschema.Value, transport.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed && len(a.pending) == 0 {
		return nil, transport.EventNone, io.EOF
	}
	if len(a.pending) == 0 {
		return nil, transport.EventNone, nil
	}
	it := a.pending[0]
	a.pending = a.pending[1:]
	ev := it.ev
	if ev == 0 && it.v == nil {
		ev = transport.EventError
	}
	return it.v, ev, it.err
}

// Close implements transport.Subscription.
func (a *Adapter) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	if a.client != nil && a.client.IsConnected() {
		a.client.Unsubscribe(a.cfg.Topic)
		a.client.Disconnect(250)
	}
	return nil
}

func decodeValue(payload []byte) (*tabschema.Value, error) {
	var w wireValue
	if err := msgpack.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("mqtt: decoding payload: %w", err)
	}
	if len(w.Order) != len(w.Types) {
		return nil, fmt.Errorf("%w: wire value has %d columns but %d types", errs.ErrSchemaMismatch, len(w.Order), len(w.Types))
	}

	data := make(map[string]interface{}, len(w.Order))
	for i, name := range w.Order {
		raw, ok := w.Data[name]
		if !ok {
			return nil, fmt.Errorf("%w: wire value missing column %q", errs.ErrSchemaMismatch, name)
		}
		t, err := tabschema.ColTypeFromCode(w.Types[i])
		if err != nil {
			return nil, err
		}
		col, err := decodeColumn(t, raw)
		if err != nil {
			return nil, fmt.Errorf("mqtt: column %q: %w", name, err)
		}
		data[name] = col
	}
	return tabschema.NewValue(w.Order, w.Labels, data), nil
}

// decodeColumn unmarshals raw into a concrete Go typed slice matching t.
// msgpack.Unmarshal must target the concrete slice type directly (not a
// pointer-to-interface{}) to preserve the closed-set element type instead
// of decoding generically into []interface{}.
func decodeColumn(t tabschema.ColType, raw msgpack.RawMessage) (interface{}, error) {
	switch t {
	case tabschema.Bool:
		var s []bool
		return s, msgpack.Unmarshal(raw, &s)
	case tabschema.Int8:
		var s []int8
		return s, msgpack.Unmarshal(raw, &s)
	case tabschema.Int16:
		var s []int16
		return s, msgpack.Unmarshal(raw, &s)
	case tabschema.Int32:
		var s []int32
		return s, msgpack.Unmarshal(raw, &s)
	case tabschema.Int64:
		var s []int64
		return s, msgpack.Unmarshal(raw, &s)
	case tabschema.Uint8:
		var s []uint8
		return s, msgpack.Unmarshal(raw, &s)
	case tabschema.Uint16:
		var s []uint16
		return s, msgpack.Unmarshal(raw, &s)
	case tabschema.Uint32:
		var s []uint32
		return s, msgpack.Unmarshal(raw, &s)
	case tabschema.Uint64:
		var s []uint64
		return s, msgpack.Unmarshal(raw, &s)
	case tabschema.Float32:
		var s []float32
		return s, msgpack.Unmarshal(raw, &s)
	case tabschema.Float64:
		var s []float64
		return s, msgpack.Unmarshal(raw, &s)
	case tabschema.String:
		var s []string
		return s, msgpack.Unmarshal(raw, &s)
	default:
		return nil, fmt.Errorf("tabschema: unsupported column type %s", t)
	}
}
