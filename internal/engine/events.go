package engine

import (
	"encoding/json"

	"github.com/kelindar/event"
)

// Event type identifiers for kelindar/event.
const (
	typeReady uint32 = iota + 1
	typeStatus
	typeStage
	typeMetrics
	typeEngineError
	typeHeartbeatAck
	typeExit
	typeHealthChanged
)

// ReadyEvent fires when the engine confirms the startup handshake.
type ReadyEvent struct {
	Version string `json:"version"`
}

func (e ReadyEvent) Type() uint32 { return typeReady }

// StatusEvent carries an uncorrelated status_update payload.
type StatusEvent struct {
	Payload json.RawMessage `json:"payload"`
}

func (e StatusEvent) Type() uint32 { return typeStatus }

// StageEvent fires when the animation advances to a new stage.
type StageEvent struct {
	Stage   string          `json:"stage"`
	Payload json.RawMessage `json:"payload"`
}

func (e StageEvent) Type() uint32 { return typeStage }

// MetricsEvent carries a metrics_update payload from the engine.
type MetricsEvent struct {
	Payload json.RawMessage `json:"payload"`
}

func (e MetricsEvent) Type() uint32 { return typeMetrics }

// ErrorEvent carries an uncorrelated engine-side error.
type ErrorEvent struct {
	Message string `json:"message"`
}

func (e ErrorEvent) Type() uint32 { return typeEngineError }

// HeartbeatAckEvent fires for each heartbeat acknowledgement.
type HeartbeatAckEvent struct{}

func (e HeartbeatAckEvent) Type() uint32 { return typeHeartbeatAck }

// ExitEvent fires on an unsolicited engine exit so the embedding application
// can decide whether to restart. Signal is empty when the process exited on
// its own.
type ExitEvent struct {
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
}

func (e ExitEvent) Type() uint32 { return typeExit }

// HealthChangedEvent fires when the derived responding flag flips.
type HealthChangedEvent struct {
	Responding bool `json:"responding"`
}

func (e HealthChangedEvent) Type() uint32 { return typeHealthChanged }

// Bus is a typed subscription registry over kelindar/event. Each OnX method
// registers a handler for one event kind and returns its unsubscribe
// function.
type Bus struct {
	d *event.Dispatcher
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{d: event.NewDispatcher()}
}

func (b *Bus) OnReady(fn func(ReadyEvent)) func()     { return event.Subscribe(b.d, fn) }
func (b *Bus) OnStatus(fn func(StatusEvent)) func()   { return event.Subscribe(b.d, fn) }
func (b *Bus) OnStage(fn func(StageEvent)) func()     { return event.Subscribe(b.d, fn) }
func (b *Bus) OnMetrics(fn func(MetricsEvent)) func() { return event.Subscribe(b.d, fn) }
func (b *Bus) OnError(fn func(ErrorEvent)) func()     { return event.Subscribe(b.d, fn) }
func (b *Bus) OnHeartbeatAck(fn func(HeartbeatAckEvent)) func() {
	return event.Subscribe(b.d, fn)
}
func (b *Bus) OnExit(fn func(ExitEvent)) func() { return event.Subscribe(b.d, fn) }
func (b *Bus) OnHealthChanged(fn func(HealthChangedEvent)) func() {
	return event.Subscribe(b.d, fn)
}

func (b *Bus) publishReady(e ReadyEvent)            { event.Publish(b.d, e) }
func (b *Bus) publishStatus(e StatusEvent)          { event.Publish(b.d, e) }
func (b *Bus) publishStage(e StageEvent)            { event.Publish(b.d, e) }
func (b *Bus) publishMetrics(e MetricsEvent)        { event.Publish(b.d, e) }
func (b *Bus) publishError(e ErrorEvent)            { event.Publish(b.d, e) }
func (b *Bus) publishHeartbeatAck(e HeartbeatAckEvent) { event.Publish(b.d, e) }
func (b *Bus) publishExit(e ExitEvent)              { event.Publish(b.d, e) }
func (b *Bus) publishHealthChanged(e HealthChangedEvent) { event.Publish(b.d, e) }
