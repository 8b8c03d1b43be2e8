package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType tags an incoming engine event.
type EventType string

const (
	EvtReady        EventType = "ready"
	EvtStatusUpdate EventType = "status_update"
	EvtStageChanged EventType = "stage_changed"
	EvtMetrics      EventType = "metrics_update"
	EvtError        EventType = "error"
	EvtHeartbeatAck EventType = "heartbeat_ack"
)

// Event is a single incoming protocol message. ReplyTo carries the
// correlation id echoed from the originating command ("_id" on the wire);
// it is empty for unsolicited events.
type Event struct {
	Type    EventType       `json:"type"`
	ReplyTo string          `json:"_id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// ReadyPayload is the payload of an EvtReady handshake event.
type ReadyPayload struct {
	Version string `json:"version"`
}

// StagePayload is the payload of an EvtStageChanged event.
type StagePayload struct {
	Stage string `json:"stage"`
}

// ErrorPayload is the payload of an EvtError event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ParseEvent decodes one complete line into an Event. The line must be a
// single JSON object carrying at least a type tag.
func ParseEvent(line []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, fmt.Errorf("malformed event line: %w", err)
	}
	if ev.Type == "" {
		return Event{}, errors.New("event missing type tag")
	}
	return ev, nil
}

// ErrorMessage extracts the engine error message from an EvtError payload.
// Falls back to the raw payload when the message field is absent.
func (e Event) ErrorMessage() string {
	var p ErrorPayload
	if err := json.Unmarshal(e.Payload, &p); err == nil && p.Message != "" {
		return p.Message
	}
	if len(e.Payload) > 0 {
		return string(e.Payload)
	}
	return "unknown engine error"
}
