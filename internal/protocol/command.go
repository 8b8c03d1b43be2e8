package protocol

import (
	"github.com/google/uuid"
)

// CommandType tags an outgoing command.
type CommandType string

const (
	CmdStartAnimation CommandType = "start_animation"
	CmdPause          CommandType = "pause"
	CmdResume         CommandType = "resume"
	CmdStop           CommandType = "stop"
	CmdSkipToFinal    CommandType = "skip_to_final"
	CmdUpdateSettings CommandType = "update_settings"
	CmdLoadImage      CommandType = "load_image"
	CmdSetWatermark   CommandType = "set_watermark"
	CmdShutdown       CommandType = "shutdown"
	CmdHeartbeat      CommandType = "heartbeat"
)

// ExpectsReply reports whether the engine answers this command kind with a
// correlated reply event. Fire-and-forget kinds still get an id on the wire
// for log correlation, but no pending entry is registered for them.
func (t CommandType) ExpectsReply() bool {
	switch t {
	case CmdStartAnimation, CmdUpdateSettings, CmdLoadImage, CmdSetWatermark:
		return true
	default:
		return false
	}
}

// Command is a single outgoing protocol message. Payload is always an object
// on the wire, possibly empty.
type Command struct {
	Type    CommandType    `json:"type"`
	ID      string         `json:"id,omitempty"`
	Payload map[string]any `json:"payload"`
}

// NewCommand builds a command with a fresh correlation identifier.
func NewCommand(t CommandType, payload map[string]any) Command {
	return Command{Type: t, ID: NewID(), Payload: payload}
}

// NewID returns a unique correlation identifier.
func NewID() string { return uuid.NewString() }
