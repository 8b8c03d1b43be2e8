package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRunning is returned when a command is issued with no live engine.
	ErrNotRunning = errors.New("engine is not running")
	// ErrDisconnected rejects every request still pending when the channel is
	// torn down (stop, crash, or broken pipe).
	ErrDisconnected = errors.New("engine disconnected")
	// ErrStartInProgress is reported when Start is called while a previous
	// start attempt is still waiting for the ready handshake.
	ErrStartInProgress = errors.New("engine start already in progress")
	// ErrRequestTimeout rejects a single request whose reply never arrived
	// within the request timeout. Other in-flight requests are unaffected.
	ErrRequestTimeout = errors.New("request timed out")
	// ErrStreamClosed is returned synchronously when the engine input stream
	// is not writable. Commands are never queued on a broken pipe.
	ErrStreamClosed = errors.New("engine input stream is not writable")
)

// EngineError carries an engine-side failure message from an error-kind
// reply; it rejects only the request it correlates with.
type EngineError struct {
	Message string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error: %s", e.Message)
}
