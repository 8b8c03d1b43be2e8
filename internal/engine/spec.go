package engine

import (
	"os/exec"
	"time"

	"github.com/emberfx/emberlink/internal/env"
	"github.com/emberfx/emberlink/internal/logger"
)

// Fixed protocol timing defaults. Spec fields override them, mainly so tests
// can run on short clocks.
const (
	DefaultStartTimeout      = 10 * time.Second
	DefaultRequestTimeout    = 10 * time.Second
	DefaultStopGrace         = 5 * time.Second
	DefaultHeartbeatInterval = 5 * time.Second
)

// uiModeEnv marks the engine process as driven by the control surface rather
// than run standalone.
const uiModeEnv = "EMBERLINK_UI=1"

// Spec describes how to launch and supervise the engine process.
type Spec struct {
	Name              string               `json:"name"`               // label for logs and capture files
	Command           string               `json:"command"`            // engine binary path
	Args              []string             `json:"args"`               // arguments
	WorkDir           string               `json:"work_dir"`           // optional working dir
	Env               []string             `json:"env"`                // optional extra env, KEY=VAL, ${VAR} expanded
	StartTimeout      time.Duration        `json:"start_timeout"`      // ready handshake bound
	RequestTimeout    time.Duration        `json:"request_timeout"`    // correlated reply bound
	StopGrace         time.Duration        `json:"stop_grace"`         // graceful shutdown window
	HeartbeatInterval time.Duration        `json:"heartbeat_interval"` // health probe period
	Capture           logger.CaptureConfig `json:"capture"`            // engine stderr capture
}

func (s Spec) withDefaults() Spec {
	if s.Name == "" {
		s.Name = "engine"
	}
	if s.StartTimeout <= 0 {
		s.StartTimeout = DefaultStartTimeout
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}
	if s.StopGrace <= 0 {
		s.StopGrace = DefaultStopGrace
	}
	if s.HeartbeatInterval <= 0 {
		s.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return s
}

// buildCommand constructs the *exec.Cmd for this spec. The UI-mode flag is
// always appended so the engine knows it is being supervised.
func (s *Spec) buildCommand() *exec.Cmd {
	// #nosec G204 -- the engine path comes from the operator's own config
	cmd := exec.Command(s.Command, s.Args...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	cmd.Env = env.ForEngine(append(append([]string{}, s.Env...), uiModeEnv))
	return cmd
}
