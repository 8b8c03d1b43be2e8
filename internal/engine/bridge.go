// Package engine owns the external particle-animation engine process: it
// spawns it with piped stdio, speaks the newline-delimited JSON protocol,
// correlates request/response pairs, supervises liveness, and sequences
// shutdown. The embedding application holds one Bridge instance; no state
// lives at package level.
package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/emberfx/emberlink/internal/metrics"
	"github.com/emberfx/emberlink/internal/notify"
	"github.com/emberfx/emberlink/internal/protocol"
)

// StartResult is the structured outcome of a start attempt. Spawn errors and
// handshake timeouts are reported here, never raised.
type StartResult struct {
	OK      bool          `json:"ok"`
	PID     int           `json:"pid,omitempty"`
	Version string        `json:"version,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
	Err     string        `json:"error,omitempty"`
}

// Bridge supervises one engine process and its message channel.
type Bridge struct {
	spec     Spec
	logger   *slog.Logger
	notifier *notify.Notifier
	bus      *Bus
	health   *healthMonitor

	mu       sync.Mutex
	state    State
	gen      uint64 // bumped per start attempt; stale exit cleanup must not touch a newer run
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	ch       *channel
	waitDone chan struct{}
	readyCh  chan protocol.ReadyPayload
	stopping bool
	version  string
}

// New creates a Bridge for spec. Nil logger/notifier get defaults.
func New(spec Spec, logger *slog.Logger, notifier *notify.Notifier) *Bridge {
	spec = spec.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.New(logger)
	}
	b := &Bridge{
		spec:     spec,
		logger:   logger.With("engine", spec.Name),
		notifier: notifier,
		bus:      NewBus(),
		state:    StateNotStarted,
	}
	b.health = newHealthMonitor(spec.HeartbeatInterval, b.sendHeartbeat, b.processAlive,
		notifier, b.bus, b.logger)
	return b
}

// Events exposes the typed subscription registry.
func (b *Bridge) Events() *Bus { return b.bus }

// State returns the current connection state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsRunning reports whether the engine completed the ready handshake and has
// not exited or begun stopping.
func (b *Bridge) IsRunning() bool { return b.State() == StateReady }

// Health returns the current liveness snapshot.
func (b *Bridge) Health() Health {
	b.mu.Lock()
	st := b.state
	pid := 0
	if b.cmd != nil && b.cmd.Process != nil {
		pid = b.cmd.Process.Pid
	}
	ver := b.version
	b.mu.Unlock()
	return Health{
		Running:      st == StateReady,
		IsResponding: b.health.responding(),
		State:        st,
		PID:          pid,
		Version:      ver,
		LastActivity: b.health.lastActivity(),
	}
}

// Start spawns the engine and waits for its ready handshake. Idempotent: if
// an engine is already running, the existing process identity is returned
// without spawning a second one. All stream and exit handlers are installed
// before any write occurs.
func (b *Bridge) Start(ctx context.Context) StartResult {
	began := time.Now()

	b.mu.Lock()
	switch b.state {
	case StateReady:
		pid := 0
		if b.cmd != nil && b.cmd.Process != nil {
			pid = b.cmd.Process.Pid
		}
		ver := b.version
		b.mu.Unlock()
		return StartResult{OK: true, PID: pid, Version: ver, Elapsed: time.Since(began)}
	case StateStarting:
		b.mu.Unlock()
		return StartResult{Err: ErrStartInProgress.Error(), Elapsed: time.Since(began)}
	case StateStopping:
		b.mu.Unlock()
		return StartResult{Err: "engine is stopping", Elapsed: time.Since(began)}
	}
	b.setStateLocked(StateStarting)
	b.gen++
	b.stopping = false
	b.mu.Unlock()

	cmd := b.spec.buildCommand()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return b.failSpawn(began, "spawn", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return b.failSpawn(began, "spawn", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return b.failSpawn(began, "spawn", err)
	}
	if err := cmd.Start(); err != nil {
		return b.failSpawn(began, "spawn", err)
	}

	readyCh := make(chan protocol.ReadyPayload, 1)
	capture := b.spec.Capture.Writer(b.spec.Name)
	ch := newChannel(stdin, b.spec.RequestTimeout, b.logger, b.dispatch, b.health.touch)
	wd := make(chan struct{})

	b.mu.Lock()
	b.cmd = cmd
	b.stdin = stdin
	b.ch = ch
	b.waitDone = wd
	b.readyCh = readyCh
	b.mu.Unlock()

	go b.readLoop(ch, stdout)
	go b.drainStderr(stderr, capture)
	go func() {
		waitErr := cmd.Wait()
		b.handleExit(waitErr, capture)
		close(wd)
	}()

	b.logger.Info("engine spawned", "pid", cmd.Process.Pid, "command", b.spec.Command)

	timer := time.NewTimer(b.spec.StartTimeout)
	defer timer.Stop()
	select {
	case rp := <-readyCh:
		b.mu.Lock()
		b.version = rp.Version
		b.setStateLocked(StateReady)
		b.mu.Unlock()
		b.health.start()
		metrics.IncStart()
		elapsed := time.Since(began)
		b.logger.Info("engine ready", "pid", cmd.Process.Pid, "version", rp.Version, "elapsed", elapsed)
		return StartResult{OK: true, PID: cmd.Process.Pid, Version: rp.Version, Elapsed: elapsed}
	case <-wd:
		return b.failStart(began, "startup_exit", errors.New("engine exited before ready handshake"))
	case <-timer.C:
		b.killGroup(cmd)
		awaitClosed(wd, 200*time.Millisecond)
		return b.failStart(began, "handshake_timeout",
			fmt.Errorf("timed out after %s waiting for ready handshake", b.spec.StartTimeout))
	case <-ctx.Done():
		b.killGroup(cmd)
		awaitClosed(wd, 200*time.Millisecond)
		return b.failStart(began, "canceled", ctx.Err())
	}
}

// Stop sends the shutdown command, races process exit against the grace
// period, and escalates to a forced kill. Never returns an error; calling it
// with no engine running is a no-op.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.cmd == nil || b.state == StateNotStarted || b.state == StateStopping {
		b.mu.Unlock()
		return nil
	}
	b.stopping = true
	b.setStateLocked(StateStopping)
	cmd := b.cmd
	ch := b.ch
	wd := b.waitDone
	b.mu.Unlock()

	b.health.shutdown()
	if err := ch.send(protocol.NewCommand(protocol.CmdShutdown, nil)); err != nil {
		// Channel already broken; skip the grace period entirely.
		b.logger.Warn("shutdown command failed, killing engine", "error", err)
		b.killGroup(cmd)
		awaitClosed(wd, 200*time.Millisecond)
		return nil
	}

	grace := time.NewTimer(b.spec.StopGrace)
	defer grace.Stop()
	select {
	case <-wd:
	case <-grace.C:
		b.logger.Warn("grace period elapsed, killing engine", "grace", b.spec.StopGrace)
		b.killGroup(cmd)
		awaitClosed(wd, 200*time.Millisecond)
	case <-ctx.Done():
		b.killGroup(cmd)
		awaitClosed(wd, 200*time.Millisecond)
	}
	return nil
}

// Restart stops the engine if running, then starts it again.
func (b *Bridge) Restart(ctx context.Context) StartResult {
	_ = b.Stop(ctx)
	return b.Start(ctx)
}

// Shutdown is Stop with a background context, for application teardown.
func (b *Bridge) Shutdown() { _ = b.Stop(context.Background()) }

// --- animation command surface ---

// StartAnimation begins the particle animation and waits for the engine's
// acknowledgement.
func (b *Bridge) StartAnimation(ctx context.Context) (json.RawMessage, error) {
	return b.call(ctx, protocol.CmdStartAnimation, nil)
}

// Pause suspends the animation. Fire-and-forget.
func (b *Bridge) Pause() error { return b.fire(protocol.CmdPause, nil) }

// Resume continues a paused animation. Fire-and-forget.
func (b *Bridge) Resume() error { return b.fire(protocol.CmdResume, nil) }

// StopAnimation halts the animation without touching the process.
func (b *Bridge) StopAnimation() error { return b.fire(protocol.CmdStop, nil) }

// SkipToFinal jumps the animation to its final frame. Fire-and-forget.
func (b *Bridge) SkipToFinal() error { return b.fire(protocol.CmdSkipToFinal, nil) }

// UpdateSettings pushes new animation settings and waits for validation.
func (b *Bridge) UpdateSettings(ctx context.Context, settings map[string]any) (json.RawMessage, error) {
	return b.call(ctx, protocol.CmdUpdateSettings, settings)
}

// LoadImage asks the engine to load the source image at path.
func (b *Bridge) LoadImage(ctx context.Context, path string) (json.RawMessage, error) {
	return b.call(ctx, protocol.CmdLoadImage, map[string]any{"path": path})
}

// SetWatermark configures the watermark overlay.
func (b *Bridge) SetWatermark(ctx context.Context, watermark map[string]any) (json.RawMessage, error) {
	return b.call(ctx, protocol.CmdSetWatermark, watermark)
}

// --- internals ---

func (b *Bridge) call(ctx context.Context, t protocol.CommandType, payload map[string]any) (json.RawMessage, error) {
	ch, err := b.liveChannel()
	if err != nil {
		return nil, err
	}
	return ch.call(ctx, protocol.NewCommand(t, payload))
}

func (b *Bridge) fire(t protocol.CommandType, payload map[string]any) error {
	ch, err := b.liveChannel()
	if err != nil {
		return err
	}
	return ch.send(protocol.NewCommand(t, payload))
}

func (b *Bridge) sendHeartbeat() error {
	ch, err := b.liveChannel()
	if err != nil {
		return err
	}
	return ch.send(protocol.NewCommand(protocol.CmdHeartbeat, nil))
}

func (b *Bridge) liveChannel() (*channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch == nil || b.state != StateReady {
		return nil, ErrNotRunning
	}
	return b.ch, nil
}

func (b *Bridge) processAlive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cmd != nil && b.cmd.Process != nil
}

func (b *Bridge) setStateLocked(s State) {
	b.state = s
	for _, st := range allStates {
		metrics.SetCurrentState(string(st), st == s)
	}
}

// dispatch routes uncorrelated events by kind. Correlated replies were
// already settled by the channel before this is called.
func (b *Bridge) dispatch(ev protocol.Event) {
	switch ev.Type {
	case protocol.EvtReady:
		var p protocol.ReadyPayload
		_ = json.Unmarshal(ev.Payload, &p)
		b.mu.Lock()
		rc := b.readyCh
		b.readyCh = nil
		b.mu.Unlock()
		if rc != nil {
			rc <- p
		}
		b.bus.publishReady(ReadyEvent{Version: p.Version})
	case protocol.EvtStatusUpdate:
		b.bus.publishStatus(StatusEvent{Payload: ev.Payload})
	case protocol.EvtStageChanged:
		var p protocol.StagePayload
		_ = json.Unmarshal(ev.Payload, &p)
		b.bus.publishStage(StageEvent{Stage: p.Stage, Payload: ev.Payload})
	case protocol.EvtMetrics:
		b.bus.publishMetrics(MetricsEvent{Payload: ev.Payload})
	case protocol.EvtError:
		b.bus.publishError(ErrorEvent{Message: ev.ErrorMessage()})
	case protocol.EvtHeartbeatAck:
		b.bus.publishHeartbeatAck(HeartbeatAckEvent{})
	default:
		b.logger.Debug("ignoring unknown engine event kind", "type", ev.Type)
	}
}

// readLoop pumps raw chunks from the engine's stdout into the channel. The
// channel handles lines batched in one read or split across reads.
func (b *Bridge) readLoop(ch *channel, r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			ch.feed(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				b.logger.Debug("engine stdout closed", "error", err)
			}
			return
		}
	}
}

// drainStderr treats engine stderr purely as diagnostic text: captured to
// the rotating log file when configured, never parsed as protocol.
func (b *Bridge) drainStderr(r io.Reader, capture io.WriteCloser) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if capture != nil {
			_, _ = capture.Write(append([]byte(line), '\n'))
		}
		b.logger.Debug("engine stderr", "line", line)
	}
}

// handleExit runs exactly once per engine run, after cmd.Wait returns.
// Graceful stop, crash, and startup failure all converge here: reject every
// pending request, release the handle, reset state.
func (b *Bridge) handleExit(waitErr error, capture io.WriteCloser) {
	b.mu.Lock()
	prev := b.state
	wasStopping := b.stopping
	gen := b.gen
	ch := b.ch
	b.cmd = nil
	b.stdin = nil
	b.ch = nil
	b.readyCh = nil
	b.stopping = false
	b.version = ""
	if !wasStopping && prev == StateReady {
		b.setStateLocked(StateCrashed)
	}
	b.mu.Unlock()

	b.health.shutdown()
	if ch != nil {
		ch.close(ErrDisconnected)
	}
	if capture != nil {
		_ = capture.Close()
	}

	code, sig := exitStatus(waitErr)
	switch {
	case wasStopping:
		metrics.IncStop()
		b.logger.Info("engine stopped", "code", code)
	case prev == StateReady:
		metrics.IncCrash()
		b.logger.Error("engine exited unexpectedly", "code", code, "signal", sig)
		b.bus.publishExit(ExitEvent{Code: code, Signal: sig})
		b.notifier.Error("Engine crashed",
			fmt.Sprintf("The animation engine exited unexpectedly (code %d).", code), true)
	default:
		b.logger.Warn("engine exited during startup", "code", code)
	}

	// An exit subscriber may already have started a fresh engine while the
	// notifications above ran; only the run that exited resets the state.
	b.mu.Lock()
	if b.gen == gen {
		b.setStateLocked(StateNotStarted)
	}
	b.mu.Unlock()
}

func (b *Bridge) failSpawn(began time.Time, reason string, err error) StartResult {
	b.mu.Lock()
	b.setStateLocked(StateNotStarted)
	b.mu.Unlock()
	return b.failedResult(began, reason, err)
}

func (b *Bridge) failStart(began time.Time, reason string, err error) StartResult {
	// The exit handler already reset state; this only shapes the outcome.
	return b.failedResult(began, reason, err)
}

func (b *Bridge) failedResult(began time.Time, reason string, err error) StartResult {
	metrics.IncStartFailure(reason)
	b.logger.Error("engine start failed", "reason", reason, "error", err)
	b.notifier.Error("Engine failed to start", err.Error(), true)
	return StartResult{Err: err.Error(), Elapsed: time.Since(began)}
}

// killGroup force-terminates the engine's process group.
func (b *Bridge) killGroup(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}

// awaitClosed waits for ch to close, bounded. Best-effort: the exit handler
// finishes cleanup on its own schedule either way.
func awaitClosed(ch <-chan struct{}, timeout time.Duration) {
	select {
	case <-ch:
	case <-time.After(timeout):
	}
}

func exitStatus(err error) (code int, signal string) {
	if err == nil {
		return 0, ""
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return ee.ExitCode(), ws.Signal().String()
		}
		return ee.ExitCode(), ""
	}
	return 1, ""
}
