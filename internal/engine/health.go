package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/emberfx/emberlink/internal/metrics"
	"github.com/emberfx/emberlink/internal/notify"
)

// Health is a point-in-time liveness snapshot of the engine connection.
type Health struct {
	Running      bool      `json:"running"`
	IsResponding bool      `json:"is_responding"`
	State        State     `json:"state"`
	PID          int       `json:"pid,omitempty"`
	Version      string    `json:"version,omitempty"`
	LastActivity time.Time `json:"last_activity"`
}

// healthMonitor keeps the channel exercised with heartbeat probes and
// derives liveness from observed traffic. The probe itself is
// fire-and-forget: responding is true iff the process is alive and any valid
// incoming line was seen within two heartbeat intervals, so status or
// metrics traffic substitutes for explicit heartbeat acks under load.
type healthMonitor struct {
	interval time.Duration
	probe    func() error // sends one heartbeat command
	alive    func() bool  // process handle liveness
	notifier *notify.Notifier
	bus      *Bus
	logger   *slog.Logger

	mu             sync.Mutex
	lastSeen       time.Time
	lastResponding bool
	stop           chan struct{}
}

func newHealthMonitor(interval time.Duration, probe func() error, alive func() bool,
	notifier *notify.Notifier, bus *Bus, logger *slog.Logger) *healthMonitor {
	return &healthMonitor{
		interval: interval,
		probe:    probe,
		alive:    alive,
		notifier: notifier,
		bus:      bus,
		logger:   logger,
	}
}

// touch records liveness evidence. Called for every successfully parsed
// incoming line, not just heartbeat acks.
func (m *healthMonitor) touch() {
	m.mu.Lock()
	m.lastSeen = time.Now()
	m.mu.Unlock()
}

// lastActivity returns the most recent liveness evidence timestamp.
func (m *healthMonitor) lastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSeen
}

// responding derives the liveness flag: alive and active within 2x the
// heartbeat interval.
func (m *healthMonitor) responding() bool {
	if !m.alive() {
		return false
	}
	m.mu.Lock()
	last := m.lastSeen
	m.mu.Unlock()
	return !last.IsZero() && time.Since(last) <= 2*m.interval
}

// start launches the tick loop for the lifetime of one engine run. The clock
// starts fresh: the ready handshake that got us here counts as activity.
func (m *healthMonitor) start() {
	m.touch()
	m.mu.Lock()
	m.lastResponding = true
	m.stop = make(chan struct{})
	stop := m.stop
	m.mu.Unlock()
	go m.run(stop)
}

// shutdown halts the tick loop. Idempotent.
func (m *healthMonitor) shutdown() {
	m.mu.Lock()
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	m.mu.Unlock()
}

func (m *healthMonitor) run(stop <-chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := m.probe(); err != nil {
				// Probe failures are logged, never propagated; the liveness
				// derivation below is what surfaces a dead channel.
				m.logger.Debug("heartbeat send failed", "error", err)
			}
			m.observe()
		}
	}
}

// observe updates the derived flag and emits transitions.
func (m *healthMonitor) observe() {
	resp := m.responding()
	m.mu.Lock()
	was := m.lastResponding
	m.lastResponding = resp
	m.mu.Unlock()

	if !resp {
		metrics.IncHeartbeatMiss()
	}
	if resp == was {
		return
	}
	m.bus.publishHealthChanged(HealthChangedEvent{Responding: resp})
	if !resp {
		m.notifier.Warn("Engine not responding",
			"No traffic from the animation engine within the heartbeat window.", false)
	} else {
		m.logger.Info("engine responding again")
	}
}
