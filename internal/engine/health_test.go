package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberfx/emberlink/internal/notify"
)

func newTestMonitor(interval time.Duration, probe func() error, alive func() bool) (*healthMonitor, *Bus) {
	log := testLogger()
	bus := NewBus()
	if probe == nil {
		probe = func() error { return nil }
	}
	if alive == nil {
		alive = func() bool { return true }
	}
	return newHealthMonitor(interval, probe, alive, notify.New(log), bus, log), bus
}

func TestRespondingRequiresRecentActivity(t *testing.T) {
	m, _ := newTestMonitor(20*time.Millisecond, nil, nil)

	assert.False(t, m.responding(), "no activity seen yet")
	m.touch()
	assert.True(t, m.responding())

	require.Eventually(t, func() bool { return !m.responding() },
		time.Second, 5*time.Millisecond, "activity older than two intervals must not count")
}

func TestRespondingRequiresLiveProcess(t *testing.T) {
	alive := false
	m, _ := newTestMonitor(time.Hour, nil, func() bool { return alive })

	m.touch()
	assert.False(t, m.responding())
	alive = true
	assert.True(t, m.responding())
}

func TestMonitorProbesOnEachTick(t *testing.T) {
	var mu sync.Mutex
	probes := 0
	m, _ := newTestMonitor(10*time.Millisecond, func() error {
		mu.Lock()
		probes++
		mu.Unlock()
		return nil
	}, nil)

	m.start()
	defer m.shutdown()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return probes >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestMonitorEmitsTransitionsOnce(t *testing.T) {
	silent := make(chan struct{})
	m, bus := newTestMonitor(15*time.Millisecond, func() error { return nil }, nil)

	var mu sync.Mutex
	var flips []bool
	defer bus.OnHealthChanged(func(e HealthChangedEvent) {
		mu.Lock()
		flips = append(flips, e.Responding)
		mu.Unlock()
	})()

	// Keep touching until released, then go silent.
	go func() {
		for {
			select {
			case <-silent:
				return
			case <-time.After(5 * time.Millisecond):
				m.touch()
			}
		}
	}()

	m.start()
	defer m.shutdown()

	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, flips, "steady responding state must not emit events")
	mu.Unlock()

	close(silent)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(flips) >= 1
	}, time.Second, 5*time.Millisecond)

	// Give extra ticks time to (incorrectly) re-emit, then check only the
	// single transition was published.
	time.Sleep(80 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, []bool{false}, flips)
	mu.Unlock()
}

func TestShutdownStopsProbing(t *testing.T) {
	var mu sync.Mutex
	probes := 0
	m, _ := newTestMonitor(10*time.Millisecond, func() error {
		mu.Lock()
		probes++
		mu.Unlock()
		return nil
	}, nil)

	m.start()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return probes >= 1
	}, time.Second, time.Millisecond)

	m.shutdown()
	m.shutdown() // idempotent
	mu.Lock()
	settled := probes
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.LessOrEqual(t, probes, settled+1, "at most one in-flight tick after shutdown")
	mu.Unlock()
}
