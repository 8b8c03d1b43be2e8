package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	engineStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "emberlink",
			Subsystem: "engine",
			Name:      "starts_total",
			Help:      "Number of successful engine starts.",
		},
	)
	engineStartFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emberlink",
			Subsystem: "engine",
			Name:      "start_failures_total",
			Help:      "Number of failed engine start attempts.",
		}, []string{"reason"},
	)
	engineStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "emberlink",
			Subsystem: "engine",
			Name:      "stops_total",
			Help:      "Number of requested engine stops (graceful or kill).",
		},
	)
	engineCrashes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "emberlink",
			Subsystem: "engine",
			Name:      "crashes_total",
			Help:      "Number of unsolicited engine exits.",
		},
	)
	commandsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "emberlink",
			Subsystem: "bridge",
			Name:      "commands_sent_total",
			Help:      "Commands written to the engine input stream, by type.",
		}, []string{"type"},
	)
	droppedLines = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "emberlink",
			Subsystem: "bridge",
			Name:      "dropped_lines_total",
			Help:      "Incoming lines dropped because they failed to parse.",
		},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "emberlink",
			Subsystem: "bridge",
			Name:      "request_duration_seconds",
			Help:      "Round-trip time of correlated requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"},
	)
	pendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "emberlink",
			Subsystem: "bridge",
			Name:      "pending_requests",
			Help:      "Correlated requests currently awaiting a reply.",
		},
	)
	heartbeatMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "emberlink",
			Subsystem: "health",
			Name:      "heartbeat_misses_total",
			Help:      "Health ticks observed while the engine was not responding.",
		},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "emberlink",
			Subsystem: "engine",
			Name:      "current_state",
			Help:      "Current engine connection state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
)

// Register registers all collectors with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		engineStarts, engineStartFailures, engineStops, engineCrashes,
		commandsSent, droppedLines, requestDuration, pendingRequests,
		heartbeatMisses, currentState,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op if Register hasn't been called.

func IncStart() {
	if regOK.Load() {
		engineStarts.Inc()
	}
}

func IncStartFailure(reason string) {
	if regOK.Load() {
		engineStartFailures.WithLabelValues(reason).Inc()
	}
}

func IncStop() {
	if regOK.Load() {
		engineStops.Inc()
	}
}

func IncCrash() {
	if regOK.Load() {
		engineCrashes.Inc()
	}
}

func IncCommand(cmdType string) {
	if regOK.Load() {
		commandsSent.WithLabelValues(cmdType).Inc()
	}
}

func IncDroppedLine() {
	if regOK.Load() {
		droppedLines.Inc()
	}
}

func ObserveRequestDuration(cmdType string, seconds float64) {
	if regOK.Load() {
		requestDuration.WithLabelValues(cmdType).Observe(seconds)
	}
}

func SetPendingRequests(n int) {
	if regOK.Load() {
		pendingRequests.Set(float64(n))
	}
}

func IncHeartbeatMiss() {
	if regOK.Load() {
		heartbeatMisses.Inc()
	}
}

func SetCurrentState(state string, active bool) {
	if regOK.Load() {
		var v float64
		if active {
			v = 1
		}
		currentState.WithLabelValues(state).Set(v)
	}
}
