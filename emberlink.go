// Package emberlink is the control core for the Ember particle-animation
// studio: it supervises the external render engine process, speaks the
// newline-delimited JSON stdio protocol with it, and exposes lifecycle,
// health, and animation command surfaces for embedding applications.
package emberlink

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/emberfx/emberlink/internal/config"
	"github.com/emberfx/emberlink/internal/engine"
	"github.com/emberfx/emberlink/internal/metrics"
	"github.com/emberfx/emberlink/internal/notify"
	"github.com/emberfx/emberlink/internal/preset"
	iapi "github.com/emberfx/emberlink/internal/server"
	"github.com/emberfx/emberlink/internal/settings"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = engine.Spec

type StartResult = engine.StartResult

type Health = engine.Health

type State = engine.State

type Notification = notify.Record

type AnimationSettings = settings.Animation

type Preset = preset.Preset

// Event types surfaced through the subscription hooks.

type ReadyEvent = engine.ReadyEvent

type StatusEvent = engine.StatusEvent

type StageEvent = engine.StageEvent

type MetricsEvent = engine.MetricsEvent

type ErrorEvent = engine.ErrorEvent

type ExitEvent = engine.ExitEvent

type HealthChangedEvent = engine.HealthChangedEvent

// Bridge is a thin facade over internal/engine.Bridge. It provides a stable
// public API for embedding; the embedding application holds the one instance
// and owns its lifetime.
type Bridge struct{ inner *engine.Bridge }

// New creates a Bridge for spec. The notifier receives user-visible failure
// records; pass nil for log-only notifications.
func New(spec Spec, logger *slog.Logger, notifier *Notifier) *Bridge {
	var n *notify.Notifier
	if notifier != nil {
		n = notifier.inner
	}
	return &Bridge{inner: engine.New(spec, logger, n)}
}

func (b *Bridge) Start(ctx context.Context) StartResult   { return b.inner.Start(ctx) }
func (b *Bridge) Stop(ctx context.Context) error          { return b.inner.Stop(ctx) }
func (b *Bridge) Restart(ctx context.Context) StartResult { return b.inner.Restart(ctx) }
func (b *Bridge) Shutdown()                               { b.inner.Shutdown() }
func (b *Bridge) IsRunning() bool                         { return b.inner.IsRunning() }
func (b *Bridge) GetHealth() Health                       { return b.inner.Health() }

// Animation command surface.

func (b *Bridge) StartAnimation(ctx context.Context) ([]byte, error) {
	return b.inner.StartAnimation(ctx)
}
func (b *Bridge) Pause() error         { return b.inner.Pause() }
func (b *Bridge) Resume() error        { return b.inner.Resume() }
func (b *Bridge) StopAnimation() error { return b.inner.StopAnimation() }
func (b *Bridge) SkipToFinal() error   { return b.inner.SkipToFinal() }

func (b *Bridge) UpdateSettings(ctx context.Context, s map[string]any) ([]byte, error) {
	return b.inner.UpdateSettings(ctx, s)
}
func (b *Bridge) LoadImage(ctx context.Context, path string) ([]byte, error) {
	return b.inner.LoadImage(ctx, path)
}
func (b *Bridge) SetWatermark(ctx context.Context, wm map[string]any) ([]byte, error) {
	return b.inner.SetWatermark(ctx, wm)
}

// Subscription hooks. Each returns an unsubscribe function.

func (b *Bridge) OnReady(fn func(ReadyEvent)) func()     { return b.inner.Events().OnReady(fn) }
func (b *Bridge) OnStatus(fn func(StatusEvent)) func()   { return b.inner.Events().OnStatus(fn) }
func (b *Bridge) OnStage(fn func(StageEvent)) func()     { return b.inner.Events().OnStage(fn) }
func (b *Bridge) OnMetrics(fn func(MetricsEvent)) func() { return b.inner.Events().OnMetrics(fn) }
func (b *Bridge) OnError(fn func(ErrorEvent)) func()     { return b.inner.Events().OnError(fn) }
func (b *Bridge) OnExit(fn func(ExitEvent)) func()       { return b.inner.Events().OnExit(fn) }
func (b *Bridge) OnHealthChanged(fn func(HealthChangedEvent)) func() {
	return b.inner.Events().OnHealthChanged(fn)
}

// Notifier facade for the user-visible notification sink.
type Notifier struct{ inner *notify.Notifier }

func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{inner: notify.New(logger)}
}

func (n *Notifier) Subscribe(fn func(Notification)) func() { return n.inner.Subscribe(fn) }

// SettingsStore facade.
type SettingsStore struct{ inner *settings.Store }

func OpenSettings(path string, logger *slog.Logger) (*SettingsStore, error) {
	s, err := settings.Open(path, logger)
	if err != nil {
		return nil, err
	}
	return &SettingsStore{inner: s}, nil
}

func (s *SettingsStore) Current() AnimationSettings { return s.inner.Current() }
func (s *SettingsStore) Update(partial map[string]any) (AnimationSettings, error) {
	return s.inner.Update(partial)
}
func (s *SettingsStore) OnChange(fn func(AnimationSettings)) func() { return s.inner.OnChange(fn) }
func (s *SettingsStore) Watch() error                               { return s.inner.Watch() }
func (s *SettingsStore) Close() error                               { return s.inner.Close() }

// PresetStore persists named settings snapshots.
type PresetStore = preset.DB

// OpenPresets opens (or creates) the preset database at path.
func OpenPresets(path string) (*PresetStore, error) { return preset.Open(path) }

// LoadConfig reads the daemon configuration file.
func LoadConfig(path string) (*cfg.Config, error) { return cfg.Load(path) }

// NewHTTPServer starts an HTTP server exposing the control API.
func NewHTTPServer(addr, basePath string, b *Bridge, s *SettingsStore, p *preset.DB) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, b.inner, s.inner, p)
}

// Metrics helpers (public facade).

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It runs in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	return srv.ListenAndServe()
}
