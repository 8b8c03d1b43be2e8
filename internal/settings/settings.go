// Package settings is the animation settings store the bridge forwards from:
// a file-backed key-value store with schema validation and change
// notification. Whenever a change is accepted (API update or outside edit of
// the file) subscribers are told, and the daemon pushes the new settings to
// the engine as an update_settings command.
package settings

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Animation holds every engine-visible animation tunable.
type Animation struct {
	ParticleCount   int       `mapstructure:"particle_count" json:"particle_count"`
	ParticleSize    float64   `mapstructure:"particle_size" json:"particle_size"`
	Speed           float64   `mapstructure:"speed" json:"speed"`
	Friction        float64   `mapstructure:"friction" json:"friction"`
	Spread          float64   `mapstructure:"spread" json:"spread"`
	DisperseSeconds float64   `mapstructure:"disperse_seconds" json:"disperse_seconds"`
	SettleSeconds   float64   `mapstructure:"settle_seconds" json:"settle_seconds"`
	Watermark       Watermark `mapstructure:"watermark" json:"watermark"`
}

// Watermark configures the overlay applied to rendered frames.
type Watermark struct {
	Enabled  bool    `mapstructure:"enabled" json:"enabled"`
	Path     string  `mapstructure:"path" json:"path"`
	Position string  `mapstructure:"position" json:"position"`
	Opacity  float64 `mapstructure:"opacity" json:"opacity"`
	Scale    float64 `mapstructure:"scale" json:"scale"`
}

var watermarkPositions = map[string]bool{
	"top-left": true, "top-right": true, "bottom-left": true, "bottom-right": true, "center": true,
}

// Defaults returns the settings used when no file exists yet.
func Defaults() Animation {
	return Animation{
		ParticleCount:   4000,
		ParticleSize:    2.0,
		Speed:           1.0,
		Friction:        0.12,
		Spread:          0.5,
		DisperseSeconds: 2.5,
		SettleSeconds:   3.0,
		Watermark: Watermark{
			Enabled:  false,
			Position: "bottom-right",
			Opacity:  0.6,
			Scale:    0.2,
		},
	}
}

// ValidationError rejects an update, naming every bad field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid settings: " + strings.Join(parts, "; ")
}

// Validate checks a full settings object against the schema.
func Validate(a Animation) error {
	fields := map[string]string{}
	if a.ParticleCount < 100 || a.ParticleCount > 50000 {
		fields["particle_count"] = "must be between 100 and 50000"
	}
	if a.ParticleSize <= 0 || a.ParticleSize > 32 {
		fields["particle_size"] = "must be between 0 and 32"
	}
	if a.Speed < 0.1 || a.Speed > 10 {
		fields["speed"] = "must be between 0.1 and 10"
	}
	if a.Friction < 0 || a.Friction > 1 {
		fields["friction"] = "must be between 0 and 1"
	}
	if a.Spread < 0 || a.Spread > 1 {
		fields["spread"] = "must be between 0 and 1"
	}
	if a.DisperseSeconds <= 0 || a.DisperseSeconds > 60 {
		fields["disperse_seconds"] = "must be between 0 and 60"
	}
	if a.SettleSeconds <= 0 || a.SettleSeconds > 60 {
		fields["settle_seconds"] = "must be between 0 and 60"
	}
	if !watermarkPositions[a.Watermark.Position] {
		fields["watermark.position"] = "must be one of top-left, top-right, bottom-left, bottom-right, center"
	}
	if a.Watermark.Opacity < 0 || a.Watermark.Opacity > 1 {
		fields["watermark.opacity"] = "must be between 0 and 1"
	}
	if a.Watermark.Scale < 0.01 || a.Watermark.Scale > 1 {
		fields["watermark.scale"] = "must be between 0.01 and 1"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// EngineMap renders the settings as the update_settings command payload.
func (a Animation) EngineMap() map[string]any {
	return map[string]any{
		"particle_count":   a.ParticleCount,
		"particle_size":    a.ParticleSize,
		"speed":            a.Speed,
		"friction":         a.Friction,
		"spread":           a.Spread,
		"disperse_seconds": a.DisperseSeconds,
		"settle_seconds":   a.SettleSeconds,
		"watermark": map[string]any{
			"enabled":  a.Watermark.Enabled,
			"path":     a.Watermark.Path,
			"position": a.Watermark.Position,
			"opacity":  a.Watermark.Opacity,
			"scale":    a.Watermark.Scale,
		},
	}
}

// Store is the file-backed settings store. One instance per daemon.
type Store struct {
	logger *slog.Logger

	mu      sync.Mutex
	v       *viper.Viper
	path    string
	current Animation
	subs    map[int]func(Animation)
	next    int
	watcher *fileWatcher
}

// Open loads settings from the TOML file at path, falling back to Defaults
// when the file does not exist yet. Invalid persisted settings are an error.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	cur := Defaults()
	if err := v.ReadInConfig(); err == nil {
		if err := v.Unmarshal(&cur); err != nil {
			return nil, fmt.Errorf("decode settings file %s: %w", path, err)
		}
		if err := Validate(cur); err != nil {
			return nil, fmt.Errorf("settings file %s: %w", path, err)
		}
	} else {
		logger.Info("no settings file, using defaults", "path", path)
	}

	return &Store{
		logger:  logger,
		v:       v,
		path:    path,
		current: cur,
		subs:    make(map[int]func(Animation)),
	}, nil
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("particle_count", d.ParticleCount)
	v.SetDefault("particle_size", d.ParticleSize)
	v.SetDefault("speed", d.Speed)
	v.SetDefault("friction", d.Friction)
	v.SetDefault("spread", d.Spread)
	v.SetDefault("disperse_seconds", d.DisperseSeconds)
	v.SetDefault("settle_seconds", d.SettleSeconds)
	v.SetDefault("watermark.enabled", d.Watermark.Enabled)
	v.SetDefault("watermark.path", d.Watermark.Path)
	v.SetDefault("watermark.position", d.Watermark.Position)
	v.SetDefault("watermark.opacity", d.Watermark.Opacity)
	v.SetDefault("watermark.scale", d.Watermark.Scale)
}

// Current returns the latest validated settings.
func (s *Store) Current() Animation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update applies a partial settings document. The merged result is validated
// as a whole; on rejection nothing changes and the error names each bad
// field. On acceptance the file is rewritten and subscribers are notified.
func (s *Store) Update(partial map[string]any) (Animation, error) {
	merged, err := s.apply(partial)
	if err != nil {
		return Animation{}, err
	}
	s.notify(merged)
	return merged, nil
}

// apply merges, validates, and commits under one lock so concurrent updates
// serialize instead of overwriting each other.
func (s *Store) apply(partial map[string]any) (Animation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := s.current
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &merged,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Animation{}, err
	}
	if err := dec.Decode(partial); err != nil {
		return Animation{}, fmt.Errorf("decode settings update: %w", err)
	}
	if err := Validate(merged); err != nil {
		return Animation{}, err
	}

	s.current = merged
	for k, val := range merged.EngineMap() {
		s.v.Set(k, val)
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		s.logger.Warn("failed to persist settings", "path", s.path, "error", err)
	}
	return merged, nil
}

// OnChange registers a handler called with the full settings after every
// accepted change. Returns an unsubscribe function.
func (s *Store) OnChange(fn func(Animation)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(a Animation) {
	s.mu.Lock()
	fns := make([]func(Animation), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(a)
	}
}

// reload re-reads the file after an outside edit. Invalid content is logged
// and ignored; the last good settings stay current.
func (s *Store) reload() {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("toml")
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		s.logger.Warn("settings reload failed", "path", s.path, "error", err)
		return
	}
	next := Defaults()
	if err := v.Unmarshal(&next); err != nil {
		s.logger.Warn("settings reload failed", "path", s.path, "error", err)
		return
	}
	if err := Validate(next); err != nil {
		s.logger.Warn("ignoring invalid settings edit", "path", s.path, "error", err)
		return
	}

	s.mu.Lock()
	changed := next != s.current
	s.current = next
	s.v = v
	s.mu.Unlock()
	if changed {
		s.logger.Info("settings file changed on disk")
		s.notify(next)
	}
}

// Watch starts following the settings file for outside edits.
func (s *Store) Watch() error {
	w, err := newFileWatcher(s.path, s.reload, s.logger)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	return nil
}

// Close stops the watcher, if started.
func (s *Store) Close() error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w != nil {
		return w.close()
	}
	return nil
}
