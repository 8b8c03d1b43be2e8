// Package client is the HTTP client for the emberlink daemon's control API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/emberfx/emberlink/internal/engine"
	"github.com/emberfx/emberlink/internal/preset"
	"github.com/emberfx/emberlink/internal/settings"
)

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // optional logger for client operations
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:7817/api",
		Timeout: 15 * time.Second,
	}
}

// Client talks to a running emberlink daemon.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New creates a Client from config, filling in defaults for zero fields.
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks whether the daemon answers on its health endpoint.
func (c *Client) IsReachable(ctx context.Context) bool {
	var h engine.Health
	if err := c.do(ctx, http.MethodGet, "/engine/health", nil, &h); err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	return true
}

// StartEngine asks the daemon to start the engine.
func (c *Client) StartEngine(ctx context.Context) (engine.StartResult, error) {
	var res engine.StartResult
	err := c.do(ctx, http.MethodPost, "/engine/start", nil, &res)
	return res, err
}

// StopEngine asks the daemon to stop the engine.
func (c *Client) StopEngine(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/engine/stop", nil, nil)
}

// RestartEngine stops then starts the engine.
func (c *Client) RestartEngine(ctx context.Context) (engine.StartResult, error) {
	var res engine.StartResult
	err := c.do(ctx, http.MethodPost, "/engine/restart", nil, &res)
	return res, err
}

// Health fetches the current liveness snapshot.
func (c *Client) Health(ctx context.Context) (engine.Health, error) {
	var h engine.Health
	err := c.do(ctx, http.MethodGet, "/engine/health", nil, &h)
	return h, err
}

// Animation issues one of the animation commands: start, pause, resume,
// stop, skip.
func (c *Client) Animation(ctx context.Context, action string) error {
	return c.do(ctx, http.MethodPost, "/animation/"+action, nil, nil)
}

// LoadImage asks the engine to load the image at the given absolute path.
func (c *Client) LoadImage(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodPost, "/image", map[string]any{"path": path}, nil)
}

// GetSettings fetches the current animation settings.
func (c *Client) GetSettings(ctx context.Context) (settings.Animation, error) {
	var a settings.Animation
	err := c.do(ctx, http.MethodGet, "/settings", nil, &a)
	return a, err
}

// UpdateSettings applies a partial settings document.
func (c *Client) UpdateSettings(ctx context.Context, partial map[string]any) (settings.Animation, error) {
	var a settings.Animation
	err := c.do(ctx, http.MethodPut, "/settings", partial, &a)
	return a, err
}

// ListPresets returns every saved preset.
func (c *Client) ListPresets(ctx context.Context) ([]preset.Preset, error) {
	var out []preset.Preset
	err := c.do(ctx, http.MethodGet, "/presets", nil, &out)
	return out, err
}

// SavePreset snapshots the current settings under name.
func (c *Client) SavePreset(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/presets", map[string]any{"name": name}, nil)
}

// ApplyPreset loads the named preset into the live settings.
func (c *Client) ApplyPreset(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, "/presets/"+name+"/apply", nil, nil)
}

// DeletePreset removes the named preset.
func (c *Client) DeletePreset(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/presets/"+name, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return fmt.Errorf("daemon: %s (status %d)", e.Error, resp.StatusCode)
		}
		return fmt.Errorf("daemon: unexpected status %d", resp.StatusCode)
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}
