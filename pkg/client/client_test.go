package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberfx/emberlink/internal/engine"
)

type recorded struct {
	method string
	path   string
	body   map[string]any
}

// fakeDaemon records each request and plays back canned responses per path.
func fakeDaemon(t *testing.T, responses map[string]any) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path}
		_ = json.NewDecoder(r.Body).Decode(&rec.body)
		calls = append(calls, rec)

		resp, ok := responses[r.URL.Path]
		if !ok {
			resp = map[string]any{"ok": true}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/api"}), &calls
}

func TestStartEngineDecodesResult(t *testing.T) {
	c, calls := fakeDaemon(t, map[string]any{
		"/api/engine/start": engine.StartResult{OK: true, PID: 4321, Version: "2.4.0"},
	})

	res, err := c.StartEngine(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 4321, res.PID)
	assert.Equal(t, "2.4.0", res.Version)
	require.Len(t, *calls, 1)
	assert.Equal(t, http.MethodPost, (*calls)[0].method)
}

func TestHealthAndReachability(t *testing.T) {
	c, _ := fakeDaemon(t, map[string]any{
		"/api/engine/health": engine.Health{Running: true, IsResponding: true, State: engine.StateReady, PID: 9},
	})

	assert.True(t, c.IsReachable(context.Background()))
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, h.Running)
	assert.Equal(t, engine.StateReady, h.State)
}

func TestIsReachableFalseWhenDaemonDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()
	c := New(Config{BaseURL: url + "/api"})
	assert.False(t, c.IsReachable(context.Background()))
}

func TestLoadImageSendsPathBody(t *testing.T) {
	c, calls := fakeDaemon(t, nil)
	require.NoError(t, c.LoadImage(context.Background(), "/photos/p.png"))

	require.Len(t, *calls, 1)
	assert.Equal(t, "/api/image", (*calls)[0].path)
	assert.Equal(t, "/photos/p.png", (*calls)[0].body["path"])
}

func TestAnimationActionsHitTheRightPaths(t *testing.T) {
	c, calls := fakeDaemon(t, nil)
	for _, action := range []string{"start", "pause", "resume", "stop", "skip"} {
		require.NoError(t, c.Animation(context.Background(), action))
	}
	require.Len(t, *calls, 5)
	assert.Equal(t, "/api/animation/skip", (*calls)[4].path)
}

func TestPresetCallsRouteByName(t *testing.T) {
	c, calls := fakeDaemon(t, nil)
	require.NoError(t, c.SavePreset(context.Background(), "booth-a"))
	require.NoError(t, c.ApplyPreset(context.Background(), "booth-a"))
	require.NoError(t, c.DeletePreset(context.Background(), "booth-a"))

	require.Len(t, *calls, 3)
	assert.Equal(t, "booth-a", (*calls)[0].body["name"])
	assert.Equal(t, "/api/presets/booth-a/apply", (*calls)[1].path)
	assert.Equal(t, http.MethodDelete, (*calls)[2].method)
	assert.Equal(t, "/api/presets/booth-a", (*calls)[2].path)
}

func TestErrorBodySurfacesInError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"engine is not running"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api"})
	err := c.Animation(context.Background(), "pause")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine is not running")
	assert.Contains(t, err.Error(), "409")
}

func TestUnexpectedStatusWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api"})
	err := c.StopEngine(context.Background())
	require.ErrorContains(t, err, "unexpected status 502")
}
