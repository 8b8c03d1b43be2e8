package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/emberfx/emberlink/internal/engine"
	"github.com/emberfx/emberlink/internal/metrics"
	"github.com/emberfx/emberlink/internal/preset"
	"github.com/emberfx/emberlink/internal/settings"
)

// Router exposes the bridge over HTTP for the desktop shell.
// Endpoints (under basePath):
//
//	POST /engine/start | /engine/stop | /engine/restart
//	GET  /engine/status | /engine/health
//	POST /animation/start | /animation/pause | /animation/resume |
//	     /animation/stop | /animation/skip
//	POST /image          body: {"path": "/abs/path.png"}
//	POST /watermark      body: watermark object
//	GET  /settings       PUT /settings (partial document)
//	GET/POST /presets    GET/DELETE /presets/:name  POST /presets/:name/apply
//	GET  /metrics
type Router struct {
	bridge   *engine.Bridge
	store    *settings.Store
	presets  *preset.DB
	basePath string
}

// NewRouter constructs a Router with a configurable basePath.
func NewRouter(bridge *engine.Bridge, store *settings.Store, presets *preset.DB, basePath string) *Router {
	return &Router{bridge: bridge, store: store, presets: presets, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)

	group.POST("/engine/start", r.handleEngineStart)
	group.POST("/engine/stop", r.handleEngineStop)
	group.POST("/engine/restart", r.handleEngineRestart)
	group.GET("/engine/status", r.handleEngineStatus)
	group.GET("/engine/health", r.handleEngineHealth)

	group.POST("/animation/start", r.handleAnimationStart)
	group.POST("/animation/pause", r.fireHandler(r.bridge.Pause))
	group.POST("/animation/resume", r.fireHandler(r.bridge.Resume))
	group.POST("/animation/stop", r.fireHandler(r.bridge.StopAnimation))
	group.POST("/animation/skip", r.fireHandler(r.bridge.SkipToFinal))

	group.POST("/image", r.handleLoadImage)
	group.POST("/watermark", r.handleSetWatermark)

	group.GET("/settings", r.handleGetSettings)
	group.PUT("/settings", r.handleUpdateSettings)

	group.GET("/presets", r.handleListPresets)
	group.POST("/presets", r.handleSavePreset)
	group.GET("/presets/:name", r.handleGetPreset)
	group.DELETE("/presets/:name", r.handleDeletePreset)
	group.POST("/presets/:name/apply", r.handleApplyPreset)

	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, bridge *engine.Bridge, store *settings.Store, presets *preset.DB) (*http.Server, error) {
	r := NewRouter(bridge, store, presets, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

func (r *Router) handleEngineStart(c *gin.Context) {
	res := r.bridge.Start(c.Request.Context())
	if !res.OK {
		writeJSON(c, http.StatusBadGateway, res)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (r *Router) handleEngineStop(c *gin.Context) {
	_ = r.bridge.Stop(c.Request.Context())
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleEngineRestart(c *gin.Context) {
	res := r.bridge.Restart(c.Request.Context())
	if !res.OK {
		writeJSON(c, http.StatusBadGateway, res)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (r *Router) handleEngineStatus(c *gin.Context) {
	h := r.bridge.Health()
	writeJSON(c, http.StatusOK, h)
}

func (r *Router) handleEngineHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.bridge.Health())
}

func (r *Router) handleAnimationStart(c *gin.Context) {
	payload, err := r.bridge.StartAnimation(c.Request.Context())
	if err != nil {
		writeBridgeError(c, err)
		return
	}
	writeRaw(c, payload)
}

// fireHandler wraps a fire-and-forget bridge command.
func (r *Router) fireHandler(fn func() error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := fn(); err != nil {
			writeBridgeError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, okResp{OK: true})
	}
}

type loadImageReq struct {
	Path string `json:"path"`
}

func (r *Router) handleLoadImage(c *gin.Context) {
	var req loadImageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !isSafeAbsPath(req.Path) || req.Path == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "path must be absolute without traversal"})
		return
	}
	payload, err := r.bridge.LoadImage(c.Request.Context(), req.Path)
	if err != nil {
		writeBridgeError(c, err)
		return
	}
	writeRaw(c, payload)
}

func (r *Router) handleSetWatermark(c *gin.Context) {
	var wm map[string]any
	if err := c.ShouldBindJSON(&wm); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	payload, err := r.bridge.SetWatermark(c.Request.Context(), wm)
	if err != nil {
		writeBridgeError(c, err)
		return
	}
	writeRaw(c, payload)
}

func (r *Router) handleGetSettings(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.store.Current())
}

func (r *Router) handleUpdateSettings(c *gin.Context) {
	var partial map[string]any
	if err := c.ShouldBindJSON(&partial); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	updated, err := r.store.Update(partial)
	if err != nil {
		var verr *settings.ValidationError
		if errors.As(err, &verr) {
			writeJSON(c, http.StatusUnprocessableEntity, gin.H{"error": verr.Error(), "fields": verr.Fields})
			return
		}
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, updated)
}

type savePresetReq struct {
	Name string `json:"name"`
}

func (r *Router) handleListPresets(c *gin.Context) {
	out, err := r.presets.List(c.Request.Context())
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if out == nil {
		out = []preset.Preset{}
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleSavePreset(c *gin.Context) {
	var req savePresetReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !isSafeName(req.Name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid preset name: allowed [A-Za-z0-9._-]"})
		return
	}
	if err := r.presets.Save(c.Request.Context(), req.Name, r.store.Current()); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleGetPreset(c *gin.Context) {
	p, err := r.presets.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		writePresetError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (r *Router) handleDeletePreset(c *gin.Context) {
	if err := r.presets.Delete(c.Request.Context(), c.Param("name")); err != nil {
		writePresetError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

// handleApplyPreset loads a preset into the settings store; the store's
// change notification then forwards it to the engine.
func (r *Router) handleApplyPreset(c *gin.Context) {
	p, err := r.presets.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		writePresetError(c, err)
		return
	}
	updated, err := r.store.Update(p.Settings.EngineMap())
	if err != nil {
		writeJSON(c, http.StatusUnprocessableEntity, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, updated)
}

func writePresetError(c *gin.Context, err error) {
	if errors.Is(err, preset.ErrNotFound) {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
}

func writeBridgeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrNotRunning), errors.Is(err, engine.ErrStreamClosed),
		errors.Is(err, engine.ErrDisconnected):
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
	case errors.Is(err, engine.ErrRequestTimeout):
		writeJSON(c, http.StatusGatewayTimeout, errorResp{Error: err.Error()})
	default:
		writeJSON(c, http.StatusBadGateway, errorResp{Error: err.Error()})
	}
}
