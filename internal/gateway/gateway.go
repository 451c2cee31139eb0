// Package gateway is the public HTTP entry point: it creates sessions,
// launches their pipeline runners in the background, and serves the
// server-sent progress feed.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/UtkarsHMer05/accessibilityos/internal/pipeline"
	"github.com/UtkarsHMer05/accessibilityos/internal/store"
	"github.com/UtkarsHMer05/accessibilityos/internal/stream"
	"github.com/UtkarsHMer05/accessibilityos/internal/types"
)

// Config holds gateway policy knobs.
type Config struct {
	MaxInputSize      int           // bytes; oversized payloads are rejected
	RunTimeout        time.Duration // overall bound for one background run
	MaxConcurrentRuns int64
}

// Gateway wires HTTP handlers to the store, runner and streamer.
type Gateway struct {
	store    *store.Store
	runner   *pipeline.Runner
	streamer *stream.Streamer
	logger   *zap.Logger
	cfg      Config
	sem      *semaphore.Weighted
}

// New creates a gateway.
func New(st *store.Store, runner *pipeline.Runner, streamer *stream.Streamer, logger *zap.Logger, cfg Config) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxInputSize <= 0 {
		cfg.MaxInputSize = 100 * 1024
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 10 * time.Minute
	}
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 8
	}
	return &Gateway{
		store:    st,
		runner:   runner,
		streamer: streamer,
		logger:   logger,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentRuns),
	}
}

// Routes returns the chi router for the playground API.
func (g *Gateway) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/api/playground/start", g.handleStart)
	r.Get("/api/playground/stream/{sessionID}", g.handleStream)
	r.Get("/api/playground/session/{sessionID}", g.handleSession)
	r.Post("/api/playground/rerun/{sessionID}", g.handleRerun)
	return r
}

type startRequest struct {
	HTMLCode     string `json:"htmlCode"`
	CSSCode      string `json:"cssCode"`
	RunHealer    bool   `json:"runHealer"`
	RunNavigator bool   `json:"runNavigator"`
}

type startResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// handleStart validates and sanitizes the input, registers the session and
// fires the pipeline in the background. It returns the session identifier
// immediately and never blocks on a reasoner call.
func (g *Gateway) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, int64(g.cfg.MaxInputSize)+4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.HTMLCode == "" || len(req.HTMLCode) > g.cfg.MaxInputSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid code length (max %dKB)", g.cfg.MaxInputSize/1024))
		return
	}

	sessionID := fmt.Sprintf("pg_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
	session := &types.Session{
		ID:           sessionID,
		Status:       types.StatusInitializing,
		UserCode:     sanitizeUserCode(req.HTMLCode),
		UserCSS:      sanitizeUserCode(req.CSSCode),
		RunHealer:    req.RunHealer,
		RunNavigator: req.RunNavigator,
		HealerStatus: types.PhaseSkipped,
		StartedAt:    time.Now(),
	}
	if req.RunHealer {
		session.HealerStatus = types.PhasePending
	}
	session.NavigatorStatus = types.PhaseSkipped
	if req.RunNavigator {
		session.NavigatorStatus = types.PhasePending
	}

	g.store.Create(session)
	g.store.AppendActivity(sessionID, "system", "session_created", "🎬 Session initialized - Ready to process your code")

	// Fire-and-forget: the runner gets its own context and keeps going
	// whether or not anyone watches the feed.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.cfg.RunTimeout)
		defer cancel()

		if err := g.sem.Acquire(ctx, 1); err != nil {
			g.logger.Warn("Pipeline slot unavailable", zap.String("session", sessionID), zap.Error(err))
			return
		}
		defer g.sem.Release(1)

		g.runner.Run(ctx, sessionID)
	}()

	writeJSON(w, http.StatusOK, startResponse{
		Success:   true,
		SessionID: sessionID,
		Message:   "Processing started",
	})
}

// handleStream serves the progress feed as server-sent events: one JSON
// frame per line-delimited message. Client disconnect cancels only this
// feed's polling loop.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for frame := range g.streamer.Subscribe(r.Context(), sessionID) {
		payload, err := json.Marshal(frame)
		if err != nil {
			g.logger.Warn("Failed to encode frame", zap.Error(err))
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()
	}
}

// handleSession returns a one-shot snapshot of the session.
func (g *Gateway) handleSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, ok := g.store.Get(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleRerun triggers the feedback loop for a completed session with
// failing test cases. Precondition failures are reported synchronously;
// the rerun itself happens in the background like the initial run.
func (g *Gateway) handleRerun(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := g.checkRerunnable(sessionID); err != nil {
		switch {
		case errors.Is(err, pipeline.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, pipeline.ErrRerunLimit):
			writeError(w, http.StatusTooManyRequests, err.Error())
		default:
			writeError(w, http.StatusConflict, err.Error())
		}
		return
	}

	// Reruns count against the same pipeline slot budget as initial runs.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.cfg.RunTimeout)
		defer cancel()

		if err := g.sem.Acquire(ctx, 1); err != nil {
			g.logger.Warn("Pipeline slot unavailable", zap.String("session", sessionID), zap.Error(err))
			return
		}
		defer g.sem.Release(1)

		if err := g.runner.Rerun(ctx, sessionID); err != nil {
			g.logger.Warn("Rerun rejected", zap.String("session", sessionID), zap.Error(err))
		}
	}()

	writeJSON(w, http.StatusOK, startResponse{
		Success:   true,
		SessionID: sessionID,
		Message:   "Rerun started",
	})
}

func (g *Gateway) checkRerunnable(sessionID string) error {
	session, ok := g.store.Get(sessionID)
	if !ok {
		return pipeline.ErrSessionNotFound
	}
	if session.Status != types.StatusComplete {
		return pipeline.ErrNotRerunnable
	}
	failing := 0
	for _, tc := range session.NavigatorTests {
		if tc.Status == types.TestFailed {
			failing++
		}
	}
	if failing == 0 {
		return pipeline.ErrNoFailingTests
	}
	// The ceiling is enforced again inside Rerun; checking here reports
	// it synchronously.
	return g.runner.CheckRerunLimit(session.Iteration)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
