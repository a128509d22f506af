// Package httpapi exposes claim processing over REST.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clearway/claimflow/claim"
	"github.com/clearway/claimflow/engine"
	"github.com/clearway/claimflow/pkg/logging"
	"github.com/clearway/claimflow/store"
)

// Handler wires the claim endpoints to the engine and stores.
type Handler struct {
	engine *engine.Engine
	stores *store.Stores
	logger *slog.Logger

	// tracks processing goroutines started by HandleProcess
	runs sync.WaitGroup
}

// New constructs the HTTP handler.
func New(e *engine.Engine, stores *store.Stores) *Handler {
	return &Handler{
		engine: e,
		stores: stores,
		logger: logging.WithComponent("httpapi"),
	}
}

// Router builds the chi router with all claim endpoints mounted.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz/live", h.HandleLive)
	r.Get("/healthz/ready", h.HandleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/claims", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/statistics/overview", h.HandleStatistics)
		r.Route("/{id}", func(r chi.Router) {
			r.Post("/process", h.HandleProcess)
			r.Get("/status", h.HandleStatus)
			r.Get("/decision", h.HandleDecision)
			r.Get("/logs", h.HandleLogs)
			r.Post("/review", h.HandleReview)
		})
	})
	return r
}

// Wait blocks until background processing runs finish; used on shutdown.
func (h *Handler) Wait() {
	h.runs.Wait()
}

type createRequest struct {
	ClaimNumber  string `json:"claim_number"`
	UserID       string `json:"user_id"`
	ClaimType    string `json:"claim_type"`
	DocumentPath string `json:"document_path"`
}

// HandleCreate handles POST /claims.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ClaimNumber == "" || req.UserID == "" || req.DocumentPath == "" {
		writeError(w, http.StatusBadRequest, "claim_number, user_id and document_path are required")
		return
	}

	c := claim.New(req.ClaimNumber, req.UserID, req.ClaimType, req.DocumentPath)
	if err := h.stores.Claims.Create(r.Context(), c); err != nil {
		if errors.Is(err, claim.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "claim already exists")
			return
		}
		h.logger.Error("create claim failed", "claim_number", req.ClaimNumber, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create claim")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleList handles GET /claims.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	f := store.ListFilter{
		UserID: r.URL.Query().Get("user_id"),
		Status: claim.Status(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	claims, err := h.stores.Claims.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list claims failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list claims")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"claims": claims, "count": len(claims)})
}

// HandleProcess handles POST /claims/{id}/process: starts orchestration in
// the background and answers 202, or 409 when a run is already active.
func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	id, ok := claimID(w, r)
	if !ok {
		return
	}
	c, err := h.stores.Claims.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if c.Status == claim.StatusProcessing {
		writeError(w, http.StatusConflict, "claim is already being processed")
		return
	}
	if c.Status.Terminal() {
		writeError(w, http.StatusConflict, "claim processing is already complete")
		return
	}

	runCtx := context.WithoutCancel(r.Context())
	h.runs.Add(1)
	go func() {
		defer h.runs.Done()
		if err := h.engine.Process(runCtx, id); err != nil {
			h.logger.Error("claim processing failed", "claim_id", id, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"claim_id": id,
		"status":   claim.StatusProcessing,
	})
}

// HandleStatus handles GET /claims/{id}/status: current state plus the
// ordered step list.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := claimID(w, r)
	if !ok {
		return
	}
	c, err := h.stores.Claims.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	steps, err := h.stores.Steps.ListByClaim(r.Context(), id)
	if err != nil {
		h.logger.Error("list steps failed", "claim_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load processing steps")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"claim": c,
		"steps": steps,
	})
}

// HandleDecision handles GET /claims/{id}/decision.
func (h *Handler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	id, ok := claimID(w, r)
	if !ok {
		return
	}
	decision, err := h.stores.Decisions.GetByClaim(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// HandleLogs handles GET /claims/{id}/logs: the full audit trail, including
// guardrails detections.
func (h *Handler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := claimID(w, r)
	if !ok {
		return
	}
	if _, err := h.stores.Claims.Get(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	steps, err := h.stores.Steps.ListByClaim(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load processing steps")
		return
	}
	detections, err := h.stores.Detections.ListByClaim(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load detections")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"steps":      steps,
		"detections": detections,
	})
}

type reviewRequest struct {
	FinalDecision string `json:"final_decision"`
	Reviewer      string `json:"reviewer"`
	Notes         string `json:"notes"`
}

// HandleReview handles POST /claims/{id}/review.
func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	id, ok := claimID(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reviewer == "" {
		writeError(w, http.StatusBadRequest, "reviewer is required")
		return
	}
	outcome := claim.Outcome(req.FinalDecision)
	if !outcome.Valid() {
		writeError(w, http.StatusBadRequest, "final_decision must be approve, deny or manual_review")
		return
	}

	decision, err := h.engine.Review(r.Context(), id, outcome, req.Reviewer, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, claim.ErrNotFound):
			writeError(w, http.StatusNotFound, "claim or decision not found")
		case errors.Is(err, claim.ErrAlreadyFinalized):
			writeError(w, http.StatusConflict, "decision already finalized")
		case errors.Is(err, claim.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "claim is not awaiting review")
		default:
			h.logger.Error("review failed", "claim_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to finalize review")
		}
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// HandleStatistics handles GET /claims/statistics/overview.
func (h *Handler) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	counts, err := h.stores.Claims.CountByStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     total,
		"by_status": counts,
	})
}

// HandleLive handles GET /healthz/live.
func (h *Handler) HandleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now().UTC()})
}

// HandleReady handles GET /healthz/ready: verifies the claim store answers.
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := h.stores.Claims.CountByStatus(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "claim store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func claimID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid claim id")
		return uuid.Nil, false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, claim.ErrNotFound) {
		writeError(w, http.StatusNotFound, "claim not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "storage unavailable")
}

func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
