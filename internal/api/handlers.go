package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/atlasintel/atlas-engine/internal/models"
	"github.com/atlasintel/atlas-engine/internal/services"
	"github.com/atlasintel/atlas-engine/internal/utils"
)

// Handlers exposes the analysis service over HTTP JSON.
type Handlers struct {
	svc    *services.AnalysisService
	logger *slog.Logger
}

// NewHandlers constructs the HTTP handler set.
func NewHandlers(svc *services.AnalysisService, logger *slog.Logger) *Handlers {
	return &Handlers{svc: svc, logger: utils.ComponentLogger(logger, "handlers")}
}

// Router assembles the API routes.
func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/resolve", h.handleResolve)
		r.Post("/backtest", h.handleBacktest)

		r.Route("/monitor", func(r chi.Router) {
			r.Get("/", h.handleMonitorState)
			r.Post("/start", h.handleMonitorStart)
			r.Post("/stop", h.handleMonitorStop)
			r.Get("/events", h.handleEvents)
			r.Get("/alerts", h.handleAlerts)
			r.Post("/alerts/{alertID}/ack", h.handleAcknowledge)
		})

		r.Get("/patterns", h.handlePatterns)
		r.Get("/assessments/{region}", h.handleCachedAssessments)
		r.Put("/progress", h.handleSaveProgress)
		r.Get("/progress/{userID}", h.handleProgress)
	})
	return r
}

func (h *Handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

type resolveRequest struct {
	Kind       models.RequestKind `json:"kind"`
	Parameters map[string]any     `json:"parameters"`
}

type resolveResponse struct {
	Payload    models.Payload         `json:"payload"`
	Provenance models.SourceKind      `json:"provenance"`
	Attempts   []models.SourceAttempt `json:"attempts"`
}

func (h *Handlers) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.err(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Kind = models.RequestKind(strings.ToLower(strings.TrimSpace(string(req.Kind))))
	if !validKind(req.Kind) {
		h.err(w, http.StatusBadRequest, "unknown request kind")
		return
	}

	result, err := h.svc.Resolve(r.Context(), models.AnalyticalRequest{
		Kind:       req.Kind,
		Parameters: req.Parameters,
	})
	if err != nil {
		h.serviceErr(w, err)
		return
	}
	h.respond(w, http.StatusOK, resolveResponse{
		Payload:    result.Payload,
		Provenance: result.Provenance,
		Attempts:   result.Attempts,
	})
}

func (h *Handlers) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req models.BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.err(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ModelID == "" || len(req.Predictions) == 0 {
		h.err(w, http.StatusBadRequest, "modelId and predictions are required")
		return
	}

	report, err := h.svc.RunBacktest(r.Context(), req)
	if err != nil {
		h.serviceErr(w, err)
		return
	}
	h.respond(w, http.StatusOK, report)
}

func (h *Handlers) handleMonitorState(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"state": string(h.svc.MonitorState())})
}

func (h *Handlers) handleMonitorStart(w http.ResponseWriter, _ *http.Request) {
	if err := h.svc.StartMonitoring(); err != nil {
		if errors.Is(err, services.ErrNotConfigured) {
			h.serviceErr(w, err)
			return
		}
		h.err(w, http.StatusConflict, err.Error())
		return
	}
	h.respond(w, http.StatusAccepted, map[string]string{"state": string(h.svc.MonitorState())})
}

func (h *Handlers) handleMonitorStop(w http.ResponseWriter, _ *http.Request) {
	if err := h.svc.StopMonitoring(); err != nil {
		h.serviceErr(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"state": string(h.svc.MonitorState())})
}

func (h *Handlers) handleEvents(w http.ResponseWriter, _ *http.Request) {
	events := h.svc.ActiveEvents()
	if events == nil {
		events = []models.CrisisEvent{}
	}
	h.respond(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handlers) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	alerts := h.svc.ActiveAlerts()
	if alerts == nil {
		alerts = []models.Alert{}
	}
	h.respond(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *Handlers) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "alertID")
	removed, err := h.svc.AcknowledgeAlert(id)
	if err != nil {
		h.serviceErr(w, err)
		return
	}
	if !removed {
		h.err(w, http.StatusNotFound, "no active alert with id "+id)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"acknowledged": id})
}

func (h *Handlers) handlePatterns(w http.ResponseWriter, r *http.Request) {
	hotspots, err := h.svc.MineHotspots(r.Context())
	if err != nil {
		h.serviceErr(w, err)
		return
	}
	if hotspots == nil {
		hotspots = []models.RegionHotspot{}
	}
	h.respond(w, http.StatusOK, map[string]any{"hotspots": hotspots})
}

func (h *Handlers) handleCachedAssessments(w http.ResponseWriter, r *http.Request) {
	region := chi.URLParam(r, "region")
	assessments, err := h.svc.CachedRiskAssessments(r.Context(), region)
	if err != nil {
		h.serviceErr(w, err)
		return
	}
	if assessments == nil {
		assessments = []models.RiskAssessment{}
	}
	h.respond(w, http.StatusOK, map[string]any{"assessments": assessments})
}

func (h *Handlers) handleSaveProgress(w http.ResponseWriter, r *http.Request) {
	var progress models.LearningProgress
	if err := json.NewDecoder(r.Body).Decode(&progress); err != nil {
		h.err(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.SaveProgress(r.Context(), progress); err != nil {
		if errors.Is(err, services.ErrNotConfigured) {
			h.serviceErr(w, err)
			return
		}
		h.err(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respond(w, http.StatusNoContent, nil)
}

func (h *Handlers) handleProgress(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	progress, err := h.svc.Progress(r.Context(), userID)
	if err != nil {
		h.serviceErr(w, err)
		return
	}
	if progress == nil {
		progress = []models.LearningProgress{}
	}
	h.respond(w, http.StatusOK, map[string]any{"progress": progress})
}

// serviceErr maps service failures onto HTTP statuses: exhausted source chains
// surface as bad gateway, missing wiring as service unavailable.
func (h *Handlers) serviceErr(w http.ResponseWriter, err error) {
	var unavailable *models.AnalysisUnavailableError
	switch {
	case errors.As(err, &unavailable):
		h.err(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, services.ErrNotConfigured):
		h.err(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("request failed", slog.Any("error", err))
		h.err(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handlers) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("response encoding failed", slog.Any("error", err))
	}
}

func (h *Handlers) err(w http.ResponseWriter, status int, message string) {
	h.respond(w, status, map[string]string{"error": message})
}

func validKind(kind models.RequestKind) bool {
	switch kind {
	case models.KindTutorial, models.KindRiskAssessment, models.KindSimulation,
		models.KindCrisisScan, models.KindEconomicImpact:
		return true
	}
	return false
}
