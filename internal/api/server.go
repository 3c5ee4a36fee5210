// Package api exposes the engine over HTTP: facility control, job admission,
// manual ticks, snapshot management and a websocket event stream.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/engine"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/inventory"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/ratelimit"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/scheduler"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/store"
	"github.com/TickTockBent/DefenseMagnate-sub001/internal/telemetry"
)

// Server wires HTTP handlers around an engine. The limiter is optional and
// throttles job admissions per facility.
type Server struct {
	eng     *engine.Engine
	hub     *Hub
	limiter *ratelimit.AdmissionLimiter
	log     *slog.Logger
}

// New constructs the API server.
func New(eng *engine.Engine, hub *Hub, limiter *ratelimit.AdmissionLimiter, log *slog.Logger) *Server {
	return &Server{
		eng:     eng,
		hub:     hub,
		limiter: limiter,
		log:     log,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Route("/facilities", func(r chi.Router) {
		r.Get("/", s.handleListFacilities)
		r.Post("/", s.handleAddFacility)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleReport)
			r.Post("/advance", s.handleAdvance)
			r.Get("/archive", s.handleArchive)
			r.Get("/events", s.handleEvents)
			r.Post("/snapshot", s.handleSnapshot)
			r.Post("/restore", s.handleRestore)

			r.Post("/jobs", s.handleStartJob)
			r.Get("/jobs/{jobID}", s.handleGetJob)
			r.Post("/jobs/{jobID}/cancel", s.handleCancelJob)

			r.Post("/equipment", s.handleAddEquipment)
			r.Delete("/equipment/{eqID}", s.handleRemoveEquipment)
			r.Post("/equipment/{eqID}/maintenance", s.handleStartMaintenance)
			r.Delete("/equipment/{eqID}/maintenance", s.handleFinishMaintenance)
			r.Post("/equipment/{eqID}/reserve", s.handleReserveEquipment)
			r.Delete("/equipment/{eqID}/reserve", s.handleReleaseEquipment)

			r.Post("/stock", s.handleDeposit)
		})
	})
	return r
}

func (s *Server) handleListFacilities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"facilities": s.eng.Facilities()})
}

type addFacilityRequest struct {
	ID       string `json:"id"`
	Capacity int    `json:"capacity"`
}

func (s *Server) handleAddFacility(w http.ResponseWriter, r *http.Request) {
	var req addFacilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	if err := s.eng.AddFacility(req.ID, req.Capacity); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": req.ID, "capacity": req.Capacity})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.eng.Report(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type advanceRequest struct {
	Delta string `json:"delta"`
}

type advanceResponse struct {
	Clock  time.Duration               `json:"clock_ns"`
	Events []scheduler.CompletionEvent `json:"events"`
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	facility := chi.URLParam(r, "id")
	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Delta == "" {
		http.Error(w, "delta is required", http.StatusBadRequest)
		return
	}
	delta, err := time.ParseDuration(req.Delta)
	if err != nil || delta < 0 {
		http.Error(w, "delta must be a non-negative duration", http.StatusBadRequest)
		return
	}
	if err := s.eng.Advance(r.Context(), facility, delta); err != nil {
		s.writeError(w, err)
		return
	}
	events, err := s.eng.DrainEvents(facility)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.hub.Broadcast(events)
	rep, err := s.eng.Report(facility)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if events == nil {
		events = []scheduler.CompletionEvent{}
	}
	writeJSON(w, http.StatusOK, advanceResponse{Clock: rep.Clock, Events: events})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	entries, err := s.eng.Archive(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []scheduler.ArchiveEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archive": entries})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	facility := chi.URLParam(r, "id")
	if _, err := s.eng.Report(facility); err != nil {
		s.writeError(w, err)
		return
	}
	s.hub.ServeWS(w, r, facility)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.SaveSnapshot(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	facility := chi.URLParam(r, "id")
	if err := s.eng.RestoreSnapshot(r.Context(), facility); err != nil {
		s.writeError(w, err)
		return
	}
	rep, err := s.eng.Report(facility)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "restored", "clock_ns": rep.Clock})
}

type startJobRequest struct {
	Product  string `json:"product"`
	Method   string `json:"method"`
	Quantity int    `json:"quantity"`
	Priority int    `json:"priority"`
	Rush     bool   `json:"rush"`
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	facility := chi.URLParam(r, "id")
	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Product == "" || req.Method == "" {
		http.Error(w, "product and method are required", http.StatusBadRequest)
		return
	}
	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), facility)
		if err != nil {
			s.log.Error("rate limiter unavailable", "err", err)
			http.Error(w, "rate limiter unavailable", http.StatusInternalServerError)
			return
		}
		if !allowed {
			telemetry.AdmissionRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}
	view, err := s.eng.StartJob(facility, req.Product, req.Method, req.Quantity, req.Priority, req.Rush)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	facility := chi.URLParam(r, "id")
	jobID := chi.URLParam(r, "jobID")
	view, err := s.eng.Job(facility, jobID)
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]any{"active": view})
		return
	}
	if !errors.Is(err, engine.ErrUnknownJob) {
		s.writeError(w, err)
		return
	}
	entry, archErr := s.eng.ArchivedJob(facility, jobID)
	if archErr != nil {
		s.writeError(w, archErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archived": entry})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	ok, err := s.eng.CancelJob(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": ok})
}

type addEquipmentRequest struct {
	Def string `json:"def"`
}

func (s *Server) handleAddEquipment(w http.ResponseWriter, r *http.Request) {
	var req addEquipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Def == "" {
		http.Error(w, "def is required", http.StatusBadRequest)
		return
	}
	inst, err := s.eng.AddEquipment(chi.URLParam(r, "id"), req.Def)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

func (s *Server) handleRemoveEquipment(w http.ResponseWriter, r *http.Request) {
	inst, err := s.eng.RemoveEquipment(chi.URLParam(r, "id"), chi.URLParam(r, "eqID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": inst})
}

func (s *Server) handleStartMaintenance(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.StartMaintenance(chi.URLParam(r, "id"), chi.URLParam(r, "eqID")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "maintenance_started"})
}

func (s *Server) handleFinishMaintenance(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.FinishMaintenance(chi.URLParam(r, "id"), chi.URLParam(r, "eqID")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "maintenance_finished"})
}

func (s *Server) handleReserveEquipment(w http.ResponseWriter, r *http.Request) {
	ok, err := s.eng.ReserveEquipment(chi.URLParam(r, "id"), chi.URLParam(r, "eqID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reserved": ok})
}

func (s *Server) handleReleaseEquipment(w http.ResponseWriter, r *http.Request) {
	ok, err := s.eng.ReleaseEquipment(chi.URLParam(r, "id"), chi.URLParam(r, "eqID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"released": ok})
}

type depositRequest struct {
	Item     string   `json:"item"`
	Quantity int      `json:"quantity"`
	Quality  float64  `json:"quality"`
	Tags     []string `json:"tags"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Item == "" {
		http.Error(w, "item is required", http.StatusBadRequest)
		return
	}
	if req.Quantity < 1 {
		http.Error(w, fmt.Sprintf("quantity must be positive, got %d", req.Quantity), http.StatusBadRequest)
		return
	}
	it := inventory.NewItem(req.Item, req.Quantity, req.Quality, req.Tags)
	if err := s.eng.DepositStock(chi.URLParam(r, "id"), it); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

// writeError maps engine and scheduler sentinels onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrUnknownFacility),
		errors.Is(err, engine.ErrUnknownJob),
		errors.Is(err, scheduler.ErrUnknownMachine),
		errors.Is(err, store.ErrNoSnapshot):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrDuplicateFacility),
		errors.Is(err, inventory.ErrCapacity):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, engine.ErrUnknownProduct),
		errors.Is(err, engine.ErrProductMismatch),
		errors.Is(err, engine.ErrUnknownItem),
		errors.Is(err, scheduler.ErrUnknownMethod),
		errors.Is(err, scheduler.ErrUnknownEquipment),
		errors.Is(err, scheduler.ErrBadQuantity):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, engine.ErrNoStore):
		http.Error(w, err.Error(), http.StatusNotImplemented)
	default:
		s.log.Error("request failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
