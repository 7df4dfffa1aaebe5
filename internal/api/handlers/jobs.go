package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/wonny/arena/backend/internal/contracts"
	"github.com/wonny/arena/backend/internal/simulation"
	"github.com/wonny/arena/backend/pkg/config"
	"github.com/wonny/arena/backend/pkg/logger"
)

// JobHandler handles simulation job API endpoints
// ⭐ SSOT: Job API 핸들러는 이 구조체에서만
type JobHandler struct {
	jobs   contracts.JobStore
	days   contracts.ModelDayStore
	ledger contracts.Ledger
	worker *simulation.Worker
	sim    config.SimConfig
	logger *logger.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(
	jobs contracts.JobStore,
	days contracts.ModelDayStore,
	ledg contracts.Ledger,
	worker *simulation.Worker,
	sim config.SimConfig,
	log *logger.Logger,
) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		days:   days,
		ledger: ledg,
		worker: worker,
		sim:    sim,
		logger: log,
	}
}

// CreateJobRequest represents a job submission
type CreateJobRequest struct {
	Dates       []string `json:"dates"`        // YYYY-MM-DD
	Models      []string `json:"models"`       // defaults to SIM_MODELS
	InitialCash float64  `json:"initial_cash"` // defaults to SIM_INITIAL_CASH
}

// CreateJobResponse returns the id of the accepted job
type CreateJobResponse struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

// Create accepts a new simulation job and starts it in the background.
// The response returns immediately with the job id.
// POST /api/jobs
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	dates := make([]time.Time, 0, len(req.Dates))
	for _, s := range req.Dates {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid date format (expected YYYY-MM-DD): "+s)
			return
		}
		dates = append(dates, d)
	}

	models := req.Models
	if len(models) == 0 {
		models = h.sim.Models
	}
	initialCash := req.InitialCash
	if initialCash == 0 {
		initialCash = h.sim.InitialCash
	}

	job, err := simulation.CreateJob(ctx, h.jobs, h.days, simulation.JobRequest{
		Dates:       dates,
		Models:      models,
		InitialCash: initialCash,
	})
	if err != nil {
		if errors.Is(err, simulation.ErrInvalidRequest) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.WithError(err).Error("Failed to create job")
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"job_id": job.ID,
		"dates":  len(job.Dates),
		"models": len(job.Models),
	}).Info("Job accepted")

	h.worker.Start(job.ID)

	respondJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     job.ID,
		Status: string(job.Status),
	})
}

// Get returns one job with its model-day breakdown
// GET /api/jobs/{id}
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, simulation.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get job")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve job")
		return
	}

	days, err := h.days.ListByJob(ctx, id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list model-days")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve job")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"job":        job,
		"model_days": days,
	})
}

// List returns recent jobs, newest first
// GET /api/jobs
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.List(r.Context(), 50)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list jobs")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve jobs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": jobs,
	})
}

// Positions returns the full ledger stream of a job, per model
// GET /api/jobs/{id}/positions?model=<id>
func (h *JobHandler) Positions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, simulation.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get job")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve job")
		return
	}

	models := job.Models
	if m := r.URL.Query().Get("model"); m != "" {
		models = []string{m}
	}

	records := make(map[string][]*contracts.PositionRecord, len(models))
	for _, model := range models {
		recs, err := h.ledger.Records(ctx, id, model)
		if err != nil {
			h.logger.WithError(err).Error("Failed to read ledger")
			respondError(w, http.StatusInternalServerError, "Failed to retrieve positions")
			return
		}
		records[model] = recs
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"job_id":    id,
		"positions": records,
	})
}

func parseJobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job id")
		return uuid.Nil, false
	}
	return id, true
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
