package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/arena/backend/internal/contracts"
	"github.com/wonny/arena/backend/internal/simulation"
	"github.com/wonny/arena/backend/pkg/logger"
)

const (
	watchPollInterval = 1 * time.Second
	watchPingInterval = 30 * time.Second
	watchWriteTimeout = 10 * time.Second
)

// WatchHandler streams job progress over a WebSocket.
type WatchHandler struct {
	jobs     contracts.JobStore
	days     contracts.ModelDayStore
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewWatchHandler creates a new watch handler
func NewWatchHandler(jobs contracts.JobStore, days contracts.ModelDayStore, log *logger.Logger) *WatchHandler {
	return &WatchHandler{
		jobs: jobs,
		days: days,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: log,
	}
}

// WatchEvent is one progress frame: the job plus per-model-day statuses.
type WatchEvent struct {
	Job       *contracts.Job        `json:"job"`
	ModelDays []*contracts.ModelDay `json:"model_days"`
}

// Watch upgrades the connection and pushes an event whenever the job or
// any model-day changes. The stream closes after the job goes terminal.
// GET /api/jobs/{id}/watch
func (h *WatchHandler) Watch(w http.ResponseWriter, r *http.Request) {
	id, ok := parseJobID(w, r)
	if !ok {
		return
	}

	// 업그레이드 전에 Job 존재 여부 확인
	if _, err := h.jobs.Get(r.Context(), id); err != nil {
		if errors.Is(err, simulation.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get job")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve job")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.logger.WithField("job_id", id)
	log.Debug("Watch stream opened")

	ctx := r.Context()
	ticker := time.NewTicker(watchPollInterval)
	defer ticker.Stop()
	pinger := time.NewTicker(watchPingInterval)
	defer pinger.Stop()

	var last *WatchEvent
	for {
		select {
		case <-ctx.Done():
			return

		case <-pinger.C:
			deadline := time.Now().Add(watchWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.WithError(err).Debug("Watch ping failed, closing stream")
				return
			}

		case <-ticker.C:
			job, err := h.jobs.Get(ctx, id)
			if err != nil {
				log.WithError(err).Error("Watch job lookup failed")
				return
			}
			days, err := h.days.ListByJob(ctx, id)
			if err != nil {
				log.WithError(err).Error("Watch model-day lookup failed")
				return
			}

			event := &WatchEvent{Job: job, ModelDays: days}
			if last != nil && reflect.DeepEqual(event, last) {
				continue
			}
			last = event

			conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				log.WithError(err).Debug("Watch write failed, closing stream")
				return
			}

			if job.Status.IsTerminal() {
				log.Debug("Watch stream closed, job terminal")
				deadline := time.Now().Add(watchWriteTimeout)
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(job.Status))
				_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
				return
			}
		}
	}
}
