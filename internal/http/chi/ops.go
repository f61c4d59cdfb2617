package chi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog"

	"github.com/marcelsud/commerce-webhooks/webhook"
	"github.com/marcelsud/commerce-webhooks/webhook/maintenance"
	"github.com/marcelsud/commerce-webhooks/webhook/redis"
	"github.com/marcelsud/commerce-webhooks/webhook/worker"
)

// processResponse is returned by POST /v1/ops/queue/process
type processResponse struct {
	Success bool          `json:"success"`
	Report  worker.Report `json:"report"`
}

// cleanupResponse is returned by POST /v1/ops/cleanup
type cleanupResponse struct {
	Success bool               `json:"success"`
	Report  maintenance.Report `json:"report"`
	Error   string             `json:"error,omitempty"`
}

// queueStatsResponse is returned by GET /v1/ops/queue/stats
type queueStatsResponse struct {
	WindowHours   int                     `json:"window_hours"`
	Pending       int64                   `json:"pending"`
	Processing    int64                   `json:"processing"`
	Completed     int64                   `json:"completed"`
	Failed        int64                   `json:"failed"`
	Total         int64                   `json:"total"`
	ActiveWorkers []redis.WorkerHeartbeat `json:"active_workers,omitempty"`
}

// postProcessQueue handles POST /v1/ops/queue/process
func postProcessQueue(ticker Ticker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report, err := ticker.Tick(r.Context())
		if errors.Is(err, worker.ErrTickInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, processResponse{Success: true, Report: report})
	})
}

// postCleanup handles POST /v1/ops/cleanup
func postCleanup(janitor Cleaner) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report, err := janitor.Run(r.Context())
		if err != nil {
			// partial work is still reported
			writeJSON(w, http.StatusInternalServerError, cleanupResponse{Report: report, Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, cleanupResponse{Success: true, Report: report})
	})
}

// getQueueStats handles GET /v1/ops/queue/stats
func getQueueStats(queue QueueStatter, workers WorkerLister) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hours, ok := windowHours(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "hours must be an integer between 1 and 720")
			return
		}

		stats, err := queue.Stats(r.Context(), time.Now().Add(-time.Duration(hours)*time.Hour))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp := newQueueStatsResponse(hours, stats)

		if workers != nil {
			active, err := workers.ActiveWorkers(r.Context())
			if err != nil {
				httplog.LogEntrySetField(r.Context(), "workers_error", err.Error())
			}
			resp.ActiveWorkers = active
		}

		writeJSON(w, http.StatusOK, resp)
	})
}

func newQueueStatsResponse(hours int, s webhook.QueueStats) queueStatsResponse {
	return queueStatsResponse{
		WindowHours: hours,
		Pending:     s.Pending,
		Processing:  s.Processing,
		Completed:   s.Completed,
		Failed:      s.Failed,
		Total:       s.Total,
	}
}

// getIntegrationHealth handles GET /v1/integrations/{integration_id}/health
func getIntegrationHealth(health HealthReporter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		integrationID := chi.URLParam(r, "integration_id")
		if integrationID == "" {
			writeError(w, http.StatusBadRequest, "integration_id is required")
			return
		}
		hours, ok := windowHours(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "hours must be an integer between 1 and 720")
			return
		}

		h, err := health.Health(r.Context(), integrationID, time.Duration(hours)*time.Hour)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, h)
	})
}
