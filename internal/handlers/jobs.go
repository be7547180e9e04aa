package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
	"github.com/PortNumber53/fashion-shoot/backend/internal/worker"
)

// JobStore defines the queue reads used by the admin job handlers.
type JobStore interface {
	GetByID(ctx context.Context, id int64) (*models.Job, error)
	GetStats(ctx context.Context) (*models.JobStats, error)
	ListPendingJobs(ctx context.Context, limit int) ([]*models.Job, error)
	ListProcessingJobs(ctx context.Context) ([]*models.Job, error)
}

// JobCanceller cancels pending jobs. *worker.Worker satisfies it.
type JobCanceller interface {
	CancelJob(ctx context.Context, id int64) (*models.Job, error)
}

// JobHandler holds dependencies for the admin job handlers
type JobHandler struct {
	Store  JobStore
	Worker JobCanceller
	// Pool reports in-process worker counters when set.
	Pool func() worker.Stats
}

// GetJob returns one job by id.
func (h *JobHandler) GetJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id")
		if err != nil {
			fail(w, "GetJob", err)
			return
		}
		job, err := h.Store.GetByID(r.Context(), id)
		if err != nil {
			fail(w, "GetJob", err)
			return
		}
		respond(w, http.StatusOK, map[string]any{"job": job})
	}
}

// CancelJob cancels a pending job; its credits go back to the owner.
func (h *JobHandler) CancelJob() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id")
		if err != nil {
			fail(w, "CancelJob", err)
			return
		}

		job, err := h.Worker.CancelJob(r.Context(), id)
		if err != nil {
			fail(w, "CancelJob", err)
			return
		}
		log.Printf("CancelJob: cancelled job %d", id)
		respondMessage(w, http.StatusOK, "Job cancelled successfully", map[string]any{"job": job})
	}
}

// Stats returns queue counts by status, plus pool counters when available.
func (h *JobHandler) Stats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := h.Store.GetStats(r.Context())
		if err != nil {
			fail(w, "GetJobStats", err)
			return
		}
		out := map[string]any{"queue": stats}
		if h.Pool != nil {
			out["worker"] = h.Pool()
		}
		respond(w, http.StatusOK, out)
	}
}

// ListPending returns pending jobs, oldest first within a priority.
func (h *JobHandler) ListPending() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := h.Store.ListPendingJobs(r.Context(), intQuery(r, "limit", 100, 1000))
		if err != nil {
			fail(w, "ListPendingJobs", err)
			return
		}
		respond(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
	}
}

// ListProcessing returns jobs currently claimed by a worker.
func (h *JobHandler) ListProcessing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := h.Store.ListProcessingJobs(r.Context())
		if err != nil {
			fail(w, "ListProcessingJobs", err)
			return
		}
		respond(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
	}
}
