package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/PortNumber53/fashion-shoot/backend/internal/credits"
	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
)

// PhotoshootQueue enqueues paid generation jobs.
type PhotoshootQueue interface {
	EnqueuePaid(ctx context.Context, job *models.Job, cost int) error
	GetForUser(ctx context.Context, id, userID int64) (*models.Job, error)
}

// UserLookup loads the caller's account.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*models.UserDetail, error)
}

// PhotoshootHandler queues generation requests for the worker.
type PhotoshootHandler struct {
	Jobs  PhotoshootQueue
	Users UserLookup
}

// Create charges the kind's cost and queues the job. The webhook call
// happens in the worker; the response only carries the job id.
func (h *PhotoshootHandler) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me, err := caller(r)
		if err != nil {
			fail(w, "CreatePhotoshoot", err)
			return
		}

		var req models.PhotoshootRequest
		if err := decode(r, &req); err != nil {
			fail(w, "CreatePhotoshoot", err)
			return
		}
		if req.Kind == "" {
			req.Kind = "image"
		}
		field, err := credits.ParseUsageField(req.Kind)
		if err != nil {
			fail(w, "CreatePhotoshoot", err)
			return
		}

		user, err := h.Users.GetUserByID(r.Context(), me.UserID)
		if err != nil {
			fail(w, "CreatePhotoshoot: load user", err)
			return
		}

		cost := credits.CostOf(field)
		job := &models.Job{
			JobType:  models.JobTypePhotoshoot,
			UserID:   &me.UserID,
			Priority: models.PriorityForPlan(user.Plan),
			Payload: models.PhotoshootPayload{
				UserID:          me.UserID,
				Card:            req.Card,
				ProductImageURL: strings.TrimSpace(req.ProductImageURL),
				Prompt:          strings.TrimSpace(req.Prompt),
				Kind:            req.Kind,
				Cost:            cost,
			}.ToJSONB(),
			MaxAttempts: models.DefaultJobAttempts,
		}
		if err := h.Jobs.EnqueuePaid(r.Context(), job, cost); err != nil {
			fail(w, "CreatePhotoshoot: enqueue", err)
			return
		}

		log.Printf("CreatePhotoshoot: user %d queued job %d (card %d, %s, %d credits)", me.UserID, job.ID, req.Card, req.Kind, cost)
		respondMessage(w, http.StatusAccepted, "Photoshoot queued", map[string]any{
			"jobId":  job.ID,
			"status": job.Status,
			"cost":   cost,
		})
	}
}

// Get returns one of the caller's jobs.
func (h *PhotoshootHandler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me, err := caller(r)
		if err != nil {
			fail(w, "GetPhotoshoot", err)
			return
		}
		id, err := idParam(r, "id")
		if err != nil {
			fail(w, "GetPhotoshoot", err)
			return
		}

		job, err := h.Jobs.GetForUser(r.Context(), id, me.UserID)
		if err != nil {
			fail(w, "GetPhotoshoot", err)
			return
		}
		respond(w, http.StatusOK, map[string]any{"job": job})
	}
}
