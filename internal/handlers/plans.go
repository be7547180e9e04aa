package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gosimple/slug"

	"github.com/PortNumber53/fashion-shoot/backend/internal/apperr"
	"github.com/PortNumber53/fashion-shoot/backend/internal/auth"
	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
)

// PlanStore defines the plan persistence used by the plan handlers.
type PlanStore interface {
	ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error)
	GetPlan(ctx context.Context, id string) (*models.Plan, error)
	CreatePlan(ctx context.Context, p *models.Plan) error
	UpdatePlan(ctx context.Context, p *models.Plan) error
	DeletePlan(ctx context.Context, id string) error
}

// ListPlans returns active plans. Admins may pass ?all=true to include
// inactive ones.
func ListPlans(plans PlanStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeOnly := true
		if id, ok := auth.FromContext(r.Context()); ok && id.IsAdmin() && r.URL.Query().Get("all") == "true" {
			activeOnly = false
		}

		list, err := plans.ListPlans(r.Context(), activeOnly)
		if err != nil {
			fail(w, "ListPlans", err)
			return
		}
		respond(w, http.StatusOK, map[string]any{"plans": list})
	}
}

// GetPlan returns a single plan
func GetPlan(plans PlanStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := plans.GetPlan(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			fail(w, "GetPlan", err)
			return
		}
		respond(w, http.StatusOK, map[string]any{"plan": p})
	}
}

// CreatePlan stores a new plan. A missing id is derived from the name.
func CreatePlan(plans PlanStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in models.PlanInput
		if err := decode(r, &in); err != nil {
			fail(w, "CreatePlan", err)
			return
		}

		p := in.ToPlan()
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			p.ID = slug.Make(p.Name)
		}
		if p.ID == "" {
			apperr.Write(w, apperr.Validation("Validation failed", map[string]string{"id": "id is required"}))
			return
		}

		if err := plans.CreatePlan(r.Context(), &p); err != nil {
			fail(w, "CreatePlan", err)
			return
		}
		respond(w, http.StatusCreated, map[string]any{"plan": p})
	}
}

// UpdatePlan replaces a plan's fields. The id in the path wins over the body.
func UpdatePlan(plans PlanStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in models.PlanInput
		if err := decode(r, &in); err != nil {
			fail(w, "UpdatePlan", err)
			return
		}

		p := in.ToPlan()
		p.ID = chi.URLParam(r, "id")
		if err := plans.UpdatePlan(r.Context(), &p); err != nil {
			fail(w, "UpdatePlan", err)
			return
		}
		respond(w, http.StatusOK, map[string]any{"plan": p})
	}
}

// DeletePlan removes a plan
func DeletePlan(plans PlanStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := plans.DeletePlan(r.Context(), id); err != nil {
			fail(w, "DeletePlan", err)
			return
		}
		respondMessage(w, http.StatusOK, "Plan deleted", map[string]any{"id": id})
	}
}
