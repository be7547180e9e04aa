package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
)

// ProfileStore backs the self-service profile routes.
type ProfileStore interface {
	GetUserByID(ctx context.Context, id int64) (*models.UserDetail, error)
	UpdateProfile(ctx context.Context, id int64, name string) error
}

// GetProfile returns the caller's account.
func GetProfile(profiles ProfileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me, err := caller(r)
		if err != nil {
			fail(w, "GetProfile", err)
			return
		}
		user, err := profiles.GetUserByID(r.Context(), me.UserID)
		if err != nil {
			fail(w, "GetProfile", err)
			return
		}
		respond(w, http.StatusOK, map[string]any{"user": user})
	}
}

// UpdateProfile changes the caller's display name. Email changes go
// through an admin.
func UpdateProfile(profiles ProfileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me, err := caller(r)
		if err != nil {
			fail(w, "UpdateProfile", err)
			return
		}

		var body struct {
			Name string `json:"name" validate:"notblank,max=100"`
		}
		if err := decode(r, &body); err != nil {
			fail(w, "UpdateProfile", err)
			return
		}

		if err := profiles.UpdateProfile(r.Context(), me.UserID, strings.TrimSpace(body.Name)); err != nil {
			fail(w, "UpdateProfile", err)
			return
		}
		user, err := profiles.GetUserByID(r.Context(), me.UserID)
		if err != nil {
			fail(w, "UpdateProfile: reload", err)
			return
		}
		respondMessage(w, http.StatusOK, "Profile updated", map[string]any{"user": user})
	}
}

// GetCredits returns the caller's plan and credit balance.
func GetCredits(profiles ProfileStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me, err := caller(r)
		if err != nil {
			fail(w, "GetCredits", err)
			return
		}
		user, err := profiles.GetUserByID(r.Context(), me.UserID)
		if err != nil {
			fail(w, "GetCredits", err)
			return
		}
		respond(w, http.StatusOK, map[string]any{
			"plan":    user.Plan,
			"credits": user.Credits,
		})
	}
}
