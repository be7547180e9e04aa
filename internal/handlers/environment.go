package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/PortNumber53/fashion-shoot/backend/internal/apperr"
	"github.com/PortNumber53/fashion-shoot/backend/internal/auth"
	"github.com/PortNumber53/fashion-shoot/backend/internal/envvars"
)

// EnvStore persists the backend's environment variables.
type EnvStore interface {
	List(ctx context.Context) (map[string]string, error)
	ReplaceAll(ctx context.Context, values map[string]string) error
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// EnvironmentHandler serves the admin environment editor.
type EnvironmentHandler struct {
	Store       EnvStore
	Categorizer *envvars.Categorizer
}

func (h *EnvironmentHandler) listing(ctx context.Context, query string) (map[string]any, error) {
	values, err := h.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	vars := envvars.Filter(h.Categorizer.Tag(values), query)
	counts := map[string]int{}
	for _, v := range vars {
		counts[v.Category]++
	}
	return map[string]any{"variables": vars, "categories": counts, "total": len(vars)}, nil
}

// List returns every variable with its category, optionally filtered by ?q=.
func (h *EnvironmentHandler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := h.listing(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			fail(w, "ListEnvironment", err)
			return
		}
		respond(w, http.StatusOK, out)
	}
}

// Save replaces the whole variable set. Rows are checked for invalid and
// duplicate keys before anything is written.
func (h *EnvironmentHandler) Save() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Variables []envvars.Variable `json:"variables" validate:"required"`
		}
		if err := decode(r, &body); err != nil {
			fail(w, "SaveEnvironment", err)
			return
		}

		values, err := envvars.ToMap(body.Variables)
		if err != nil {
			fail(w, "SaveEnvironment", err)
			return
		}
		if err := h.Store.ReplaceAll(r.Context(), values); err != nil {
			fail(w, "SaveEnvironment", err)
			return
		}
		logEnvChange(r, "saved %d variables", len(values))

		out, err := h.listing(r.Context(), "")
		if err != nil {
			fail(w, "SaveEnvironment", err)
			return
		}
		respondMessage(w, http.StatusOK, "Environment saved", out)
	}
}

// Set upserts one variable.
func (h *EnvironmentHandler) Set() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Key   string `json:"key" validate:"notblank"`
			Value string `json:"value"`
		}
		if err := decode(r, &body); err != nil {
			fail(w, "SetEnvironmentVariable", err)
			return
		}
		key := strings.TrimSpace(body.Key)
		if err := envvars.ValidateKey(key); err != nil {
			apperr.Write(w, apperr.Validation("Validation failed", map[string]string{"key": err.Error()}))
			return
		}
		if err := envvars.ValidateValue(body.Value); err != nil {
			apperr.Write(w, apperr.Validation("Validation failed", map[string]string{"value": err.Error()}))
			return
		}
		if err := h.Store.Set(r.Context(), key, body.Value); err != nil {
			fail(w, "SetEnvironmentVariable", err)
			return
		}
		logEnvChange(r, "set %s", key)

		respond(w, http.StatusOK, map[string]any{"variable": envvars.Variable{
			Key:      key,
			Value:    body.Value,
			Category: h.Categorizer.Categorize(key),
		}})
	}
}

// Delete removes one variable by key.
func (h *EnvironmentHandler) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if err := h.Store.Delete(r.Context(), key); err != nil {
			fail(w, "DeleteEnvironmentVariable", err)
			return
		}
		logEnvChange(r, "deleted %s", key)
		respondMessage(w, http.StatusOK, "Variable deleted", map[string]any{"key": key})
	}
}

// logEnvChange records who changed what; values are never logged.
func logEnvChange(r *http.Request, format string, args ...any) {
	id, _ := auth.FromContext(r.Context())
	log.Printf("[environment] admin %d "+format, append([]any{id.UserID}, args...)...)
}
