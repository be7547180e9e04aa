package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/PortNumber53/fashion-shoot/backend/internal/apperr"
)

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health responds with status 200 while the database answers, 503 otherwise.
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		}
		if db == nil {
			apperr.WriteJSON(w, http.StatusOK, payload)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			payload["status"] = "degraded"
			payload["database"] = "unreachable"
			apperr.WriteJSON(w, http.StatusServiceUnavailable, payload)
			return
		}
		payload["database"] = "ok"
		apperr.WriteJSON(w, http.StatusOK, payload)
	}
}
