package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
)

// AnalyticsStore builds the dashboard summary.
type AnalyticsStore interface {
	Analytics(ctx context.Context, now time.Time) (*models.Analytics, error)
}

// QueueStats reports job counts by status.
type QueueStats interface {
	GetStats(ctx context.Context) (*models.JobStats, error)
}

// Analytics returns the admin dashboard summary. Queue stats are best effort.
func Analytics(store AnalyticsStore, jobs QueueStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := store.Analytics(r.Context(), time.Now())
		if err != nil {
			fail(w, "Analytics", err)
			return
		}

		if jobs != nil {
			stats, err := jobs.GetStats(r.Context())
			if err != nil {
				log.Printf("Analytics: job stats unavailable: %v", err)
			} else {
				summary.Jobs = stats
			}
		}
		respond(w, http.StatusOK, summary)
	}
}
