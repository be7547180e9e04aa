package store

import (
	"context"
	"fmt"
	"time"

	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
)

// CreateRequest records one served API call.
func (s *Store) CreateRequest(ctx context.Context, r models.Request) error {
	query := `
		INSERT INTO requests (user_id, method, endpoint, status_code, response_time_ms, request_size_bytes, response_size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := s.db.ExecContext(ctx, query,
		r.UserID, r.Method, r.Endpoint, r.StatusCode, r.ResponseTimeMs, r.RequestSizeBytes, r.ResponseSizeBytes,
	); err != nil {
		return fmt.Errorf("store: create request: %w", err)
	}
	return nil
}

// RequestStatsSince aggregates calls recorded at or after since.
func (s *Store) RequestStatsSince(ctx context.Context, since time.Time) (models.RequestStats, error) {
	var stats models.RequestStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status_code >= 400),
		       COALESCE(AVG(response_time_ms), 0)
		FROM requests
		WHERE created_at >= $1
	`, since).Scan(&stats.Total, &stats.Errors, &stats.AvgResponseTimeMs)
	if err != nil {
		return stats, fmt.Errorf("store: request stats: %w", err)
	}
	return stats, nil
}

// PurgeRequestsBefore deletes request records older than cutoff.
func (s *Store) PurgeRequestsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM requests WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: purge requests: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}
