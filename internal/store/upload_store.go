package store

import (
	"context"
	"fmt"

	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
)

// CreateUpload records a stored media file and fills in CreatedAt.
func (s *Store) CreateUpload(ctx context.Context, u *models.Upload) error {
	query := `
		INSERT INTO uploads (id, user_id, kind, filename, content_type, size_bytes, url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	if err := s.db.QueryRowContext(ctx, query,
		u.ID, u.UserID, u.Kind, u.Filename, u.ContentType, u.SizeBytes, u.URL,
	).Scan(&u.CreatedAt); err != nil {
		return fmt.Errorf("store: create upload: %w", err)
	}
	return nil
}
