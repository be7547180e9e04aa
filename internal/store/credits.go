package store

import (
	"context"
	"fmt"

	"github.com/PortNumber53/fashion-shoot/backend/internal/credits"
)

var usageColumns = map[credits.UsageField]string{
	credits.UsageImages: "images_generated",
	credits.UsageVideos: "videos_generated",
	credits.UsageScenes: "scenes_generated",
}

// ConsumeCredits spends n credits if the balance allows it. The check and the
// write happen in one statement so concurrent requests cannot overdraw.
func (s *Store) ConsumeCredits(ctx context.Context, userID int64, n int) error {
	return consumeCredits(ctx, s.db, userID, n)
}

// RefundCredits gives back n credits previously consumed.
func (s *Store) RefundCredits(ctx context.Context, userID int64, n int) error {
	return refundCredits(ctx, s.db, userID, n)
}

// RecordGeneration increments one usage counter.
func (s *Store) RecordGeneration(ctx context.Context, userID int64, field credits.UsageField) error {
	return recordGeneration(ctx, s.db, userID, field)
}

func consumeCredits(ctx context.Context, db execer, userID int64, n int) error {
	if n < 0 {
		return fmt.Errorf("store: consume credits: negative amount %d", n)
	}
	result, err := db.ExecContext(ctx,
		`UPDATE user_credits
		 SET total_used = total_used + $2,
		     balance = GREATEST(total_purchased - total_used - $2, 0),
		     updated_at = NOW()
		 WHERE user_id = $1 AND total_purchased - total_used >= $2`,
		userID, n)
	if err != nil {
		return fmt.Errorf("store: consume credits: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrInsufficientCredits
	}
	return nil
}

func refundCredits(ctx context.Context, db execer, userID int64, n int) error {
	if n <= 0 {
		return nil
	}
	if _, err := db.ExecContext(ctx,
		`UPDATE user_credits
		 SET total_used = GREATEST(total_used - $2, 0),
		     balance = GREATEST(total_purchased - GREATEST(total_used - $2, 0), 0),
		     updated_at = NOW()
		 WHERE user_id = $1`,
		userID, n); err != nil {
		return fmt.Errorf("store: refund credits: %w", err)
	}
	return nil
}

func recordGeneration(ctx context.Context, db execer, userID int64, field credits.UsageField) error {
	col, ok := usageColumns[field]
	if !ok {
		return fmt.Errorf("store: unknown usage field %q", field)
	}
	query := fmt.Sprintf(`UPDATE user_credits SET %s = %s + 1, updated_at = NOW() WHERE user_id = $1`, col, col)
	if _, err := db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("store: record generation: %w", err)
	}
	return nil
}
