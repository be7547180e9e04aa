package store

import (
	"context"
	"fmt"
	"time"

	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
)

// Analytics builds the admin dashboard summary. Job stats are left to the
// caller since they live in the job store.
func (s *Store) Analytics(ctx context.Context, now time.Time) (*models.Analytics, error) {
	a := &models.Analytics{UsersByPlan: map[string]int{}}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'active'),
		       COUNT(*) FILTER (WHERE is_verified),
		       COUNT(*) FILTER (WHERE role = 'admin'),
		       COUNT(*) FILTER (WHERE created_at >= $1),
		       COALESCE(SUM(plan_price) FILTER (WHERE status = 'active'), 0)
		FROM users
	`, now.Add(-7*24*time.Hour)).Scan(
		&a.Users.Total, &a.Users.Active, &a.Users.Verified, &a.Users.Admins, &a.Users.NewLast7d,
		&a.EstimatedMonthlyRevenue,
	)
	if err != nil {
		return nil, fmt.Errorf("store: user analytics: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT plan, COUNT(*) FROM users GROUP BY plan ORDER BY plan`)
	if err != nil {
		return nil, fmt.Errorf("store: users by plan: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			plan  string
			count int
		)
		if err := rows.Scan(&plan, &count); err != nil {
			return nil, fmt.Errorf("store: scan users by plan: %w", err)
		}
		a.UsersByPlan[plan] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate users by plan: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_purchased), 0), COALESCE(SUM(total_used), 0), COALESCE(SUM(balance), 0),
		       COALESCE(SUM(images_generated), 0), COALESCE(SUM(videos_generated), 0), COALESCE(SUM(scenes_generated), 0)
		FROM user_credits
	`).Scan(
		&a.Credits.Purchased, &a.Credits.Used, &a.Credits.Balance,
		&a.Generations.Images, &a.Generations.Videos, &a.Generations.Scenes,
	)
	if err != nil {
		return nil, fmt.Errorf("store: credit analytics: %w", err)
	}

	a.Requests, err = s.RequestStatsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}

	return a, nil
}
