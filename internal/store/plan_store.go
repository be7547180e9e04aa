package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
)

// ErrPlanNotFound is returned when a plan is not found
var ErrPlanNotFound = errors.New("plan not found")

// ErrDuplicatePlan is returned when a plan id is already taken
var ErrDuplicatePlan = errors.New("plan already exists")

const planColumns = `id, name, price, credits, description, features, is_active, created_at, updated_at`

// PlanStore provides database operations for subscription plans
type PlanStore struct {
	db *sql.DB
}

// NewPlanStore creates a new PlanStore instance
func NewPlanStore(db *sql.DB) (*PlanStore, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &PlanStore{db: db}, nil
}

func scanPlan(row rowScanner) (*models.Plan, error) {
	var p models.Plan
	if err := row.Scan(
		&p.ID, &p.Name, &p.Price, &p.Credits, &p.Description,
		&p.Features, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if p.Features == nil {
		p.Features = models.PlanFeatures{}
	}
	return &p, nil
}

// ListPlans returns plans ordered by price. With activeOnly set, inactive
// plans are skipped.
func (s *PlanStore) ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY price ASC, name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	plans := []models.Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

// GetPlan returns a plan by its id
func (s *PlanStore) GetPlan(ctx context.Context, id string) (*models.Plan, error) {
	p, err := scanPlan(s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return p, nil
}

// CreatePlan inserts a new plan. A taken id yields ErrDuplicatePlan.
func (s *PlanStore) CreatePlan(ctx context.Context, p *models.Plan) error {
	query := `
		INSERT INTO plans (id, name, price, credits, description, features, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		p.ID, p.Name, p.Price, p.Credits, p.Description, p.Features, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePlan
		}
		return fmt.Errorf("create plan: %w", err)
	}
	return nil
}

// UpdatePlan replaces every mutable field of the plan and stamps updated_at.
func (s *PlanStore) UpdatePlan(ctx context.Context, p *models.Plan) error {
	query := `
		UPDATE plans
		SET name = $2, price = $3, credits = $4, description = $5, features = $6,
		    is_active = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		p.ID, p.Name, p.Price, p.Credits, p.Description, p.Features, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPlanNotFound
		}
		return fmt.Errorf("update plan: %w", err)
	}
	return nil
}

// DeletePlan removes a plan
func (s *PlanStore) DeletePlan(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrPlanNotFound
	}
	return nil
}

// UpsertPlan creates the plan or overwrites an existing one with the same id.
func (s *PlanStore) UpsertPlan(ctx context.Context, p *models.Plan) error {
	query := `
		INSERT INTO plans (id, name, price, credits, description, features, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, price = EXCLUDED.price, credits = EXCLUDED.credits,
		    description = EXCLUDED.description, features = EXCLUDED.features,
		    is_active = EXCLUDED.is_active, updated_at = NOW()
		RETURNING created_at, updated_at
	`
	if err := s.db.QueryRowContext(ctx, query,
		p.ID, p.Name, p.Price, p.Credits, p.Description, p.Features, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("upsert plan: %w", err)
	}
	return nil
}
