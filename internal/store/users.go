package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PortNumber53/fashion-shoot/backend/internal/credits"
	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
)

const userDetailColumns = `
  u.id, u.name, u.email, u.password_hash, u.role, u.status, u.is_verified,
  u.plan, u.plan_price, u.otp_code, u.otp_expires_at,
  u.created_at, u.updated_at, u.last_login_at,
  COALESCE(c.total_purchased, 0), COALESCE(c.total_used, 0),
  COALESCE(c.images_generated, 0), COALESCE(c.videos_generated, 0), COALESCE(c.scenes_generated, 0)`

const userDetailFrom = `users u LEFT JOIN user_credits c ON c.user_id = u.id`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func scanUserDetail(row rowScanner) (*models.UserDetail, error) {
	var (
		d                      models.UserDetail
		otp                    sql.NullString
		otpExpires, lastLogin  sql.NullTime
		purchased, used        int
		images, videos, scenes int
	)

	if err := row.Scan(
		&d.ID, &d.Name, &d.Email, &d.PasswordHash, &d.Role, &d.Status, &d.IsVerified,
		&d.Plan, &d.PlanPrice, &otp, &otpExpires,
		&d.CreatedAt, &d.UpdatedAt, &lastLogin,
		&purchased, &used, &images, &videos, &scenes,
	); err != nil {
		return nil, err
	}

	if otp.Valid {
		d.OTPCode = &otp.String
	}
	if otpExpires.Valid {
		d.OTPExpiresAt = &otpExpires.Time
	}
	if lastLogin.Valid {
		d.LastLoginAt = &lastLogin.Time
	}

	d.Credits = credits.Account{
		Plan:            d.Plan,
		PlanPrice:       d.PlanPrice,
		TotalPurchased:  purchased,
		TotalUsed:       used,
		ImagesGenerated: images,
		VideosGenerated: videos,
		ScenesGenerated: scenes,
	}
	d.Credits.Normalize()
	return &d, nil
}

// CreateUser inserts a user together with the credit grant of its plan.
func (s *Store) CreateUser(ctx context.Context, nu models.NewUser) (*models.UserDetail, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin create user tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	account := credits.NewAccount(nu.Plan)
	role := nu.Role
	if role == "" {
		role = "user"
	}

	d := models.UserDetail{
		User: models.User{
			Name:         nu.Name,
			Email:        strings.ToLower(strings.TrimSpace(nu.Email)),
			PasswordHash: nu.PasswordHash,
			Role:         role,
			Status:       models.UserStatusActive,
			Plan:         account.Plan,
			PlanPrice:    account.PlanPrice,
		},
		Credits: account,
	}
	if nu.OTPCode != "" {
		code, exp := nu.OTPCode, nu.OTPExpiresAt
		d.OTPCode, d.OTPExpiresAt = &code, &exp
	}

	if err := tx.QueryRowContext(
		ctx,
		`INSERT INTO users (name, email, password_hash, role, status, plan, plan_price, otp_code, otp_expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at`,
		d.Name, d.Email, d.PasswordHash, d.Role, d.Status, d.Plan, d.PlanPrice, d.OTPCode, d.OTPExpiresAt,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("store: insert user: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO user_credits (user_id, total_purchased, total_used, balance)
		 VALUES ($1, $2, $3, $4)`,
		d.ID, account.TotalPurchased, account.TotalUsed, account.Balance,
	); err != nil {
		return nil, fmt.Errorf("store: insert user credits: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit create user tx: %w", err)
	}

	return &d, nil
}

// GetUserByID returns a user with its credit state.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.UserDetail, error) {
	query := `SELECT ` + userDetailColumns + ` FROM ` + userDetailFrom + ` WHERE u.id = $1`
	d, err := scanUserDetail(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("store: get user %d: %w", id, err)
	}
	return d, nil
}

// GetUserByEmail looks a user up case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.UserDetail, error) {
	query := `SELECT ` + userDetailColumns + ` FROM ` + userDetailFrom + ` WHERE LOWER(u.email) = LOWER($1)`
	d, err := scanUserDetail(s.db.QueryRowContext(ctx, query, strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("store: get user by email: %w", err)
	}
	return d, nil
}

// ListUsers returns one page of users matching filter, newest first.
func (s *Store) ListUsers(ctx context.Context, filter models.UserFilter) (*models.UserPage, error) {
	if filter.Limit <= 0 || filter.Limit > defaultPageSize {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var (
		where []string
		args  []any
	)
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+likeEscaper.Replace(q)+"%")
		where = append(where, fmt.Sprintf("(u.name ILIKE $%d OR u.email ILIKE $%d)", len(args), len(args)))
	}
	if p := strings.TrimSpace(filter.Plan); p != "" {
		args = append(args, p)
		where = append(where, fmt.Sprintf("LOWER(u.plan) = LOWER($%d)", len(args)))
	}
	if st := strings.TrimSpace(filter.Status); st != "" {
		args = append(args, st)
		where = append(where, fmt.Sprintf("u.status = $%d", len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	page := &models.UserPage{Users: []models.UserDetail{}, Limit: filter.Limit, Offset: filter.Offset}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users u`+clause, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("store: count users: %w", err)
	}

	listArgs := append(append([]any{}, args...), filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY u.created_at DESC, u.id DESC LIMIT $%d OFFSET $%d`,
		userDetailColumns, userDetailFrom, clause, len(args)+1, len(args)+2)

	rows, err := s.db.QueryContext(ctx, query, listArgs...)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanUserDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}
		page.Users = append(page.Users, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate users: %w", err)
	}

	return page, nil
}

// SetOTP stores a fresh verification code.
func (s *Store) SetOTP(ctx context.Context, id int64, code string, expiresAt time.Time) error {
	return s.updateUser(ctx, "set otp",
		`UPDATE users SET otp_code = $2, otp_expires_at = $3, updated_at = NOW() WHERE id = $1`,
		id, code, expiresAt)
}

// MarkVerified flags the email as verified and clears the code.
func (s *Store) MarkVerified(ctx context.Context, id int64) error {
	return s.updateUser(ctx, "mark verified",
		`UPDATE users SET is_verified = TRUE, otp_code = NULL, otp_expires_at = NULL, updated_at = NOW() WHERE id = $1`,
		id)
}

// TouchLogin stamps last_login_at.
func (s *Store) TouchLogin(ctx context.Context, id int64) error {
	return s.updateUser(ctx, "touch login",
		`UPDATE users SET last_login_at = NOW() WHERE id = $1`,
		id)
}

// UpdateProfile changes the display name.
func (s *Store) UpdateProfile(ctx context.Context, id int64, name string) error {
	return s.updateUser(ctx, "update profile",
		`UPDATE users SET name = $2, updated_at = NOW() WHERE id = $1`,
		id, strings.TrimSpace(name))
}

// DeleteUser removes a user; credits and uploads cascade.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.updateUser(ctx, "delete user", `DELETE FROM users WHERE id = $1`, id)
}

// ClearExpiredOTPs drops verification codes past their expiry.
func (s *Store) ClearExpiredOTPs(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET otp_code = NULL, otp_expires_at = NULL
		 WHERE otp_expires_at IS NOT NULL AND otp_expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("store: clear expired otps: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

func (s *Store) updateUser(ctx context.Context, op, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ApplyAccountChange applies an admin edit in a single transaction. The user
// and credit rows are locked, the credit changeset is reconciled in memory
// (plan change, purchased override, used override, counters) and both rows
// are written back. Any failure leaves the account untouched.
func (s *Store) ApplyAccountChange(ctx context.Context, id int64, change models.AccountChange) (*models.UserDetail, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin account change tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_credits (user_id) SELECT id FROM users WHERE id = $1
		 ON CONFLICT (user_id) DO NOTHING`, id); err != nil {
		return nil, fmt.Errorf("store: ensure credits row: %w", err)
	}

	query := `SELECT ` + userDetailColumns + ` FROM users u JOIN user_credits c ON c.user_id = u.id WHERE u.id = $1 FOR UPDATE`
	d, err := scanUserDetail(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("store: lock user %d: %w", id, err)
	}

	if change.Name != nil {
		d.Name = strings.TrimSpace(*change.Name)
	}
	if change.Email != nil {
		d.Email = strings.ToLower(strings.TrimSpace(*change.Email))
	}
	if change.Role != nil {
		d.Role = *change.Role
	}
	if change.Status != nil {
		d.Status = models.UserStatus(*change.Status)
	}

	d.Credits.Apply(change.Credits)
	d.Plan = d.Credits.Plan
	d.PlanPrice = d.Credits.PlanPrice

	if err := tx.QueryRowContext(
		ctx,
		`UPDATE users
		 SET name = $2, email = $3, role = $4, status = $5, plan = $6, plan_price = $7, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		id, d.Name, d.Email, d.Role, d.Status, d.Plan, d.PlanPrice,
	).Scan(&d.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("store: update user %d: %w", id, err)
	}

	a := d.Credits
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE user_credits
		 SET total_purchased = $2, total_used = $3, balance = $4,
		     images_generated = $5, videos_generated = $6, scenes_generated = $7,
		     updated_at = NOW()
		 WHERE user_id = $1`,
		id, a.TotalPurchased, a.TotalUsed, a.Balance, a.ImagesGenerated, a.VideosGenerated, a.ScenesGenerated,
	); err != nil {
		return nil, fmt.Errorf("store: update credits %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit account change tx: %w", err)
	}

	return d, nil
}
