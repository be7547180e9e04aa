package models

import (
	"time"

	"github.com/PortNumber53/fashion-shoot/backend/internal/credits"
)

// UserStatus is the account lifecycle state.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
)

// IsValidUserStatus reports whether s is one of the known statuses.
func IsValidUserStatus(s string) bool {
	switch UserStatus(s) {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended:
		return true
	}
	return false
}

// User is an account row. Secrets never leave the server.
type User struct {
	ID           int64      `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	Status       UserStatus `json:"status"`
	IsVerified   bool       `json:"isVerified"`
	Plan         string     `json:"plan"`
	PlanPrice    int        `json:"planPrice"`
	OTPCode      *string    `json:"-"`
	OTPExpiresAt *time.Time `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

// UserDetail is a user together with its plan and credit state.
type UserDetail struct {
	User
	Credits credits.Account `json:"credits"`
}

// NewUser is the data needed to create an account.
type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
	Role         string
	Plan         string
	OTPCode      string
	OTPExpiresAt time.Time
}

// UserFilter narrows the admin user listing.
type UserFilter struct {
	Query  string
	Plan   string
	Status string
	Limit  int
	Offset int
}

// UserPage is one page of the admin user listing.
type UserPage struct {
	Users  []UserDetail `json:"users"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// AccountChange is the full admin edit of a user applied in one transaction.
// Nil fields are left untouched.
type AccountChange struct {
	Name    *string           `json:"name,omitempty"`
	Email   *string           `json:"email,omitempty"`
	Role    *string           `json:"role,omitempty"`
	Status  *string           `json:"status,omitempty"`
	Credits credits.Changeset `json:"credits"`
}
