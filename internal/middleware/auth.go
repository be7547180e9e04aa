// Package middleware holds the HTTP middleware shared by the backend routes:
// authentication, admin checks, rate limiting and request tracking.
package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/PortNumber53/fashion-shoot/backend/internal/apperr"
	"github.com/PortNumber53/fashion-shoot/backend/internal/auth"
	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
	"github.com/PortNumber53/fashion-shoot/backend/internal/store"
)

// TokenParser validates a bearer token. *auth.Issuer satisfies it.
type TokenParser interface {
	Parse(token string) (auth.Identity, error)
}

// AccountLookup loads the current state of a token's user. *store.Store
// satisfies it.
type AccountLookup interface {
	GetUserByID(ctx context.Context, id int64) (*models.UserDetail, error)
}

var errAccountInactive = errors.New("account is not active")

// currentIdentity checks the token's user against the database and replaces
// the role claim with the stored role.
func currentIdentity(ctx context.Context, accounts AccountLookup, id auth.Identity) (auth.Identity, error) {
	user, err := accounts.GetUserByID(ctx, id.UserID)
	if err != nil {
		return auth.Identity{}, err
	}
	if user.Status != models.UserStatusActive {
		return auth.Identity{}, errAccountInactive
	}
	id.Role = user.Role
	if id.Role == "" {
		id.Role = auth.RoleUser
	}
	return id, nil
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// Authenticate rejects requests without a valid bearer token or whose user
// is missing or not active, and stores the caller's identity in the request
// context. The role comes from the database, not the token.
func Authenticate(parser TokenParser, accounts AccountLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				apperr.Write(w, apperr.Unauthorized("Authentication required"))
				return
			}
			id, err := parser.Parse(token)
			if err != nil {
				apperr.Write(w, apperr.Unauthorized("Invalid or expired token"))
				return
			}
			current, err := currentIdentity(r.Context(), accounts, id)
			switch {
			case errors.Is(err, store.ErrUserNotFound):
				apperr.Write(w, apperr.Unauthorized("Invalid or expired token"))
				return
			case errors.Is(err, errAccountInactive):
				apperr.Write(w, apperr.Unauthorized("Account is not active"))
				return
			case err != nil:
				log.Printf("Authenticate: load user %d: %v", id.UserID, err)
				apperr.Write(w, apperr.Internal(err))
				return
			}
			setTrackedUser(r.Context(), current.UserID)
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), current)))
		})
	}
}

// RequireAdmin allows only callers with the admin role. It must run after
// Authenticate, which resolves the role from the database.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.FromContext(r.Context())
		if !ok {
			apperr.Write(w, apperr.Unauthorized("Authentication required"))
			return
		}
		if !id.IsAdmin() {
			apperr.Write(w, apperr.Forbidden("Admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// OptionalAuthenticate stores the caller's identity when a valid bearer token
// of an active user is present and otherwise lets the request through
// anonymously.
func OptionalAuthenticate(parser TokenParser, accounts AccountLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := BearerToken(r); token != "" {
				id, err := parser.Parse(token)
				if err == nil {
					id, err = currentIdentity(r.Context(), accounts, id)
				}
				if err == nil {
					setTrackedUser(r.Context(), id.UserID)
					r = r.WithContext(auth.WithIdentity(r.Context(), id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
