package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/PortNumber53/fashion-shoot/backend/internal/auth"
	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
	"github.com/PortNumber53/fashion-shoot/backend/internal/ratelimit"
	"github.com/PortNumber53/fashion-shoot/backend/internal/store"
)

// fakeAccounts serves users from a map; ids not in it are not found.
type fakeAccounts map[int64]models.User

func (f fakeAccounts) GetUserByID(ctx context.Context, id int64) (*models.UserDetail, error) {
	u, ok := f[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	u.ID = id
	return &models.UserDetail{User: u}, nil
}

func activeUser(role string) models.User {
	return models.User{Role: role, Status: models.UserStatusActive}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate(t *testing.T) {
	issuer := auth.NewIssuer("test-secret", time.Hour)
	token, err := issuer.Issue(7, auth.RoleUser)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	var seen auth.Identity
	h := Authenticate(issuer, fakeAccounts{7: activeUser(auth.RoleUser)})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.FromContext(r.Context())
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"malformed", "Token abc", http.StatusUnauthorized},
		{"invalid", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
	if seen.UserID != 7 || seen.Role != auth.RoleUser {
		t.Fatalf("unexpected identity: %+v", seen)
	}
}

func TestAuthenticateChecksStoredAccount(t *testing.T) {
	issuer := auth.NewIssuer("test-secret", time.Hour)
	accounts := fakeAccounts{
		1: {Role: auth.RoleAdmin, Status: models.UserStatusSuspended},
		2: {Role: auth.RoleUser, Status: models.UserStatusInactive},
		3: activeUser(auth.RoleUser),
	}

	var seen auth.Identity
	h := Authenticate(issuer, accounts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.FromContext(r.Context())
	}))

	do := func(userID int64, role string) int {
		token, err := issuer.Issue(userID, role)
		if err != nil {
			t.Fatalf("Issue returned error: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/api/user/profile", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do(1, auth.RoleAdmin); code != http.StatusUnauthorized {
		t.Fatalf("suspended user: expected 401, got %d", code)
	}
	if code := do(2, auth.RoleUser); code != http.StatusUnauthorized {
		t.Fatalf("inactive user: expected 401, got %d", code)
	}
	if code := do(99, auth.RoleUser); code != http.StatusUnauthorized {
		t.Fatalf("deleted user: expected 401, got %d", code)
	}

	// User 3 was demoted after the token was issued.
	if code := do(3, auth.RoleAdmin); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if seen.Role != auth.RoleUser {
		t.Fatalf("expected stored role %q, got %q", auth.RoleUser, seen.Role)
	}
}

func TestRequireAdminUsesStoredRole(t *testing.T) {
	issuer := auth.NewIssuer("test-secret", time.Hour)
	accounts := fakeAccounts{
		4: activeUser(auth.RoleUser),
		5: activeUser(auth.RoleAdmin),
	}
	h := Authenticate(issuer, accounts)(RequireAdmin(okHandler()))

	for _, tc := range []struct {
		userID int64
		claim  string
		want   int
	}{
		{4, auth.RoleAdmin, http.StatusForbidden},
		{5, auth.RoleUser, http.StatusOK},
	} {
		token, err := issuer.Issue(tc.userID, tc.claim)
		if err != nil {
			t.Fatal(err)
		}
		req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("user %d: expected %d, got %d", tc.userID, tc.want, rec.Code)
		}
	}
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(okHandler())

	for _, tc := range []struct {
		role string
		want int
	}{
		{auth.RoleUser, http.StatusForbidden},
		{auth.RoleAdmin, http.StatusOK},
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
		req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: 1, Role: tc.role}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("role %s: expected %d, got %d", tc.role, tc.want, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/users", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}
}

func TestRateLimitPerIPAndPath(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewMemoryLimiter().WithClock(func() time.Time { return now })
	h := RateLimit(limiter, 2, time.Minute)(okHandler())

	do := func(ip, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	do("10.0.0.1", "/api/auth/login")
	do("10.0.0.1", "/api/auth/login")
	rec := do("10.0.0.1", "/api/auth/login")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("unexpected Retry-After: %q", rec.Header().Get("Retry-After"))
	}

	if rec := do("10.0.0.2", "/api/auth/login"); rec.Code != http.StatusOK {
		t.Fatalf("other IP should pass, got %d", rec.Code)
	}
	if rec := do("10.0.0.1", "/api/auth/signup"); rec.Code != http.StatusOK {
		t.Fatalf("other route should pass, got %d", rec.Code)
	}

	now = now.Add(time.Minute)
	if rec := do("10.0.0.1", "/api/auth/login"); rec.Code != http.StatusOK {
		t.Fatalf("expected window reset, got %d", rec.Code)
	}
}

type recorderFunc struct {
	mu   sync.Mutex
	got  []models.Request
	done chan struct{}
}

func (r *recorderFunc) CreateRequest(ctx context.Context, req models.Request) error {
	r.mu.Lock()
	r.got = append(r.got, req)
	r.mu.Unlock()
	close(r.done)
	return nil
}

func TestRequestTrackerRecordsUser(t *testing.T) {
	issuer := auth.NewIssuer("test-secret", time.Hour)
	token, _ := issuer.Issue(42, auth.RoleUser)

	rec := &recorderFunc{done: make(chan struct{})}
	h := NewRequestTracker(rec).Middleware()(Authenticate(issuer, fakeAccounts{42: activeUser(auth.RoleUser)})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("hello"))
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/photoshoots", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("request was not recorded")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	got := rec.got[0]
	if got.StatusCode != http.StatusCreated || got.ResponseSizeBytes != 5 || got.Endpoint != "/api/photoshoots" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.UserID == nil || *got.UserID != 42 {
		t.Fatalf("expected user 42, got %v", got.UserID)
	}
}
