package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/PortNumber53/fashion-shoot/backend/internal/apperr"
	"github.com/PortNumber53/fashion-shoot/backend/internal/auth"
	"github.com/PortNumber53/fashion-shoot/backend/internal/credits"
	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
)

const defaultUserPageSize = 50

// AccountStore defines the behaviour required from the storage client backing
// the admin user handlers.
type AccountStore interface {
	ListUsers(ctx context.Context, filter models.UserFilter) (*models.UserPage, error)
	GetUserByID(ctx context.Context, id int64) (*models.UserDetail, error)
	ApplyAccountChange(ctx context.Context, id int64, change models.AccountChange) (*models.UserDetail, error)
	DeleteUser(ctx context.Context, id int64) error
}

// accountRequest is the full admin edit of a user. Every field is optional.
type accountRequest struct {
	Name            *string `json:"name" validate:"omitempty,max=100"`
	Email           *string `json:"email" validate:"omitempty,email,max=254"`
	Role            *string `json:"role" validate:"omitempty,oneof=user admin"`
	Status          *string `json:"status" validate:"omitempty,oneof=active inactive suspended"`
	Plan            *string `json:"plan"`
	TotalPurchased  *int    `json:"totalPurchased" validate:"omitempty,gte=0"`
	TotalUsed       *int    `json:"totalUsed" validate:"omitempty,gte=0"`
	ImagesGenerated *int    `json:"imagesGenerated" validate:"omitempty,gte=0"`
	VideosGenerated *int    `json:"videosGenerated" validate:"omitempty,gte=0"`
	ScenesGenerated *int    `json:"scenesGenerated" validate:"omitempty,gte=0"`
}

func (a accountRequest) toChange() (models.AccountChange, error) {
	problems := map[string]string{}
	if a.Name != nil && strings.TrimSpace(*a.Name) == "" {
		problems["name"] = "name is required"
	}
	if a.Email != nil && strings.TrimSpace(*a.Email) == "" {
		problems["email"] = "email is required"
	}
	if a.Plan != nil && !credits.IsKnownPlan(*a.Plan) {
		problems["plan"] = "must be one of: " + planNames()
	}
	if len(problems) > 0 {
		return models.AccountChange{}, apperr.Validation("Validation failed", problems)
	}

	return models.AccountChange{
		Name:   a.Name,
		Email:  a.Email,
		Role:   a.Role,
		Status: a.Status,
		Credits: credits.Changeset{
			Plan:            a.Plan,
			TotalPurchased:  a.TotalPurchased,
			TotalUsed:       a.TotalUsed,
			ImagesGenerated: a.ImagesGenerated,
			VideosGenerated: a.VideosGenerated,
			ScenesGenerated: a.ScenesGenerated,
		},
	}, nil
}

func planNames() string {
	names := make([]string, 0, 5)
	for _, e := range credits.Entitlements() {
		names = append(names, e.Plan)
	}
	return strings.Join(names, ", ")
}

// guardSelf stops admins from locking themselves out.
func guardSelf(me auth.Identity, target int64, change models.AccountChange) error {
	if me.UserID != target {
		return nil
	}
	if change.Role != nil && *change.Role != auth.RoleAdmin {
		return apperr.BadRequest("You cannot remove your own admin role")
	}
	if change.Status != nil && *change.Status != string(models.UserStatusActive) {
		return apperr.BadRequest("You cannot deactivate or suspend your own account")
	}
	return nil
}

// applyAccount applies req to the user named in the path in one transaction.
func applyAccount(w http.ResponseWriter, r *http.Request, accounts AccountStore, op string, req accountRequest) {
	id, err := idParam(r, "id")
	if err != nil {
		fail(w, op, err)
		return
	}
	me, err := caller(r)
	if err != nil {
		fail(w, op, err)
		return
	}
	change, err := req.toChange()
	if err != nil {
		fail(w, op, err)
		return
	}
	if err := guardSelf(me, id, change); err != nil {
		fail(w, op, err)
		return
	}

	user, err := accounts.ApplyAccountChange(r.Context(), id, change)
	if err != nil {
		fail(w, op, err)
		return
	}
	log.Printf("%s: admin %d updated user %d", op, me.UserID, id)
	respond(w, http.StatusOK, map[string]any{"user": user})
}

// ListUsers returns a filtered page of users with their credits.
func ListUsers(accounts AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := models.UserFilter{
			Query:  q.Get("q"),
			Plan:   q.Get("plan"),
			Status: q.Get("status"),
			Limit:  intQuery(r, "limit", defaultUserPageSize, 200),
			Offset: intQuery(r, "offset", 0, 0),
		}
		if filter.Status != "" && !models.IsValidUserStatus(filter.Status) {
			apperr.Write(w, apperr.Validation("Validation failed", map[string]string{"status": "must be one of: active inactive suspended"}))
			return
		}

		page, err := accounts.ListUsers(r.Context(), filter)
		if err != nil {
			fail(w, "ListUsers", err)
			return
		}
		respond(w, http.StatusOK, page)
	}
}

// GetUser returns one user with credits.
func GetUser(accounts AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id")
		if err != nil {
			fail(w, "GetUser", err)
			return
		}
		user, err := accounts.GetUserByID(r.Context(), id)
		if err != nil {
			fail(w, "GetUser", err)
			return
		}
		respond(w, http.StatusOK, map[string]any{"user": user})
	}
}

// SaveAccount applies basic info, plan and credit fields atomically.
func SaveAccount(accounts AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req accountRequest
		if err := decode(r, &req); err != nil {
			fail(w, "SaveAccount", err)
			return
		}
		applyAccount(w, r, accounts, "SaveAccount", req)
	}
}

// UpdateUserInfo changes name and email.
func UpdateUserInfo(accounts AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name  *string `json:"name" validate:"omitempty,max=100"`
			Email *string `json:"email" validate:"omitempty,email,max=254"`
		}
		if err := decode(r, &body); err != nil {
			fail(w, "UpdateUserInfo", err)
			return
		}
		applyAccount(w, r, accounts, "UpdateUserInfo", accountRequest{Name: body.Name, Email: body.Email})
	}
}

// UpdateUserStatus activates, deactivates or suspends a user.
func UpdateUserStatus(accounts AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status string `json:"status" validate:"required,oneof=active inactive suspended"`
		}
		if err := decode(r, &body); err != nil {
			fail(w, "UpdateUserStatus", err)
			return
		}
		applyAccount(w, r, accounts, "UpdateUserStatus", accountRequest{Status: &body.Status})
	}
}

// UpdateUserRole grants or revokes admin.
func UpdateUserRole(accounts AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Role string `json:"role" validate:"required,oneof=user admin"`
		}
		if err := decode(r, &body); err != nil {
			fail(w, "UpdateUserRole", err)
			return
		}
		applyAccount(w, r, accounts, "UpdateUserRole", accountRequest{Role: &body.Role})
	}
}

// UpdateUserPlan moves a user to another plan and re-derives the credit grant.
func UpdateUserPlan(accounts AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Plan string `json:"plan" validate:"notblank"`
		}
		if err := decode(r, &body); err != nil {
			fail(w, "UpdateUserPlan", err)
			return
		}
		applyAccount(w, r, accounts, "UpdateUserPlan", accountRequest{Plan: &body.Plan})
	}
}

// UpdateUserCredits overrides credit totals and usage counters.
func UpdateUserCredits(accounts AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TotalPurchased  *int `json:"totalPurchased" validate:"omitempty,gte=0"`
			TotalUsed       *int `json:"totalUsed" validate:"omitempty,gte=0"`
			ImagesGenerated *int `json:"imagesGenerated" validate:"omitempty,gte=0"`
			VideosGenerated *int `json:"videosGenerated" validate:"omitempty,gte=0"`
			ScenesGenerated *int `json:"scenesGenerated" validate:"omitempty,gte=0"`
		}
		if err := decode(r, &body); err != nil {
			fail(w, "UpdateUserCredits", err)
			return
		}
		applyAccount(w, r, accounts, "UpdateUserCredits", accountRequest{
			TotalPurchased:  body.TotalPurchased,
			TotalUsed:       body.TotalUsed,
			ImagesGenerated: body.ImagesGenerated,
			VideosGenerated: body.VideosGenerated,
			ScenesGenerated: body.ScenesGenerated,
		})
	}
}

// ResetUserCredits clears usage while keeping the plan grant.
func ResetUserCredits(accounts AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		zero := 0
		applyAccount(w, r, accounts, "ResetUserCredits", accountRequest{
			TotalUsed:       &zero,
			ImagesGenerated: &zero,
			VideosGenerated: &zero,
			ScenesGenerated: &zero,
		})
	}
}

// DeleteUser removes a user. Admins cannot delete themselves.
func DeleteUser(accounts AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := idParam(r, "id")
		if err != nil {
			fail(w, "DeleteUser", err)
			return
		}
		me, err := caller(r)
		if err != nil {
			fail(w, "DeleteUser", err)
			return
		}
		if me.UserID == id {
			apperr.Write(w, apperr.BadRequest("You cannot delete your own account"))
			return
		}
		if err := accounts.DeleteUser(r.Context(), id); err != nil {
			fail(w, "DeleteUser", err)
			return
		}
		log.Printf("DeleteUser: admin %d deleted user %d", me.UserID, id)
		respondMessage(w, http.StatusOK, "User deleted", map[string]any{"id": id})
	}
}
