package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/PortNumber53/fashion-shoot/backend/internal/apperr"
	"github.com/PortNumber53/fashion-shoot/backend/internal/auth"
	"github.com/PortNumber53/fashion-shoot/backend/internal/envvars"
	"github.com/PortNumber53/fashion-shoot/backend/internal/store"
	"github.com/PortNumber53/fashion-shoot/backend/internal/validation"
)

const maxJSONBody = 1 << 20

// envelope is the success body; failures use apperr.Body.
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func respond(w http.ResponseWriter, status int, data any) {
	apperr.WriteJSON(w, status, envelope{Status: "success", Data: data})
}

func respondMessage(w http.ResponseWriter, status int, message string, data any) {
	apperr.WriteJSON(w, status, envelope{Status: "success", Message: message, Data: data})
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.BadRequest("request body is required")
		}
		return apperr.BadRequest("invalid JSON payload")
	}
	if errs := validation.Struct(dst); errs != nil {
		return apperr.Validation("Validation failed", errs)
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.BadRequest("invalid " + name)
	}
	return id, nil
}

func caller(r *http.Request) (auth.Identity, error) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		return auth.Identity{}, apperr.Unauthorized("Authentication required")
	}
	return id, nil
}

func intQuery(r *http.Request, name string, fallback, maxValue int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	if maxValue > 0 && n > maxValue {
		return maxValue
	}
	return n
}

// fail maps store sentinels to client errors and logs everything else
// under op before answering 500.
func fail(w http.ResponseWriter, op string, err error) {
	var ae *apperr.Error
	var fe envvars.FieldErrors
	switch {
	case errors.As(err, &ae):
		apperr.Write(w, ae)
	case errors.As(err, &fe):
		apperr.Write(w, apperr.Validation("Validation failed", fe))
	case errors.Is(err, store.ErrUserNotFound):
		apperr.Write(w, apperr.NotFound("User not found"))
	case errors.Is(err, store.ErrEmailTaken):
		apperr.Write(w, apperr.Conflict("Email is already registered"))
	case errors.Is(err, store.ErrInsufficientCredits):
		apperr.Write(w, apperr.PaymentRequired("Insufficient credits"))
	case errors.Is(err, store.ErrPlanNotFound):
		apperr.Write(w, apperr.NotFound("Plan not found"))
	case errors.Is(err, store.ErrDuplicatePlan):
		apperr.Write(w, apperr.Conflict("A plan with this id already exists"))
	case errors.Is(err, store.ErrJobNotFound):
		apperr.Write(w, apperr.NotFound("Job not found"))
	case errors.Is(err, store.ErrJobNotCancellable):
		apperr.Write(w, apperr.Conflict("Job can no longer be cancelled"))
	case errors.Is(err, envvars.ErrVariableNotFound):
		apperr.Write(w, apperr.NotFound("Environment variable not found"))
	default:
		log.Printf("%s: %v", op, err)
		apperr.Write(w, apperr.Internal(err))
	}
}
