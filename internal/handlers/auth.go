package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PortNumber53/fashion-shoot/backend/internal/apperr"
	"github.com/PortNumber53/fashion-shoot/backend/internal/auth"
	"github.com/PortNumber53/fashion-shoot/backend/internal/credits"
	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
	"github.com/PortNumber53/fashion-shoot/backend/internal/store"
)

// AuthStore defines the behaviour required from the storage client used
// by the auth handlers.
type AuthStore interface {
	CreateUser(ctx context.Context, nu models.NewUser) (*models.UserDetail, error)
	GetUserByEmail(ctx context.Context, email string) (*models.UserDetail, error)
	SetOTP(ctx context.Context, id int64, code string, expiresAt time.Time) error
	MarkVerified(ctx context.Context, id int64) error
	TouchLogin(ctx context.Context, id int64) error
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(userID int64, role string) (string, error)
}

// VerificationSender delivers email verification codes.
type VerificationSender interface {
	SendVerificationCode(ctx context.Context, to, name, code string) error
}

// AuthHandler holds dependencies for the auth handlers
type AuthHandler struct {
	Store  AuthStore
	Tokens TokenIssuer
	Mail   VerificationSender
	Now    func() time.Time
}

type signupRequest struct {
	Name     string `json:"name" validate:"notblank,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type verifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type resendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	Token string             `json:"token"`
	User  *models.UserDetail `json:"user"`
}

func (h *AuthHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// sendCode mails a code. Delivery failures are logged; the user can ask for
// a new code.
func (h *AuthHandler) sendCode(ctx context.Context, u *models.UserDetail, code string) {
	if err := h.Mail.SendVerificationCode(ctx, u.Email, u.Name, code); err != nil {
		log.Printf("Auth: failed to send verification code to user %d: %v", u.ID, err)
	}
}

// Signup creates an unverified account on the Free plan and emails a code.
func (h *AuthHandler) Signup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupRequest
		if err := decode(r, &req); err != nil {
			fail(w, "Signup", err)
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			fail(w, "Signup: hash password", err)
			return
		}
		code, err := auth.GenerateOTP()
		if err != nil {
			fail(w, "Signup: generate otp", err)
			return
		}

		user, err := h.Store.CreateUser(r.Context(), models.NewUser{
			Name:         strings.TrimSpace(req.Name),
			Email:        req.Email,
			PasswordHash: hash,
			Role:         auth.RoleUser,
			Plan:         credits.PlanFree,
			OTPCode:      code,
			OTPExpiresAt: h.now().Add(auth.OTPTTL),
		})
		if err != nil {
			fail(w, "Signup: create user", err)
			return
		}

		h.sendCode(r.Context(), user, code)
		log.Printf("Signup: created user %d", user.ID)

		respondMessage(w, http.StatusCreated, "Account created. Check your email for the verification code.", map[string]any{"user": user})
	}
}

// VerifyEmail checks the code, marks the email verified and starts a session.
func (h *AuthHandler) VerifyEmail() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequest
		if err := decode(r, &req); err != nil {
			fail(w, "VerifyEmail", err)
			return
		}

		user, err := h.Store.GetUserByEmail(r.Context(), req.Email)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				apperr.Write(w, apperr.BadRequest("Invalid verification code"))
				return
			}
			fail(w, "VerifyEmail: load user", err)
			return
		}
		if user.IsVerified {
			apperr.Write(w, apperr.BadRequest("Email is already verified"))
			return
		}

		stored := ""
		if user.OTPCode != nil {
			stored = *user.OTPCode
		}
		switch err := auth.VerifyOTP(stored, user.OTPExpiresAt, req.OTP, h.now()); {
		case errors.Is(err, auth.ErrOTPExpired):
			apperr.Write(w, apperr.BadRequest("Verification code has expired"))
			return
		case err != nil:
			apperr.Write(w, apperr.BadRequest("Invalid verification code"))
			return
		}

		if err := h.Store.MarkVerified(r.Context(), user.ID); err != nil {
			fail(w, "VerifyEmail: mark verified", err)
			return
		}
		user.IsVerified = true
		user.OTPCode, user.OTPExpiresAt = nil, nil

		token, err := h.Tokens.Issue(user.ID, user.Role)
		if err != nil {
			fail(w, "VerifyEmail: issue token", err)
			return
		}
		respondMessage(w, http.StatusOK, "Email verified", sessionResponse{Token: token, User: user})
	}
}

const resendMessage = "If the account exists and is not verified, a new code has been sent"

// ResendOTP issues a fresh verification code.
func (h *AuthHandler) ResendOTP() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resendRequest
		if err := decode(r, &req); err != nil {
			fail(w, "ResendOTP", err)
			return
		}

		// Unknown and already verified addresses get the same answer as a
		// real resend.
		user, err := h.Store.GetUserByEmail(r.Context(), req.Email)
		if errors.Is(err, store.ErrUserNotFound) {
			respondMessage(w, http.StatusOK, resendMessage, nil)
			return
		}
		if err != nil {
			fail(w, "ResendOTP: load user", err)
			return
		}
		if user.IsVerified {
			respondMessage(w, http.StatusOK, resendMessage, nil)
			return
		}

		code, err := auth.GenerateOTP()
		if err != nil {
			fail(w, "ResendOTP: generate otp", err)
			return
		}
		if err := h.Store.SetOTP(r.Context(), user.ID, code, h.now().Add(auth.OTPTTL)); err != nil {
			fail(w, "ResendOTP: store otp", err)
			return
		}
		h.sendCode(r.Context(), user, code)

		respondMessage(w, http.StatusOK, resendMessage, nil)
	}
}

// Login checks credentials and returns a session token.
func (h *AuthHandler) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decode(r, &req); err != nil {
			fail(w, "Login", err)
			return
		}

		user, err := h.Store.GetUserByEmail(r.Context(), req.Email)
		if err != nil && !errors.Is(err, store.ErrUserNotFound) {
			fail(w, "Login: load user", err)
			return
		}
		if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
			apperr.Write(w, apperr.Unauthorized("Invalid email or password"))
			return
		}
		if !user.IsVerified {
			apperr.Write(w, apperr.Forbidden("Please verify your email before logging in"))
			return
		}
		if user.Status != models.UserStatusActive {
			apperr.Write(w, apperr.Forbidden("Account is "+string(user.Status)))
			return
		}

		token, err := h.Tokens.Issue(user.ID, user.Role)
		if err != nil {
			fail(w, "Login: issue token", err)
			return
		}
		if err := h.Store.TouchLogin(r.Context(), user.ID); err != nil {
			log.Printf("Login: failed to stamp last login for user %d: %v", user.ID, err)
		}
		now := h.now()
		user.LastLoginAt = &now

		respond(w, http.StatusOK, sessionResponse{Token: token, User: user})
	}
}
