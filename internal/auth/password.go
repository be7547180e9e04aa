package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// OTPTTL is how long a verification code stays valid.
const OTPTTL = 10 * time.Minute

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateOTP returns a zero-padded six digit code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

var (
	ErrOTPMismatch = errors.New("invalid verification code")
	ErrOTPExpired  = errors.New("verification code expired")
)

// VerifyOTP checks a submitted code against the stored one.
func VerifyOTP(stored string, expiresAt *time.Time, submitted string, now time.Time) error {
	if stored == "" || submitted == "" || stored != submitted {
		return ErrOTPMismatch
	}
	if expiresAt == nil || now.After(*expiresAt) {
		return ErrOTPExpired
	}
	return nil
}
