// Package auth owns the credential side of the system: signup by phone,
// password authentication with account lockout, and the login protocol that
// chains the password step, the optional second factor and token issuance.
package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/frahmantamala/tenant-auth/internal"
	"golang.org/x/crypto/bcrypt"
)

type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		Threshold: 5,
		Duration:  30 * time.Minute,
	}
}

const (
	MinPasswordLength = 8
	// bcrypt ignores everything past 72 bytes
	MaxPasswordLength = 72
)

var (
	ErrInvalidCredentials = internal.ErrInvalidCredentials
	ErrUserInactive       = internal.ErrUserInactive
	ErrUserNotFound       = internal.NewNotFoundError("Account not found", internal.ErrCodeUserNotFound)
	ErrEmailTaken         = internal.NewConflictError("Email is already registered", internal.ErrCodeEmailTaken)
	ErrPhoneNotVerified   = internal.NewForbiddenError("Phone number has not been verified", internal.ErrCodePhoneNotVerified)
	ErrSignupFinalized    = internal.NewConflictError("Signup has already been completed", internal.ErrCodeSignupFinalized)
	ErrUsernameExhausted  = internal.NewConflictError("Could not allocate a username, try again", internal.ErrCodeUsernameTaken)
)

// lockedError carries how long the caller has to wait.
func lockedError(retryAfter time.Duration) error {
	return internal.NewLockedError("Account is temporarily locked", internal.ErrCodeAccountLocked, retryAfter)
}

func VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// GenerateUsername derives "full_name1234" style usernames from a display name.
func GenerateUsername(fullName string) (string, error) {
	base := strings.ToLower(strings.Join(strings.Fields(fullName), "_"))
	if base == "" {
		base = "user"
	}
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d", base, n.Int64()+1000), nil
}
