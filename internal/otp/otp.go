// Package otp issues and checks the six digit codes used to verify phone numbers.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/frahmantamala/tenant-auth/internal"
)

const CodeLength = 6

type Config struct {
	TTL           time.Duration
	MaxAttempts   int
	BlockDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		TTL:           60 * time.Minute,
		MaxAttempts:   3,
		BlockDuration: 15 * time.Minute,
	}
}

// Reason explains a failed verification. Blocked and missing codes both read as
// expired so callers cannot tell them apart.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonExpired   Reason = "expired"
	ReasonIncorrect Reason = "incorrect"
)

var (
	ErrExpired   = internal.NewExpiredError("The code has expired or is no longer valid", internal.ErrCodeOTPExpired)
	ErrIncorrect = internal.NewValidationError("The code is incorrect", internal.ErrCodeOTPIncorrect)
)

// ErrorFor maps a failed verification to the error handed to HTTP callers.
func ErrorFor(reason Reason) error {
	if reason == ReasonIncorrect {
		return ErrIncorrect
	}
	return ErrExpired
}

var codeSpace = big.NewInt(1_000_000)

// GenerateCode draws uniformly from 000000-999999.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}
