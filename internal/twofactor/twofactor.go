// Package twofactor runs the second login step for accounts with 2FA enabled:
// TOTP verification against the stored secret, single-use backup codes and the
// short-lived session that links the password step to the code step.
package twofactor

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/frahmantamala/tenant-auth/internal"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	backupCodeBytes = 8
	totpPeriod      = 30
)

type Config struct {
	SessionTTL      time.Duration
	Skew            uint
	BackupCodeCount int
	// BackupCodeKey keys the stored backup code hashes.
	BackupCodeKey   []byte
	Issuer          string
}

func DefaultConfig() Config {
	return Config{
		SessionTTL:      5 * time.Minute,
		Skew:            6,
		BackupCodeCount: 5,
		Issuer:          "tenant-auth",
	}
}

var (
	ErrSessionInvalid    = internal.NewExpiredError("Invalid or expired session", internal.ErrCodeTwoFactorSession)
	ErrInvalidCode       = internal.NewUnauthorizedError("Invalid two-factor code", internal.ErrCodeTwoFactorCode)
	ErrNotEnabled        = internal.NewValidationError("Two-factor authentication is not enabled", internal.ErrCodeTwoFactorNotEnabled)
	ErrSMSNotImplemented = internal.NewValidationError("SMS verification is not implemented", internal.ErrCodeSMSNotImplemented)
	ErrUserNotFound      = internal.NewNotFoundError("User not found", internal.ErrCodeUserNotFound)
)

// EnableResult is shown to the user exactly once.
type EnableResult struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

func (c Config) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      c.Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// GenerateBackupCodes returns n codes of sixteen lower-case hex characters.
func GenerateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	buf := make([]byte, backupCodeBytes)
	for i := 0; i < n; i++ {
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		codes = append(codes, hex.EncodeToString(buf))
	}
	return codes, nil
}

// HashBackupCode is the only form of a backup code that is stored: an HMAC of
// the normalized code under the server key.
func HashBackupCode(key []byte, code string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(normalizeBackupCode(code)))
	return hex.EncodeToString(mac.Sum(nil))
}

func normalizeBackupCode(code string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(code)), "-", "")
}
