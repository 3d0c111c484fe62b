package invitation

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/frahmantamala/tenant-auth/internal"
	invitationDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/invitation"
)

// TokenBytes is the entropy of a generated invitation token.
const TokenBytes = 32

type Config struct {
	TTL time.Duration
	// AcceptURL prefixes the token in the link sent to the invitee.
	AcceptURL string
}

func DefaultConfig() Config {
	return Config{TTL: 7 * 24 * time.Hour}
}

var (
	ErrNotFound       = internal.NewNotFoundError("Invitation not found", internal.ErrCodeInvitationNotFound)
	ErrAlreadyPending = internal.NewConflictError("A pending invitation already exists for this email", internal.ErrCodeInvitationPending)
	ErrExpired        = internal.NewExpiredError("Invitation has expired", internal.ErrCodeInvitationExpired)
	ErrEmailMismatch  = internal.NewForbiddenError("Invitation was issued to a different email address", internal.ErrCodeInvitationEmail)
	ErrInvalidState   = internal.NewConflictError("Invitation cannot be processed", internal.ErrCodeInvitationState)
	ErrUserNotFound   = internal.NewNotFoundError("User not found", internal.ErrCodeUserNotFound)
	ErrTokenTaken     = internal.NewConflictError("Invitation token is already in use", internal.ErrCodeInvitationToken)
)

// invalidState keeps the sentinel code but names the status that blocked the call.
func invalidState(status invitationDatamodel.Status) error {
	return ErrInvalidState.WithMessage(fmt.Sprintf("cannot operate on %s invitation", status))
}

// GenerateToken returns 32 random bytes, URL-safe base64 encoded without padding.
func GenerateToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func IsExpired(inv *invitationDatamodel.Invitation, now time.Time) bool {
	return !now.Before(inv.ExpiresAt)
}
