package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/tenant-auth/internal"
	userDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/user"
	"gorm.io/gorm"
)

// Authenticator checks identifier and password pairs and keeps the lockout counter.
type Authenticator struct {
	users      RepositoryAPI
	cfg        LockoutConfig
	bcryptCost int
	now        func() time.Time
	logger     *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthenticator(users RepositoryAPI, cfg LockoutConfig, bcryptCost int, logger *slog.Logger) *Authenticator {
	def := DefaultLockoutConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Duration <= 0 {
		cfg.Duration = def.Duration
	}
	return &Authenticator{
		users:      users,
		cfg:        cfg,
		bcryptCost: bcryptCost,
		now:        time.Now,
		logger:     logger,
	}
}

func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	a.now = now
	return a
}

// Authenticate resolves identifier as username, email or phone and checks the password.
// Unknown and inactive accounts both come back as ErrInvalidCredentials.
func (a *Authenticator) Authenticate(ctx context.Context, identifier, password string) (*userDatamodel.User, error) {
	now := a.now()

	user, err := a.users.FindByIdentifier(ctx, identifier)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, a.systemError(err, "failed to look up user", 0)
	}
	if user == nil || !user.IsActive || user.PasswordHash == "" {
		// keep response time independent of whether the account exists
		_ = VerifyPassword(a.dummy(), password)
		return nil, ErrInvalidCredentials
	}

	if remaining, locked := lockRemaining(user, now); locked {
		a.logger.WarnContext(ctx, "login attempt for locked account", "user_id", user.ID)
		return nil, lockedError(remaining)
	}

	if user.LockedUntil != nil {
		if err := a.users.ResetLoginFailures(ctx, user.ID); err != nil {
			return nil, a.systemError(err, "failed to clear expired lock", user.ID)
		}
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
	}

	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		attempts, err := a.users.RecordLoginFailure(ctx, user.ID, a.cfg.Threshold, now.Add(a.cfg.Duration))
		if err != nil {
			return nil, a.systemError(err, "failed to record login failure", user.ID)
		}
		if attempts >= a.cfg.Threshold {
			a.logger.WarnContext(ctx, "account locked", "user_id", user.ID, "until", now.Add(a.cfg.Duration))
		} else {
			a.logger.InfoContext(ctx, "login failed", "user_id", user.ID, "attempts", attempts)
		}
		return nil, ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 {
		if err := a.users.ResetLoginFailures(ctx, user.ID); err != nil {
			return nil, a.systemError(err, "failed to reset login failures", user.ID)
		}
		user.FailedLoginAttempts = 0
	}
	return user, nil
}

func (a *Authenticator) dummy() string {
	a.dummyOnce.Do(func() {
		hash, err := HashPassword("not-a-real-password", a.bcryptCost)
		if err != nil {
			a.logger.Error("failed to build dummy hash", "error", err)
			return
		}
		a.dummyHash = hash
	})
	return a.dummyHash
}

func (a *Authenticator) systemError(err error, msg string, userID int64) error {
	a.logger.Error(msg, "user_id", userID, "error", err)
	return internal.NewInternalError(msg, err)
}
