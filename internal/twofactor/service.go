package twofactor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/tenant-auth/internal"
	"github.com/frahmantamala/tenant-auth/internal/activity"
	twofactorDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/twofactor"
	userDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/user"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"
)

type RepositoryAPI interface {
	WithTx(ctx context.Context, fn func(repo RepositoryAPI) error) error
	GetUser(ctx context.Context, userID int64) (*userDatamodel.User, error)
	// SetSecret stores the TOTP secret on the user row. An empty secret disables 2FA.
	SetSecret(ctx context.Context, userID int64, secret string, kind userDatamodel.TwoFactorType) error
	ReplaceBackupCodes(ctx context.Context, userID int64, hashes []string) error
	CountUnusedBackupCodes(ctx context.Context, userID int64) (int64, error)
	// ConsumeBackupCode marks one unused code as used and reports whether it did.
	ConsumeBackupCode(ctx context.Context, userID int64, hash string, usedAt time.Time) (bool, error)
	CreateSession(ctx context.Context, session *twofactorDatamodel.Session) error
	GetSession(ctx context.Context, sessionID string) (*twofactorDatamodel.Session, error)
	// MarkSessionVerified flips is_verified only when it is still false.
	MarkSessionVerified(ctx context.Context, sessionID string) (bool, error)
	DeleteSessionsBefore(ctx context.Context, before time.Time) (int64, error)
}

type Service struct {
	repo     RepositoryAPI
	recorder activity.Recorder
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
}

func NewService(repo RepositoryAPI, recorder activity.Recorder, cfg Config, logger *slog.Logger) *Service {
	def := DefaultConfig()
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.BackupCodeCount <= 0 {
		cfg.BackupCodeCount = def.BackupCodeCount
	}
	if cfg.Issuer == "" {
		cfg.Issuer = def.Issuer
	}
	return &Service{
		repo:     repo,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Enable issues a new secret and a new set of backup codes. Codes from an
// earlier enable stop working.
func (s *Service) Enable(ctx context.Context, userID int64) (*EnableResult, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.cfg.Issuer,
		AccountName: user.Username,
		Period:      totpPeriod,
	})
	if err != nil {
		return nil, s.systemError(err, "failed to generate totp secret", "user_id", userID)
	}

	codes, err := GenerateBackupCodes(s.cfg.BackupCodeCount)
	if err != nil {
		return nil, s.systemError(err, "failed to generate backup codes", "user_id", userID)
	}
	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = HashBackupCode(s.cfg.BackupCodeKey, code)
	}

	err = s.repo.WithTx(ctx, func(repo RepositoryAPI) error {
		if err := repo.SetSecret(ctx, userID, key.Secret(), userDatamodel.TwoFactorAuthenticator); err != nil {
			return err
		}
		return repo.ReplaceBackupCodes(ctx, userID, hashes)
	})
	if err != nil {
		return nil, s.systemError(err, "failed to enable two factor", "user_id", userID)
	}

	s.logger.InfoContext(ctx, "two factor enabled", "user_id", userID)
	s.record(ctx, userID, activity.EventTwoFactorEnabled, nil)

	return &EnableResult{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		BackupCodes:     codes,
	}, nil
}

func (s *Service) Disable(ctx context.Context, userID int64) error {
	if _, err := s.loadUser(ctx, userID); err != nil {
		return err
	}

	err := s.repo.WithTx(ctx, func(repo RepositoryAPI) error {
		if err := repo.SetSecret(ctx, userID, "", userDatamodel.TwoFactorAuthenticator); err != nil {
			return err
		}
		return repo.ReplaceBackupCodes(ctx, userID, nil)
	})
	if err != nil {
		return s.systemError(err, "failed to disable two factor", "user_id", userID)
	}

	s.logger.InfoContext(ctx, "two factor disabled", "user_id", userID)
	s.record(ctx, userID, activity.EventTwoFactorDisabled, nil)
	return nil
}

func (s *Service) RemainingBackupCodes(ctx context.Context, userID int64) (int64, error) {
	n, err := s.repo.CountUnusedBackupCodes(ctx, userID)
	if err != nil {
		return 0, s.systemError(err, "failed to count backup codes", "user_id", userID)
	}
	return n, nil
}

// CreateSession opens the window in which the second factor must be presented.
func (s *Service) CreateSession(ctx context.Context, userID int64) (*twofactorDatamodel.Session, error) {
	session := &twofactorDatamodel.Session{
		SessionID: uuid.NewString(),
		UserID:    userID,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, s.systemError(err, "failed to create two factor session", "user_id", userID)
	}
	s.logger.InfoContext(ctx, "two factor session created", "user_id", userID)
	return session, nil
}

// VerifyCode checks a TOTP code against the session's user and consumes the session.
func (s *Service) VerifyCode(ctx context.Context, sessionID, code string) (*userDatamodel.User, error) {
	session, user, err := s.openSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	switch user.TwoFactorType {
	case userDatamodel.TwoFactorSMS:
		return nil, ErrSMSNotImplemented
	case userDatamodel.TwoFactorAuthenticator, "":
	default:
		return nil, ErrNotEnabled
	}

	valid, err := totp.ValidateCustom(code, user.TwoFactorSecret, s.now(), s.cfg.validateOpts())
	if err != nil || !valid {
		s.logger.InfoContext(ctx, "two factor code rejected", "user_id", user.ID)
		return nil, ErrInvalidCode
	}

	ok, err := s.repo.MarkSessionVerified(ctx, session.SessionID)
	if err != nil {
		return nil, s.systemError(err, "failed to mark two factor session", "user_id", user.ID)
	}
	if !ok {
		return nil, ErrSessionInvalid
	}
	return user, nil
}

// VerifyBackupCode consumes one backup code and the session together.
func (s *Service) VerifyBackupCode(ctx context.Context, sessionID, code string) (*userDatamodel.User, error) {
	session, user, err := s.openSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	hash := HashBackupCode(s.cfg.BackupCodeKey, code)
	err = s.repo.WithTx(ctx, func(repo RepositoryAPI) error {
		ok, err := repo.MarkSessionVerified(ctx, session.SessionID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrSessionInvalid
		}
		used, err := repo.ConsumeBackupCode(ctx, user.ID, hash, s.now())
		if err != nil {
			return err
		}
		if !used {
			return ErrInvalidCode
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionInvalid) || errors.Is(err, ErrInvalidCode) {
			return nil, err
		}
		return nil, s.systemError(err, "failed to consume backup code", "user_id", user.ID)
	}

	s.logger.InfoContext(ctx, "backup code used", "user_id", user.ID)
	s.record(ctx, user.ID, activity.EventBackupCodeConsumed, nil)
	return user, nil
}

// CleanupExpiredSessions removes sessions older than the session TTL.
func (s *Service) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteSessionsBefore(ctx, s.now().Add(-s.cfg.SessionTTL))
	if err != nil {
		return 0, s.systemError(err, "failed to clean up two factor sessions")
	}
	s.logger.InfoContext(ctx, "expired two factor sessions cleaned up", "count", n)
	return n, nil
}

func (s *Service) openSession(ctx context.Context, sessionID string) (*twofactorDatamodel.Session, *userDatamodel.User, error) {
	if sessionID == "" {
		return nil, nil, ErrSessionInvalid
	}
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, s.systemError(err, "failed to load two factor session")
	}
	if session.IsVerified || !s.now().Before(session.CreatedAt.Add(s.cfg.SessionTTL)) {
		return nil, nil, ErrSessionInvalid
	}

	user, err := s.repo.GetUser(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, s.systemError(err, "failed to load two factor user", "user_id", session.UserID)
	}
	if !user.IsActive || !user.TwoFactorEnabled {
		return nil, nil, ErrSessionInvalid
	}
	return session, user, nil
}

func (s *Service) loadUser(ctx context.Context, userID int64) (*userDatamodel.User, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, s.systemError(err, "failed to load user", "user_id", userID)
	}
	return user, nil
}

func (s *Service) record(ctx context.Context, userID int64, eventType activity.EventType, metadata map[string]interface{}) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.Record(ctx, activity.Entry{UserID: userID, EventType: eventType, Metadata: metadata})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record activity", "event_type", eventType, "error", err)
	}
}

func (s *Service) systemError(err error, msg string, args ...any) error {
	s.logger.Error(msg, append(args, "error", err)...)
	return internal.NewInternalError(msg, err)
}
