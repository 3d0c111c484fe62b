package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/tenant-auth/internal"
	"github.com/frahmantamala/tenant-auth/internal/activity"
	otpDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/otp"
	twofactorDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/twofactor"
	userDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/user"
	"github.com/frahmantamala/tenant-auth/internal/notification"
	"github.com/frahmantamala/tenant-auth/internal/otp"
	"github.com/frahmantamala/tenant-auth/internal/token"
	"gorm.io/gorm"
)

type RepositoryAPI interface {
	GetByID(ctx context.Context, userID int64) (*userDatamodel.User, error)
	// FindByIdentifier tries username, then email, then phone.
	FindByIdentifier(ctx context.Context, identifier string) (*userDatamodel.User, error)
	FindByPhone(ctx context.Context, phone string) (*userDatamodel.User, error)
	Create(ctx context.Context, user *userDatamodel.User) error
	EmailTakenByOther(ctx context.Context, email string, userID int64) (bool, error)
	// RecordLoginFailure increments the counter and sets locked_until once it
	// reaches threshold, in one statement. It returns the new counter value.
	RecordLoginFailure(ctx context.Context, userID int64, threshold int, lockUntil time.Time) (int, error)
	ResetLoginFailures(ctx context.Context, userID int64) error
	MarkPhoneVerified(ctx context.Context, phone string) (*userDatamodel.User, error)
	// FinalizeCredentials sets email and password only while no password is set.
	FinalizeCredentials(ctx context.Context, userID int64, email, passwordHash string) (bool, error)
}

type TokenIssuerAPI interface {
	Issue(ctx context.Context, userID int64, rememberMe bool) (*token.Pair, error)
	Refresh(ctx context.Context, refreshToken string) (*token.Pair, int64, error)
	Revoke(ctx context.Context, refreshToken string) (bool, error)
}

type TwoFactorAPI interface {
	CreateSession(ctx context.Context, userID int64) (*twofactorDatamodel.Session, error)
	VerifyCode(ctx context.Context, sessionID, code string) (*userDatamodel.User, error)
	VerifyBackupCode(ctx context.Context, sessionID, code string) (*userDatamodel.User, error)
}

type OTPAPI interface {
	Create(ctx context.Context, phone string, ttl time.Duration) (*otpDatamodel.OTP, error)
	Verify(ctx context.Context, phone, code string) (bool, otp.Reason, error)
	Delete(ctx context.Context, phone string) error
}

// Service is the login orchestrator and the signup flow.
type Service struct {
	users         RepositoryAPI
	authenticator *Authenticator
	twoFactor     TwoFactorAPI
	tokens        TokenIssuerAPI
	otps          OTPAPI
	notifier      notification.Notifier
	recorder      activity.Recorder
	bcryptCost    int
	logger        *slog.Logger
}

type Dependencies struct {
	Users         RepositoryAPI
	Authenticator *Authenticator
	TwoFactor     TwoFactorAPI
	Tokens        TokenIssuerAPI
	OTPs          OTPAPI
	Notifier      notification.Notifier
	Recorder      activity.Recorder
	BCryptCost    int
}

func NewService(deps Dependencies, logger *slog.Logger) *Service {
	return &Service{
		users:         deps.Users,
		authenticator: deps.Authenticator,
		twoFactor:     deps.TwoFactor,
		tokens:        deps.Tokens,
		otps:          deps.OTPs,
		notifier:      deps.Notifier,
		recorder:      deps.Recorder,
		bcryptCost:    deps.BCryptCost,
		logger:        logger,
	}
}

// Login runs the password step. Accounts with 2FA get a session id instead of tokens.
func (s *Service) Login(ctx context.Context, dto LoginDTO) (*LoginResponse, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	user, err := s.authenticator.Authenticate(ctx, dto.Identifier, dto.Password)
	if err != nil {
		return nil, err
	}

	if user.TwoFactorEnabled {
		session, err := s.twoFactor.CreateSession(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "login awaiting second factor", "user_id", user.ID)
		return &LoginResponse{
			TwoFactorRequired: true,
			SessionID:         session.SessionID,
			TwoFactorType:     string(user.TwoFactorType),
		}, nil
	}

	return s.completeLogin(ctx, user.ID, dto.RememberMe)
}

// VerifyTwoFactor finishes a login that stopped at the second factor.
func (s *Service) VerifyTwoFactor(ctx context.Context, dto VerifyTwoFactorDTO) (*LoginResponse, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	var (
		user *userDatamodel.User
		err  error
	)
	if dto.BackupCode != "" {
		user, err = s.twoFactor.VerifyBackupCode(ctx, dto.SessionID, dto.BackupCode)
	} else {
		user, err = s.twoFactor.VerifyCode(ctx, dto.SessionID, dto.Code)
	}
	if err != nil {
		return nil, err
	}

	return s.completeLogin(ctx, user.ID, dto.RememberMe)
}

// Refresh rotates a refresh token. Deactivated accounts cannot refresh.
func (s *Service) Refresh(ctx context.Context, dto RefreshTokenDTO) (*token.Pair, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	pair, userID, err := s.tokens.Refresh(ctx, dto.RefreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrInvalidToken
		}
		return nil, s.systemError(err, "failed to load user", "user_id", userID)
	}
	if !user.IsActive {
		return nil, internal.ErrInvalidToken
	}
	return pair, nil
}

// Logout revokes the refresh token. Revoking twice is not an error.
func (s *Service) Logout(ctx context.Context, dto RefreshTokenDTO) error {
	if err := dto.Validate(); err != nil {
		return err
	}
	_, err := s.tokens.Revoke(ctx, dto.RefreshToken)
	return err
}

func (s *Service) Me(ctx context.Context, userID int64) (*UserResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, s.systemError(err, "failed to load user", "user_id", userID)
	}
	resp := ToUserResponse(user)
	return &resp, nil
}

func (s *Service) completeLogin(ctx context.Context, userID int64, rememberMe bool) (*LoginResponse, error) {
	pair, err := s.tokens.Issue(ctx, userID, rememberMe)
	if err != nil {
		return nil, err
	}

	s.recordLogin(ctx, userID)
	s.logger.InfoContext(ctx, "login succeeded", "user_id", userID, "remember_me", rememberMe)
	return &LoginResponse{Pair: pair}, nil
}

func (s *Service) recordLogin(ctx context.Context, userID int64) {
	client := internal.ClientFromContext(ctx)
	s.record(ctx, userID, activity.EventLogin, map[string]interface{}{
		activity.MetaIPAddress: client.IPAddress,
		activity.MetaUserAgent: client.UserAgent,
	})
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
