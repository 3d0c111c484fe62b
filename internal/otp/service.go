package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/tenant-auth/internal"
	otpDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/otp"
	"gorm.io/gorm"
)

type RepositoryAPI interface {
	// Replace stores rec as the only record for its phone number.
	Replace(ctx context.Context, rec *otpDatamodel.OTP) error
	Get(ctx context.Context, phone string) (*otpDatamodel.OTP, error)
	// RecordFailure increments attempts and blocks at the threshold in one statement.
	// It reports false when the record was already blocked or gone.
	RecordFailure(ctx context.Context, phone string, maxAttempts int, blockedUntil time.Time) (bool, error)
	// Unblock clears the block and the attempt counter.
	Unblock(ctx context.Context, phone string) (bool, error)
	Delete(ctx context.Context, phone string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Service struct {
	repo   RepositoryAPI
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, cfg Config, logger *slog.Logger) *Service {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = def.BlockDuration
	}
	return &Service{
		repo:   repo,
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create replaces any previous code for phone. A ttl of zero uses the configured default.
func (s *Service) Create(ctx context.Context, phone string, ttl time.Duration) (*otpDatamodel.OTP, error) {
	if ttl <= 0 {
		ttl = s.cfg.TTL
	}
	code, err := GenerateCode()
	if err != nil {
		return nil, s.systemError(err, "failed to generate otp", phone)
	}

	rec := &otpDatamodel.OTP{
		PhoneNumber: phone,
		Code:        code,
		ExpiresAt:   s.now().Add(ttl),
	}
	if err := s.repo.Replace(ctx, rec); err != nil {
		return nil, s.systemError(err, "failed to store otp", phone)
	}

	s.logger.InfoContext(ctx, "otp created", "phone", maskPhone(phone), "expires_at", rec.ExpiresAt)
	return rec, nil
}

// Verify checks code for phone. A correct code leaves the record in place; the
// caller consumes it with Delete once the surrounding operation succeeded.
func (s *Service) Verify(ctx context.Context, phone, code string) (bool, Reason, error) {
	now := s.now()

	rec, err := s.repo.Get(ctx, phone)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ReasonExpired, nil
		}
		return false, ReasonNone, s.systemError(err, "failed to load otp", phone)
	}

	if rec.IsBlocked {
		if rec.BlockedUntil != nil && now.Before(*rec.BlockedUntil) {
			s.logger.InfoContext(ctx, "otp verify while blocked", "phone", maskPhone(phone))
			return false, ReasonExpired, nil
		}
		if _, err := s.repo.Unblock(ctx, phone); err != nil {
			return false, ReasonNone, s.systemError(err, "failed to unblock otp", phone)
		}
		rec.IsBlocked = false
		rec.Attempts = 0
		rec.BlockedUntil = nil
	}

	if !now.Before(rec.ExpiresAt) {
		if err := s.repo.Delete(ctx, phone); err != nil {
			return false, ReasonNone, s.systemError(err, "failed to delete expired otp", phone)
		}
		return false, ReasonExpired, nil
	}

	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) == 1 {
		return true, ReasonNone, nil
	}

	counted, err := s.repo.RecordFailure(ctx, phone, s.cfg.MaxAttempts, now.Add(s.cfg.BlockDuration))
	if err != nil {
		return false, ReasonNone, s.systemError(err, "failed to record otp failure", phone)
	}
	if !counted {
		// a concurrent guess blocked it first
		return false, ReasonExpired, nil
	}
	s.logger.InfoContext(ctx, "otp mismatch", "phone", maskPhone(phone))
	return false, ReasonIncorrect, nil
}

// Delete consumes the code for phone. Deleting twice is fine.
func (s *Service) Delete(ctx context.Context, phone string) error {
	if err := s.repo.Delete(ctx, phone); err != nil {
		return s.systemError(err, "failed to delete otp", phone)
	}
	return nil
}

func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, s.systemError(err, "failed to clean up expired otps", "")
	}
	s.logger.InfoContext(ctx, "expired otps cleaned up", "count", n)
	return n, nil
}

func (s *Service) systemError(err error, msg, phone string) error {
	s.logger.Error(msg, "phone", maskPhone(phone), "error", err)
	return internal.NewInternalError(msg, err)
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "***" + phone[len(phone)-4:]
}
