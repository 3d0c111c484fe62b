package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/frahmantamala/tenant-auth/internal/activity"
	"github.com/frahmantamala/tenant-auth/internal/core/common/validation"
	otpDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/otp"
	userDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/user"
	"github.com/frahmantamala/tenant-auth/internal/otp"
	"gorm.io/gorm"
)

const usernameAttempts = 3

// StartSignup gets or creates the account for a phone number and texts it a code.
func (s *Service) StartSignup(ctx context.Context, dto SignupDTO) (*SignupResponse, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	user, created, err := s.getOrCreateByPhone(ctx, dto.Phone, dto.FullName)
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.InfoContext(ctx, "user created", "user_id", user.ID)
	}

	rec, err := s.sendCode(ctx, dto.Phone)
	if err != nil {
		return nil, err
	}
	return &SignupResponse{
		Created:   created,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// ResendOTP replaces the code for a phone number that already has an account.
func (s *Service) ResendOTP(ctx context.Context, dto ResendOTPDTO) (*SignupResponse, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.users.FindByPhone(ctx, dto.Phone); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, s.systemError(err, "failed to look up phone")
	}

	rec, err := s.sendCode(ctx, dto.Phone)
	if err != nil {
		return nil, err
	}
	return &SignupResponse{ExpiresAt: rec.ExpiresAt}, nil
}

// VerifyPhone consumes the code and marks the phone number as verified.
func (s *Service) VerifyPhone(ctx context.Context, dto VerifyPhoneDTO) (*UserResponse, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	ok, reason, err := s.otps.Verify(ctx, dto.Phone, dto.Code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, otp.ErrorFor(reason)
	}

	user, err := s.users.MarkPhoneVerified(ctx, dto.Phone)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, s.systemError(err, "failed to mark phone verified")
	}

	if err := s.otps.Delete(ctx, dto.Phone); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "phone verified", "user_id", user.ID)
	resp := ToUserResponse(user)
	return &resp, nil
}

// FinalizeSignup sets email and password on a verified account that has neither yet.
func (s *Service) FinalizeSignup(ctx context.Context, dto FinalizeSignupDTO) (*UserResponse, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	email := validation.NormalizeEmail(dto.Email)

	user, err := s.users.FindByPhone(ctx, dto.Phone)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, s.systemError(err, "failed to look up phone")
	}
	if !user.PhoneVerified {
		return nil, ErrPhoneNotVerified
	}
	if user.PasswordHash != "" {
		return nil, ErrSignupFinalized
	}

	taken, err := s.users.EmailTakenByOther(ctx, email, user.ID)
	if err != nil {
		return nil, s.systemError(err, "failed to check email", "user_id", user.ID)
	}
	if taken {
		return nil, ErrEmailTaken
	}

	hash, err := HashPassword(dto.Password, s.bcryptCost)
	if err != nil {
		return nil, s.systemError(err, "failed to hash password", "user_id", user.ID)
	}

	updated, err := s.users.FinalizeCredentials(ctx, user.ID, email, hash)
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, s.systemError(err, "failed to store credentials", "user_id", user.ID)
	}
	if !updated {
		return nil, ErrSignupFinalized
	}

	user.Email = &email
	user.PasswordHash = hash
	s.logger.InfoContext(ctx, "signup finalized", "user_id", user.ID)
	s.record(ctx, user.ID, activity.EventSignupCompleted, nil)

	resp := ToUserResponse(user)
	return &resp, nil
}

func (s *Service) getOrCreateByPhone(ctx context.Context, phone, fullName string) (*userDatamodel.User, bool, error) {
	existing, err := s.users.FindByPhone(ctx, phone)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, s.systemError(err, "failed to look up phone")
	}

	for i := 0; i < usernameAttempts; i++ {
		username, err := GenerateUsername(fullName)
		if err != nil {
			return nil, false, s.systemError(err, "failed to generate username")
		}

		user := &userDatamodel.User{
			Username:      username,
			Phone:         &phone,
			FullName:      fullName,
			IsActive:      true,
			TwoFactorType: userDatamodel.TwoFactorAuthenticator,
		}
		err = s.users.Create(ctx, user)
		if err == nil {
			return user, true, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, s.systemError(err, "failed to create user")
		}

		// either the phone was taken by a concurrent signup or the username collided
		if existing, err := s.users.FindByPhone(ctx, phone); err == nil {
			return existing, false, nil
		}
	}
	return nil, false, ErrUsernameExhausted
}

func (s *Service) sendCode(ctx context.Context, phone string) (*otpDatamodel.OTP, error) {
	rec, err := s.otps.Create(ctx, phone, 0)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		msg := fmt.Sprintf("Your verification code is %s", rec.Code)
		if err := s.notifier.Send(ctx, phone, msg); err != nil {
			s.logger.WarnContext(ctx, "failed to send verification code", "error", err)
		}
	}
	return rec, nil
}
