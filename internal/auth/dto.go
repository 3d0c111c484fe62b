package auth

import (
	"time"

	"github.com/frahmantamala/tenant-auth/internal"
	"github.com/frahmantamala/tenant-auth/internal/core/common/validation"
	"github.com/frahmantamala/tenant-auth/internal/token"
)

// LoginDTO accepts a username, email or phone number as the identifier.
type LoginDTO struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

func (d LoginDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("identifier", d.Identifier).Required().MaxLength(254)
	v.Field("password", d.Password).Required().MaxLength(MaxPasswordLength)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// VerifyTwoFactorDTO carries either a TOTP code or a backup code, never both.
type VerifyTwoFactorDTO struct {
	SessionID  string `json:"session_id"`
	Code       string `json:"code,omitempty"`
	BackupCode string `json:"backup_code,omitempty"`
	RememberMe bool   `json:"remember_me"`
}

func (d VerifyTwoFactorDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("session_id", d.SessionID).Required().MaxLength(36)
	if d.BackupCode == "" {
		v.Field("code", d.Code).Required().MinLength(6).MaxLength(6)
	} else {
		v.Field("backup_code", d.BackupCode).MaxLength(32).Custom(func(interface{}) *internal.AppError {
			if d.Code != "" {
				return internal.NewValidationFieldError("backup_code", "send either code or backup_code", internal.ErrCodeValidationFailed)
			}
			return nil
		})
	}
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token"`
}

func (d RefreshTokenDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("refresh_token", d.RefreshToken).Required()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type SignupDTO struct {
	Phone    string `json:"phone"`
	FullName string `json:"full_name"`
}

func (d SignupDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("phone", d.Phone).Required().Phone()
	v.Field("full_name", d.FullName).Required().MaxLength(150)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type ResendOTPDTO struct {
	Phone string `json:"phone"`
}

func (d ResendOTPDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("phone", d.Phone).Required().Phone()
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type VerifyPhoneDTO struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

func (d VerifyPhoneDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("phone", d.Phone).Required().Phone()
	v.Field("code", d.Code).Required().MinLength(6).MaxLength(6)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

type FinalizeSignupDTO struct {
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (d FinalizeSignupDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("phone", d.Phone).Required().Phone()
	v.Field("email", d.Email).Required().Email().MaxLength(254)
	v.Field("password", d.Password).Required().MinLength(MinPasswordLength).MaxLength(MaxPasswordLength)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// LoginResponse holds either tokens or a pending second factor.
type LoginResponse struct {
	*token.Pair
	TwoFactorRequired bool   `json:"two_factor_required"`
	SessionID         string `json:"session_id,omitempty"`
	TwoFactorType     string `json:"two_factor_type,omitempty"`
}

type SignupResponse struct {
	Created   bool      `json:"-"`
	ExpiresAt time.Time `json:"otp_expires_at"`
}
