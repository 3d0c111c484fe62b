package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeExpired      ErrorType = "EXPIRED"
	ErrorTypeLocked       ErrorType = "LOCKED"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal     ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidEmail     ErrorCode = "INVALID_EMAIL"
	ErrCodeInvalidPhone     ErrorCode = "INVALID_PHONE"
	ErrCodeInvalidStatus    ErrorCode = "INVALID_STATUS"

	ErrCodeCompanyNotFound     ErrorCode = "COMPANY_NOT_FOUND"
	ErrCodeCompanyNameTaken    ErrorCode = "COMPANY_NAME_TAKEN"
	ErrCodeInvalidParent       ErrorCode = "INVALID_PARENT_COMPANY"
	ErrCodeRoleNotFound        ErrorCode = "ROLE_NOT_FOUND"
	ErrCodeRoleExists          ErrorCode = "ROLE_EXISTS"
	ErrCodeSystemRole          ErrorCode = "SYSTEM_ROLE_PROTECTED"
	ErrCodeRoleOutsideCompany  ErrorCode = "ROLE_OUTSIDE_COMPANY"
	ErrCodePermissionNotFound  ErrorCode = "PERMISSION_NOT_FOUND"
	ErrCodePermissionExists    ErrorCode = "PERMISSION_EXISTS"
	ErrCodeMembershipNotFound  ErrorCode = "MEMBERSHIP_NOT_FOUND"
	ErrCodeAssignmentNotFound  ErrorCode = "ROLE_ASSIGNMENT_NOT_FOUND"
	ErrCodeNotCompanyAdmin     ErrorCode = "NOT_COMPANY_ADMIN"
	ErrCodeInvitationNotFound  ErrorCode = "INVITATION_NOT_FOUND"
	ErrCodeInvitationPending   ErrorCode = "INVITATION_ALREADY_PENDING"
	ErrCodeInvitationState     ErrorCode = "INVITATION_INVALID_STATE"
	ErrCodeInvitationExpired   ErrorCode = "INVITATION_EXPIRED"
	ErrCodeInvitationEmail     ErrorCode = "INVITATION_EMAIL_MISMATCH"
	ErrCodeInvitationToken     ErrorCode = "INVITATION_TOKEN_TAKEN"
	ErrCodeUserNotFound        ErrorCode = "USER_NOT_FOUND"
	ErrCodeEmailTaken          ErrorCode = "EMAIL_TAKEN"
	ErrCodeUsernameTaken       ErrorCode = "USERNAME_TAKEN"
	ErrCodePhoneNotVerified    ErrorCode = "PHONE_NOT_VERIFIED"
	ErrCodeSignupFinalized     ErrorCode = "SIGNUP_ALREADY_FINALIZED"
	ErrCodeInvalidCredentials  ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeAccountLocked       ErrorCode = "ACCOUNT_LOCKED"
	ErrCodeUserInactive        ErrorCode = "USER_INACTIVE"
	ErrCodeInvalidToken        ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired        ErrorCode = "TOKEN_EXPIRED"
	ErrCodeOTPExpired          ErrorCode = "OTP_EXPIRED"
	ErrCodeOTPIncorrect        ErrorCode = "OTP_INCORRECT"
	ErrCodeTwoFactorSession    ErrorCode = "TWO_FACTOR_SESSION_INVALID"
	ErrCodeTwoFactorCode       ErrorCode = "TWO_FACTOR_CODE_INVALID"
	ErrCodeTwoFactorNotEnabled ErrorCode = "TWO_FACTOR_NOT_ENABLED"
	ErrCodeSMSNotImplemented   ErrorCode = "SMS_NOT_IMPLEMENTED"
	ErrCodeRateLimited         ErrorCode = "RATE_LIMITED"
	ErrCodeNotificationFailed  ErrorCode = "NOTIFICATION_FAILED"
)

type AppError struct {
	Type       ErrorType     `json:"type"`
	Code       ErrorCode     `json:"code"`
	Message    string        `json:"message"`
	Details    interface{}   `json:"details,omitempty"`
	StatusCode int           `json:"-"`
	RetryAfter time.Duration `json:"-"`
	Cause      error         `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on type and code so package level sentinels work with errors.Is
// even after a copy has been decorated with a cause.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// WithCause returns a copy so shared sentinels are never mutated.
func (e *AppError) WithCause(cause error) *AppError {
	cp := *e
	cp.Cause = cause
	return &cp
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func (e *AppError) WithMessage(message string) *AppError {
	cp := *e
	cp.Message = message
	return &cp
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewExpiredError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeExpired,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusGone,
	}
}

// NewLockedError carries the remaining lock time; the HTTP layer turns it into Retry-After.
func NewLockedError(message string, code ErrorCode, retryAfter time.Duration) *AppError {
	return &AppError{
		Type:       ErrorTypeLocked,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusLocked,
		RetryAfter: retryAfter,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewExternalError(message string, code ErrorCode, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

var (
	ErrInvalidCredentials = NewUnauthorizedError("Provided credentials are incorrect", ErrCodeInvalidCredentials)
	ErrUserInactive       = NewForbiddenError("User account is inactive", ErrCodeUserInactive)
	ErrInvalidToken       = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired       = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
	ErrNotCompanyAdmin    = NewForbiddenError("Admin access to this company is required", ErrCodeNotCompanyAdmin)
	ErrRateLimited        = &AppError{
		Type:       ErrorTypeForbidden,
		Code:       ErrCodeRateLimited,
		Message:    "Too many requests, slow down",
		StatusCode: http.StatusTooManyRequests,
	}
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf reports the error type; anything that is not an AppError counts as internal.
func KindOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	if appErr, ok := IsAppError(err); ok {
		return appErr.Type
	}
	return ErrorTypeInternal
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	if e.Type == ErrorTypeInternal {
		return e.StatusCode, Response{Error: &AppError{Type: e.Type, Code: e.Code, Message: "Internal server error"}}
	}
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
