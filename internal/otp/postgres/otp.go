package postgres

import (
	"context"
	"time"

	otpDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/otp"
	"github.com/frahmantamala/tenant-auth/internal/otp"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OTPRepository struct {
	db *gorm.DB
}

func NewOTPRepository(db *gorm.DB) otp.RepositoryAPI {
	return &OTPRepository{db: db}
}

// Replace upserts on phone_number, resetting the attempt counter and any block.
func (r *OTPRepository) Replace(ctx context.Context, rec *otpDatamodel.OTP) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "phone_number"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"code":          rec.Code,
			"expires_at":    rec.ExpiresAt,
			"attempts":      0,
			"is_blocked":    false,
			"blocked_until": nil,
			"created_at":    rec.CreatedAt,
		}),
	}).Create(rec).Error
}

func (r *OTPRepository) Get(ctx context.Context, phone string) (*otpDatamodel.OTP, error) {
	var rec otpDatamodel.OTP
	if err := r.db.WithContext(ctx).Where("phone_number = ?", phone).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecordFailure relies on SET expressions seeing the pre-update row, so the
// threshold check and the increment cannot interleave with another guess.
// The ELSE branches keep the column types for the bound parameters.
func (r *OTPRepository) RecordFailure(ctx context.Context, phone string, maxAttempts int, blockedUntil time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&otpDatamodel.OTP{}).
		Where("phone_number = ? AND is_blocked = ?", phone, false).
		Updates(map[string]interface{}{
			"attempts":      gorm.Expr("attempts + 1"),
			"is_blocked":    gorm.Expr("CASE WHEN attempts + 1 >= ? THEN ? ELSE is_blocked END", maxAttempts, true),
			"blocked_until": gorm.Expr("CASE WHEN attempts + 1 >= ? THEN ? ELSE blocked_until END", maxAttempts, blockedUntil),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *OTPRepository) Unblock(ctx context.Context, phone string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&otpDatamodel.OTP{}).
		Where("phone_number = ? AND is_blocked = ?", phone, true).
		Updates(map[string]interface{}{
			"attempts":      0,
			"is_blocked":    false,
			"blocked_until": nil,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *OTPRepository) Delete(ctx context.Context, phone string) error {
	return r.db.WithContext(ctx).Where("phone_number = ?", phone).Delete(&otpDatamodel.OTP{}).Error
}

func (r *OTPRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&otpDatamodel.OTP{})
	return res.RowsAffected, res.Error
}
