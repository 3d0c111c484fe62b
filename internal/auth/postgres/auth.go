package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/frahmantamala/tenant-auth/internal/auth"
	userDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/user"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) auth.RepositoryAPI {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*userDatamodel.User, error) {
	return r.first(ctx, "id = ?", userID)
}

func (r *UserRepository) FindByIdentifier(ctx context.Context, identifier string) (*userDatamodel.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, gorm.ErrRecordNotFound
	}

	lookups := []struct {
		query string
		arg   string
	}{
		{"username = ?", identifier},
		{"email = ?", strings.ToLower(identifier)},
		{"phone = ?", identifier},
	}
	for _, l := range lookups {
		user, err := r.first(ctx, l.query, l.arg)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *UserRepository) FindByPhone(ctx context.Context, phone string) (*userDatamodel.User, error) {
	return r.first(ctx, "phone = ?", phone)
}

func (r *UserRepository) Create(ctx context.Context, user *userDatamodel.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) EmailTakenByOther(ctx context.Context, email string, userID int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&userDatamodel.User{}).
		Where("email = ? AND id <> ?", email, userID).
		Count(&n).Error
	return n > 0, err
}

// RecordLoginFailure sees the pre-update counter in both SET expressions, so
// concurrent failures never lose an increment.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, userID int64, threshold int, lockUntil time.Time) (int, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&userDatamodel.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"failed_login_attempts": gorm.Expr("failed_login_attempts + 1"),
			"locked_until":          gorm.Expr("CASE WHEN failed_login_attempts + 1 >= ? THEN ? ELSE locked_until END", threshold, lockUntil),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}

	var attempts int
	err := db.Model(&userDatamodel.User{}).
		Select("failed_login_attempts").
		Where("id = ?", userID).
		Scan(&attempts).Error
	return attempts, err
}

func (r *UserRepository) ResetLoginFailures(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).
		Model(&userDatamodel.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"failed_login_attempts": 0,
			"locked_until":          nil,
		}).Error
}

func (r *UserRepository) MarkPhoneVerified(ctx context.Context, phone string) (*userDatamodel.User, error) {
	res := r.db.WithContext(ctx).
		Model(&userDatamodel.User{}).
		Where("phone = ?", phone).
		Update("phone_verified", true)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindByPhone(ctx, phone)
}

func (r *UserRepository) FinalizeCredentials(ctx context.Context, userID int64, email, passwordHash string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&userDatamodel.User{}).
		Where("id = ? AND (password_hash = '' OR password_hash IS NULL)", userID).
		Updates(map[string]interface{}{
			"email":         email,
			"password_hash": passwordHash,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *UserRepository) first(ctx context.Context, query string, args ...interface{}) (*userDatamodel.User, error) {
	var user userDatamodel.User
	if err := r.db.WithContext(ctx).Where(query, args...).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
