package postgres

import (
	"context"
	"time"

	twofactorDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/twofactor"
	userDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/user"
	"github.com/frahmantamala/tenant-auth/internal/twofactor"
	"gorm.io/gorm"
)

type TwoFactorRepository struct {
	db *gorm.DB
}

func NewTwoFactorRepository(db *gorm.DB) twofactor.RepositoryAPI {
	return &TwoFactorRepository{db: db}
}

func (r *TwoFactorRepository) WithTx(ctx context.Context, fn func(repo twofactor.RepositoryAPI) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&TwoFactorRepository{db: tx})
	})
}

func (r *TwoFactorRepository) GetUser(ctx context.Context, userID int64) (*userDatamodel.User, error) {
	var user userDatamodel.User
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *TwoFactorRepository) SetSecret(ctx context.Context, userID int64, secret string, kind userDatamodel.TwoFactorType) error {
	res := r.db.WithContext(ctx).
		Model(&userDatamodel.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"two_fa_secret":  secret,
			"two_fa_type":    kind,
			"is_2fa_enabled": secret != "",
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *TwoFactorRepository) ReplaceBackupCodes(ctx context.Context, userID int64, hashes []string) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("user_id = ?", userID).Delete(&twofactorDatamodel.BackupCode{}).Error; err != nil {
		return err
	}
	if len(hashes) == 0 {
		return nil
	}
	rows := make([]*twofactorDatamodel.BackupCode, len(hashes))
	for i, h := range hashes {
		rows[i] = &twofactorDatamodel.BackupCode{UserID: userID, CodeHash: h}
	}
	return db.Create(&rows).Error
}

func (r *TwoFactorRepository) CountUnusedBackupCodes(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&twofactorDatamodel.BackupCode{}).
		Where("user_id = ? AND used_at IS NULL", userID).
		Count(&n).Error
	return n, err
}

func (r *TwoFactorRepository) ConsumeBackupCode(ctx context.Context, userID int64, hash string, usedAt time.Time) (bool, error) {
	// single row: a code issued twice in one set would otherwise burn both
	var id int64
	err := r.db.WithContext(ctx).
		Model(&twofactorDatamodel.BackupCode{}).
		Select("id").
		Where("user_id = ? AND code_hash = ? AND used_at IS NULL", userID, hash).
		Limit(1).
		Scan(&id).Error
	if err != nil || id == 0 {
		return false, err
	}

	res := r.db.WithContext(ctx).
		Model(&twofactorDatamodel.BackupCode{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", usedAt)
	return res.RowsAffected == 1, res.Error
}

func (r *TwoFactorRepository) CreateSession(ctx context.Context, session *twofactorDatamodel.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *TwoFactorRepository) GetSession(ctx context.Context, sessionID string) (*twofactorDatamodel.Session, error) {
	var session twofactorDatamodel.Session
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *TwoFactorRepository) MarkSessionVerified(ctx context.Context, sessionID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&twofactorDatamodel.Session{}).
		Where("session_id = ? AND is_verified = ?", sessionID, false).
		Update("is_verified", true)
	return res.RowsAffected == 1, res.Error
}

func (r *TwoFactorRepository) DeleteSessionsBefore(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&twofactorDatamodel.Session{})
	return res.RowsAffected, res.Error
}
