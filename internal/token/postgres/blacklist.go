package postgres

import (
	"context"
	"time"

	tokenDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/token"
	"github.com/frahmantamala/tenant-auth/internal/token"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BlacklistRepository keys revocations on the unique jti column, so the first
// insert wins and every later one is a no-op.
type BlacklistRepository struct {
	db *gorm.DB
}

func NewBlacklistRepository(db *gorm.DB) token.Blacklist {
	return &BlacklistRepository{db: db}
}

func (r *BlacklistRepository) Add(ctx context.Context, jti string, userID int64, tokenType token.Type, expiresAt time.Time) (bool, error) {
	row := &tokenDatamodel.BlacklistedToken{
		JTI:       jti,
		UserID:    userID,
		TokenType: string(tokenType),
		ExpiresAt: expiresAt,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "jti"}}, DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Purge drops entries whose token has expired on its own.
func (r *BlacklistRepository) Purge(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&tokenDatamodel.BlacklistedToken{})
	return res.RowsAffected, res.Error
}
