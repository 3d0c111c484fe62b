package postgres

import (
	"context"

	"github.com/frahmantamala/tenant-auth/internal/activity"
	activityDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/activity"
	"gorm.io/gorm"
)

type ActivityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) activity.RepositoryAPI {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) CreateLoginActivity(ctx context.Context, row *activityDatamodel.LoginActivity) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *ActivityRepository) CreateActivityLog(ctx context.Context, row *activityDatamodel.ActivityLog) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *ActivityRepository) ListLoginActivities(ctx context.Context, userID int64, limit int) ([]*activityDatamodel.LoginActivity, error) {
	var rows []*activityDatamodel.LoginActivity
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *ActivityRepository) ListActivityLogs(ctx context.Context, userID int64, limit int) ([]*activityDatamodel.ActivityLog, error) {
	var rows []*activityDatamodel.ActivityLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
