// Package testutil opens throwaway databases for repository and service tests.
package testutil

import (
	"fmt"
	"sync/atomic"

	activityDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/activity"
	invitationDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/invitation"
	otpDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/otp"
	tenancyDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/tenancy"
	tokenDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/token"
	twofactorDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/twofactor"
	userDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/user"
	"github.com/jmoiron/sqlx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// Models lists every persisted model in migration order.
func Models() []interface{} {
	return []interface{}{
		&userDatamodel.User{},
		&tenancyDatamodel.Company{},
		&tenancyDatamodel.Role{},
		&tenancyDatamodel.Permission{},
		&tenancyDatamodel.RolePermission{},
		&tenancyDatamodel.UserCompany{},
		&tenancyDatamodel.UserCompanyRole{},
		&invitationDatamodel.Invitation{},
		&otpDatamodel.OTP{},
		&twofactorDatamodel.BackupCode{},
		&twofactorDatamodel.Session{},
		&tokenDatamodel.BlacklistedToken{},
		&activityDatamodel.LoginActivity{},
		&activityDatamodel.ActivityLog{},
	}
}

// NewSQLiteDB returns an isolated in-memory database with every table migrated.
// Each call gets its own shared-cache name so concurrent goroutines in one test
// see the same data through a single connection.
func NewSQLiteDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:tenantauth_%d?mode=memory&cache=shared&_busy_timeout=5000", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, err
	}
	return db, nil
}

// SQLX wraps the same connection for the sqlx read models.
func SQLX(db *gorm.DB) (*sqlx.DB, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	return sqlx.NewDb(sqlDB, "sqlite3"), nil
}
