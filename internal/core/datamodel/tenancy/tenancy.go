package tenancy

import (
	"time"

	"gorm.io/gorm"
)

type CompanyStatus string

const (
	CompanyStatusActive      CompanyStatus = "active"
	CompanyStatusDeactivated CompanyStatus = "deactivated"
	CompanyStatusDeleted     CompanyStatus = "deleted"
)

type Company struct {
	ID              int64          `gorm:"primaryKey"`
	Name            string         `gorm:"column:name;not null"`
	NameKey         string         `gorm:"column:name_key;not null;uniqueIndex:idx_companies_name_key,where:deleted_at IS NULL"`
	ParentCompanyID *int64         `gorm:"column:parent_company_id;index"`
	Status          CompanyStatus  `gorm:"column:status;type:varchar(20);not null;default:active"`
	CreatedBy       *int64         `gorm:"column:created_by"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt       gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// Role with a nil CompanyID is a system role shared by every company.
type Role struct {
	ID           int64          `gorm:"primaryKey"`
	CompanyID    *int64         `gorm:"column:company_id;uniqueIndex:idx_roles_company_name,where:deleted_at IS NULL"`
	Name         string         `gorm:"column:name;not null;uniqueIndex:idx_roles_company_name,where:deleted_at IS NULL"`
	Description  string         `gorm:"column:description"`
	IsSystemRole bool           `gorm:"column:is_system_role;not null;default:false"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

type Permission struct {
	ID          int64     `gorm:"primaryKey"`
	Code        string    `gorm:"column:code;not null;uniqueIndex"`
	Module      string    `gorm:"column:module;not null"`
	Description string    `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

type RolePermission struct {
	ID           int64          `gorm:"primaryKey"`
	RoleID       int64          `gorm:"column:role_id;not null;uniqueIndex:idx_role_permissions_pair"`
	PermissionID int64          `gorm:"column:permission_id;not null;uniqueIndex:idx_role_permissions_pair"`
	Granted      bool           `gorm:"column:granted;not null"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

type UserCompany struct {
	ID               int64          `gorm:"primaryKey"`
	UserID           int64          `gorm:"column:user_id;not null;uniqueIndex:idx_user_companies_pair"`
	CompanyID        int64          `gorm:"column:company_id;not null;uniqueIndex:idx_user_companies_pair;index"`
	IsActive         bool           `gorm:"column:is_active;not null;default:true"`
	IsPrimaryCompany bool           `gorm:"column:is_primary_company;not null;default:false"`
	JoinedAt         time.Time      `gorm:"column:joined_at;autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt        gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

type UserCompanyRole struct {
	ID            int64          `gorm:"primaryKey"`
	UserCompanyID int64          `gorm:"column:user_company_id;not null;uniqueIndex:idx_user_company_roles_pair"`
	RoleID        int64          `gorm:"column:role_id;not null;uniqueIndex:idx_user_company_roles_pair"`
	AssignedAt    time.Time      `gorm:"column:assigned_at;autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt     gorm.DeletedAt `gorm:"column:deleted_at;index"`
}
