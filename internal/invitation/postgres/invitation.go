package postgres

import (
	"context"
	"time"

	invitationDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/invitation"
	"github.com/frahmantamala/tenant-auth/internal/invitation"
	tenancyPostgres "github.com/frahmantamala/tenant-auth/internal/tenancy/postgres"
	"gorm.io/gorm"
)

type InvitationRepository struct {
	db *gorm.DB
}

func NewInvitationRepository(db *gorm.DB) invitation.RepositoryAPI {
	return &InvitationRepository{db: db}
}

// WithTx hands fn an invitation repository and a tenancy repository sharing one transaction.
func (r *InvitationRepository) WithTx(ctx context.Context, fn func(repo invitation.RepositoryAPI, members invitation.MembershipWriter) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&InvitationRepository{db: tx}, tenancyPostgres.NewTenancyRepository(tx))
	})
}

func (r *InvitationRepository) Create(ctx context.Context, inv *invitationDatamodel.Invitation) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

func (r *InvitationRepository) GetByID(ctx context.Context, id int64) (*invitationDatamodel.Invitation, error) {
	var inv invitationDatamodel.Invitation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *InvitationRepository) GetByToken(ctx context.Context, token string) (*invitationDatamodel.Invitation, error) {
	var inv invitationDatamodel.Invitation
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *InvitationRepository) FindPending(ctx context.Context, companyID int64, email string) (*invitationDatamodel.Invitation, error) {
	var inv invitationDatamodel.Invitation
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND email = ? AND status = ?", companyID, email, invitationDatamodel.StatusPending).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *InvitationRepository) ListForCompany(ctx context.Context, companyID int64, status *invitationDatamodel.Status) ([]*invitationDatamodel.Invitation, error) {
	var rows []*invitationDatamodel.Invitation
	q := r.db.WithContext(ctx).Where("company_id = ?", companyID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error
	return rows, err
}

// UpdateStatus is a compare-and-set on status; concurrent callers see at most one success.
func (r *InvitationRepository) UpdateStatus(ctx context.Context, id int64, from, to invitationDatamodel.Status, acceptedBy *int64) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	if acceptedBy != nil {
		updates["accepted_by"] = *acceptedBy
	}

	res := r.db.WithContext(ctx).
		Model(&invitationDatamodel.Invitation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

func (r *InvitationRepository) ExtendExpiry(ctx context.Context, id int64, expiresAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&invitationDatamodel.Invitation{}).
		Where("id = ? AND status = ?", id, invitationDatamodel.StatusPending).
		Updates(map[string]interface{}{
			"expires_at": expiresAt,
			"updated_at": time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}
