package invitation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/frahmantamala/tenant-auth/internal"
	"github.com/frahmantamala/tenant-auth/internal/activity"
	"github.com/frahmantamala/tenant-auth/internal/core/common/validation"
	invitationDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/invitation"
	tenancyDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/tenancy"
	userDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/user"
	"github.com/frahmantamala/tenant-auth/internal/notification"
	"github.com/frahmantamala/tenant-auth/internal/tenancy"
	"gorm.io/gorm"
)

type RepositoryAPI interface {
	// WithTx runs fn with invitation and membership writers bound to one transaction.
	WithTx(ctx context.Context, fn func(repo RepositoryAPI, members MembershipWriter) error) error

	Create(ctx context.Context, inv *invitationDatamodel.Invitation) error
	GetByID(ctx context.Context, id int64) (*invitationDatamodel.Invitation, error)
	GetByToken(ctx context.Context, token string) (*invitationDatamodel.Invitation, error)
	FindPending(ctx context.Context, companyID int64, email string) (*invitationDatamodel.Invitation, error)
	ListForCompany(ctx context.Context, companyID int64, status *invitationDatamodel.Status) ([]*invitationDatamodel.Invitation, error)
	// UpdateStatus moves the row only while it is still in from; the bool reports whether it moved.
	UpdateStatus(ctx context.Context, id int64, from, to invitationDatamodel.Status, acceptedBy *int64) (bool, error)
	ExtendExpiry(ctx context.Context, id int64, expiresAt time.Time) (bool, error)
}

// MembershipWriter materializes an accepted invitation into a grant.
type MembershipWriter interface {
	UpsertUserCompany(ctx context.Context, userID, companyID int64, isPrimary bool) (*tenancyDatamodel.UserCompany, error)
	UpsertUserCompanyRole(ctx context.Context, userCompanyID, roleID int64) (*tenancyDatamodel.UserCompanyRole, error)
}

// Directory resolves companies and roles; *tenancy.Service satisfies it.
type Directory interface {
	GetCompany(ctx context.Context, id int64) (*tenancyDatamodel.Company, error)
	GetRole(ctx context.Context, id int64) (*tenancyDatamodel.Role, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*userDatamodel.User, error)
}

type AcceptResult struct {
	Membership *tenancyDatamodel.UserCompany
	Assignment *tenancyDatamodel.UserCompanyRole
}

type Service struct {
	repo     RepositoryAPI
	dir      Directory
	users    UserLookup
	notifier notification.Notifier
	recorder activity.Recorder
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
}

func NewService(repo RepositoryAPI, dir Directory, users UserLookup, notifier notification.Notifier, recorder activity.Recorder, cfg Config, logger *slog.Logger) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	return &Service{
		repo:     repo,
		dir:      dir,
		users:    users,
		notifier: notifier,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

// WithClock replaces the time source. Tests only.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Create(ctx context.Context, companyID, invitedBy int64, dto CreateInvitationDTO) (*invitationDatamodel.Invitation, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	email := validation.NormalizeEmail(dto.Email)
	now := s.now()

	company, err := s.dir.GetCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	role, err := s.dir.GetRole(ctx, dto.RoleID)
	if err != nil {
		return nil, err
	}
	if !tenancy.RoleBelongsTo(role, companyID) {
		return nil, tenancy.ErrRoleOutsideCompany
	}

	expiresAt := now.Add(s.cfg.TTL)
	if dto.ExpiresAt != nil {
		if !dto.ExpiresAt.After(now) {
			return nil, internal.NewValidationFieldError("expires_at", "expires_at must be in the future", internal.ErrCodeValidationFailed)
		}
		expiresAt = *dto.ExpiresAt
	}

	existing, err := s.repo.FindPending(ctx, companyID, email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, s.systemError(err, "failed to look up pending invitation", "company_id", companyID)
	}
	if existing != nil {
		if !IsExpired(existing, now) {
			return nil, ErrAlreadyPending
		}
		// a stale pending row still holds the unique slot
		if _, err := s.expire(ctx, existing); err != nil {
			return nil, err
		}
	}

	token := dto.Token
	if token == "" {
		if token, err = GenerateToken(); err != nil {
			return nil, s.systemError(err, "failed to generate invitation token")
		}
	} else if _, err := s.repo.GetByToken(ctx, token); err == nil {
		return nil, ErrTokenTaken
	}

	inv := &invitationDatamodel.Invitation{
		CompanyID: companyID,
		Email:     email,
		RoleID:    role.ID,
		Token:     token,
		Status:    invitationDatamodel.StatusPending,
		ExpiresAt: expiresAt,
		InvitedBy: invitedBy,
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyPending
		}
		return nil, s.systemError(err, "failed to create invitation", "company_id", companyID)
	}

	s.logger.InfoContext(ctx, "invitation created",
		"invitation_id", inv.ID, "company_id", companyID, "role_id", role.ID, "invited_by", invitedBy)
	s.record(ctx, invitedBy, companyID, activity.EventInvitationCreated, inv)
	s.notify(ctx, inv, company.Name)
	return inv, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*invitationDatamodel.Invitation, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.systemError(err, "failed to load invitation", "invitation_id", id)
	}
	return inv, nil
}

func (s *Service) ListForCompany(ctx context.Context, companyID int64, status *invitationDatamodel.Status) ([]*invitationDatamodel.Invitation, error) {
	rows, err := s.repo.ListForCompany(ctx, companyID, status)
	if err != nil {
		return nil, s.systemError(err, "failed to list invitations", "company_id", companyID)
	}
	return rows, nil
}

// Accept turns a pending invitation into a membership plus role grant. The status
// flip, the membership upsert and the role upsert commit together or not at all.
func (s *Service) Accept(ctx context.Context, token string, userID int64) (*AcceptResult, error) {
	if strings.TrimSpace(token) == "" {
		return nil, internal.NewValidationFieldError("token", "token is required", internal.ErrCodeValidationFailed)
	}

	inv, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.systemError(err, "failed to load invitation by token")
	}
	if inv.Status != invitationDatamodel.StatusPending {
		return nil, invalidState(inv.Status)
	}
	if IsExpired(inv, s.now()) {
		if _, err := s.expire(ctx, inv); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, s.systemError(err, "failed to load accepting user", "user_id", userID)
	}
	if user.Email == nil || !strings.EqualFold(strings.TrimSpace(*user.Email), inv.Email) {
		s.logger.WarnContext(ctx, "invitation email mismatch", "invitation_id", inv.ID, "user_id", userID)
		return nil, ErrEmailMismatch
	}

	role, err := s.dir.GetRole(ctx, inv.RoleID)
	if err != nil {
		return nil, err
	}
	if !tenancy.RoleBelongsTo(role, inv.CompanyID) {
		return nil, tenancy.ErrRoleOutsideCompany
	}
	if _, err := s.dir.GetCompany(ctx, inv.CompanyID); err != nil {
		return nil, err
	}

	result := &AcceptResult{}
	err = s.repo.WithTx(ctx, func(repo RepositoryAPI, members MembershipWriter) error {
		moved, err := repo.UpdateStatus(ctx, inv.ID, invitationDatamodel.StatusPending, invitationDatamodel.StatusAccepted, &userID)
		if err != nil {
			return err
		}
		if !moved {
			current, err := repo.GetByID(ctx, inv.ID)
			if err != nil {
				return err
			}
			return invalidState(current.Status)
		}

		if result.Membership, err = members.UpsertUserCompany(ctx, userID, inv.CompanyID, false); err != nil {
			return err
		}
		result.Assignment, err = members.UpsertUserCompanyRole(ctx, result.Membership.ID, inv.RoleID)
		return err
	})
	if err != nil {
		if _, ok := internal.IsAppError(err); ok {
			s.logger.InfoContext(ctx, "invitation accept rejected", "invitation_id", inv.ID, "user_id", userID, "error", err)
			return nil, err
		}
		return nil, s.systemError(err, "failed to accept invitation", "invitation_id", inv.ID, "user_id", userID)
	}

	s.logger.InfoContext(ctx, "invitation accepted", "invitation_id", inv.ID, "company_id", inv.CompanyID, "user_id", userID)
	s.record(ctx, userID, inv.CompanyID, activity.EventInvitationAccepted, inv)
	return result, nil
}

// Revoke cancels a pending invitation. Company admin rights are checked by the caller.
func (s *Service) Revoke(ctx context.Context, actorID, id int64) (*invitationDatamodel.Invitation, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != invitationDatamodel.StatusPending {
		return nil, invalidState(inv.Status)
	}

	moved, err := s.repo.UpdateStatus(ctx, inv.ID, invitationDatamodel.StatusPending, invitationDatamodel.StatusRevoked, nil)
	if err != nil {
		return nil, s.systemError(err, "failed to revoke invitation", "invitation_id", id)
	}
	if !moved {
		return nil, s.currentState(ctx, id)
	}
	inv.Status = invitationDatamodel.StatusRevoked

	s.logger.InfoContext(ctx, "invitation revoked", "invitation_id", id, "actor_id", actorID)
	s.record(ctx, actorID, inv.CompanyID, activity.EventInvitationRevoked, inv)
	return inv, nil
}

// Resend pushes the expiry out by the configured TTL and notifies the invitee again.
func (s *Service) Resend(ctx context.Context, actorID, id int64) (*invitationDatamodel.Invitation, error) {
	inv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status != invitationDatamodel.StatusPending {
		return nil, invalidState(inv.Status)
	}

	expiresAt := s.now().Add(s.cfg.TTL)
	moved, err := s.repo.ExtendExpiry(ctx, inv.ID, expiresAt)
	if err != nil {
		return nil, s.systemError(err, "failed to extend invitation", "invitation_id", id)
	}
	if !moved {
		return nil, s.currentState(ctx, id)
	}
	inv.ExpiresAt = expiresAt

	s.logger.InfoContext(ctx, "invitation resent", "invitation_id", id, "actor_id", actorID)
	s.record(ctx, actorID, inv.CompanyID, activity.EventInvitationResent, inv)

	companyName := ""
	if company, err := s.dir.GetCompany(ctx, inv.CompanyID); err == nil {
		companyName = company.Name
	}
	s.notify(ctx, inv, companyName)
	return inv, nil
}

// expire lazily records that a pending invitation aged out. Losing the race to
// another transition is fine.
func (s *Service) expire(ctx context.Context, inv *invitationDatamodel.Invitation) (bool, error) {
	moved, err := s.repo.UpdateStatus(ctx, inv.ID, invitationDatamodel.StatusPending, invitationDatamodel.StatusExpired, nil)
	if err != nil {
		return false, s.systemError(err, "failed to expire invitation", "invitation_id", inv.ID)
	}
	if moved {
		inv.Status = invitationDatamodel.StatusExpired
		s.logger.InfoContext(ctx, "invitation expired", "invitation_id", inv.ID)
	}
	return moved, nil
}

func (s *Service) currentState(ctx context.Context, id int64) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return invalidState(current.Status)
}

// notify is fire-and-forget. The message holds the token, so only the outcome is logged.
func (s *Service) notify(ctx context.Context, inv *invitationDatamodel.Invitation, companyName string) {
	if s.notifier == nil {
		return
	}
	link := inv.Token
	if s.cfg.AcceptURL != "" {
		link = s.cfg.AcceptURL + "?token=" + inv.Token
	}
	message := fmt.Sprintf("You have been invited to join %s. Accept before %s: %s",
		companyName, inv.ExpiresAt.UTC().Format(time.RFC1123), link)

	if err := s.notifier.Send(ctx, inv.Email, message); err != nil {
		s.logger.WarnContext(ctx, "failed to send invitation notification", "invitation_id", inv.ID, "error", err)
	}
}

func (s *Service) record(ctx context.Context, userID, companyID int64, eventType activity.EventType, inv *invitationDatamodel.Invitation) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.Record(ctx, activity.Entry{
		UserID:    userID,
		CompanyID: activity.CompanyRef(companyID),
		EventType: eventType,
		Metadata: map[string]interface{}{
			"invitation_id": inv.ID,
			"email":         inv.Email,
			"role_id":       inv.RoleID,
		},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record activity", "event_type", eventType, "error", err)
	}
}

func (s *Service) systemError(err error, msg string, args ...any) error {
	s.logger.Error(msg, append(args, "error", err)...)
	return internal.NewInternalError(msg, err)
}
