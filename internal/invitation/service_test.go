package invitation_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/frahmantamala/tenant-auth/internal"
	"github.com/frahmantamala/tenant-auth/internal/activity"
	invitationDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/invitation"
	tenancyDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/tenancy"
	userDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/user"
	"github.com/frahmantamala/tenant-auth/internal/invitation"
	invitationPostgres "github.com/frahmantamala/tenant-auth/internal/invitation/postgres"
	"github.com/frahmantamala/tenant-auth/internal/tenancy"
	tenancyPostgres "github.com/frahmantamala/tenant-auth/internal/tenancy/postgres"
	"github.com/frahmantamala/tenant-auth/internal/testutil"
	"github.com/frahmantamala/tenant-auth/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

func TestInvitation(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Invitation Suite")
}

type fakeUsers map[int64]*userDatamodel.User

func (f fakeUsers) GetByID(_ context.Context, id int64) (*userDatamodel.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type sentMessage struct {
	target  string
	message string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, target, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{target: target, message: message})
	return f.err
}

type noAdmins struct{}

func (noAdmins) IsAdmin(context.Context, int64, int64) bool { return false }

type eventLog struct {
	mu    sync.Mutex
	types []activity.EventType
}

func (e *eventLog) Record(_ context.Context, entry activity.Entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, entry.EventType)
	return nil
}

func strPtr(s string) *string { return &s }

const (
	ownerID   int64 = 1
	inviteeID int64 = 2
	otherID   int64 = 3
)

var _ = Describe("Invitation Service", func() {
	var (
		ctx       context.Context
		db        *gorm.DB
		tenancies *tenancy.Service
		notifier  *fakeNotifier
		events    *eventLog
		service   *invitation.Service
		now       time.Time
		acme      *tenancyDatamodel.Company
		adminRole *tenancyDatamodel.Role
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, err = testutil.NewSQLiteDB()
		Expect(err).NotTo(HaveOccurred())

		tenancies = tenancy.NewService(tenancyPostgres.NewTenancyRepository(db), noAdmins{}, nil, logger.Discard())
		notifier = &fakeNotifier{}
		events = &eventLog{}
		users := fakeUsers{
			inviteeID: {ID: inviteeID, Username: "alice", Email: strPtr("A@B.com"), IsActive: true},
			otherID:   {ID: otherID, Username: "mallory", Email: strPtr("mallory@b.com"), IsActive: true},
		}

		now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		service = invitation.NewService(
			invitationPostgres.NewInvitationRepository(db),
			tenancies, users, notifier, events,
			invitation.Config{TTL: 7 * 24 * time.Hour, AcceptURL: "https://app.example.com/accept"},
			logger.Discard(),
		).WithClock(func() time.Time { return now })

		acme, err = tenancies.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Acme"}, ownerID)
		Expect(err).NotTo(HaveOccurred())
		roles, err := tenancies.ListRoles(ctx, acme.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(roles).To(HaveLen(1))
		adminRole = roles[0]
	})

	create := func() *invitationDatamodel.Invitation {
		inv, err := service.Create(ctx, acme.ID, ownerID, invitation.CreateInvitationDTO{Email: "a@b.com", RoleID: adminRole.ID})
		Expect(err).NotTo(HaveOccurred())
		return inv
	}

	Describe("Create", func() {
		It("defaults the token and a seven day expiry and notifies the invitee", func() {
			inv, err := service.Create(ctx, acme.ID, ownerID, invitation.CreateInvitationDTO{Email: " A@B.com ", RoleID: adminRole.ID})
			Expect(err).NotTo(HaveOccurred())

			Expect(inv.Email).To(Equal("a@b.com"))
			Expect(inv.Status).To(Equal(invitationDatamodel.StatusPending))
			Expect(inv.Token).To(HaveLen(43))
			Expect(inv.ExpiresAt).To(BeTemporally("==", now.Add(7*24*time.Hour)))

			Expect(notifier.sent).To(HaveLen(1))
			Expect(notifier.sent[0].target).To(Equal("a@b.com"))
			Expect(notifier.sent[0].message).To(ContainSubstring("https://app.example.com/accept?token=" + inv.Token))
			Expect(events.types).To(ContainElement(activity.EventInvitationCreated))
		})

		It("still creates the invitation when notification fails", func() {
			notifier.err = errors.New("gateway down")
			_, err := service.Create(ctx, acme.ID, ownerID, invitation.CreateInvitationDTO{Email: "a@b.com", RoleID: adminRole.ID})
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects a role owned by another company", func() {
			globex, err := tenancies.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Globex"}, ownerID)
			Expect(err).NotTo(HaveOccurred())
			foreign, err := tenancies.CreateRole(ctx, &globex.ID, tenancy.CreateRoleDTO{Name: "viewer"})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Create(ctx, acme.ID, ownerID, invitation.CreateInvitationDTO{Email: "a@b.com", RoleID: foreign.ID})
			Expect(errors.Is(err, tenancy.ErrRoleOutsideCompany)).To(BeTrue())
		})

		It("accepts system roles for any company", func() {
			employee, err := tenancies.CreateRole(ctx, nil, tenancy.CreateRoleDTO{Name: "employee"})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Create(ctx, acme.ID, ownerID, invitation.CreateInvitationDTO{Email: "a@b.com", RoleID: employee.ID})
			Expect(err).NotTo(HaveOccurred())
		})

		It("allows one pending invitation per email and company until it is revoked", func() {
			// Given a pending invitation for a@b.com
			first := create()

			// When another one is created for the same email
			_, err := service.Create(ctx, acme.ID, ownerID, invitation.CreateInvitationDTO{Email: "a@b.com", RoleID: adminRole.ID})

			// Then it conflicts
			Expect(errors.Is(err, invitation.ErrAlreadyPending)).To(BeTrue())
			Expect(internal.KindOf(err)).To(Equal(internal.ErrorTypeConflict))

			// And after revoking the first a new one succeeds
			_, err = service.Revoke(ctx, ownerID, first.ID)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Create(ctx, acme.ID, ownerID, invitation.CreateInvitationDTO{Email: "a@b.com", RoleID: adminRole.ID})
			Expect(err).NotTo(HaveOccurred())
		})

		It("frees the slot held by a pending invitation that aged out", func() {
			first := create()
			now = now.Add(8 * 24 * time.Hour)

			_, err := service.Create(ctx, acme.ID, ownerID, invitation.CreateInvitationDTO{Email: "a@b.com", RoleID: adminRole.ID})
			Expect(err).NotTo(HaveOccurred())

			stale, err := service.Get(ctx, first.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stale.Status).To(Equal(invitationDatamodel.StatusExpired))
		})

		It("rejects a caller supplied token that already exists", func() {
			_, err := service.Create(ctx, acme.ID, ownerID, invitation.CreateInvitationDTO{Email: "a@b.com", RoleID: adminRole.ID, Token: "fixed-token"})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Create(ctx, acme.ID, ownerID, invitation.CreateInvitationDTO{Email: "c@d.com", RoleID: adminRole.ID, Token: "fixed-token"})
			Expect(errors.Is(err, invitation.ErrTokenTaken)).To(BeTrue())
		})

		It("validates input before touching the store", func() {
			_, err := service.Create(ctx, acme.ID, ownerID, invitation.CreateInvitationDTO{Email: "not-an-email", RoleID: adminRole.ID})
			Expect(internal.KindOf(err)).To(Equal(internal.ErrorTypeValidation))
		})
	})

	Describe("Accept", func() {
		It("creates the membership and role grant and marks the invitation accepted", func() {
			inv := create()

			result, err := service.Accept(ctx, inv.Token, inviteeID)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Membership.UserID).To(Equal(inviteeID))
			Expect(result.Membership.CompanyID).To(Equal(acme.ID))
			Expect(result.Assignment.RoleID).To(Equal(adminRole.ID))

			stored, err := service.Get(ctx, inv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(invitationDatamodel.StatusAccepted))
			Expect(stored.AcceptedBy).NotTo(BeNil())
			Expect(*stored.AcceptedBy).To(Equal(inviteeID))
			Expect(events.types).To(ContainElement(activity.EventInvitationAccepted))
		})

		It("refuses a second accept of the same token", func() {
			inv := create()
			_, err := service.Accept(ctx, inv.Token, inviteeID)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Accept(ctx, inv.Token, inviteeID)
			Expect(errors.Is(err, invitation.ErrInvalidState)).To(BeTrue())
			Expect(err.Error()).To(Equal("cannot operate on accepted invitation"))
		})

		It("expires the invitation when accepted too late", func() {
			inv := create()
			now = now.Add(7*24*time.Hour + time.Second)

			_, err := service.Accept(ctx, inv.Token, inviteeID)
			Expect(errors.Is(err, invitation.ErrExpired)).To(BeTrue())
			Expect(internal.KindOf(err)).To(Equal(internal.ErrorTypeExpired))

			stored, err := service.Get(ctx, inv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(invitationDatamodel.StatusExpired))
		})

		It("rejects a user whose email differs and leaves the invitation pending", func() {
			inv := create()

			_, err := service.Accept(ctx, inv.Token, otherID)
			Expect(errors.Is(err, invitation.ErrEmailMismatch)).To(BeTrue())

			stored, err := service.Get(ctx, inv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(invitationDatamodel.StatusPending))
		})

		It("returns not found for an unknown token", func() {
			_, err := service.Accept(ctx, "does-not-exist", inviteeID)
			Expect(errors.Is(err, invitation.ErrNotFound)).To(BeTrue())
		})

		It("reactivates a previously removed membership instead of duplicating it", func() {
			old, err := tenancies.AssociateUser(ctx, inviteeID, acme.ID, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(tenancies.RemoveUser(ctx, acme.ID, old.ID)).To(Succeed())

			inv := create()
			result, err := service.Accept(ctx, inv.Token, inviteeID)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Membership.ID).To(Equal(old.ID))
			Expect(result.Membership.IsActive).To(BeTrue())
		})

		It("lets exactly one of many concurrent accepts win", func() {
			inv := create()

			const attempts = 6
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				failures  []error
			)
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := service.Accept(ctx, inv.Token, inviteeID)
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						successes++
						return
					}
					failures = append(failures, err)
				}()
			}
			wg.Wait()

			Expect(successes).To(Equal(1))
			for _, err := range failures {
				Expect(errors.Is(err, invitation.ErrInvalidState)).To(BeTrue())
			}

			var assignments int64
			Expect(db.Model(&tenancyDatamodel.UserCompanyRole{}).Count(&assignments).Error).To(Succeed())
			// owner's admin grant plus the invitee's
			Expect(assignments).To(BeEquivalentTo(2))
		})
	})

	Describe("Revoke and Resend", func() {
		It("extends the expiry on resend and notifies again", func() {
			inv := create()
			now = now.Add(3 * 24 * time.Hour)

			resent, err := service.Resend(ctx, ownerID, inv.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(resent.ExpiresAt).To(BeTemporally("==", now.Add(7*24*time.Hour)))
			Expect(notifier.sent).To(HaveLen(2))
			Expect(events.types).To(ContainElement(activity.EventInvitationResent))
		})

		It("refuses to operate on terminal invitations", func() {
			inv := create()
			_, err := service.Revoke(ctx, ownerID, inv.ID)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Resend(ctx, ownerID, inv.ID)
			Expect(errors.Is(err, invitation.ErrInvalidState)).To(BeTrue())
			Expect(err.Error()).To(Equal("cannot operate on revoked invitation"))

			_, err = service.Revoke(ctx, ownerID, inv.ID)
			Expect(errors.Is(err, invitation.ErrInvalidState)).To(BeTrue())
		})

		It("lists invitations of a company filtered by status", func() {
			first := create()
			_, err := service.Revoke(ctx, ownerID, first.ID)
			Expect(err).NotTo(HaveOccurred())
			create()

			pending := invitationDatamodel.StatusPending
			rows, err := service.ListForCompany(ctx, acme.ID, &pending)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))

			all, err := service.ListForCompany(ctx, acme.ID, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(2))
		})
	})

	It("never puts the token in a response body", func() {
		inv := create()
		resp := invitation.ToInvitationResponse(inv)
		Expect(strings.Contains(strings.ToLower(string(mustJSON(resp))), "token")).To(BeFalse())
	})
})

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	Expect(err).NotTo(HaveOccurred())
	return b
}
