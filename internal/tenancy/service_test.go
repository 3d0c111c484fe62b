package tenancy_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/frahmantamala/tenant-auth/internal"
	"github.com/frahmantamala/tenant-auth/internal/activity"
	tenancyDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/tenancy"
	"github.com/frahmantamala/tenant-auth/internal/tenancy"
	tenancyPostgres "github.com/frahmantamala/tenant-auth/internal/tenancy/postgres"
	"github.com/frahmantamala/tenant-auth/internal/testutil"
	"github.com/frahmantamala/tenant-auth/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestTenancy(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Tenancy Suite")
}

type fakeAdmins struct {
	admins map[[2]int64]bool
}

func (f *fakeAdmins) IsAdmin(_ context.Context, userID, companyID int64) bool {
	return f.admins[[2]int64{userID, companyID}]
}

type captureRecorder struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (c *captureRecorder) Record(_ context.Context, e activity.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

func (c *captureRecorder) types() []activity.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]activity.EventType, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.EventType)
	}
	return out
}

var _ = Describe("Tenancy Service", func() {
	var (
		ctx      context.Context
		repo     tenancy.RepositoryAPI
		admins   *fakeAdmins
		recorder *captureRecorder
		service  *tenancy.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		db, err := testutil.NewSQLiteDB()
		Expect(err).NotTo(HaveOccurred())

		repo = tenancyPostgres.NewTenancyRepository(db)
		admins = &fakeAdmins{admins: map[[2]int64]bool{}}
		recorder = &captureRecorder{}
		service = tenancy.NewService(repo, admins, recorder, logger.Discard())
	})

	Describe("CreateCompany", func() {
		It("creates the admin role and makes the creator its admin", func() {
			company, err := service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Acme"}, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(company.Status).To(Equal(tenancyDatamodel.CompanyStatusActive))

			roles, err := service.ListRoles(ctx, company.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(roles).To(HaveLen(1))
			Expect(roles[0].Name).To(Equal(tenancy.AdminRoleName))

			memberships, err := service.ListUserCompanies(ctx, 1, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(memberships).To(HaveLen(1))
			Expect(memberships[0].IsPrimaryCompany).To(BeTrue())
			Expect(recorder.types()).To(ContainElement(activity.EventCompanyCreated))
		})

		It("keeps the first company as the creator's only primary one", func() {
			first, err := service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Acme"}, 1)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Globex"}, 1)
			Expect(err).NotTo(HaveOccurred())

			memberships, err := service.ListUserCompanies(ctx, 1, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(memberships).To(HaveLen(2))
			for _, m := range memberships {
				Expect(m.IsPrimaryCompany).To(Equal(m.CompanyID == first.ID))
			}
		})

		It("hides a parent the creator does not administer", func() {
			foreign, err := service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Globex"}, 2)
			Expect(err).NotTo(HaveOccurred())
			admins.admins[[2]int64{2, foreign.ID}] = true

			_, err = service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Child", ParentCompanyID: &foreign.ID}, 1)
			Expect(errors.Is(err, tenancy.ErrCompanyNotFound)).To(BeTrue())

			missing := int64(404)
			admins.admins[[2]int64{1, missing}] = true
			_, err = service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Child", ParentCompanyID: &missing}, 1)
			Expect(errors.Is(err, tenancy.ErrCompanyNotFound)).To(BeTrue())

			child, err := service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Child", ParentCompanyID: &foreign.ID}, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(*child.ParentCompanyID).To(Equal(foreign.ID))
		})

		It("treats names case-insensitively", func() {
			_, err := service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Acme"}, 1)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "  aCME "}, 2)
			Expect(errors.Is(err, tenancy.ErrCompanyNameTaken)).To(BeTrue())
		})

		It("rejects an unknown parent", func() {
			missing := int64(404)
			_, err := service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Child", ParentCompanyID: &missing}, 1)
			Expect(errors.Is(err, tenancy.ErrCompanyNotFound)).To(BeTrue())
		})

		It("rejects a blank name before touching the store", func() {
			_, err := service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "  "}, 1)
			Expect(internal.KindOf(err)).To(Equal(internal.ErrorTypeValidation))
		})
	})

	Describe("SetParent", func() {
		It("refuses to make a company its own ancestor", func() {
			root, err := service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Root"}, 1)
			Expect(err).NotTo(HaveOccurred())
			admins.admins[[2]int64{1, root.ID}] = true
			child, err := service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Child", ParentCompanyID: &root.ID}, 1)
			Expect(err).NotTo(HaveOccurred())
			admins.admins[[2]int64{1, child.ID}] = true
			grandchild, err := service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Grandchild", ParentCompanyID: &child.ID}, 1)
			Expect(err).NotTo(HaveOccurred())
			admins.admins[[2]int64{1, grandchild.ID}] = true

			Expect(service.SetParent(ctx, 1, root.ID, &grandchild.ID)).To(MatchError(tenancy.ErrInvalidParent))
			Expect(service.SetParent(ctx, 1, root.ID, &root.ID)).To(MatchError(tenancy.ErrInvalidParent))

			Expect(service.SetParent(ctx, 1, grandchild.ID, &root.ID)).To(Succeed())
			Expect(service.SetParent(ctx, 1, grandchild.ID, nil)).To(Succeed())
		})

		It("answers a foreign parent the same as a missing one", func() {
			mine, err := service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Acme"}, 1)
			Expect(err).NotTo(HaveOccurred())
			admins.admins[[2]int64{1, mine.ID}] = true
			foreign, err := service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Globex"}, 2)
			Expect(err).NotTo(HaveOccurred())
			admins.admins[[2]int64{2, foreign.ID}] = true

			missing := int64(404)
			Expect(service.SetParent(ctx, 1, mine.ID, &foreign.ID)).To(MatchError(tenancy.ErrCompanyNotFound))
			Expect(service.SetParent(ctx, 1, mine.ID, &missing)).To(MatchError(tenancy.ErrCompanyNotFound))

			company, err := service.GetCompany(ctx, mine.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(company.ParentCompanyID).To(BeNil())
		})
	})

	Describe("ChangeStatus", func() {
		var company *tenancyDatamodel.Company

		BeforeEach(func() {
			var err error
			company, err = service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Acme"}, 1)
			Expect(err).NotTo(HaveOccurred())
		})

		It("allows active to deactivated to deleted and then hides the company", func() {
			Expect(service.ChangeStatus(ctx, 1, company.ID, tenancyDatamodel.CompanyStatusDeactivated)).To(Succeed())
			Expect(service.ChangeStatus(ctx, 1, company.ID, tenancyDatamodel.CompanyStatusDeleted)).To(Succeed())

			_, err := service.GetCompany(ctx, company.ID)
			Expect(errors.Is(err, tenancy.ErrCompanyNotFound)).To(BeTrue())
		})

		It("refuses to delete an active company directly", func() {
			err := service.ChangeStatus(ctx, 1, company.ID, tenancyDatamodel.CompanyStatusDeleted)
			Expect(errors.Is(err, tenancy.ErrInvalidTransition)).To(BeTrue())
		})

		It("allows reactivation", func() {
			Expect(service.ChangeStatus(ctx, 1, company.ID, tenancyDatamodel.CompanyStatusDeactivated)).To(Succeed())
			Expect(service.ChangeStatus(ctx, 1, company.ID, tenancyDatamodel.CompanyStatusActive)).To(Succeed())
		})
	})

	Describe("Roles", func() {
		var acme, globex *tenancyDatamodel.Company

		BeforeEach(func() {
			var err error
			acme, err = service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Acme"}, 1)
			Expect(err).NotTo(HaveOccurred())
			globex, err = service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Globex"}, 2)
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects duplicate role names inside one company", func() {
			_, err := service.CreateRole(ctx, &acme.ID, tenancy.CreateRoleDTO{Name: "editor"})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.CreateRole(ctx, &acme.ID, tenancy.CreateRoleDTO{Name: "Editor"})
			Expect(errors.Is(err, tenancy.ErrRoleExists)).To(BeTrue())

			_, err = service.CreateRole(ctx, &globex.ID, tenancy.CreateRoleDTO{Name: "editor"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects duplicate system role names", func() {
			_, err := service.CreateRole(ctx, nil, tenancy.CreateRoleDTO{Name: "employee"})
			Expect(err).NotTo(HaveOccurred())
			_, err = service.CreateRole(ctx, nil, tenancy.CreateRoleDTO{Name: "employee"})
			Expect(errors.Is(err, tenancy.ErrRoleExists)).To(BeTrue())
		})

		It("never deletes system roles", func() {
			system, err := service.CreateRole(ctx, nil, tenancy.CreateRoleDTO{Name: "employee"})
			Expect(err).NotTo(HaveOccurred())
			Expect(system.IsSystemRole).To(BeTrue())

			err = service.DeleteRole(ctx, acme.ID, system.ID)
			Expect(errors.Is(err, tenancy.ErrSystemRole)).To(BeTrue())
		})

		It("hides another tenant's role on delete", func() {
			role, err := service.CreateRole(ctx, &globex.ID, tenancy.CreateRoleDTO{Name: "auditor"})
			Expect(err).NotTo(HaveOccurred())

			err = service.DeleteRole(ctx, acme.ID, role.ID)
			Expect(errors.Is(err, tenancy.ErrRoleNotFound)).To(BeTrue())

			Expect(service.DeleteRole(ctx, globex.ID, role.ID)).To(Succeed())
			_, err = service.GetRole(ctx, role.ID)
			Expect(errors.Is(err, tenancy.ErrRoleNotFound)).To(BeTrue())
		})

		It("refuses to assign a foreign tenant's role", func() {
			foreign, err := service.CreateRole(ctx, &globex.ID, tenancy.CreateRoleDTO{Name: "auditor"})
			Expect(err).NotTo(HaveOccurred())
			membership, err := service.AssociateUser(ctx, 9, acme.ID, false)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.AssignRole(ctx, 1, acme.ID, membership.ID, foreign.ID)
			Expect(err).To(MatchError(tenancy.ErrRoleOutsideCompany))
		})

		It("assigns system roles in any company and records the grant", func() {
			system, err := service.CreateRole(ctx, nil, tenancy.CreateRoleDTO{Name: "employee"})
			Expect(err).NotTo(HaveOccurred())
			membership, err := service.AssociateUser(ctx, 9, acme.ID, false)
			Expect(err).NotTo(HaveOccurred())

			assignment, err := service.AssignRole(ctx, 1, acme.ID, membership.ID, system.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(recorder.types()).To(ContainElement(activity.EventRoleGranted))

			Expect(service.RemoveRole(ctx, 1, acme.ID, assignment.ID)).To(Succeed())
			Expect(recorder.types()).To(ContainElement(activity.EventRoleRevoked))
		})

		It("does not let one company remove another company's assignment", func() {
			system, err := service.CreateRole(ctx, nil, tenancy.CreateRoleDTO{Name: "employee"})
			Expect(err).NotTo(HaveOccurred())
			membership, err := service.AssociateUser(ctx, 9, acme.ID, false)
			Expect(err).NotTo(HaveOccurred())
			assignment, err := service.AssignRole(ctx, 1, acme.ID, membership.ID, system.ID)
			Expect(err).NotTo(HaveOccurred())

			err = service.RemoveRole(ctx, 2, globex.ID, assignment.ID)
			Expect(errors.Is(err, tenancy.ErrAssignmentNotFound)).To(BeTrue())
		})
	})

	Describe("Permissions", func() {
		It("regrants a revoked pair without duplicating it", func() {
			company, err := service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Acme"}, 1)
			Expect(err).NotTo(HaveOccurred())
			role, err := service.CreateRole(ctx, &company.ID, tenancy.CreateRoleDTO{Name: "billing"})
			Expect(err).NotTo(HaveOccurred())
			perm, err := service.CreatePermission(ctx, tenancy.CreatePermissionDTO{Code: "invoice.pay", Module: "billing"})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.GrantPermission(ctx, 1, role.ID, perm.ID, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(service.RevokePermission(ctx, 1, role.ID, perm.ID)).To(Succeed())
			_, err = service.GrantPermission(ctx, 1, role.ID, perm.ID, true)
			Expect(err).NotTo(HaveOccurred())

			links, err := service.ListRolePermissions(ctx, role.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(links).To(HaveLen(1))
			Expect(recorder.types()).To(ContainElements(activity.EventPermissionGranted, activity.EventPermissionRevoked))
		})

		It("rejects duplicate permission codes", func() {
			_, err := service.CreatePermission(ctx, tenancy.CreatePermissionDTO{Code: "invoice.pay", Module: "billing"})
			Expect(err).NotTo(HaveOccurred())
			_, err = service.CreatePermission(ctx, tenancy.CreatePermissionDTO{Code: "invoice.pay", Module: "billing"})
			Expect(errors.Is(err, tenancy.ErrPermissionExists)).To(BeTrue())
		})
	})

	Describe("ListUserCompanies", func() {
		var acme, globex *tenancyDatamodel.Company

		BeforeEach(func() {
			var err error
			acme, err = service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Acme"}, 1)
			Expect(err).NotTo(HaveOccurred())
			globex, err = service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Globex"}, 2)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.AssociateUser(ctx, 3, globex.ID, false)
			Expect(err).NotTo(HaveOccurred())
			admins.admins[[2]int64{1, acme.ID}] = true
			admins.admins[[2]int64{2, globex.ID}] = true
		})

		It("lets an admin see every member of their own company", func() {
			rows, err := service.ListUserCompanies(ctx, 2, &globex.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(2))
		})

		It("does not let an admin of one company list another company", func() {
			rows, err := service.ListUserCompanies(ctx, 1, &globex.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(BeEmpty())
		})

		It("shows a plain member only their own membership", func() {
			rows, err := service.ListUserCompanies(ctx, 3, &globex.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(1))
			Expect(rows[0].UserID).To(Equal(int64(3)))
		})
	})
})
