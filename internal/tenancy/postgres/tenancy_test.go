package postgres_test

import (
	"context"
	"testing"

	tenancyDatamodel "github.com/frahmantamala/tenant-auth/internal/core/datamodel/tenancy"
	"github.com/frahmantamala/tenant-auth/internal/tenancy"
	tenancyPostgres "github.com/frahmantamala/tenant-auth/internal/tenancy/postgres"
	"github.com/frahmantamala/tenant-auth/internal/testutil"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

func TestTenancyPostgres(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Tenancy Postgres Suite")
}

var _ = Describe("Tenancy Repository", func() {
	var (
		ctx     context.Context
		db      *gorm.DB
		repo    tenancy.RepositoryAPI
		company *tenancyDatamodel.Company
		role    *tenancyDatamodel.Role
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		db, err = testutil.NewSQLiteDB()
		Expect(err).NotTo(HaveOccurred())
		repo = tenancyPostgres.NewTenancyRepository(db)

		company = &tenancyDatamodel.Company{Name: "Acme", NameKey: "acme", Status: tenancyDatamodel.CompanyStatusActive}
		Expect(repo.CreateCompany(ctx, company)).To(Succeed())

		role = &tenancyDatamodel.Role{CompanyID: &company.ID, Name: "editor"}
		Expect(repo.CreateRole(ctx, role)).To(Succeed())
	})

	Describe("RolePermission upsert", func() {
		It("keeps exactly one live row across grant, revoke and regrant", func() {
			perm := &tenancyDatamodel.Permission{Code: "invoice.read", Module: "billing"}
			Expect(repo.CreatePermission(ctx, perm)).To(Succeed())

			// Given a granted pair
			first, err := repo.UpsertRolePermission(ctx, role.ID, perm.ID, true)
			Expect(err).NotTo(HaveOccurred())

			// When it is revoked and granted again
			removed, err := repo.SoftDeleteRolePermission(ctx, role.ID, perm.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeTrue())

			links, err := repo.ListRolePermissions(ctx, role.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(links).To(BeEmpty())

			again, err := repo.UpsertRolePermission(ctx, role.ID, perm.ID, true)
			Expect(err).NotTo(HaveOccurred())

			// Then the original row is revived instead of duplicated
			Expect(again.ID).To(Equal(first.ID))

			var total int64
			Expect(db.Unscoped().Model(&tenancyDatamodel.RolePermission{}).Count(&total).Error).To(Succeed())
			Expect(total).To(Equal(int64(1)))

			links, err = repo.ListRolePermissions(ctx, role.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(links).To(HaveLen(1))
		})

		It("stores an explicit deny on the first write", func() {
			perm := &tenancyDatamodel.Permission{Code: "invoice.delete", Module: "billing"}
			Expect(repo.CreatePermission(ctx, perm)).To(Succeed())

			link, err := repo.UpsertRolePermission(ctx, role.ID, perm.ID, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(link.Granted).To(BeFalse())

			var stored tenancyDatamodel.RolePermission
			Expect(db.Where("id = ?", link.ID).First(&stored).Error).To(Succeed())
			Expect(stored.Granted).To(BeFalse())

			granted, err := repo.UpsertRolePermission(ctx, role.ID, perm.ID, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(granted.ID).To(Equal(link.ID))
			Expect(granted.Granted).To(BeTrue())
		})

		It("reports nothing removed for an unknown pair", func() {
			removed, err := repo.SoftDeleteRolePermission(ctx, role.ID, 999)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeFalse())
		})
	})

	Describe("UserCompany upsert", func() {
		It("reactivates a removed membership instead of inserting", func() {
			first, err := repo.UpsertUserCompany(ctx, 42, company.ID, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.IsActive).To(BeTrue())

			Expect(repo.SoftDeleteUserCompany(ctx, first.ID)).To(Succeed())
			_, err = repo.GetUserCompany(ctx, first.ID)
			Expect(err).To(MatchError(gorm.ErrRecordNotFound))

			again, err := repo.UpsertUserCompany(ctx, 42, company.ID, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.ID).To(Equal(first.ID))
			Expect(again.IsActive).To(BeTrue())

			memberships, err := repo.ListUserCompaniesForUser(ctx, 42)
			Expect(err).NotTo(HaveOccurred())
			Expect(memberships).To(HaveLen(1))
		})

		It("hides memberships of soft-deleted companies", func() {
			_, err := repo.UpsertUserCompany(ctx, 42, company.ID, true)
			Expect(err).NotTo(HaveOccurred())

			Expect(repo.SoftDeleteCompany(ctx, company.ID)).To(Succeed())

			memberships, err := repo.ListUserCompaniesForUser(ctx, 42)
			Expect(err).NotTo(HaveOccurred())
			Expect(memberships).To(BeEmpty())

			_, err = repo.GetCompany(ctx, company.ID)
			Expect(err).To(MatchError(gorm.ErrRecordNotFound))
		})
	})

	Describe("UserCompanyRole upsert", func() {
		It("revives a soft-deleted assignment", func() {
			membership, err := repo.UpsertUserCompany(ctx, 42, company.ID, true)
			Expect(err).NotTo(HaveOccurred())

			first, err := repo.UpsertUserCompanyRole(ctx, membership.ID, role.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.SoftDeleteUserCompanyRole(ctx, first.ID)).To(Succeed())

			again, err := repo.UpsertUserCompanyRole(ctx, membership.ID, role.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.ID).To(Equal(first.ID))

			got, err := repo.GetUserCompanyRole(ctx, first.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.RoleID).To(Equal(role.ID))
		})
	})

	Describe("Company constraints", func() {
		It("rejects a second company with the same name key", func() {
			dup := &tenancyDatamodel.Company{Name: "ACME", NameKey: "acme", Status: tenancyDatamodel.CompanyStatusActive}
			err := repo.CreateCompany(ctx, dup)
			Expect(err).To(MatchError(gorm.ErrDuplicatedKey))
		})

		It("moves status only from the expected state", func() {
			moved, err := repo.UpdateCompanyStatus(ctx, company.ID, tenancyDatamodel.CompanyStatusDeactivated, tenancyDatamodel.CompanyStatusDeleted)
			Expect(err).NotTo(HaveOccurred())
			Expect(moved).To(BeFalse())

			moved, err = repo.UpdateCompanyStatus(ctx, company.ID, tenancyDatamodel.CompanyStatusActive, tenancyDatamodel.CompanyStatusDeactivated)
			Expect(err).NotTo(HaveOccurred())
			Expect(moved).To(BeTrue())
		})

		It("lists company and system roles together", func() {
			system := &tenancyDatamodel.Role{Name: "employee", IsSystemRole: true}
			Expect(repo.CreateRole(ctx, system)).To(Succeed())

			roles, err := repo.ListRoles(ctx, company.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(roles).To(HaveLen(2))

			found, err := repo.FindRoleByName(ctx, nil, "EMPLOYEE")
			Expect(err).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal(system.ID))
		})
	})
})
