package tenancy_test

import (
	"context"

	"github.com/frahmantamala/tenant-auth/internal/tenancy"
	tenancyPostgres "github.com/frahmantamala/tenant-auth/internal/tenancy/postgres"
	"github.com/frahmantamala/tenant-auth/internal/testutil"
	"github.com/frahmantamala/tenant-auth/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SeedCatalog", func() {
	var (
		ctx     context.Context
		service *tenancy.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		db, err := testutil.NewSQLiteDB()
		Expect(err).NotTo(HaveOccurred())
		service = tenancy.NewService(tenancyPostgres.NewTenancyRepository(db), &fakeAdmins{}, nil, logger.Discard())
	})

	It("creates permissions and shared roles once", func() {
		catalog := tenancy.DefaultCatalog()

		first, err := service.SeedCatalog(ctx, catalog)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.PermissionsCreated).To(Equal(len(catalog.Permissions)))
		Expect(first.RolesCreated).To(Equal(len(catalog.Roles)))

		second, err := service.SeedCatalog(ctx, catalog)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.PermissionsCreated).To(BeZero())
		Expect(second.RolesCreated).To(BeZero())
		Expect(second.Grants).To(Equal(first.Grants))
	})

	It("makes system roles visible to every company without granting admin", func() {
		_, err := service.SeedCatalog(ctx, tenancy.DefaultCatalog())
		Expect(err).NotTo(HaveOccurred())

		company, err := service.CreateCompany(ctx, tenancy.CreateCompanyDTO{Name: "Acme"}, 1)
		Expect(err).NotTo(HaveOccurred())

		roles, err := service.ListRoles(ctx, company.ID)
		Expect(err).NotTo(HaveOccurred())

		var shared []string
		for _, r := range roles {
			if r.IsSystemRole {
				shared = append(shared, r.Name)
			}
		}
		Expect(shared).To(ConsistOf("member", "manager", "auditor"))
		Expect(shared).NotTo(ContainElement(tenancy.AdminRoleName))

		manager := roles[0]
		for _, r := range roles {
			if r.Name == "manager" {
				manager = r
			}
		}
		links, err := service.ListRolePermissions(ctx, manager.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(links).To(HaveLen(4))
	})

	It("rejects a role that references an unknown permission", func() {
		catalog := tenancy.Catalog{
			Roles: []tenancy.SystemRole{{Name: "ghost", Permissions: []string{"nope.none"}}},
		}
		_, err := service.SeedCatalog(ctx, catalog)
		Expect(err).To(MatchError(tenancy.ErrPermissionNotFound))
	})
})
