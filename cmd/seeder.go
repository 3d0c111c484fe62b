package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/frahmantamala/tenant-auth/internal/tenancy"
	tenancyPostgres "github.com/frahmantamala/tenant-auth/internal/tenancy/postgres"
	"github.com/frahmantamala/tenant-auth/pkg/logger"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the permission catalog and the shared system roles",
	Long:  `Create the default permissions and the system roles every company can assign. Safe to run repeatedly.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer db.Close()

		gormDB, err := initGorm(db)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		lg := logger.LoggerWrapper()
		// admin checks never run while seeding
		service := tenancy.NewService(tenancyPostgres.NewTenancyRepository(gormDB), nil, nil, lg)

		result, err := service.SeedCatalog(context.Background(), tenancy.DefaultCatalog())
		if err != nil {
			log.Fatalf("failed to seed catalog: %v", err)
		}

		fmt.Printf("Seeded %d permissions, %d system roles, %d grants ensured\n",
			result.PermissionsCreated, result.RolesCreated, result.Grants)
	},
}
