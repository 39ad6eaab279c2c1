package cmd

import (
	"fmt"

	"stock-ledger/core/config"
	"stock-ledger/core/database"
	"stock-ledger/core/logger"
	"stock-ledger/feature/stock/models"
	"stock-ledger/feature/stock/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// migrateCmd creates the ledger tables.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the ledger tables",
	Long:  `Runs gorm AutoMigrate for every ledger table. Existing columns and rows are left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(".")
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		l, err := logger.New(&cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		db, err := database.Connect(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}

		l.Info("Migrating ledger tables", zap.String("driver", cfg.Database.Driver), zap.Int("tables", len(models.All())))
		if err := store.Migrate(db); err != nil {
			return err
		}
		l.Info("Ledger tables are up to date")
		return nil
	},
}

func init() {
	RootCmd.AddCommand(migrateCmd)
}
