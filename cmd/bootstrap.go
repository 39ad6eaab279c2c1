package cmd

import (
	"context"
	"fmt"

	"stock-ledger/core/config"
	"stock-ledger/core/database"
	"stock-ledger/core/ledger"
	"stock-ledger/core/logger"
	"stock-ledger/core/storage"
	"stock-ledger/feature/stock"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runtime bundles what every command builds before doing its work.
type runtime struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *gorm.DB
	storage storage.Client
	stock   *stock.Service
}

// bootstrap loads configuration and connects the ledger to its backends.
// The database is only required by the gorm driver; object storage is only
// connected when enabled.
func bootstrap(ctx context.Context) (*runtime, error) {
	// 1. Load Configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Initialize Logger
	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logg}

	// 3. Connect to Database
	if cfg.Ledger.Driver == ledger.DriverGorm {
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("database connection required by the %s driver: %w", ledger.DriverGorm, err)
		}
		rt.db = db
		logg.Info("Connected to ledger database", zap.String("driver", cfg.Database.Driver))
	}

	// 4. Initialize Storage (Optional)
	if cfg.Storage.Enabled {
		client, err := storage.NewClient(cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		if err := storage.EnsureBucket(ctx, client, cfg.Storage.Bucket, cfg.Storage.Region); err != nil {
			return nil, err
		}
		rt.storage = client
		logg.Info("History archiving enabled", zap.String("bucket", cfg.Storage.Bucket))
	}

	// 5. Build the ledger
	svc, err := stock.NewService(stock.Deps{
		Config:  cfg.Ledger,
		DB:      rt.db,
		Storage: rt.storage,
		Bucket:   cfg.Storage.Bucket,
		Logger:   logg,
		AdminKey: cfg.Server.AdminKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build ledger: %w", err)
	}
	rt.stock = svc

	return rt, nil
}
