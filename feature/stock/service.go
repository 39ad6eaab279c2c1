package stock

import (
	"context"
	"errors"
	"fmt"

	"stock-ledger/core/ledger"
	"stock-ledger/core/ledger/memstore"
	"stock-ledger/core/storage"
	"stock-ledger/feature/stock/store"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrExportUnavailable is returned when history export has no object storage.
var ErrExportUnavailable = errors.New("history export requires object storage")

// Deps carries what the stock feature is built from. DB is required for the
// gorm driver; Storage is optional and enables history archiving.
type Deps struct {
	Config   ledger.Config
	DB       *gorm.DB
	Storage  storage.Client
	Bucket   string
	Logger   *zap.Logger
	Notifier ledger.Notifier
	Clock    ledger.Clock
	// AdminKey unlocks operator-only routes.
	AdminKey string
}

// Service wraps the ledger engine with the persistence chosen by config.
type Service struct {
	ledger   *ledger.Service
	store    ledger.Store
	archiver *store.ObjectArchiver
	logger   *zap.Logger
	adminKey string
}

// NewStore builds the store selected by deps.Config.Driver.
func NewStore(deps Deps) (ledger.Store, *store.ObjectArchiver, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var archiver *store.ObjectArchiver
	if deps.Storage != nil {
		archiver = store.NewObjectArchiver(deps.Storage, deps.Bucket, deps.Config.ArchivePrefix)
	}

	switch deps.Config.Driver {
	case ledger.DriverMemory:
		return memstore.New(deps.Config.HistoryLimit), archiver, nil
	case ledger.DriverGorm, "":
		if deps.DB == nil {
			return nil, nil, fmt.Errorf("ledger driver %q requires a database", ledger.DriverGorm)
		}
		opts := []store.Option{store.WithHistoryLimit(deps.Config.HistoryLimit)}
		if archiver != nil {
			opts = append(opts, store.WithArchiver(archiver))
		}
		return store.New(deps.DB, logger.Named("store"), opts...), archiver, nil
	default:
		return nil, nil, fmt.Errorf("unsupported ledger driver %q", deps.Config.Driver)
	}
}

// NewService builds the store and the engine on top of it.
func NewService(deps Deps) (*Service, error) {
	st, archiver, err := NewStore(deps)
	if err != nil {
		return nil, err
	}
	return NewServiceWithStore(st, archiver, deps), nil
}

// NewServiceWithStore wires the engine over an existing store.
func NewServiceWithStore(st ledger.Store, archiver *store.ObjectArchiver, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		ledger: ledger.NewService(st, logger, ledger.Options{
			Retry:    deps.Config.Retry(),
			Notifier: deps.Notifier,
			Clock:    deps.Clock,
		}),
		store:    st,
		archiver: archiver,
		logger:   logger,
		adminKey: deps.AdminKey,
	}
}

// Ledger returns the engine.
func (s *Service) Ledger() *ledger.Service {
	return s.ledger
}

// Store returns the underlying store for read-side reports.
func (s *Service) Store() ledger.Store {
	return s.store
}

// ExportResult describes a history export.
type ExportResult struct {
	Object string `json:"object"`
	Events int    `json:"events"`
}

// ExportHistory writes the retained history to object storage.
func (s *Service) ExportHistory(ctx context.Context) (*ExportResult, error) {
	if s.archiver == nil {
		return nil, ErrExportUnavailable
	}
	events, err := s.store.ListHistory(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	name, err := s.archiver.Export(ctx, events)
	if err != nil {
		return nil, fmt.Errorf("failed to export history: %w", err)
	}
	s.logger.Info("History exported", zap.String("object", name), zap.Int("events", len(events)))
	return &ExportResult{Object: name, Events: len(events)}, nil
}

// Archives lists archived and exported history objects.
func (s *Service) Archives(ctx context.Context) ([]string, error) {
	if s.archiver == nil {
		return nil, ErrExportUnavailable
	}
	return s.archiver.List(ctx)
}
