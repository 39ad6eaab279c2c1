package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stock-ledger/core/database"
	"stock-ledger/core/ledger"
	"stock-ledger/feature/stock/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Archiver receives history events trimmed by retention.
type Archiver interface {
	Archive(ctx context.Context, events []ledger.HistoryEvent) error
}

// Store is the gorm-backed ledger.Store.
type Store struct {
	db           *gorm.DB
	logger       *zap.Logger
	historyLimit int
	archiver     Archiver
}

// Option customizes a Store.
type Option func(*Store)

// WithArchiver hands trimmed history to a.
func WithArchiver(a Archiver) Option {
	return func(s *Store) { s.archiver = a }
}

// WithHistoryLimit sets the number of retained history events.
func WithHistoryLimit(n int) Option {
	return func(s *Store) { s.historyLimit = n }
}

// New wraps db. Single-op writes skip gorm's implicit transaction: batches
// are deliberately non-transactional.
func New(db *gorm.DB, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		db:           db.Session(&gorm.Session{SkipDefaultTransaction: true}),
		logger:       logger,
		historyLimit: 1000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ledger.Store = (*Store)(nil)

// Migrate creates or updates the ledger tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate ledger tables: %w", err)
	}
	return nil
}

// classify marks connection-level failures as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if database.IsConnectionError(err) {
		return fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	return err
}

func byIdentity(db *gorm.DB, id ledger.Identity) *gorm.DB {
	return db.Where("registry = ? AND category = ? AND name = ?", string(id.Registry), id.Category, id.Name)
}

func linkedTo(db *gorm.DB, id ledger.Identity) *gorm.DB {
	return db.Where("linked_registry = ? AND linked_category = ? AND linked_name = ?", string(id.Registry), id.Category, id.Name)
}

// findEntry returns the row for id, or nil.
func findEntry(tx *gorm.DB, id ledger.Identity) (*models.EntryRow, error) {
	var row models.EntryRow
	err := byIdentity(tx, id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetEntries reads all ids with one query.
func (s *Store) GetEntries(ctx context.Context, ids []ledger.Identity) (map[ledger.Identity]ledger.Entry, error) {
	out := make(map[ledger.Identity]ledger.Entry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	// SQLite has no row-value IN lists, so the identities are OR-ed.
	conds := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids)*3)
	for _, id := range ids {
		conds = append(conds, "(registry = ? AND category = ? AND name = ?)")
		args = append(args, string(id.Registry), id.Category, id.Name)
	}

	var rows []models.EntryRow
	if err := s.db.WithContext(ctx).Where(strings.Join(conds, " OR "), args...).Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	for _, row := range rows {
		e := row.ToEntry()
		out[e.Identity] = e
	}
	return out, nil
}

// BulkApply applies each op as its own statement in submission order. An op
// matching no row, or failing with a non-connection error, is reported as not
// applied. A connection failure stops the batch.
func (s *Store) BulkApply(ctx context.Context, ops []ledger.UpdateOp) (ledger.BulkResult, error) {
	res := ledger.BulkResult{Applied: make([]bool, len(ops))}

	for i, op := range ops {
		q := byIdentity(s.db.WithContext(ctx).Model(&models.EntryRow{}), op.Identity)

		var tx *gorm.DB
		switch op.Operation {
		case ledger.OpIncrement:
			tx = q.Update("quantity", gorm.Expr("CASE WHEN quantity + ? < 0 THEN 0 ELSE quantity + ? END", op.Amount, op.Amount))
		case ledger.OpSetQuantity:
			tx = q.Update("quantity", op.Amount)
		case ledger.OpSetRequired:
			tx = q.Update("required", op.Amount)
		default:
			s.logger.Warn("Skipping unknown operation", zap.String("operation", string(op.Operation)))
			continue
		}

		if tx.Error != nil {
			if err := classify(tx.Error); errors.Is(err, ledger.ErrStoreUnavailable) {
				return res, fmt.Errorf("op %d of %d (%s %s): %w", i+1, len(ops), op.Operation, op.Identity, err)
			}
			s.logger.Error("Update op failed",
				zap.String("entry", op.Identity.String()),
				zap.String("operation", string(op.Operation)),
				zap.Error(tx.Error),
			)
			continue
		}
		res.Applied[i] = tx.RowsAffected > 0
	}
	return res, nil
}

// AppendHistory inserts events and trims the log to the retention limit.
// Trimmed events go to the archiver first; if archiving fails they are kept.
func (s *Store) AppendHistory(ctx context.Context, events []ledger.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]models.HistoryRow, 0, len(events))
	for _, ev := range events {
		rows = append(rows, models.NewHistoryRow(ev))
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return classify(err)
	}

	if err := s.trimHistory(ctx); err != nil {
		s.logger.Warn("Failed to trim history", zap.Error(err))
	}
	return nil
}

func (s *Store) trimHistory(ctx context.Context) error {
	if s.historyLimit <= 0 {
		return nil
	}
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&models.HistoryRow{}).Count(&total).Error; err != nil {
		return err
	}
	over := int(total) - s.historyLimit
	if over <= 0 {
		return nil
	}

	var old []models.HistoryRow
	if err := db.Order("id ASC").Limit(over).Find(&old).Error; err != nil {
		return err
	}

	if s.archiver != nil {
		events := make([]ledger.HistoryEvent, 0, len(old))
		for _, row := range old {
			events = append(events, row.ToEvent())
		}
		if err := s.archiver.Archive(ctx, events); err != nil {
			return fmt.Errorf("failed to archive %d events: %w", len(events), err)
		}
	}

	ids := make([]uint, 0, len(old))
	for _, row := range old {
		ids = append(ids, row.ID)
	}
	return db.Where("id IN ?", ids).Delete(&models.HistoryRow{}).Error
}

// GetRecipe loads a recipe with its materials in order.
func (s *Store) GetRecipe(ctx context.Context, result ledger.Identity) (*ledger.Recipe, error) {
	var row models.RecipeRow
	err := s.db.WithContext(ctx).
		Preload("Materials", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("category = ? AND result_name = ?", result.Category, result.Name).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	r := row.ToRecipe()
	return &r, nil
}

// CreateEntry inserts e and sets the reciprocal link on an unlinked target.
func (s *Store) CreateEntry(ctx context.Context, e ledger.Entry) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findEntry(tx, e.Identity)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", ledger.ErrAlreadyExists, e.Identity)
		}

		row := models.NewEntryRow(e)
		if err := tx.Create(&row).Error; err != nil {
			return err
		}

		if e.LinkedItem == nil {
			return nil
		}
		return byIdentity(tx.Model(&models.EntryRow{}), *e.LinkedItem).
			Where("linked_registry = ''").
			Updates(map[string]any{
				"linked_registry": string(e.Registry),
				"linked_category": e.Category,
				"linked_name":     e.Name,
			}).Error
	})
	return classify(err)
}

// DeleteEntry removes id with its recipe, tag memberships and inbound links.
func (s *Store) DeleteEntry(ctx context.Context, id ledger.Identity) (bool, error) {
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := byIdentity(tx, id).Delete(&models.EntryRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true

		if id.Registry == ledger.RegistryCrafted {
			var recipe models.RecipeRow
			err := tx.Where("category = ? AND result_name = ?", id.Category, id.Name).Take(&recipe).Error
			switch {
			case err == nil:
				if err := tx.Where("recipe_id = ?", recipe.ID).Delete(&models.MaterialRow{}).Error; err != nil {
					return err
				}
				if err := tx.Delete(&recipe).Error; err != nil {
					return err
				}
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return err
			}
		}

		if err := byIdentity(tx, id).Delete(&models.TagMemberRow{}).Error; err != nil {
			return err
		}

		return linkedTo(tx.Model(&models.EntryRow{}), id).Updates(map[string]any{
			"linked_registry": "",
			"linked_category": "",
			"linked_name":     "",
		}).Error
	})
	if err != nil {
		return false, classify(err)
	}
	return deleted, nil
}

// RenameEntry renames id and rewrites every reference to it.
func (s *Store) RenameEntry(ctx context.Context, id ledger.Identity, newName string) error {
	renamed := id.Renamed(newName)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := findEntry(tx, id)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
		}
		taken, err := findEntry(tx, renamed)
		if err != nil {
			return err
		}
		if taken != nil {
			return fmt.Errorf("%w: %s", ledger.ErrNameTaken, renamed)
		}

		if err := tx.Model(row).Update("name", newName).Error; err != nil {
			return err
		}
		if err := linkedTo(tx.Model(&models.EntryRow{}), id).Update("linked_name", newName).Error; err != nil {
			return err
		}
		if err := byIdentity(tx.Model(&models.TagMemberRow{}), id).Update("name", newName).Error; err != nil {
			return err
		}

		switch id.Registry {
		case ledger.RegistryCrafted:
			return tx.Model(&models.RecipeRow{}).
				Where("category = ? AND result_name = ?", id.Category, id.Name).
				Update("result_name", newName).Error
		default:
			return tx.Model(&models.MaterialRow{}).
				Where("category = ? AND name = ?", id.Category, id.Name).
				Update("name", newName).Error
		}
	})
	return classify(err)
}

// SetLink points id at target; nil clears the link.
func (s *Store) SetLink(ctx context.Context, id ledger.Identity, target *ledger.Identity) error {
	var row models.EntryRow
	row.SetLink(target)
	res := byIdentity(s.db.WithContext(ctx).Model(&models.EntryRow{}), id).Updates(map[string]any{
		"linked_registry": row.LinkedRegistry,
		"linked_category": row.LinkedCategory,
		"linked_name":     row.LinkedName,
	})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	return nil
}

// Relink pairs a and b and clears links left on their former partners.
func (s *Store) Relink(ctx context.Context, a, b ledger.Identity) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range []ledger.Identity{a, b} {
			row, err := findEntry(tx, id)
			if err != nil {
				return err
			}
			if row == nil {
				return fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
			}
		}

		for _, id := range []ledger.Identity{a, b} {
			if err := linkedTo(tx.Model(&models.EntryRow{}), id).Updates(map[string]any{
				"linked_registry": "",
				"linked_category": "",
				"linked_name":     "",
			}).Error; err != nil {
				return err
			}
		}

		for _, pair := range [][2]ledger.Identity{{a, b}, {b, a}} {
			if err := byIdentity(tx.Model(&models.EntryRow{}), pair[0]).Updates(map[string]any{
				"linked_registry": string(pair[1].Registry),
				"linked_category": pair[1].Category,
				"linked_name":     pair[1].Name,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return classify(err)
}

// SaveRecipe replaces the recipe for r's result.
func (s *Store) SaveRecipe(ctx context.Context, r ledger.Recipe) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result, err := findEntry(tx, r.Result())
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("%w: %s", ledger.ErrNotFound, r.Result())
		}

		var existing models.RecipeRow
		err = tx.Where("category = ? AND result_name = ?", r.Category, r.ResultName).Take(&existing).Error
		switch {
		case err == nil:
			if err := tx.Where("recipe_id = ?", existing.ID).Delete(&models.MaterialRow{}).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			existing = models.RecipeRow{Category: r.Category, ResultName: r.ResultName}
			if err := tx.Omit("Materials").Create(&existing).Error; err != nil {
				return err
			}
		default:
			return err
		}

		row := models.NewRecipeRow(r)
		if len(row.Materials) == 0 {
			return nil
		}
		for i := range row.Materials {
			row.Materials[i].RecipeID = existing.ID
		}
		return tx.Create(&row.Materials).Error
	})
	return classify(err)
}

func (s *Store) findTag(tx *gorm.DB, registry ledger.Registry, name string) (*models.TagRow, error) {
	var row models.TagRow
	err := tx.Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("registry = ? AND name = ?", string(registry), name).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetTag returns the tag with its members, or nil.
func (s *Store) GetTag(ctx context.Context, registry ledger.Registry, name string) (*ledger.Tag, error) {
	row, err := s.findTag(s.db.WithContext(ctx), registry, name)
	if err != nil {
		return nil, classify(err)
	}
	if row == nil {
		return nil, nil
	}
	t := row.ToTag()
	return &t, nil
}

// CreateTag inserts an empty tag.
func (s *Store) CreateTag(ctx context.Context, t ledger.Tag) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.findTag(tx, t.Registry, t.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: tag %s", ledger.ErrAlreadyExists, t.Name)
		}
		return tx.Create(&models.TagRow{Registry: string(t.Registry), Name: t.Name, Color: t.Color}).Error
	})
	return classify(err)
}

// DeleteTag removes a tag and its memberships.
func (s *Store) DeleteTag(ctx context.Context, registry ledger.Registry, name string) (bool, error) {
	deleted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.findTag(tx, registry, name)
		if err != nil || row == nil {
			return err
		}
		if err := tx.Where("tag_id = ?", row.ID).Delete(&models.TagMemberRow{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.TagRow{}, row.ID).Error; err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, classify(err)
	}
	return deleted, nil
}

// ApplyTagOps applies membership changes in one transaction, creating missing
// tags for additions.
func (s *Store) ApplyTagOps(ctx context.Context, ops []ledger.TagOp) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range ops {
			row, err := s.findTag(tx, op.Registry, op.Tag)
			if err != nil {
				return err
			}
			if row == nil {
				if !op.Added {
					continue
				}
				row = &models.TagRow{Registry: string(op.Registry), Name: op.Tag, Color: op.Color}
				if err := tx.Create(row).Error; err != nil {
					return err
				}
			}

			member := byIdentity(tx.Where("tag_id = ?", row.ID), op.Member)
			if !op.Added {
				if err := member.Delete(&models.TagMemberRow{}).Error; err != nil {
					return err
				}
				continue
			}

			var count int64
			if err := member.Model(&models.TagMemberRow{}).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			if err := tx.Create(&models.TagMemberRow{
				TagID:    row.ID,
				Registry: string(op.Member.Registry),
				Category: op.Member.Category,
				Name:     op.Member.Name,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return classify(err)
}

// ListEntries returns a registry ordered by category, display order and name.
func (s *Store) ListEntries(ctx context.Context, registry ledger.Registry) ([]ledger.Entry, error) {
	var rows []models.EntryRow
	if err := s.db.WithContext(ctx).
		Where("registry = ?", string(registry)).
		Order("category ASC, sort_order ASC, name ASC").
		Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	out := make([]ledger.Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToEntry())
	}
	return out, nil
}

// ListRecipes returns every recipe.
func (s *Store) ListRecipes(ctx context.Context) ([]ledger.Recipe, error) {
	var rows []models.RecipeRow
	if err := s.db.WithContext(ctx).
		Preload("Materials", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("category ASC, result_name ASC").
		Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	out := make([]ledger.Recipe, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToRecipe())
	}
	return out, nil
}

// ListTags returns a registry's tags with members.
func (s *Store) ListTags(ctx context.Context, registry ledger.Registry) ([]ledger.Tag, error) {
	var rows []models.TagRow
	if err := s.db.WithContext(ctx).
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("registry = ?", string(registry)).
		Order("name ASC").
		Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	out := make([]ledger.Tag, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToTag())
	}
	return out, nil
}

// ListHistory returns the newest events first. limit <= 0 returns all.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]ledger.HistoryEvent, error) {
	q := s.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.HistoryRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	out := make([]ledger.HistoryEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToEvent())
	}
	return out, nil
}
