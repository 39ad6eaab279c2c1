package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stock-ledger/core/metrics"

	"go.uber.org/zap"
)

// Notifier is told when a category changed so a front-end can refresh.
type Notifier interface {
	Changed(ctx context.Context, registry Registry, category string)
}

type nopNotifier struct{}

func (nopNotifier) Changed(context.Context, Registry, string) {}

// Options configures a Service.
type Options struct {
	Retry    RetryConfig
	Notifier Notifier
	Clock    Clock
}

// Service is the operation surface front-ends call into.
type Service struct {
	store       Store
	coordinator *Coordinator
	recipes     *RecipeResolver
	mirror      *Synchronizer
	workers     *WorkerTracker
	notifier    Notifier
	logger      *zap.Logger
	clock       Clock
}

// NewService wires the engine over store.
func NewService(store Store, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		store:       store,
		coordinator: NewCoordinator(store, logger, opts.Retry, opts.Clock),
		recipes:     NewRecipeResolver(store, opts.Clock),
		mirror:      NewSynchronizer(opts.Clock),
		workers:     NewWorkerTracker(opts.Clock),
		notifier:    notifier,
		logger:      logger,
		clock:       opts.Clock,
	}
}

// Workers exposes the worker tracker for read-side views.
func (s *Service) Workers() *WorkerTracker {
	return s.workers
}

// NewEntry describes an entry to add.
type NewEntry struct {
	Identity
	Quantity   int       `json:"quantity"`
	Required   int       `json:"required"`
	Kind       Kind      `json:"kind"`
	LinkedItem *Identity `json:"linked_item,omitempty"`
	Emoji      string    `json:"emoji,omitempty"`
	Order      int       `json:"order"`
}

// AddEntry creates an entry. An intermediate without an explicit link is
// linked to the same-named entry of the opposite registry when one exists.
func (s *Service) AddEntry(ctx context.Context, in NewEntry, actor Actor) (Entry, error) {
	if err := in.Identity.Validate(); err != nil {
		return Entry{}, err
	}
	if in.Quantity < 0 {
		return Entry{}, fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
	}
	if in.Required < 1 {
		return Entry{}, fmt.Errorf("%w: required must be at least 1", ErrInvalidInput)
	}
	if in.Kind == "" {
		in.Kind = KindMaterial
	}
	if !in.Kind.Valid() {
		return Entry{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, in.Kind)
	}

	link, err := s.resolveLink(ctx, in)
	if err != nil {
		return Entry{}, err
	}

	e := Entry{
		Identity:   in.Identity,
		Quantity:   in.Quantity,
		Required:   in.Required,
		Kind:       in.Kind,
		LinkedItem: link,
		Emoji:      in.Emoji,
		Order:      in.Order,
	}
	if err := s.store.CreateEntry(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("failed to add %s: %w", e.Identity, err)
	}

	details := fmt.Sprintf("quantity %d, required %d, kind %s", e.Quantity, e.Required, e.Kind)
	if link != nil {
		details += ", linked to " + link.String()
	}
	s.record(ctx, newEvent(s.clock, e.Identity, ActionEntryAdded, details, actor))
	s.notifier.Changed(ctx, e.Registry, e.Category)
	return e, nil
}

func (s *Service) resolveLink(ctx context.Context, in NewEntry) (*Identity, error) {
	if in.LinkedItem != nil {
		link := *in.LinkedItem
		if err := link.Validate(); err != nil {
			return nil, err
		}
		if link.Registry != in.Registry.Opposite() {
			return nil, fmt.Errorf("%w: %s must point at the %s registry", ErrInvalidLink, link, in.Registry.Opposite())
		}
		mirror, ok, err := getEntry(ctx, s.store, link)
		if err != nil {
			return nil, fmt.Errorf("failed to look up mirror %s: %w", link, err)
		}
		if ok && mirror.LinkedItem != nil && *mirror.LinkedItem != in.Identity {
			return nil, fmt.Errorf("%w: %s is already linked to %s", ErrInvalidLink, link, *mirror.LinkedItem)
		}
		return &link, nil
	}
	if in.Kind != KindIntermediate {
		return nil, nil
	}

	candidate := ID(in.Registry.Opposite(), in.Category, in.Name)
	mirror, ok, err := getEntry(ctx, s.store, candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to look up mirror %s: %w", candidate, err)
	}
	if !ok {
		return nil, nil
	}
	if mirror.LinkedItem != nil && *mirror.LinkedItem != in.Identity {
		return nil, nil
	}
	return &candidate, nil
}

// LinkEntries pairs two existing entries of opposite registries. Former
// partners of either end lose their link.
func (s *Service) LinkEntries(ctx context.Context, a, b Identity, actor Actor) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	if a.Registry == b.Registry {
		return fmt.Errorf("%w: %s and %s are in the same registry", ErrInvalidLink, a, b)
	}
	entries, err := s.store.GetEntries(ctx, []Identity{a, b})
	if err != nil {
		return fmt.Errorf("failed to read link ends: %w", err)
	}
	for _, id := range []Identity{a, b} {
		if _, ok := entries[id]; !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
	}
	if err := s.store.Relink(ctx, a, b); err != nil {
		return fmt.Errorf("failed to link %s and %s: %w", a, b, err)
	}
	s.logger.Info("Linked entries", zap.String("a", a.String()), zap.String("b", b.String()), zap.String("user", actor.UserName))
	return nil
}

// RemoveEntry deletes an entry and cascades its recipe, worker assignment and
// tag memberships.
func (s *Service) RemoveEntry(ctx context.Context, id Identity, actor Actor) (bool, error) {
	if err := id.Validate(); err != nil {
		return false, err
	}
	removed, err := s.store.DeleteEntry(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to remove %s: %w", id, err)
	}
	s.workers.Release(id)
	if !removed {
		return false, nil
	}
	s.record(ctx, newEvent(s.clock, id, ActionEntryRemoved, "removed", actor))
	s.notifier.Changed(ctx, id.Registry, id.Category)
	return true, nil
}

// RenameEntry renames an entry and rewrites every reference to it.
func (s *Service) RenameEntry(ctx context.Context, id Identity, newName string, actor Actor) error {
	if err := id.Validate(); err != nil {
		return err
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return fmt.Errorf("%w: new name is required", ErrInvalidInput)
	}
	if newName == id.Name {
		return nil
	}
	if err := s.store.RenameEntry(ctx, id, newName); err != nil {
		return fmt.Errorf("failed to rename %s: %w", id, err)
	}
	renamed := id.Renamed(newName)
	s.workers.Rekey(id, renamed)
	s.record(ctx, newEvent(s.clock, renamed, ActionEntryRenamed, fmt.Sprintf("%s -> %s", id.Name, newName), actor))
	s.notifier.Changed(ctx, id.Registry, id.Category)
	return nil
}

// SetQuantity sets an absolute quantity through the coordinator.
func (s *Service) SetQuantity(ctx context.Context, id Identity, value int, actor Actor) (*ApplyResult, error) {
	return s.apply(ctx, Intent{Kind: IntentSetQuantity, Target: id, Value: value, Actor: actor})
}

// IncrementQuantity adds delta (possibly negative) through the coordinator.
func (s *Service) IncrementQuantity(ctx context.Context, id Identity, delta int, actor Actor) (*ApplyResult, error) {
	return s.apply(ctx, Intent{Kind: IntentIncrementQuantity, Target: id, Value: delta, Actor: actor})
}

// SetRequired changes the target quantity through the coordinator.
func (s *Service) SetRequired(ctx context.Context, id Identity, value int, actor Actor) (*ApplyResult, error) {
	return s.apply(ctx, Intent{Kind: IntentSetRequired, Target: id, Value: value, Actor: actor})
}

func (s *Service) apply(ctx context.Context, in Intent) (*ApplyResult, error) {
	res, err := s.coordinator.Apply(ctx, in)
	if res != nil && res.Applied > 0 {
		s.notifier.Changed(ctx, in.Target.Registry, in.Target.Category)
	}
	return res, err
}

// SaveRecipe replaces the recipe of a crafted entry. Every material must be
// an existing raw entry of the same category.
func (s *Service) SaveRecipe(ctx context.Context, result Identity, materials []MaterialLine, actor Actor) error {
	if err := result.Validate(); err != nil {
		return err
	}
	if result.Registry != RegistryCrafted {
		return fmt.Errorf("%w: recipes belong to crafted entries", ErrInvalidInput)
	}

	ids := []Identity{result}
	seen := make(map[string]struct{}, len(materials))
	for _, line := range materials {
		if line.Category == "" {
			line.Category = result.Category
		}
		if line.Category != result.Category {
			return fmt.Errorf("%w: material %s is not in category %s", ErrInvalidInput, line.Name, result.Category)
		}
		if line.QuantityPerUnit < 1 {
			return fmt.Errorf("%w: material %s needs a quantity per unit of at least 1", ErrInvalidInput, line.Name)
		}
		if _, dup := seen[line.Name]; dup {
			return fmt.Errorf("%w: material %s listed twice", ErrInvalidInput, line.Name)
		}
		seen[line.Name] = struct{}{}
		ids = append(ids, line.Identity())
	}

	entries, err := s.store.GetEntries(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to read recipe entries: %w", err)
	}
	if _, ok := entries[result]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, result)
	}

	recipe := Recipe{Category: result.Category, ResultName: result.Name}
	var missing []string
	for _, line := range materials {
		line.Category = result.Category
		if _, ok := entries[line.Identity()]; !ok {
			missing = append(missing, line.Name)
			continue
		}
		recipe.Materials = append(recipe.Materials, line)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMaterialNotFound, missing)
	}

	if err := s.store.SaveRecipe(ctx, recipe); err != nil {
		return fmt.Errorf("failed to save recipe for %s: %w", result, err)
	}
	s.record(ctx, newEvent(s.clock, result, ActionRecipeSaved, fmt.Sprintf("%d materials", len(recipe.Materials)), actor))
	return nil
}

// Recipe returns the recipe of a crafted entry, or nil.
func (s *Service) Recipe(ctx context.Context, result Identity) (*Recipe, error) {
	return s.recipes.Recipe(ctx, result)
}

// StartWork assigns an existing entry to actor.
func (s *Service) StartWork(ctx context.Context, id Identity, actor Actor) (Assignment, error) {
	if err := id.Validate(); err != nil {
		return Assignment{}, err
	}
	if _, ok, err := getEntry(ctx, s.store, id); err != nil {
		return Assignment{}, fmt.Errorf("failed to read %s: %w", id, err)
	} else if !ok {
		return Assignment{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	a, err := s.workers.Start(id, actor)
	if err != nil {
		metrics.RecordWorkerConflicts(1)
		return Assignment{}, err
	}
	return a, nil
}

// StopWork releases an assignment. A nil actor is an administrative reset.
func (s *Service) StopWork(ctx context.Context, id Identity, actor *Actor) error {
	if err := id.Validate(); err != nil {
		return err
	}
	return s.workers.Stop(id, actor)
}

// StartAll assigns several entries at once and itemizes the outcome.
func (s *Service) StartAll(ctx context.Context, ids []Identity, actor Actor) (StartAllReport, error) {
	entries, err := s.store.GetEntries(ctx, ids)
	if err != nil {
		return StartAllReport{}, fmt.Errorf("failed to read entries: %w", err)
	}

	var (
		found   []Entry
		missing []Identity
	)
	for _, id := range ids {
		if e, ok := entries[id]; ok {
			found = append(found, e)
		} else {
			missing = append(missing, id)
		}
	}

	report := s.workers.StartAll(found, actor)
	report.Missing = missing
	if len(report.Conflicts) > 0 {
		metrics.RecordWorkerConflicts(len(report.Conflicts))
	}
	return report, nil
}

// CreateTag adds an empty tag to a registry.
func (s *Service) CreateTag(ctx context.Context, registry Registry, name, color string) error {
	if !registry.Valid() {
		return fmt.Errorf("%w: unknown registry %q", ErrInvalidInput, registry)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: tag name is required", ErrInvalidInput)
	}
	return s.store.CreateTag(ctx, Tag{Registry: registry, Name: name, Color: color})
}

// DeleteTag removes a tag and its memberships.
func (s *Service) DeleteTag(ctx context.Context, registry Registry, name string) (bool, error) {
	return s.store.DeleteTag(ctx, registry, name)
}

// TagAdd puts id into tagName and mirrors the membership to its linked entry.
func (s *Service) TagAdd(ctx context.Context, id Identity, tagName string, actor Actor) error {
	return s.changeTag(ctx, id, tagName, true, actor)
}

// TagRemove takes id out of tagName and mirrors the removal.
func (s *Service) TagRemove(ctx context.Context, id Identity, tagName string, actor Actor) error {
	return s.changeTag(ctx, id, tagName, false, actor)
}

func (s *Service) changeTag(ctx context.Context, id Identity, tagName string, added bool, actor Actor) error {
	if err := id.Validate(); err != nil {
		return err
	}
	entry, ok, err := getEntry(ctx, s.store, id)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	tag, err := s.store.GetTag(ctx, id.Registry, tagName)
	if err != nil {
		return fmt.Errorf("failed to read tag %s: %w", tagName, err)
	}
	if tag == nil {
		return fmt.Errorf("%w: %s in %s", ErrTagNotFound, tagName, id.Registry)
	}

	ops := []TagOp{{Registry: id.Registry, Tag: tag.Name, Color: tag.Color, Member: id, Added: added}}

	snapshot := map[Identity]Entry{}
	if mirrorID, linked := entry.Mirror(); linked {
		snapshot, err = s.store.GetEntries(ctx, []Identity{mirrorID})
		if err != nil {
			return fmt.Errorf("failed to read mirror of %s: %w", id, err)
		}
	}
	ops = append(ops, s.mirror.PlanMirrorTagMembership(entry, *tag, added, snapshot)...)

	if err := s.store.ApplyTagOps(ctx, ops); err != nil {
		return fmt.Errorf("failed to update tag %s: %w", tagName, err)
	}

	action := ActionTagAdded
	if !added {
		action = ActionTagRemoved
	}
	var events []HistoryEvent
	for _, op := range ops {
		events = append(events, newEvent(s.clock, op.Member, action, op.Tag, actor))
	}
	s.record(ctx, events...)
	return nil
}

// ApplyTagSelection submits a multi-entry tag change collected by a
// front-end. Entries are processed independently and failures are joined.
func (s *Service) ApplyTagSelection(ctx context.Context, sel PendingTagSelection) error {
	var errs []error
	for _, id := range sel.Entries {
		if err := s.changeTag(ctx, id, sel.Tag, !sel.Remove, sel.Actor); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Entry reads a single entry.
func (s *Service) Entry(ctx context.Context, id Identity) (Entry, error) {
	e, ok, err := getEntry(ctx, s.store, id)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// Entries lists a registry.
func (s *Service) Entries(ctx context.Context, registry Registry) ([]Entry, error) {
	return s.store.ListEntries(ctx, registry)
}

// History returns the newest events first.
func (s *Service) History(ctx context.Context, limit int) ([]HistoryEvent, error) {
	return s.store.ListHistory(ctx, limit)
}

// record appends structural history. Failures are logged, the mutation
// itself already happened.
func (s *Service) record(ctx context.Context, events ...HistoryEvent) {
	if len(events) == 0 {
		return
	}
	if err := s.store.AppendHistory(ctx, events); err != nil {
		s.logger.Warn("Failed to append history", zap.Int("events", len(events)), zap.Error(err))
	}
}
