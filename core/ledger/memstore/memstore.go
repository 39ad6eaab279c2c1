// Package memstore is an in-memory ledger.Store used by tests and by the
// "memory" ledger driver.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"stock-ledger/core/ledger"
)

// DefaultHistoryLimit is the retention used when New is given zero.
const DefaultHistoryLimit = 1000

type tagKey struct {
	registry ledger.Registry
	name     string
}

// Store keeps every record in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	entries map[ledger.Identity]ledger.Entry
	recipes map[ledger.Identity]ledger.Recipe
	tags    map[tagKey]*ledger.Tag
	history []ledger.HistoryEvent

	historyLimit int
}

// New creates an empty store keeping at most historyLimit events.
func New(historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Store{
		entries:      make(map[ledger.Identity]ledger.Entry),
		recipes:      make(map[ledger.Identity]ledger.Recipe),
		tags:         make(map[tagKey]*ledger.Tag),
		historyLimit: historyLimit,
	}
}

var _ ledger.Store = (*Store)(nil)

func cloneEntry(e ledger.Entry) ledger.Entry {
	if e.LinkedItem != nil {
		link := *e.LinkedItem
		e.LinkedItem = &link
	}
	return e
}

func cloneRecipe(r ledger.Recipe) ledger.Recipe {
	r.Materials = append([]ledger.MaterialLine(nil), r.Materials...)
	return r
}

func cloneTag(t *ledger.Tag) ledger.Tag {
	out := *t
	out.Members = append([]ledger.Identity(nil), t.Members...)
	return out
}

// GetEntries implements ledger.EntryReader.
func (s *Store) GetEntries(ctx context.Context, ids []ledger.Identity) (map[ledger.Identity]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[ledger.Identity]ledger.Entry, len(ids))
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			out[id] = cloneEntry(e)
		}
	}
	return out, nil
}

// BulkApply implements ledger.BatchWriter. Each op is applied on its own.
func (s *Store) BulkApply(ctx context.Context, ops []ledger.UpdateOp) (ledger.BulkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := ledger.BulkResult{Applied: make([]bool, len(ops))}
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
		}
		e, ok := s.entries[op.Identity]
		if !ok {
			continue
		}
		switch op.Operation {
		case ledger.OpIncrement:
			e.Quantity += op.Amount
			if e.Quantity < 0 {
				e.Quantity = 0
			}
		case ledger.OpSetQuantity:
			e.Quantity = op.Amount
		case ledger.OpSetRequired:
			e.Required = op.Amount
		default:
			continue
		}
		s.entries[op.Identity] = e
		res.Applied[i] = true
	}
	return res, nil
}

// AppendHistory implements ledger.HistoryWriter and drops the oldest events
// beyond the retention limit.
func (s *Store) AppendHistory(ctx context.Context, events []ledger.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, events...)
	if over := len(s.history) - s.historyLimit; over > 0 {
		s.history = append([]ledger.HistoryEvent(nil), s.history[over:]...)
	}
	return nil
}

// GetRecipe implements ledger.RecipeSource.
func (s *Store) GetRecipe(ctx context.Context, result ledger.Identity) (*ledger.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.recipes[result]
	if !ok {
		return nil, nil
	}
	out := cloneRecipe(r)
	return &out, nil
}

// CreateEntry implements ledger.Catalog.
func (s *Store) CreateEntry(ctx context.Context, e ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[e.Identity]; ok {
		return fmt.Errorf("%w: %s", ledger.ErrAlreadyExists, e.Identity)
	}
	s.entries[e.Identity] = cloneEntry(e)

	if e.LinkedItem != nil {
		if target, ok := s.entries[*e.LinkedItem]; ok && target.LinkedItem == nil {
			back := e.Identity
			target.LinkedItem = &back
			s.entries[target.Identity] = target
		}
	}
	return nil
}

// DeleteEntry implements ledger.Catalog.
func (s *Store) DeleteEntry(ctx context.Context, id ledger.Identity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return false, nil
	}
	delete(s.entries, id)
	delete(s.recipes, id)

	for other, e := range s.entries {
		if e.LinkedItem != nil && *e.LinkedItem == id {
			e.LinkedItem = nil
			s.entries[other] = e
		}
	}
	for _, t := range s.tags {
		if t.Registry == id.Registry {
			t.Members = removeMember(t.Members, id)
		}
	}
	return true, nil
}

// RenameEntry implements ledger.Catalog.
func (s *Store) RenameEntry(ctx context.Context, id ledger.Identity, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	renamed := id.Renamed(newName)
	if _, taken := s.entries[renamed]; taken {
		return fmt.Errorf("%w: %s", ledger.ErrNameTaken, renamed)
	}

	delete(s.entries, id)
	e.Identity = renamed
	s.entries[renamed] = e

	for other, oe := range s.entries {
		if oe.LinkedItem != nil && *oe.LinkedItem == id {
			oe.LinkedItem = &renamed
			s.entries[other] = oe
		}
	}

	if r, ok := s.recipes[id]; ok {
		delete(s.recipes, id)
		r.ResultName = newName
		s.recipes[renamed] = r
	}
	if id.Registry == ledger.RegistryRaw {
		for key, r := range s.recipes {
			if r.Category != id.Category {
				continue
			}
			for i := range r.Materials {
				if r.Materials[i].Name == id.Name {
					r.Materials[i].Name = newName
				}
			}
			s.recipes[key] = r
		}
	}

	for _, t := range s.tags {
		for i, m := range t.Members {
			if m == id {
				t.Members[i] = renamed
			}
		}
	}
	return nil
}

// SetLink implements ledger.Catalog.
func (s *Store) SetLink(ctx context.Context, id ledger.Identity, target *ledger.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	if target != nil {
		link := *target
		e.LinkedItem = &link
	} else {
		e.LinkedItem = nil
	}
	s.entries[id] = e
	return nil
}

// Relink implements ledger.Catalog.
func (s *Store) Relink(ctx context.Context, a, b ledger.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []ledger.Identity{a, b} {
		if _, ok := s.entries[id]; !ok {
			return fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
		}
	}
	for other, e := range s.entries {
		if e.LinkedItem != nil && (*e.LinkedItem == a || *e.LinkedItem == b) {
			e.LinkedItem = nil
			s.entries[other] = e
		}
	}

	ea, eb := s.entries[a], s.entries[b]
	toB, toA := b, a
	ea.LinkedItem = &toB
	eb.LinkedItem = &toA
	s.entries[a] = ea
	s.entries[b] = eb
	return nil
}

// SaveRecipe implements ledger.Catalog.
func (s *Store) SaveRecipe(ctx context.Context, r ledger.Recipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[r.Result()]; !ok {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, r.Result())
	}
	s.recipes[r.Result()] = cloneRecipe(r)
	return nil
}

// GetTag implements ledger.Catalog.
func (s *Store) GetTag(ctx context.Context, registry ledger.Registry, name string) (*ledger.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tags[tagKey{registry, name}]
	if !ok {
		return nil, nil
	}
	out := cloneTag(t)
	return &out, nil
}

// CreateTag implements ledger.Catalog.
func (s *Store) CreateTag(ctx context.Context, t ledger.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tagKey{t.Registry, t.Name}
	if _, ok := s.tags[key]; ok {
		return fmt.Errorf("%w: tag %s", ledger.ErrAlreadyExists, t.Name)
	}
	created := cloneTag(&t)
	s.tags[key] = &created
	return nil
}

// DeleteTag implements ledger.Catalog.
func (s *Store) DeleteTag(ctx context.Context, registry ledger.Registry, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tagKey{registry, name}
	if _, ok := s.tags[key]; !ok {
		return false, nil
	}
	delete(s.tags, key)
	return true, nil
}

// ApplyTagOps implements ledger.Catalog.
func (s *Store) ApplyTagOps(ctx context.Context, ops []ledger.TagOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range ops {
		key := tagKey{op.Registry, op.Tag}
		t, ok := s.tags[key]
		if !ok {
			if !op.Added {
				continue
			}
			t = &ledger.Tag{Registry: op.Registry, Name: op.Tag, Color: op.Color}
			s.tags[key] = t
		}
		if op.Added {
			if !t.Has(op.Member) {
				t.Members = append(t.Members, op.Member)
			}
		} else {
			t.Members = removeMember(t.Members, op.Member)
		}
	}
	return nil
}

func removeMember(members []ledger.Identity, id ledger.Identity) []ledger.Identity {
	out := members[:0]
	for _, m := range members {
		if m != id {
			out = append(out, m)
		}
	}
	return out
}

// ListEntries implements ledger.Lister, ordered by category, order, name.
func (s *Store) ListEntries(ctx context.Context, registry ledger.Registry) ([]ledger.Entry, error) {
	s.mu.RLock()
	out := make([]ledger.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Registry == registry {
			out = append(out, cloneEntry(e))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// ListRecipes implements ledger.Lister.
func (s *Store) ListRecipes(ctx context.Context) ([]ledger.Recipe, error) {
	s.mu.RLock()
	out := make([]ledger.Recipe, 0, len(s.recipes))
	for _, r := range s.recipes {
		out = append(out, cloneRecipe(r))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Result().String() < out[j].Result().String()
	})
	return out, nil
}

// ListTags implements ledger.Lister.
func (s *Store) ListTags(ctx context.Context, registry ledger.Registry) ([]ledger.Tag, error) {
	s.mu.RLock()
	var out []ledger.Tag
	for _, t := range s.tags {
		if t.Registry == registry {
			out = append(out, cloneTag(t))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListHistory implements ledger.Lister.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]ledger.HistoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]ledger.HistoryEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.history[i])
	}
	return out, nil
}
