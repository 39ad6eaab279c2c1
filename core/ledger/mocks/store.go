package mocks

import (
	"context"

	"stock-ledger/core/ledger"

	"github.com/stretchr/testify/mock"
)

// Store is a mock implementation of ledger.Store
type Store struct {
	mock.Mock
}

func (m *Store) GetEntries(ctx context.Context, ids []ledger.Identity) (map[ledger.Identity]ledger.Entry, error) {
	args := m.Called(ctx, ids)
	if out, ok := args.Get(0).(map[ledger.Identity]ledger.Entry); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Store) BulkApply(ctx context.Context, ops []ledger.UpdateOp) (ledger.BulkResult, error) {
	args := m.Called(ctx, ops)
	return args.Get(0).(ledger.BulkResult), args.Error(1)
}

func (m *Store) AppendHistory(ctx context.Context, events []ledger.HistoryEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func (m *Store) GetRecipe(ctx context.Context, result ledger.Identity) (*ledger.Recipe, error) {
	args := m.Called(ctx, result)
	if r, ok := args.Get(0).(*ledger.Recipe); ok {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Store) CreateEntry(ctx context.Context, e ledger.Entry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *Store) DeleteEntry(ctx context.Context, id ledger.Identity) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *Store) RenameEntry(ctx context.Context, id ledger.Identity, newName string) error {
	args := m.Called(ctx, id, newName)
	return args.Error(0)
}

func (m *Store) SetLink(ctx context.Context, id ledger.Identity, target *ledger.Identity) error {
	args := m.Called(ctx, id, target)
	return args.Error(0)
}

func (m *Store) Relink(ctx context.Context, a, b ledger.Identity) error {
	args := m.Called(ctx, a, b)
	return args.Error(0)
}

func (m *Store) SaveRecipe(ctx context.Context, r ledger.Recipe) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *Store) GetTag(ctx context.Context, registry ledger.Registry, name string) (*ledger.Tag, error) {
	args := m.Called(ctx, registry, name)
	if t, ok := args.Get(0).(*ledger.Tag); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Store) CreateTag(ctx context.Context, t ledger.Tag) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *Store) DeleteTag(ctx context.Context, registry ledger.Registry, name string) (bool, error) {
	args := m.Called(ctx, registry, name)
	return args.Bool(0), args.Error(1)
}

func (m *Store) ApplyTagOps(ctx context.Context, ops []ledger.TagOp) error {
	args := m.Called(ctx, ops)
	return args.Error(0)
}

func (m *Store) ListEntries(ctx context.Context, registry ledger.Registry) ([]ledger.Entry, error) {
	args := m.Called(ctx, registry)
	if out, ok := args.Get(0).([]ledger.Entry); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Store) ListRecipes(ctx context.Context) ([]ledger.Recipe, error) {
	args := m.Called(ctx)
	if out, ok := args.Get(0).([]ledger.Recipe); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Store) ListTags(ctx context.Context, registry ledger.Registry) ([]ledger.Tag, error) {
	args := m.Called(ctx, registry)
	if out, ok := args.Get(0).([]ledger.Tag); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Store) ListHistory(ctx context.Context, limit int) ([]ledger.HistoryEvent, error) {
	args := m.Called(ctx, limit)
	if out, ok := args.Get(0).([]ledger.HistoryEvent); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}
