package ledger_test

import (
	"context"
	"sync"
	"testing"

	"stock-ledger/core/ledger"
	"stock-ledger/core/ledger/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []string
}

func (n *recordingNotifier) Changed(ctx context.Context, registry ledger.Registry, category string) {
	n.mu.Lock()
	n.changes = append(n.changes, string(registry)+"/"+category)
	n.mu.Unlock()
}

func newService(s ledger.Store, n ledger.Notifier) *ledger.Service {
	return ledger.NewService(s, zap.NewNop(), ledger.Options{
		Retry:    fastRetry(),
		Notifier: n,
		Clock:    fixedClock,
	})
}

func TestService_AddEntry(t *testing.T) {
	ctx := context.Background()
	s := memstore.New(0)
	n := &recordingNotifier{}
	svc := newService(s, n)

	e, err := svc.AddEntry(ctx, ledger.NewEntry{Identity: ore, Quantity: 3, Required: 10}, alice)
	require.NoError(t, err)
	assert.Equal(t, ledger.KindMaterial, e.Kind)
	assert.Equal(t, []string{"raw/metal"}, n.changes)

	_, err = svc.AddEntry(ctx, ledger.NewEntry{Identity: ore, Quantity: 1, Required: 1}, alice)
	assert.ErrorIs(t, err, ledger.ErrAlreadyExists)

	history, err := svc.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, ledger.ActionEntryAdded, history[0].Action)
}

func TestService_AddEntryValidation(t *testing.T) {
	ctx := context.Background()
	svc := newService(memstore.New(0), nil)
	wrongSide := ledger.ID(ledger.RegistryRaw, "metal", "x")

	tests := []struct {
		name string
		in   ledger.NewEntry
		want error
	}{
		{"required below one", ledger.NewEntry{Identity: ore, Required: 0}, ledger.ErrInvalidInput},
		{"negative quantity", ledger.NewEntry{Identity: ore, Quantity: -1, Required: 1}, ledger.ErrInvalidInput},
		{"blank name", ledger.NewEntry{Identity: ledger.ID(ledger.RegistryRaw, "metal", " "), Required: 1}, ledger.ErrInvalidInput},
		{"unknown kind", ledger.NewEntry{Identity: ore, Required: 1, Kind: "weird"}, ledger.ErrInvalidInput},
		{"link to same registry", ledger.NewEntry{Identity: ore, Required: 1, LinkedItem: &wrongSide}, ledger.ErrInvalidLink},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddEntry(ctx, tt.in, alice)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestService_AddIntermediateAutoLinks(t *testing.T) {
	ctx := context.Background()
	s := memstore.New(0)
	svc := newService(s, nil)

	_, err := svc.AddEntry(ctx, ledger.NewEntry{Identity: rawBar, Required: 5, Kind: ledger.KindIntermediate}, alice)
	require.NoError(t, err)
	crafted, err := svc.AddEntry(ctx, ledger.NewEntry{Identity: craftBar, Required: 5, Kind: ledger.KindIntermediate}, alice)
	require.NoError(t, err)

	require.NotNil(t, crafted.LinkedItem)
	assert.Equal(t, rawBar, *crafted.LinkedItem)

	raw, err := svc.Entry(ctx, rawBar)
	require.NoError(t, err)
	require.NotNil(t, raw.LinkedItem)
	assert.Equal(t, craftBar, *raw.LinkedItem)
}

func TestService_RenameRewritesReferences(t *testing.T) {
	ctx := context.Background()
	s := seedBars(t)
	svc := newService(s, nil)

	require.NoError(t, svc.CreateTag(ctx, ledger.RegistryRaw, "smelting", "#f00"))
	require.NoError(t, svc.TagAdd(ctx, ore, "smelting", alice))
	_, err := svc.StartWork(ctx, ore, alice)
	require.NoError(t, err)

	require.NoError(t, svc.RenameEntry(ctx, ore, "iron ore", alice))
	renamed := ore.Renamed("iron ore")

	recipe, err := svc.Recipe(ctx, craftBar)
	require.NoError(t, err)
	require.NotNil(t, recipe)
	assert.Equal(t, "iron ore", recipe.Materials[0].Name)

	tag, err := s.GetTag(ctx, ledger.RegistryRaw, "smelting")
	require.NoError(t, err)
	assert.True(t, tag.Has(renamed))
	assert.False(t, tag.Has(ore))

	a, held := svc.Workers().AssignmentOf(renamed)
	assert.True(t, held)
	assert.Equal(t, "alice", a.UserName)

	assert.ErrorIs(t, svc.RenameEntry(ctx, renamed, "coal", alice), ledger.ErrNameTaken)
	assert.ErrorIs(t, svc.RenameEntry(ctx, ore, "anything", alice), ledger.ErrNotFound)
}

func TestService_RenameLinkedEntry(t *testing.T) {
	ctx := context.Background()
	s := seedBars(t)
	svc := newService(s, nil)

	require.NoError(t, svc.RenameEntry(ctx, rawBar, "ingot", alice))

	crafted, err := svc.Entry(ctx, craftBar)
	require.NoError(t, err)
	require.NotNil(t, crafted.LinkedItem)
	assert.Equal(t, rawBar.Renamed("ingot"), *crafted.LinkedItem)
}

func TestService_RemoveEntryCascades(t *testing.T) {
	ctx := context.Background()
	s := seedBars(t)
	svc := newService(s, nil)

	_, err := svc.StartWork(ctx, craftBar, alice)
	require.NoError(t, err)

	removed, err := svc.RemoveEntry(ctx, craftBar, alice)
	require.NoError(t, err)
	assert.True(t, removed)

	recipe, err := s.GetRecipe(ctx, craftBar)
	require.NoError(t, err)
	assert.Nil(t, recipe)

	raw, err := svc.Entry(ctx, rawBar)
	require.NoError(t, err)
	assert.Nil(t, raw.LinkedItem)

	assert.Empty(t, svc.Workers().Assignments())

	removed, err = svc.RemoveEntry(ctx, craftBar, alice)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestService_SaveRecipe(t *testing.T) {
	ctx := context.Background()
	s := seedBars(t)
	svc := newService(s, nil)

	tests := []struct {
		name      string
		result    ledger.Identity
		materials []ledger.MaterialLine
		want      error
	}{
		{
			name:      "raw result",
			result:    ore,
			materials: []ledger.MaterialLine{{Name: "coal", QuantityPerUnit: 1}},
			want:      ledger.ErrInvalidInput,
		},
		{
			name:      "missing material",
			result:    craftBar,
			materials: []ledger.MaterialLine{{Name: "unobtainium", QuantityPerUnit: 1}},
			want:      ledger.ErrMaterialNotFound,
		},
		{
			name:      "other category",
			result:    craftBar,
			materials: []ledger.MaterialLine{{Category: "gems", Name: "다이아몬드", QuantityPerUnit: 1}},
			want:      ledger.ErrInvalidInput,
		},
		{
			name:      "duplicate line",
			result:    craftBar,
			materials: []ledger.MaterialLine{{Name: "ore", QuantityPerUnit: 1}, {Name: "ore", QuantityPerUnit: 2}},
			want:      ledger.ErrInvalidInput,
		},
		{
			name:      "zero per unit",
			result:    craftBar,
			materials: []ledger.MaterialLine{{Name: "ore", QuantityPerUnit: 0}},
			want:      ledger.ErrInvalidInput,
		},
		{
			name:      "missing result",
			result:    ledger.ID(ledger.RegistryCrafted, "metal", "nothing"),
			materials: []ledger.MaterialLine{{Name: "ore", QuantityPerUnit: 1}},
			want:      ledger.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, svc.SaveRecipe(ctx, tt.result, tt.materials, alice), tt.want)
		})
	}

	require.NoError(t, svc.SaveRecipe(ctx, craftBar, []ledger.MaterialLine{{Name: "coal", QuantityPerUnit: 3}}, alice))
	recipe, err := svc.Recipe(ctx, craftBar)
	require.NoError(t, err)
	assert.Equal(t, []ledger.MaterialLine{{Category: "metal", Name: "coal", QuantityPerUnit: 3}}, recipe.Materials)
}

func TestService_QuantityNotifies(t *testing.T) {
	ctx := context.Background()
	n := &recordingNotifier{}
	svc := newService(seedGems(t), n)

	_, err := svc.IncrementQuantity(ctx, gem, 40, alice)
	require.Error(t, err)
	assert.Empty(t, n.changes)

	_, err = svc.SetQuantity(ctx, diamond, 100, alice)
	require.NoError(t, err)
	_, err = svc.IncrementQuantity(ctx, gem, 40, alice)
	require.NoError(t, err)
	_, err = svc.SetRequired(ctx, gem, 50, alice)
	require.NoError(t, err)

	assert.Equal(t, []string{"raw/gems", "crafted/gems", "crafted/gems"}, n.changes)
}

func TestService_StartWorkRequiresEntry(t *testing.T) {
	svc := newService(memstore.New(0), nil)
	_, err := svc.StartWork(context.Background(), ore, alice)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestService_StartAll(t *testing.T) {
	ctx := context.Background()
	s := seedBars(t)
	svc := newService(s, nil)

	_, err := svc.SetQuantity(ctx, coal, 50, alice)
	require.NoError(t, err)
	_, err = svc.StartWork(ctx, ore, bob)
	require.NoError(t, err)

	missing := ledger.ID(ledger.RegistryRaw, "metal", "tin")
	report, err := svc.StartAll(ctx, []ledger.Identity{ore, coal, rawBar, missing}, alice)
	require.NoError(t, err)

	assert.Equal(t, []ledger.Identity{rawBar}, report.Started)
	assert.Equal(t, []ledger.Identity{coal}, report.AlreadyComplete)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, ore, report.Conflicts[0].Entry)
	assert.Equal(t, []ledger.Identity{missing}, report.Missing)

	assert.Error(t, svc.StopWork(ctx, ore, &alice))
	assert.NoError(t, svc.StopWork(ctx, ore, nil))
}

func TestService_TagsMirror(t *testing.T) {
	ctx := context.Background()
	s := seedBars(t)
	svc := newService(s, nil)

	assert.ErrorIs(t, svc.TagAdd(ctx, craftBar, "urgent", alice), ledger.ErrTagNotFound)

	require.NoError(t, svc.CreateTag(ctx, ledger.RegistryCrafted, "urgent", "#ff0"))
	require.NoError(t, svc.TagAdd(ctx, craftBar, "urgent", alice))

	mirrored, err := s.GetTag(ctx, ledger.RegistryRaw, "urgent")
	require.NoError(t, err)
	require.NotNil(t, mirrored)
	assert.Equal(t, "#ff0", mirrored.Color)
	assert.True(t, mirrored.Has(rawBar))

	require.NoError(t, svc.TagRemove(ctx, craftBar, "urgent", alice))
	mirrored, err = s.GetTag(ctx, ledger.RegistryRaw, "urgent")
	require.NoError(t, err)
	assert.False(t, mirrored.Has(rawBar))

	crafted, err := s.GetTag(ctx, ledger.RegistryCrafted, "urgent")
	require.NoError(t, err)
	assert.Empty(t, crafted.Members)
}

func TestService_ApplyTagSelection(t *testing.T) {
	ctx := context.Background()
	s := seedBars(t)
	svc := newService(s, nil)
	require.NoError(t, svc.CreateTag(ctx, ledger.RegistryRaw, "fuel", ""))

	err := svc.ApplyTagSelection(ctx, ledger.PendingTagSelection{
		Actor:   alice,
		Tag:     "fuel",
		Entries: []ledger.Identity{coal, ledger.ID(ledger.RegistryRaw, "metal", "ghost")},
	})
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	tag, err := s.GetTag(ctx, ledger.RegistryRaw, "fuel")
	require.NoError(t, err)
	assert.True(t, tag.Has(coal))
}

func TestService_LinkEntries(t *testing.T) {
	ctx := context.Background()
	s := memstore.New(0)
	svc := newService(s, nil)

	_, err := svc.AddEntry(ctx, ledger.NewEntry{Identity: ore, Required: 1}, alice)
	require.NoError(t, err)
	crafted := ledger.ID(ledger.RegistryCrafted, "metal", "ore")
	_, err = svc.AddEntry(ctx, ledger.NewEntry{Identity: crafted, Required: 1}, alice)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.LinkEntries(ctx, ore, coal, alice), ledger.ErrInvalidLink)
	require.NoError(t, svc.LinkEntries(ctx, ore, crafted, alice))

	_, err = svc.SetQuantity(ctx, ore, 7, alice)
	require.NoError(t, err)
	got, err := svc.Entry(ctx, crafted)
	require.NoError(t, err)
	assert.Equal(t, 7, got.Quantity)
}

func TestService_RelinkClearsFormerPartner(t *testing.T) {
	ctx := context.Background()
	s := memstore.New(0)
	svc := newService(s, nil)

	a := ledger.ID(ledger.RegistryCrafted, "metal", "a")
	b := ledger.ID(ledger.RegistryRaw, "metal", "b")
	c := ledger.ID(ledger.RegistryRaw, "metal", "c")
	for _, id := range []ledger.Identity{a, b, c} {
		_, err := svc.AddEntry(ctx, ledger.NewEntry{Identity: id, Required: 1}, alice)
		require.NoError(t, err)
	}

	require.NoError(t, svc.LinkEntries(ctx, a, c, alice))
	require.NoError(t, svc.LinkEntries(ctx, a, b, alice))

	got, err := svc.Entry(ctx, c)
	require.NoError(t, err)
	assert.Nil(t, got.LinkedItem)

	_, err = svc.SetQuantity(ctx, c, 7, alice)
	require.NoError(t, err)
	assert.Equal(t, 0, quantityOf(t, s, a))

	_, err = svc.SetQuantity(ctx, b, 4, alice)
	require.NoError(t, err)
	assert.Equal(t, 4, quantityOf(t, s, a))
	assert.Equal(t, 7, quantityOf(t, s, c))
}

func TestService_AddEntryRejectsTakenLink(t *testing.T) {
	ctx := context.Background()
	s := seedBars(t)
	svc := newService(s, nil)

	other := ledger.ID(ledger.RegistryCrafted, "metal", "ingot")
	_, err := svc.AddEntry(ctx, ledger.NewEntry{Identity: other, Required: 1, LinkedItem: &rawBar}, alice)
	assert.ErrorIs(t, err, ledger.ErrInvalidLink)

	raw, err := svc.Entry(ctx, rawBar)
	require.NoError(t, err)
	require.NotNil(t, raw.LinkedItem)
	assert.Equal(t, craftBar, *raw.LinkedItem)

	// Links to entries that do not exist yet are still allowed
	future := ledger.ID(ledger.RegistryRaw, "metal", "ingot")
	e, err := svc.AddEntry(ctx, ledger.NewEntry{Identity: other, Required: 1, LinkedItem: &future}, alice)
	require.NoError(t, err)
	require.NotNil(t, e.LinkedItem)
	assert.Equal(t, future, *e.LinkedItem)
}
