// Package storetest holds a conformance suite every ledger.Store
// implementation runs from its own tests.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"stock-ledger/core/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) ledger.Store

var (
	ore      = ledger.ID(ledger.RegistryRaw, "metal", "ore")
	coal     = ledger.ID(ledger.RegistryRaw, "metal", "coal")
	rawBar   = ledger.ID(ledger.RegistryRaw, "metal", "bar")
	craftBar = ledger.ID(ledger.RegistryCrafted, "metal", "bar")
)

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s ledger.Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"ReciprocalLink", testReciprocalLink},
		{"BulkApply", testBulkApply},
		{"Rename", testRename},
		{"Delete", testDelete},
		{"SetLink", testSetLink},
		{"Relink", testRelink},
		{"Recipes", testRecipes},
		{"Tags", testTags},
		{"History", testHistory},
		{"ListEntries", testListEntries},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func seed(t *testing.T, s ledger.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateEntry(ctx, ledger.Entry{Identity: ore, Quantity: 20, Required: 50, Kind: ledger.KindMaterial}))
	require.NoError(t, s.CreateEntry(ctx, ledger.Entry{Identity: coal, Quantity: 10, Required: 50, Kind: ledger.KindMaterial, Order: 1}))
	require.NoError(t, s.CreateEntry(ctx, ledger.Entry{Identity: rawBar, Quantity: 0, Required: 5, Kind: ledger.KindIntermediate, Order: 2}))
	link := rawBar
	require.NoError(t, s.CreateEntry(ctx, ledger.Entry{Identity: craftBar, Quantity: 0, Required: 5, Kind: ledger.KindIntermediate, LinkedItem: &link}))
	require.NoError(t, s.SaveRecipe(ctx, ledger.Recipe{
		Category:   "metal",
		ResultName: "bar",
		Materials: []ledger.MaterialLine{
			{Category: "metal", Name: "ore", QuantityPerUnit: 2},
			{Category: "metal", Name: "coal", QuantityPerUnit: 1},
		},
	}))
}

func get(t *testing.T, s ledger.Store, id ledger.Identity) (ledger.Entry, bool) {
	t.Helper()
	got, err := s.GetEntries(context.Background(), []ledger.Identity{id})
	require.NoError(t, err)
	e, ok := got[id]
	return e, ok
}

func testCreateAndGet(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	seed(t, s)

	got, err := s.GetEntries(ctx, []ledger.Identity{ore, coal, ledger.ID(ledger.RegistryRaw, "metal", "tin")})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, ledger.Entry{Identity: ore, Quantity: 20, Required: 50, Kind: ledger.KindMaterial}, got[ore])

	empty, err := s.GetEntries(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	err = s.CreateEntry(ctx, ledger.Entry{Identity: ore, Required: 1})
	assert.ErrorIs(t, err, ledger.ErrAlreadyExists)
}

func testReciprocalLink(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	seed(t, s)

	raw, ok := get(t, s, rawBar)
	require.True(t, ok)
	require.NotNil(t, raw.LinkedItem)
	assert.Equal(t, craftBar, *raw.LinkedItem)

	// A second entry pointing at the same target does not steal the link.
	other := ledger.ID(ledger.RegistryCrafted, "metal", "bar2")
	link := rawBar
	require.NoError(t, s.CreateEntry(ctx, ledger.Entry{Identity: other, Required: 1, Kind: ledger.KindIntermediate, LinkedItem: &link}))

	raw, _ = get(t, s, rawBar)
	assert.Equal(t, craftBar, *raw.LinkedItem)
}

func testBulkApply(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	seed(t, s)

	res, err := s.BulkApply(ctx, []ledger.UpdateOp{
		ledger.Increment(ore, -5),
		ledger.Increment(ledger.ID(ledger.RegistryRaw, "metal", "tin"), 1),
		ledger.Increment(coal, -50),
		ledger.SetQuantity(craftBar, 3),
		ledger.SetQuantity(craftBar, 3),
		ledger.SetRequired(rawBar, 9),
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, true, true, true}, res.Applied)
	assert.Equal(t, 5, res.AppliedCount())

	e, _ := get(t, s, ore)
	assert.Equal(t, 15, e.Quantity)
	e, _ = get(t, s, coal)
	assert.Equal(t, 0, e.Quantity)
	e, _ = get(t, s, craftBar)
	assert.Equal(t, 3, e.Quantity)
	e, _ = get(t, s, rawBar)
	assert.Equal(t, 9, e.Required)
	assert.Equal(t, 0, e.Quantity)
}

func testRename(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	seed(t, s)
	require.NoError(t, s.CreateTag(ctx, ledger.Tag{Registry: ledger.RegistryRaw, Name: "smelting"}))
	require.NoError(t, s.ApplyTagOps(ctx, []ledger.TagOp{{Registry: ledger.RegistryRaw, Tag: "smelting", Member: ore, Added: true}}))

	require.NoError(t, s.RenameEntry(ctx, ore, "iron ore"))
	require.NoError(t, s.RenameEntry(ctx, rawBar, "ingot"))
	require.NoError(t, s.RenameEntry(ctx, craftBar, "bar+"))

	_, ok := get(t, s, ore)
	assert.False(t, ok)
	_, ok = get(t, s, ore.Renamed("iron ore"))
	assert.True(t, ok)

	crafted, ok := get(t, s, craftBar.Renamed("bar+"))
	require.True(t, ok)
	require.NotNil(t, crafted.LinkedItem)
	assert.Equal(t, rawBar.Renamed("ingot"), *crafted.LinkedItem)

	raw, _ := get(t, s, rawBar.Renamed("ingot"))
	require.NotNil(t, raw.LinkedItem)
	assert.Equal(t, craftBar.Renamed("bar+"), *raw.LinkedItem)

	recipe, err := s.GetRecipe(ctx, craftBar.Renamed("bar+"))
	require.NoError(t, err)
	require.NotNil(t, recipe)
	assert.Equal(t, "iron ore", recipe.Materials[0].Name)
	old, err := s.GetRecipe(ctx, craftBar)
	require.NoError(t, err)
	assert.Nil(t, old)

	tag, err := s.GetTag(ctx, ledger.RegistryRaw, "smelting")
	require.NoError(t, err)
	assert.Equal(t, []ledger.Identity{ore.Renamed("iron ore")}, tag.Members)

	assert.ErrorIs(t, s.RenameEntry(ctx, coal, "iron ore"), ledger.ErrNameTaken)
	assert.ErrorIs(t, s.RenameEntry(ctx, ore, "x"), ledger.ErrNotFound)
}

func testDelete(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	seed(t, s)
	require.NoError(t, s.ApplyTagOps(ctx, []ledger.TagOp{{Registry: ledger.RegistryCrafted, Tag: "urgent", Member: craftBar, Added: true}}))

	deleted, err := s.DeleteEntry(ctx, craftBar)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, ok := get(t, s, craftBar)
	assert.False(t, ok)
	raw, ok := get(t, s, rawBar)
	require.True(t, ok)
	assert.Nil(t, raw.LinkedItem)

	recipe, err := s.GetRecipe(ctx, craftBar)
	require.NoError(t, err)
	assert.Nil(t, recipe)

	tag, err := s.GetTag(ctx, ledger.RegistryCrafted, "urgent")
	require.NoError(t, err)
	require.NotNil(t, tag)
	assert.Empty(t, tag.Members)

	deleted, err = s.DeleteEntry(ctx, craftBar)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func testSetLink(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	seed(t, s)

	target := ledger.ID(ledger.RegistryCrafted, "metal", "ore")
	require.NoError(t, s.SetLink(ctx, ore, &target))
	e, _ := get(t, s, ore)
	require.NotNil(t, e.LinkedItem)
	assert.Equal(t, target, *e.LinkedItem)

	require.NoError(t, s.SetLink(ctx, ore, nil))
	e, _ = get(t, s, ore)
	assert.Nil(t, e.LinkedItem)

	assert.ErrorIs(t, s.SetLink(ctx, ledger.ID(ledger.RegistryRaw, "metal", "tin"), nil), ledger.ErrNotFound)
}

func testRelink(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	seed(t, s)

	// craftBar leaves rawBar for ore
	require.NoError(t, s.Relink(ctx, ore, craftBar))

	e, _ := get(t, s, ore)
	require.NotNil(t, e.LinkedItem)
	assert.Equal(t, craftBar, *e.LinkedItem)
	e, _ = get(t, s, craftBar)
	require.NotNil(t, e.LinkedItem)
	assert.Equal(t, ore, *e.LinkedItem)
	e, _ = get(t, s, rawBar)
	assert.Nil(t, e.LinkedItem)

	// Relinking an existing pair keeps it intact
	require.NoError(t, s.Relink(ctx, craftBar, ore))
	e, _ = get(t, s, ore)
	require.NotNil(t, e.LinkedItem)
	assert.Equal(t, craftBar, *e.LinkedItem)

	tin := ledger.ID(ledger.RegistryCrafted, "metal", "tin")
	assert.ErrorIs(t, s.Relink(ctx, coal, tin), ledger.ErrNotFound)
	e, _ = get(t, s, coal)
	assert.Nil(t, e.LinkedItem)
}

func testRecipes(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	seed(t, s)

	require.NoError(t, s.SaveRecipe(ctx, ledger.Recipe{
		Category:   "metal",
		ResultName: "bar",
		Materials:  []ledger.MaterialLine{{Category: "metal", Name: "coal", QuantityPerUnit: 4}},
	}))
	recipe, err := s.GetRecipe(ctx, craftBar)
	require.NoError(t, err)
	assert.Equal(t, []ledger.MaterialLine{{Category: "metal", Name: "coal", QuantityPerUnit: 4}}, recipe.Materials)

	all, err := s.ListRecipes(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	none, err := s.GetRecipe(ctx, ledger.ID(ledger.RegistryCrafted, "metal", "none"))
	require.NoError(t, err)
	assert.Nil(t, none)

	err = s.SaveRecipe(ctx, ledger.Recipe{Category: "metal", ResultName: "none"})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func testTags(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	seed(t, s)

	require.NoError(t, s.CreateTag(ctx, ledger.Tag{Registry: ledger.RegistryCrafted, Name: "urgent", Color: "#f00"}))
	assert.ErrorIs(t, s.CreateTag(ctx, ledger.Tag{Registry: ledger.RegistryCrafted, Name: "urgent"}), ledger.ErrAlreadyExists)

	require.NoError(t, s.ApplyTagOps(ctx, []ledger.TagOp{
		{Registry: ledger.RegistryCrafted, Tag: "urgent", Member: craftBar, Added: true},
		{Registry: ledger.RegistryCrafted, Tag: "urgent", Member: craftBar, Added: true},
		{Registry: ledger.RegistryRaw, Tag: "urgent", Color: "#f00", Member: rawBar, Added: true},
		{Registry: ledger.RegistryRaw, Tag: "missing", Member: ore, Added: false},
	}))

	crafted, err := s.GetTag(ctx, ledger.RegistryCrafted, "urgent")
	require.NoError(t, err)
	assert.Equal(t, []ledger.Identity{craftBar}, crafted.Members)

	raw, err := s.GetTag(ctx, ledger.RegistryRaw, "urgent")
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, "#f00", raw.Color)
	assert.True(t, raw.Has(rawBar))

	missing, err := s.GetTag(ctx, ledger.RegistryRaw, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.ApplyTagOps(ctx, []ledger.TagOp{{Registry: ledger.RegistryRaw, Tag: "urgent", Member: rawBar, Added: false}}))
	raw, err = s.GetTag(ctx, ledger.RegistryRaw, "urgent")
	require.NoError(t, err)
	assert.Empty(t, raw.Members)

	tags, err := s.ListTags(ctx, ledger.RegistryCrafted)
	require.NoError(t, err)
	require.Len(t, tags, 1)

	deleted, err := s.DeleteTag(ctx, ledger.RegistryCrafted, "urgent")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = s.DeleteTag(ctx, ledger.RegistryCrafted, "urgent")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func testHistory(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendHistory(ctx, []ledger.HistoryEvent{{
			ID:        fmt.Sprintf("00000000-0000-0000-0000-00000000000%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Identity:  ore,
			Action:    ledger.ActionQuantityAdded,
			Details:   fmt.Sprintf("+%d", i),
			UserName:  "alice",
		}}))
	}

	all, err := s.ListHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "+2", all[0].Details)
	assert.Equal(t, "+0", all[2].Details)
	assert.Equal(t, ore, all[0].Identity)
	assert.True(t, base.Add(2*time.Minute).Equal(all[0].Timestamp))

	two, err := s.ListHistory(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func testListEntries(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	seed(t, s)

	raw, err := s.ListEntries(ctx, ledger.RegistryRaw)
	require.NoError(t, err)
	names := make([]string, 0, len(raw))
	for _, e := range raw {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"ore", "coal", "bar"}, names)

	crafted, err := s.ListEntries(ctx, ledger.RegistryCrafted)
	require.NoError(t, err)
	assert.Len(t, crafted, 1)
}
