package checks

import (
	"testing"

	"stock-ledger/core/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linked(e ledger.Entry, target ledger.Identity) ledger.Entry {
	e.LinkedItem = &target
	return e
}

func TestCheckLinks(t *testing.T) {
	rawBar := ledger.ID(ledger.RegistryRaw, "metal", "bar")
	craftBar := ledger.ID(ledger.RegistryCrafted, "metal", "bar")
	rawPlate := ledger.ID(ledger.RegistryRaw, "metal", "plate")
	craftPlate := ledger.ID(ledger.RegistryCrafted, "metal", "plate")
	rawGear := ledger.ID(ledger.RegistryRaw, "metal", "gear")
	craftGear := ledger.ID(ledger.RegistryCrafted, "metal", "gear")
	ghost := ledger.ID(ledger.RegistryCrafted, "metal", "ghost")
	rawRod := ledger.ID(ledger.RegistryRaw, "metal", "rod")

	snap := Snapshot{
		Raw: []ledger.Entry{
			linked(ledger.Entry{Identity: rawBar, Quantity: 5, Kind: ledger.KindIntermediate}, craftBar),
			linked(ledger.Entry{Identity: rawPlate, Quantity: 2, Kind: ledger.KindIntermediate}, craftPlate),
			linked(ledger.Entry{Identity: rawGear, Kind: ledger.KindIntermediate}, ghost),
			{Identity: rawRod, Kind: ledger.KindIntermediate},
			{Identity: ledger.ID(ledger.RegistryRaw, "metal", "ore"), Kind: ledger.KindMaterial},
		},
		Crafted: []ledger.Entry{
			linked(ledger.Entry{Identity: craftBar, Quantity: 3, Kind: ledger.KindIntermediate}, rawBar),
			linked(ledger.Entry{Identity: craftPlate, Quantity: 2, Kind: ledger.KindIntermediate}, rawPlate),
			linked(ledger.Entry{Identity: craftGear, Kind: ledger.KindIntermediate}, rawBar),
		},
	}

	report := CheckLinks(snap)

	assert.Equal(t, 2, report.Pairs)
	require.Len(t, report.Diverged, 1)
	assert.Equal(t, Divergence{Raw: rawBar, Crafted: craftBar, RawQuantity: 5, CraftedQuantity: 3}, report.Diverged[0])

	require.Len(t, report.Broken, 2)
	assert.Equal(t, LinkIssue{Entry: craftGear, Target: rawBar, Reason: ReasonNotReciprocal}, report.Broken[0])
	assert.Equal(t, LinkIssue{Entry: rawGear, Target: ghost, Reason: ReasonDangling}, report.Broken[1])

	assert.Equal(t, []ledger.Identity{rawRod}, report.UnlinkedIntermediates)
	assert.Equal(t, 4, report.Count())
}

func TestCheckLinks_SameRegistry(t *testing.T) {
	a := ledger.ID(ledger.RegistryRaw, "metal", "a")
	b := ledger.ID(ledger.RegistryRaw, "metal", "b")

	report := CheckLinks(Snapshot{Raw: []ledger.Entry{
		linked(ledger.Entry{Identity: a, Kind: ledger.KindMaterial}, b),
		{Identity: b, Kind: ledger.KindMaterial},
	}})

	require.Len(t, report.Broken, 1)
	assert.Equal(t, ReasonSameRegistry, report.Broken[0].Reason)
	assert.Zero(t, report.Pairs)
}

func TestCheckLinks_Empty(t *testing.T) {
	report := CheckLinks(Snapshot{})
	assert.Zero(t, report.Count())
	assert.NotNil(t, report.Diverged)
}

func TestCheckRecipes(t *testing.T) {
	ore := ledger.ID(ledger.RegistryRaw, "metal", "ore")
	bar := ledger.ID(ledger.RegistryCrafted, "metal", "bar")

	snap := Snapshot{
		Raw:     []ledger.Entry{{Identity: ore}},
		Crafted: []ledger.Entry{{Identity: bar}},
		Recipes: []ledger.Recipe{
			{Category: "metal", ResultName: "bar", Materials: []ledger.MaterialLine{
				{Category: "metal", Name: "ore", QuantityPerUnit: 2},
				{Category: "metal", Name: "coal", QuantityPerUnit: 1},
			}},
			{Category: "metal", ResultName: "gone", Materials: []ledger.MaterialLine{
				{Category: "metal", Name: "ore", QuantityPerUnit: 1},
			}},
		},
	}

	issues := CheckRecipes(snap)
	require.Len(t, issues, 2)
	assert.Equal(t, bar, issues[0].Result)
	assert.False(t, issues[0].ResultMissing)
	assert.Equal(t, []string{"coal"}, issues[0].MissingMaterials)
	assert.True(t, issues[1].ResultMissing)
	assert.Empty(t, issues[1].MissingMaterials)
}
