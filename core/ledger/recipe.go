package ledger

import (
	"context"
	"fmt"
	"math"
)

// RecipeResolver owns recipe lookups and turns crafted quantity changes into
// material ops.
type RecipeResolver struct {
	source RecipeSource
	clock  Clock
}

// NewRecipeResolver creates a resolver reading recipes from source.
func NewRecipeResolver(source RecipeSource, clock Clock) *RecipeResolver {
	return &RecipeResolver{source: source, clock: clock}
}

// Recipe returns the recipe producing result, or nil if it has none.
func (r *RecipeResolver) Recipe(ctx context.Context, result Identity) (*Recipe, error) {
	if result.Registry != RegistryCrafted {
		return nil, nil
	}
	recipe, err := r.source.GetRecipe(ctx, result)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipe for %s: %w", result, err)
	}
	if recipe == nil || len(recipe.Materials) == 0 {
		return nil, nil
	}
	return recipe, nil
}

// Validate checks that every material of recipe is present in snapshot.
func (r *RecipeResolver) Validate(recipe *Recipe, snapshot map[Identity]Entry) error {
	if recipe == nil {
		return nil
	}
	var missing []string
	for _, line := range recipe.Materials {
		if _, ok := snapshot[line.Identity()]; !ok {
			missing = append(missing, line.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMaterialNotFound, missing)
	}
	return nil
}

// PlanConsume debits the materials for units of the recipe's result. It fails
// with an InsufficientMaterialsError naming every short line and never plans a
// partial consumption.
func (r *RecipeResolver) PlanConsume(recipe *Recipe, snapshot map[Identity]Entry, units int, actor Actor) (Plan, error) {
	var plan Plan
	if recipe == nil || units <= 0 {
		return plan, nil
	}
	if err := r.Validate(recipe, snapshot); err != nil {
		return plan, err
	}

	if err := checkUnits(recipe, units); err != nil {
		return plan, err
	}

	var shortfalls []Shortfall
	for _, line := range recipe.Materials {
		need := line.QuantityPerUnit * units
		available := snapshot[line.Identity()].Quantity
		if need > available {
			shortfalls = append(shortfalls, Shortfall{
				Material:  line.Name,
				Available: available,
				Needed:    need,
				Deficit:   need - available,
			})
		}
	}
	if len(shortfalls) > 0 {
		return Plan{}, &InsufficientMaterialsError{Result: recipe.Result(), Shortfalls: shortfalls}
	}

	for _, line := range recipe.Materials {
		need := line.QuantityPerUnit * units
		plan.add(
			Increment(line.Identity(), -need),
			newEvent(r.clock, line.Identity(), ActionMaterialConsumed,
				fmt.Sprintf("-%d for %d x %s", need, units, recipe.ResultName), actor),
		)
	}
	return plan, nil
}

// PlanReturn refunds the materials for units of the recipe's result. Every
// material must still exist and have room for the refund; otherwise nothing
// is planned.
func (r *RecipeResolver) PlanReturn(recipe *Recipe, snapshot map[Identity]Entry, units int, actor Actor) (Plan, error) {
	var plan Plan
	if recipe == nil || units <= 0 {
		return plan, nil
	}
	if err := r.Validate(recipe, snapshot); err != nil {
		return plan, err
	}
	if err := checkUnits(recipe, units); err != nil {
		return plan, err
	}

	for _, line := range recipe.Materials {
		need := line.QuantityPerUnit * units
		if snapshot[line.Identity()].Quantity > math.MaxInt-need {
			return Plan{}, fmt.Errorf("%w: refunding %d %s overflows its quantity", ErrInvalidInput, need, line.Name)
		}
	}

	for _, line := range recipe.Materials {
		need := line.QuantityPerUnit * units
		plan.add(
			Increment(line.Identity(), need),
			newEvent(r.clock, line.Identity(), ActionMaterialReturned,
				fmt.Sprintf("+%d from %d x %s", need, units, recipe.ResultName), actor),
		)
	}
	return plan, nil
}

// PlanAdjust consumes or refunds materials for a move from oldQty to newQty.
// Both directions require every material to exist.
func (r *RecipeResolver) PlanAdjust(recipe *Recipe, snapshot map[Identity]Entry, oldQty, newQty int, actor Actor) (Plan, error) {
	switch {
	case newQty > oldQty:
		return r.PlanConsume(recipe, snapshot, newQty-oldQty, actor)
	case newQty < oldQty:
		return r.PlanReturn(recipe, snapshot, oldQty-newQty, actor)
	default:
		return Plan{}, nil
	}
}

// checkUnits rejects a unit count whose material need does not fit in an int.
func checkUnits(recipe *Recipe, units int) error {
	for _, line := range recipe.Materials {
		if line.QuantityPerUnit > 0 && units > math.MaxInt/line.QuantityPerUnit {
			return fmt.Errorf("%w: %d x %s needs more %s than can be counted",
				ErrInvalidInput, units, recipe.ResultName, line.Name)
		}
	}
	return nil
}
