// Package pricing computes a recipe's cost of goods from its components,
// the current ingredient prices and the operational cost allocation.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/hppengine/internal/hpp"
)

// Allocation holds the operational costs allocated to one recipe batch.
// A nil field means the Operational Cost Store has no figure for it and the
// fallback policy applies.
type Allocation struct {
	LaborCost     *float64 `json:"labor_cost,omitempty"`
	OverheadCost  *float64 `json:"overhead_cost,omitempty"`
	PackagingCost *float64 `json:"packaging_cost,omitempty"`
}

// FallbackPolicy fills in operational costs the allocation does not cover.
type FallbackPolicy struct {
	Name string
	// OverheadPercent of the ingredient cost, floored at OverheadMinimum.
	OverheadPercent float64
	OverheadMinimum float64
	LaborCost       float64
	PackagingCost   float64
}

// DefaultFallback is the canonical policy: overhead is 15% of the
// ingredient cost with a floor of 2500, labor and packaging default to 0.
var DefaultFallback = FallbackPolicy{
	Name:            "overhead-15pct-min-2500",
	OverheadPercent: 15,
	OverheadMinimum: 2500,
}

// Overhead returns the fallback overhead for an ingredient cost.
func (p FallbackPolicy) Overhead(ingredientCost float64) float64 {
	pct := decimal.NewFromFloat(ingredientCost).
		Mul(decimal.NewFromFloat(p.OverheadPercent)).
		Div(decimal.NewFromInt(100))
	return decimal.Max(pct, decimal.NewFromFloat(p.OverheadMinimum)).InexactFloat64()
}

// Calculator turns a recipe and its inputs into a CostBreakdown.
type Calculator struct {
	Fallback FallbackPolicy
	Price    PricePolicy
	Now      func() time.Time
}

// NewCalculator returns a calculator using the given fallback and price
// policies.
func NewCalculator(fallback FallbackPolicy, price PricePolicy) *Calculator {
	return &Calculator{Fallback: fallback, Price: price, Now: time.Now}
}

// Calculate computes the breakdown for recipe. prices must hold an entry for
// every component's ingredient. It performs no I/O and returns either a
// complete breakdown or an error.
func (c *Calculator) Calculate(recipe hpp.Recipe, prices map[string]hpp.IngredientPrice, alloc Allocation) (hpp.CostBreakdown, error) {
	if recipe.Servings <= 0 {
		return hpp.CostBreakdown{}, hpp.Errorf(hpp.KindValidation, hpp.CodeInvalidServings,
			"recipe %q has %d servings; servings must be greater than 0", recipe.ID, recipe.Servings)
	}
	if len(recipe.Components) == 0 {
		return hpp.CostBreakdown{}, hpp.Validationf("recipe %q has no components", recipe.ID)
	}

	ingredientCost := decimal.Zero
	lines := make([]hpp.CostLine, 0, len(recipe.Components))
	for _, comp := range recipe.Components {
		if comp.Quantity < 0 {
			return hpp.CostBreakdown{}, hpp.Validationf("ingredient %q has negative quantity %v", comp.IngredientID, comp.Quantity)
		}
		price, ok := prices[comp.IngredientID]
		if !ok {
			return hpp.CostBreakdown{}, hpp.Errorf(hpp.KindDependency, hpp.CodeMissingPrice,
				"no price for ingredient %q in recipe %q", comp.IngredientID, recipe.ID)
		}
		unit := price.Effective()
		if unit < 0 {
			return hpp.CostBreakdown{}, hpp.Validationf("ingredient %q has negative price %v", comp.IngredientID, unit)
		}
		if !hpp.ValidAmount(unit) || !hpp.ValidAmount(comp.Quantity) {
			return hpp.CostBreakdown{}, hpp.Validationf("ingredient %q in recipe %q is out of range (quantity %v, price %v)",
				comp.IngredientID, recipe.ID, comp.Quantity, unit)
		}
		cost := decimal.NewFromFloat(comp.Quantity).Mul(decimal.NewFromFloat(unit))
		ingredientCost = ingredientCost.Add(cost)
		lines = append(lines, hpp.CostLine{
			IngredientID: comp.IngredientID,
			Quantity:     comp.Quantity,
			UnitPrice:    unit,
			Cost:         cost.InexactFloat64(),
		})
	}

	ingredient := ingredientCost.InexactFloat64()
	if !hpp.Finite(ingredient) {
		return hpp.CostBreakdown{}, hpp.Validationf("ingredient cost of recipe %q is not a finite amount", recipe.ID)
	}
	fallback := c.Fallback

	source := hpp.SourceAllocation
	var overhead float64
	if alloc.OverheadCost != nil {
		overhead = *alloc.OverheadCost
	} else {
		source = hpp.SourceFallback
		overhead = fallback.Overhead(ingredient)
	}
	labor := valueOr(alloc.LaborCost, fallback.LaborCost)
	packaging := valueOr(alloc.PackagingCost, fallback.PackagingCost)
	if overhead < 0 || labor < 0 || packaging < 0 {
		return hpp.CostBreakdown{}, hpp.Errorf(hpp.KindValidation, hpp.CodeNegativeCost,
			"operational costs for recipe %q must not be negative", recipe.ID)
	}
	if !hpp.Finite(overhead) || !hpp.Finite(labor) || !hpp.Finite(packaging) {
		return hpp.CostBreakdown{}, hpp.Validationf("operational costs for recipe %q are not finite amounts", recipe.ID)
	}

	total := ingredientCost.
		Add(decimal.NewFromFloat(labor)).
		Add(decimal.NewFromFloat(overhead)).
		Add(decimal.NewFromFloat(packaging))
	if total.IsNegative() {
		return hpp.CostBreakdown{}, hpp.Errorf(hpp.KindInternal, hpp.CodeNegativeCost,
			"computed negative total cost for recipe %q", recipe.ID)
	}
	if !hpp.Finite(total.InexactFloat64()) {
		return hpp.CostBreakdown{}, hpp.Validationf("total cost of recipe %q is not a finite amount", recipe.ID)
	}
	perServing := total.Div(decimal.NewFromInt(int64(recipe.Servings)))

	price := c.Price
	if price == nil {
		price = DefaultPricePolicy
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	return hpp.CostBreakdown{
		RecipeID:       recipe.ID,
		IngredientCost: ingredient,
		LaborCost:      labor,
		OverheadCost:   overhead,
		PackagingCost:  packaging,
		TotalCost:      total.InexactFloat64(),
		Servings:       recipe.Servings,
		CostPerServing: perServing.InexactFloat64(),
		SuggestedPrice: price.SuggestPrice(perServing.InexactFloat64()),
		Tiers:          Tiers(perServing.InexactFloat64()),
		OverheadSource: source,
		Lines:          lines,
		CalculatedAt:   now().UTC(),
	}, nil
}

func valueOr(v *float64, fallback float64) float64 {
	if v != nil {
		return *v
	}
	return fallback
}
