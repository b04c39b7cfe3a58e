package pricing

import (
	"math"
	"testing"
	"time"

	"github.com/Simplici0/hppengine/internal/hpp"
)

func nearlyEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func ptr(v float64) *float64 { return &v }

func zeroAllocation() Allocation {
	return Allocation{LaborCost: ptr(0), OverheadCost: ptr(0), PackagingCost: ptr(0)}
}

func newTestCalculator() *Calculator {
	c := NewCalculator(DefaultFallback, DefaultPricePolicy)
	c.Now = func() time.Time { return time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC) }
	return c
}

func TestCalculate_IngredientCostIsExactSum(t *testing.T) {
	recipe := hpp.Recipe{
		ID:       "r1",
		Servings: 4,
		Components: []hpp.RecipeComponent{
			{IngredientID: "flour", Quantity: 0.1},
			{IngredientID: "sugar", Quantity: 0.2},
			{IngredientID: "egg", Quantity: 3},
		},
	}
	prices := map[string]hpp.IngredientPrice{
		"flour": {IngredientID: "flour", UnitPrice: 0.3},
		"sugar": {IngredientID: "sugar", UnitPrice: 0.7},
		"egg":   {IngredientID: "egg", UnitPrice: 2500},
	}

	got, err := newTestCalculator().Calculate(recipe, prices, zeroAllocation())
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	want := 0.1*0.3 + 0.2*0.7 + 3*2500
	nearlyEqual(t, "ingredientCost", got.IngredientCost, want)
	nearlyEqual(t, "totalCost", got.TotalCost, want)
	nearlyEqual(t, "costPerServing", got.CostPerServing, want/4)
	if len(got.Lines) != 3 {
		t.Fatalf("expected 3 cost lines, got %d", len(got.Lines))
	}
	if got.OverheadSource != hpp.SourceAllocation {
		t.Fatalf("overheadSource = %q, want allocation", got.OverheadSource)
	}
}

func TestCalculate_PrefersWeightedAverageCost(t *testing.T) {
	recipe := hpp.Recipe{ID: "r1", Servings: 1, Components: []hpp.RecipeComponent{{IngredientID: "milk", Quantity: 2}}}
	prices := map[string]hpp.IngredientPrice{
		"milk": {IngredientID: "milk", UnitPrice: 1200, WeightedAverageCost: ptr(1000)},
	}

	got, err := newTestCalculator().Calculate(recipe, prices, zeroAllocation())
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	nearlyEqual(t, "ingredientCost", got.IngredientCost, 2000)
}

func TestCalculate_ServingsGuard(t *testing.T) {
	for _, servings := range []int{0, -1, -10} {
		recipe := hpp.Recipe{ID: "r1", Servings: servings, Components: []hpp.RecipeComponent{{IngredientID: "a", Quantity: 1}}}
		_, err := newTestCalculator().Calculate(recipe, map[string]hpp.IngredientPrice{"a": {UnitPrice: 1}}, zeroAllocation())
		if !hpp.IsKind(err, hpp.KindValidation) {
			t.Fatalf("servings=%d: expected validation error, got %v", servings, err)
		}
		if hpp.CodeOf(err) != hpp.CodeInvalidServings {
			t.Fatalf("servings=%d: code = %q", servings, hpp.CodeOf(err))
		}
	}
}

func TestCalculate_MissingPriceAborts(t *testing.T) {
	recipe := hpp.Recipe{
		ID:       "r1",
		Servings: 2,
		Components: []hpp.RecipeComponent{
			{IngredientID: "a", Quantity: 1},
			{IngredientID: "missing", Quantity: 1},
		},
	}

	got, err := newTestCalculator().Calculate(recipe, map[string]hpp.IngredientPrice{"a": {UnitPrice: 10}}, zeroAllocation())
	if !hpp.IsKind(err, hpp.KindDependency) || hpp.CodeOf(err) != hpp.CodeMissingPrice {
		t.Fatalf("expected missing price dependency error, got %v", err)
	}
	if got.TotalCost != 0 || got.Lines != nil {
		t.Fatalf("expected empty breakdown on error, got %+v", got)
	}
}

func TestCalculate_FallbackOverheadFloor(t *testing.T) {
	recipe := hpp.Recipe{ID: "r1", Servings: 10, Components: []hpp.RecipeComponent{{IngredientID: "a", Quantity: 2}}}
	prices := map[string]hpp.IngredientPrice{"a": {UnitPrice: 1000}}

	got, err := newTestCalculator().Calculate(recipe, prices, Allocation{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	nearlyEqual(t, "overhead", got.OverheadCost, 2500)
	nearlyEqual(t, "labor", got.LaborCost, 0)
	nearlyEqual(t, "packaging", got.PackagingCost, 0)
	nearlyEqual(t, "total", got.TotalCost, 4500)
	nearlyEqual(t, "perServing", got.CostPerServing, 450)
	if got.OverheadSource != hpp.SourceFallback {
		t.Fatalf("overheadSource = %q, want fallback", got.OverheadSource)
	}
}

func TestCalculate_FallbackOverheadPercent(t *testing.T) {
	recipe := hpp.Recipe{ID: "r1", Servings: 1, Components: []hpp.RecipeComponent{{IngredientID: "a", Quantity: 1}}}
	prices := map[string]hpp.IngredientPrice{"a": {UnitPrice: 100000}}

	got, err := newTestCalculator().Calculate(recipe, prices, Allocation{LaborCost: ptr(5000)})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	nearlyEqual(t, "overhead", got.OverheadCost, 15000)
	nearlyEqual(t, "labor", got.LaborCost, 5000)
	nearlyEqual(t, "total", got.TotalCost, 120000)
}

func TestCalculate_AllocationOverridesFallback(t *testing.T) {
	recipe := hpp.Recipe{ID: "r1", Servings: 2, Components: []hpp.RecipeComponent{{IngredientID: "a", Quantity: 1}}}
	prices := map[string]hpp.IngredientPrice{"a": {UnitPrice: 1000}}
	alloc := Allocation{LaborCost: ptr(300), OverheadCost: ptr(200), PackagingCost: ptr(100)}

	got, err := newTestCalculator().Calculate(recipe, prices, alloc)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	nearlyEqual(t, "total", got.TotalCost, 1600)
	nearlyEqual(t, "perServing", got.CostPerServing, 800)
}

func TestCalculate_RejectsNegativeInputs(t *testing.T) {
	recipe := hpp.Recipe{ID: "r1", Servings: 1, Components: []hpp.RecipeComponent{{IngredientID: "a", Quantity: -1}}}
	_, err := newTestCalculator().Calculate(recipe, map[string]hpp.IngredientPrice{"a": {UnitPrice: 1}}, zeroAllocation())
	if !hpp.IsKind(err, hpp.KindValidation) {
		t.Fatalf("expected validation error for negative quantity, got %v", err)
	}

	recipe.Components[0].Quantity = 1
	_, err = newTestCalculator().Calculate(recipe, map[string]hpp.IngredientPrice{"a": {UnitPrice: 1}}, Allocation{OverheadCost: ptr(-5)})
	if hpp.CodeOf(err) != hpp.CodeNegativeCost {
		t.Fatalf("expected negative cost error, got %v", err)
	}
}

func TestCostPlus_RoundsUp(t *testing.T) {
	nearlyEqual(t, "standard", CostPlus{MarginPercent: 60, RoundTo: 500}.SuggestPrice(1000), 2000)
	nearlyEqual(t, "standard rounded", CostPlus{MarginPercent: 60, RoundTo: 500}.SuggestPrice(1100), 2000)
	nearlyEqual(t, "unrounded", CostPlus{MarginPercent: 25}.SuggestPrice(80), 100)

	tiers := Tiers(1000)
	if len(tiers) != 3 {
		t.Fatalf("expected 3 tiers, got %d", len(tiers))
	}
	nearlyEqual(t, "economy", tiers[0].Price, 1500)
	nearlyEqual(t, "premium", tiers[2].Price, 2000)
}

func TestCalculate_UsesPricePolicy(t *testing.T) {
	c := newTestCalculator()
	c.Price = PricePolicyFunc(func(cost float64) float64 { return cost * 3 })
	recipe := hpp.Recipe{ID: "r1", Servings: 2, Components: []hpp.RecipeComponent{{IngredientID: "a", Quantity: 2}}}

	got, err := c.Calculate(recipe, map[string]hpp.IngredientPrice{"a": {UnitPrice: 50}}, zeroAllocation())
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	nearlyEqual(t, "suggested", got.SuggestedPrice, 150)
}

func TestCalculate_RejectsAmountsThatOverflow(t *testing.T) {
	recipe := hpp.Recipe{ID: "r1", Servings: 1, Components: []hpp.RecipeComponent{{IngredientID: "a", Quantity: 2}}}
	prices := map[string]hpp.IngredientPrice{"a": {UnitPrice: 1e308}}

	for name, alloc := range map[string]Allocation{
		"allocation": zeroAllocation(),
		"fallback":   {},
	} {
		_, err := newTestCalculator().Calculate(recipe, prices, alloc)
		if !hpp.IsKind(err, hpp.KindValidation) {
			t.Fatalf("%s: expected validation error for an overflowing price, got %v", name, err)
		}
	}

	_, err := newTestCalculator().Calculate(recipe, map[string]hpp.IngredientPrice{"a": {UnitPrice: math.NaN()}}, zeroAllocation())
	if !hpp.IsKind(err, hpp.KindValidation) {
		t.Fatalf("expected validation error for NaN price, got %v", err)
	}

	_, err = newTestCalculator().Calculate(recipe, map[string]hpp.IngredientPrice{"a": {UnitPrice: 1}}, Allocation{OverheadCost: ptr(math.Inf(1))})
	if !hpp.IsKind(err, hpp.KindValidation) {
		t.Fatalf("expected validation error for infinite overhead, got %v", err)
	}
}

func TestCalculate_LargestAcceptedAmounts(t *testing.T) {
	recipe := hpp.Recipe{ID: "r1", Servings: 1, Components: []hpp.RecipeComponent{{IngredientID: "a", Quantity: hpp.MaxAmount}}}
	got, err := newTestCalculator().Calculate(recipe, map[string]hpp.IngredientPrice{"a": {UnitPrice: hpp.MaxAmount}}, Allocation{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	nearlyEqual(t, "ingredientCost", got.IngredientCost, 1e24)
	if got.OverheadSource != hpp.SourceFallback {
		t.Fatalf("overheadSource = %q, want fallback", got.OverheadSource)
	}
}

func TestCalculate_CarriesPriceTiers(t *testing.T) {
	recipe := hpp.Recipe{ID: "r1", Servings: 2, Components: []hpp.RecipeComponent{{IngredientID: "a", Quantity: 2}}}

	got, err := newTestCalculator().Calculate(recipe, map[string]hpp.IngredientPrice{"a": {UnitPrice: 1000}}, zeroAllocation())
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if len(got.Tiers) != len(DefaultTiers) {
		t.Fatalf("expected %d tiers, got %d", len(DefaultTiers), len(got.Tiers))
	}
	if got.Tiers[1].Name != "standard" {
		t.Fatalf("tier 1 = %q, want standard", got.Tiers[1].Name)
	}
	nearlyEqual(t, "standard tier", got.Tiers[1].Price, got.SuggestedPrice)
	nearlyEqual(t, "economy tier", got.Tiers[0].Price, 1500)
}
