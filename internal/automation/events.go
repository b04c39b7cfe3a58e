package automation

import (
	"strings"

	"github.com/Simplici0/hppengine/internal/hpp"
)

// EventKind is the wire name of an event.
type EventKind string

const (
	KindIngredientPriceChanged EventKind = "ingredient_price_changed"
	KindOperationalCostChanged EventKind = "operational_cost_changed"
	KindRecipeCalculate        EventKind = "recipe_hpp_calculate"
	KindBatchRecalculate       EventKind = "batch_hpp_recalculate"
)

// Event is one of the four triggers the coordinator understands. The set is
// closed: only this package can add to it.
type Event interface {
	Kind() EventKind
	validate() error
}

// IngredientPriceChanged records a new spot price for an ingredient and
// refreshes every active recipe that uses it.
type IngredientPriceChanged struct {
	IngredientID string
	OldPrice     float64
	NewPrice     float64
}

func (IngredientPriceChanged) Kind() EventKind { return KindIngredientPriceChanged }

func (e IngredientPriceChanged) validate() error {
	if strings.TrimSpace(e.IngredientID) == "" {
		return hpp.Validationf("ingredient_id is required")
	}
	if !hpp.ValidAmount(e.NewPrice) {
		return hpp.Validationf("new_price must be between 0 and %g", hpp.MaxAmount)
	}
	return nil
}

// OperationalCostChanged records a new amount for a shared cost line. The
// allocation is shared, so every active recipe is refreshed.
type OperationalCostChanged struct {
	CostID    string
	OldAmount float64
	NewAmount float64
}

func (OperationalCostChanged) Kind() EventKind { return KindOperationalCostChanged }

func (e OperationalCostChanged) validate() error {
	if strings.TrimSpace(e.CostID) == "" {
		return hpp.Validationf("cost_id is required")
	}
	if !hpp.ValidAmount(e.NewAmount) {
		return hpp.Validationf("new_amount must be between 0 and %g", hpp.MaxAmount)
	}
	return nil
}

// RecipeCalculate recalculates one recipe synchronously. Force replaces a
// snapshot already taken today.
type RecipeCalculate struct {
	RecipeID string
	Force    bool
}

func (RecipeCalculate) Kind() EventKind { return KindRecipeCalculate }

func (e RecipeCalculate) validate() error {
	if strings.TrimSpace(e.RecipeID) == "" {
		return hpp.Validationf("recipe_id is required")
	}
	return nil
}

// BatchRecalculate recalculates RecipeIDs, or every active recipe when it
// is empty.
type BatchRecalculate struct {
	Reason    string
	RecipeIDs []string
	Force     bool
}

func (BatchRecalculate) Kind() EventKind { return KindBatchRecalculate }

func (BatchRecalculate) validate() error { return nil }

// Stage is a step of the per-recipe state machine.
type Stage string

const (
	StageReceived    Stage = "received"
	StageValidating  Stage = "validating"
	StageCalculating Stage = "calculating"
	StagePersisting  Stage = "persisting"
	StageAlerting    Stage = "alerting"
	StageCompleted   Stage = "completed"
	StageFailed      Stage = "failed"
)
