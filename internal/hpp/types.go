// Package hpp holds the domain types shared by the cost engine: recipes,
// ingredient prices, computed breakdowns, snapshots, alerts and
// recommendations, together with the error taxonomy.
package hpp

import "time"

// DateLayout is the day-granularity layout used for snapshot dates.
const DateLayout = "2006-01-02"

// TimestampLayout is the fixed-width UTC layout used for stored
// timestamps, so they sort lexically.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// RecipeComponent is one ingredient line of a recipe.
type RecipeComponent struct {
	IngredientID string  `json:"ingredient_id"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
}

// Recipe is read from the Recipe Store; the engine never writes it.
type Recipe struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Category     string            `json:"category"`
	Servings     int               `json:"servings"`
	Components   []RecipeComponent `json:"components"`
	SellingPrice *float64          `json:"selling_price,omitempty"`
	Active       bool              `json:"active"`
}

// IngredientPrice is the current cost basis of one ingredient.
type IngredientPrice struct {
	IngredientID        string   `json:"ingredient_id"`
	Name                string   `json:"name"`
	Unit                string   `json:"unit"`
	UnitPrice           float64  `json:"unit_price"`
	WeightedAverageCost *float64 `json:"weighted_average_cost,omitempty"`
}

// Effective returns the weighted-average cost when one is known, otherwise
// the spot unit price.
func (p IngredientPrice) Effective() float64 {
	if p.WeightedAverageCost != nil && *p.WeightedAverageCost > 0 {
		return *p.WeightedAverageCost
	}
	return p.UnitPrice
}

// CostLine is the contribution of one component to the ingredient cost.
type CostLine struct {
	IngredientID string  `json:"ingredient_id"`
	Quantity     float64 `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	Cost         float64 `json:"cost"`
}

// PriceTier is one suggested selling price for a cost per serving.
type PriceTier struct {
	Name          string  `json:"tier"`
	Price         float64 `json:"price"`
	MarginPercent float64 `json:"margin"`
}

// OverheadSource tells whether a cost came from an allocation or the
// fallback policy.
type OverheadSource string

const (
	SourceAllocation OverheadSource = "allocation"
	SourceFallback   OverheadSource = "fallback"
)

// CostBreakdown is the computed cost of one recipe at one point in time.
type CostBreakdown struct {
	RecipeID       string         `json:"recipe_id"`
	IngredientCost float64        `json:"ingredient_cost"`
	LaborCost      float64        `json:"labor_cost"`
	OverheadCost   float64        `json:"overhead_cost"`
	PackagingCost  float64        `json:"packaging_cost"`
	TotalCost      float64        `json:"total_cost"`
	Servings       int            `json:"servings"`
	CostPerServing float64        `json:"cost_per_serving"`
	SuggestedPrice float64        `json:"suggested_price"`
	OverheadSource OverheadSource `json:"overhead_source"`
	Tiers          []PriceTier    `json:"tiers,omitempty"`
	Lines          []CostLine     `json:"lines,omitempty"`
	CalculatedAt   time.Time      `json:"calculated_at"`
}

// Snapshot is an immutable dated record of a recipe's computed cost.
type Snapshot struct {
	ID               string     `json:"id"`
	RecipeID         string     `json:"recipe_id"`
	SnapshotDate     time.Time  `json:"snapshot_date"`
	IngredientCost   float64    `json:"ingredient_cost"`
	LaborCost        float64    `json:"labor_cost"`
	OverheadCost     float64    `json:"overhead_cost"`
	PackagingCost    float64    `json:"packaging_cost"`
	TotalCost        float64    `json:"total_cost"`
	CostPerServing   float64    `json:"cost_per_serving"`
	SuggestedPrice   float64    `json:"suggested_price"`
	SellingPrice     *float64   `json:"selling_price,omitempty"`
	MarginPercentage *float64   `json:"margin_percentage,omitempty"`
	ChangePercentage *float64   `json:"change_percentage,omitempty"`
	Lines            []CostLine `json:"lines,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Breakdown rebuilds the cost totals stored on the snapshot.
func (s Snapshot) Breakdown() CostBreakdown {
	return CostBreakdown{
		RecipeID:       s.RecipeID,
		IngredientCost: s.IngredientCost,
		LaborCost:      s.LaborCost,
		OverheadCost:   s.OverheadCost,
		PackagingCost:  s.PackagingCost,
		TotalCost:      s.TotalCost,
		CostPerServing: s.CostPerServing,
		SuggestedPrice: s.SuggestedPrice,
		Lines:          s.Lines,
		CalculatedAt:   s.CreatedAt,
	}
}

// NewSnapshot builds the snapshot for a fresh breakdown. ID, change and
// creation time are assigned by the store.
func NewSnapshot(b CostBreakdown, day time.Time, sellingPrice *float64) Snapshot {
	s := Snapshot{
		RecipeID:       b.RecipeID,
		SnapshotDate:   Day(day),
		IngredientCost: b.IngredientCost,
		LaborCost:      b.LaborCost,
		OverheadCost:   b.OverheadCost,
		PackagingCost:  b.PackagingCost,
		TotalCost:      b.TotalCost,
		CostPerServing: b.CostPerServing,
		SuggestedPrice: b.SuggestedPrice,
		SellingPrice:   sellingPrice,
		Lines:          b.Lines,
	}
	if sellingPrice != nil {
		if m, ok := MarginPercent(*sellingPrice, b.TotalCost); ok {
			s.MarginPercentage = &m
		}
	}
	return s
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AlertType names the rule that produced an alert.
type AlertType string

const (
	AlertCostIncrease  AlertType = "cost_increase"
	AlertMarginDecline AlertType = "margin_decline"
	AlertUnprofitable  AlertType = "unprofitable"
	AlertNoData        AlertType = "no_data"
)

// Severity of an alert, fixed by the rule that produced it.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Notifies reports whether alerts of this severity are pushed to the sink.
func (s Severity) Notifies() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// Alert is generated by the alert rules and never edited by the engine.
type Alert struct {
	ID             string    `json:"id"`
	RecipeID       string    `json:"recipe_id"`
	Type           AlertType `json:"type"`
	Severity       Severity  `json:"severity"`
	Message        string    `json:"message"`
	Impact         float64   `json:"impact"`
	Recommendation string    `json:"recommendation"`
	CreatedAt      time.Time `json:"created_at"`
}

// Priority of a recommendation.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Recommendation is a human-authored advisory tied to a recipe.
type Recommendation struct {
	ID                 string    `json:"id"`
	OwnerID            string    `json:"owner_id"`
	RecipeID           *string   `json:"recipe_id,omitempty"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	RecommendationType string    `json:"recommendation_type"`
	PotentialSavings   float64   `json:"potential_savings"`
	Priority           Priority  `json:"priority"`
	IsImplemented      bool      `json:"is_implemented"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
