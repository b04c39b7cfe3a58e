// Package alerts turns a fresh cost breakdown into alerts, keeps a log of
// every alert produced and pushes the urgent ones to a notification sink.
package alerts

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Simplici0/hppengine/internal/hpp"
)

// Thresholds are percentages. Margin bounds are lower-inclusive, cost
// increase bounds are inclusive.
type Thresholds struct {
	MarginHigh           float64 // margin below this is high severity
	MarginMedium         float64 // margin below this is medium severity
	CostIncreaseHigh     float64
	CostIncreaseCritical float64
}

var DefaultThresholds = Thresholds{
	MarginHigh:           5,
	MarginMedium:         10,
	CostIncreaseHigh:     10,
	CostIncreaseCritical: 25,
}

// Generator applies the alert rules. It holds no state between calls, so
// the same inputs always yield the same alerts.
type Generator struct {
	Thresholds Thresholds
	Now        func() time.Time
}

func NewGenerator() *Generator {
	return &Generator{Thresholds: DefaultThresholds, Now: time.Now}
}

// Evaluate returns the alerts for current. previous is the breakdown of the
// snapshot before it and sellingPrice the recipe's list price; either may be
// nil.
func (g *Generator) Evaluate(recipeID string, current hpp.CostBreakdown, previous *hpp.CostBreakdown, sellingPrice *float64) []hpp.Alert {
	now := g.Now().UTC()
	var out []hpp.Alert
	add := func(t hpp.AlertType, sev hpp.Severity, impact float64, msg, rec string) {
		out = append(out, hpp.Alert{
			ID:             uuid.NewString(),
			RecipeID:       recipeID,
			Type:           t,
			Severity:       sev,
			Message:        msg,
			Impact:         hpp.RoundMoney(impact),
			Recommendation: rec,
			CreatedAt:      now,
		})
	}

	if sellingPrice == nil && previous == nil {
		add(hpp.AlertNoData, hpp.SeverityMedium, 0,
			"no selling price and no earlier cost data to compare against",
			"Set a selling price for this recipe so margins can be tracked.")
		return out
	}

	if sellingPrice != nil {
		g.marginRule(current, *sellingPrice, add)
	}
	if previous != nil {
		g.costIncreaseRule(current, *previous, add)
	}
	return out
}

type addFunc func(t hpp.AlertType, sev hpp.Severity, impact float64, msg, rec string)

func (g *Generator) marginRule(current hpp.CostBreakdown, price float64, add addFunc) {
	margin, ok := hpp.MarginPercent(price, current.TotalCost)
	if !ok {
		add(hpp.AlertUnprofitable, hpp.SeverityCritical, current.TotalCost,
			fmt.Sprintf("selling price %.2f is not positive", price),
			"Set a positive selling price.")
		return
	}

	switch {
	case margin < 0:
		add(hpp.AlertUnprofitable, hpp.SeverityCritical, current.TotalCost-price,
			fmt.Sprintf("cost %.2f exceeds selling price %.2f (margin %.2f%%)", current.TotalCost, price, margin),
			"Raise the selling price or cut ingredient costs; every sale currently loses money.")
	case margin < g.Thresholds.MarginHigh:
		add(hpp.AlertMarginDecline, hpp.SeverityHigh, g.shortfall(current.TotalCost, price),
			fmt.Sprintf("margin fell to %.2f%%", margin),
			fmt.Sprintf("Raise the selling price to at least %.2f to restore a %.0f%% margin.",
				g.targetPrice(current.TotalCost), g.Thresholds.MarginMedium))
	case margin < g.Thresholds.MarginMedium:
		add(hpp.AlertMarginDecline, hpp.SeverityMedium, g.shortfall(current.TotalCost, price),
			fmt.Sprintf("margin is %.2f%%", margin),
			"Review supplier prices before the margin narrows further.")
	}
}

func (g *Generator) costIncreaseRule(current, previous hpp.CostBreakdown, add addFunc) {
	pct, ok := hpp.PercentChange(previous.CostPerServing, current.CostPerServing)
	if !ok {
		return
	}
	var sev hpp.Severity
	switch {
	case pct >= g.Thresholds.CostIncreaseCritical:
		sev = hpp.SeverityCritical
	case pct >= g.Thresholds.CostIncreaseHigh:
		sev = hpp.SeverityHigh
	default:
		return
	}
	add(hpp.AlertCostIncrease, sev, current.TotalCost-previous.TotalCost,
		fmt.Sprintf("cost per serving rose %.2f%% from %.2f to %.2f", pct, previous.CostPerServing, current.CostPerServing),
		"Check which ingredient prices moved and consider substitutes or a price update.")
}

// targetPrice is the selling price that yields the medium margin threshold.
func (g *Generator) targetPrice(total float64) float64 {
	keep := decimal.NewFromInt(100).Sub(decimal.NewFromFloat(g.Thresholds.MarginMedium)).Div(decimal.NewFromInt(100))
	return decimal.NewFromFloat(total).Div(keep).Round(2).InexactFloat64()
}

// shortfall is how far price is below targetPrice.
func (g *Generator) shortfall(total, price float64) float64 {
	gap := g.targetPrice(total) - price
	if gap < 0 {
		return 0
	}
	return gap
}
