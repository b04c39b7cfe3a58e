package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/Simplici0/hppengine/internal/hpp"
)

// PricePolicy derives a suggested selling price from the cost per serving.
type PricePolicy interface {
	SuggestPrice(costPerServing float64) float64
}

// PricePolicyFunc adapts a function to PricePolicy.
type PricePolicyFunc func(costPerServing float64) float64

func (f PricePolicyFunc) SuggestPrice(costPerServing float64) float64 {
	return f(costPerServing)
}

// CostPlus marks the cost up by MarginPercent and rounds up to the next
// multiple of RoundTo (no rounding when RoundTo is 0).
type CostPlus struct {
	MarginPercent float64
	RoundTo       float64
}

func (p CostPlus) SuggestPrice(costPerServing float64) float64 {
	price := decimal.NewFromFloat(costPerServing).
		Mul(decimal.NewFromFloat(100 + p.MarginPercent)).
		Div(decimal.NewFromInt(100))
	if p.RoundTo > 0 {
		step := decimal.NewFromFloat(p.RoundTo)
		price = price.Div(step).Ceil().Mul(step)
	}
	return price.InexactFloat64()
}

// DefaultPricePolicy is the standard tier: 60% over cost, rounded up to 500.
var DefaultPricePolicy PricePolicy = CostPlus{MarginPercent: 60, RoundTo: 500}

// Tier is one suggested price point.
type Tier = hpp.PriceTier

// DefaultTiers are the economy, standard and premium price points.
var DefaultTiers = []struct {
	Name   string
	Policy CostPlus
}{
	{"economy", CostPlus{MarginPercent: 30, RoundTo: 500}},
	{"standard", CostPlus{MarginPercent: 60, RoundTo: 500}},
	{"premium", CostPlus{MarginPercent: 100, RoundTo: 1000}},
}

// Tiers returns a suggested price for each of the default tiers.
func Tiers(costPerServing float64) []Tier {
	out := make([]Tier, 0, len(DefaultTiers))
	for _, t := range DefaultTiers {
		out = append(out, Tier{
			Name:          t.Name,
			Price:         t.Policy.SuggestPrice(costPerServing),
			MarginPercent: t.Policy.MarginPercent,
		})
	}
	return out
}
