package hpp

import (
	"math"

	"github.com/shopspring/decimal"
)

// percentPlaces is the precision percentages are rounded to before any
// threshold is applied.
const percentPlaces = 2

// MaxAmount bounds every price, quantity and cost the engine accepts so that
// sums and products stay finite.
const MaxAmount = 1e12

var hundred = decimal.NewFromInt(100)

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidAmount reports whether v is a finite amount within [0, MaxAmount].
func ValidAmount(v float64) bool {
	return Finite(v) && v >= 0 && v <= MaxAmount
}

// PercentChange returns (to - from) / from * 100 rounded to two decimals.
// ok is false when from is zero or either side is not finite, where a
// percentage is undefined.
func PercentChange(from, to float64) (pct float64, ok bool) {
	if from == 0 || !Finite(from) || !Finite(to) {
		return 0, false
	}
	f := decimal.NewFromFloat(from)
	t := decimal.NewFromFloat(to)
	return t.Sub(f).Div(f).Mul(hundred).Round(percentPlaces).InexactFloat64(), true
}

// MarginPercent returns (sellingPrice - cost) / sellingPrice * 100 rounded
// to two decimals. ok is false for a non-positive selling price or a
// non-finite input.
func MarginPercent(sellingPrice, cost float64) (pct float64, ok bool) {
	if sellingPrice <= 0 || !Finite(sellingPrice) || !Finite(cost) {
		return 0, false
	}
	s := decimal.NewFromFloat(sellingPrice)
	c := decimal.NewFromFloat(cost)
	return s.Sub(c).Div(s).Mul(hundred).Round(percentPlaces).InexactFloat64(), true
}

// RoundMoney rounds an amount to two decimals. Non-finite values are
// returned unchanged.
func RoundMoney(v float64) float64 {
	if !Finite(v) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
