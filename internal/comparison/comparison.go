// Package comparison aggregates snapshot history into two adjacent windows
// and classifies the cost trend between them.
package comparison

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Simplici0/hppengine/internal/hpp"
)

// Period is a comparison window length.
type Period string

const (
	Period7d  Period = "7d"
	Period30d Period = "30d"
	Period90d Period = "90d"
	Period1y  Period = "1y"
)

// Days returns the window length in days, or 0 for an unknown period.
func (p Period) Days() int {
	switch p {
	case Period7d:
		return 7
	case Period30d:
		return 30
	case Period90d:
		return 90
	case Period1y:
		return 365
	}
	return 0
}

// ParsePeriod validates s. An empty string selects 30d.
func ParsePeriod(s string) (Period, error) {
	if s == "" {
		return Period30d, nil
	}
	p := Period(s)
	if p.Days() == 0 {
		return "", hpp.Validationf("period must be one of 7d, 30d, 90d, 1y")
	}
	return p, nil
}

// Trend is the direction of the cost between two windows.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// deadband is the absolute change percentage that must be exceeded before a
// trend is reported.
const deadband = 5.0

// PeriodStats aggregates the cost per serving of one window. All figures are
// zero and HasData is false when the window holds no snapshot.
type PeriodStats struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Avg     float64   `json:"avg"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Count   int       `json:"count"`
	HasData bool      `json:"has_data"`
}

// HPPComparison compares a window with the one immediately before it.
type HPPComparison struct {
	RecipeID         string      `json:"recipe_id"`
	Period           Period      `json:"period"`
	PeriodsAgo       int         `json:"periods_ago"`
	Current          PeriodStats `json:"current"`
	Previous         PeriodStats `json:"previous"`
	Change           float64     `json:"change"`
	ChangePercentage float64     `json:"change_percentage"`
	Trend            Trend       `json:"trend"`
}

// RecipeGetter resolves recipes so unknown ids can be told apart from
// recipes without history.
type RecipeGetter interface {
	GetRecipe(ctx context.Context, id string) (hpp.Recipe, error)
}

// SnapshotQuerier reads a recipe's snapshots within an inclusive day range.
type SnapshotQuerier interface {
	Query(ctx context.Context, recipeID string, from, to time.Time) ([]hpp.Snapshot, error)
}

// Engine answers comparison queries. It only reads.
type Engine struct {
	recipes   RecipeGetter
	snapshots SnapshotQuerier
	Now       func() time.Time
}

func NewEngine(recipes RecipeGetter, snapshots SnapshotQuerier) *Engine {
	return &Engine{recipes: recipes, snapshots: snapshots, Now: time.Now}
}

// Compare aggregates the current window [now-d, now] and the previous
// window [now-2d, now-d), both moved back by periodsAgo windows.
func (e *Engine) Compare(ctx context.Context, recipeID string, period Period, periodsAgo int) (HPPComparison, error) {
	if recipeID == "" {
		return HPPComparison{}, hpp.Validationf("recipe_id is required")
	}
	days := period.Days()
	if days == 0 {
		return HPPComparison{}, hpp.Validationf("period must be one of 7d, 30d, 90d, 1y")
	}
	if periodsAgo < 0 {
		return HPPComparison{}, hpp.Validationf("periods_ago must be greater than or equal to 0")
	}
	if _, err := e.recipes.GetRecipe(ctx, recipeID); err != nil {
		return HPPComparison{}, err
	}

	// Both windows hold exactly days calendar days, end inclusive.
	end := hpp.Day(e.Now()).AddDate(0, 0, -days*periodsAgo)
	currentFrom := end.AddDate(0, 0, -days+1)
	previousEnd := currentFrom.AddDate(0, 0, -1)
	previousFrom := previousEnd.AddDate(0, 0, -days+1)

	current, err := e.window(ctx, recipeID, currentFrom, end)
	if err != nil {
		return HPPComparison{}, err
	}
	previous, err := e.window(ctx, recipeID, previousFrom, previousEnd)
	if err != nil {
		return HPPComparison{}, err
	}

	cmp := HPPComparison{
		RecipeID:   recipeID,
		Period:     period,
		PeriodsAgo: periodsAgo,
		Current:    current,
		Previous:   previous,
	}
	cmp.Change, cmp.ChangePercentage, cmp.Trend = Classify(previous.Avg, current.Avg)
	return cmp, nil
}

// Classify returns the change between two averages, its percentage and the
// resulting trend. A zero previous average yields a 0% stable result.
func Classify(previousAvg, currentAvg float64) (change, pct float64, trend Trend) {
	change = decimal.NewFromFloat(currentAvg).Sub(decimal.NewFromFloat(previousAvg)).Round(2).InexactFloat64()
	pct, ok := hpp.PercentChange(previousAvg, currentAvg)
	if !ok {
		return change, 0, TrendStable
	}
	switch {
	case pct > deadband:
		trend = TrendUp
	case pct < -deadband:
		trend = TrendDown
	default:
		trend = TrendStable
	}
	return change, pct, trend
}

func (e *Engine) window(ctx context.Context, recipeID string, from, to time.Time) (PeriodStats, error) {
	snaps, err := e.snapshots.Query(ctx, recipeID, from, to)
	if err != nil {
		return PeriodStats{}, fmt.Errorf("query %s..%s: %w", from.Format(hpp.DateLayout), to.Format(hpp.DateLayout), err)
	}
	s := PeriodStats{From: from, To: to}
	if len(snaps) == 0 {
		return s, nil
	}
	values := make([]float64, len(snaps))
	for i, snap := range snaps {
		values[i] = snap.CostPerServing
	}
	s.Avg = hpp.RoundMoney(stat.Mean(values, nil))
	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	s.Count = len(values)
	s.HasData = true
	return s, nil
}
