package comparison

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/hppengine/internal/hpp"
)

type fakeRecipes map[string]hpp.Recipe

func (f fakeRecipes) GetRecipe(_ context.Context, id string) (hpp.Recipe, error) {
	r, ok := f[id]
	if !ok {
		return hpp.Recipe{}, hpp.NotFoundf("recipe %q not found", id)
	}
	return r, nil
}

type fakeSnapshots []hpp.Snapshot

func (f fakeSnapshots) Query(_ context.Context, recipeID string, from, to time.Time) ([]hpp.Snapshot, error) {
	var out []hpp.Snapshot
	for _, s := range f {
		if s.RecipeID == recipeID && !s.SnapshotDate.Before(from) && !s.SnapshotDate.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

var today = time.Date(2026, 6, 30, 15, 4, 0, 0, time.UTC)

func at(daysAgo int, perServing float64) hpp.Snapshot {
	return hpp.Snapshot{RecipeID: "r1", SnapshotDate: hpp.Day(today).AddDate(0, 0, -daysAgo), CostPerServing: perServing}
}

func newEngine(snaps ...hpp.Snapshot) *Engine {
	e := NewEngine(fakeRecipes{"r1": {ID: "r1"}}, fakeSnapshots(snaps))
	e.Now = func() time.Time { return today }
	return e
}

func TestCompare_WindowsAndStats(t *testing.T) {
	e := newEngine(
		at(0, 120), at(3, 100), // current 7d window
		at(6, 80),              // first day of the current window
		at(7, 999),             // last day of the previous window
		at(8, 60), at(13, 100), // previous window
		at(14, 1), // outside both
	)

	got, err := e.Compare(context.Background(), "r1", Period7d, 0)
	require.NoError(t, err)

	assert.True(t, got.Current.HasData)
	assert.Equal(t, 3, got.Current.Count)
	assert.Equal(t, 100.0, got.Current.Avg)
	assert.Equal(t, 80.0, got.Current.Min)
	assert.Equal(t, 120.0, got.Current.Max)

	assert.Equal(t, 3, got.Previous.Count)
	assert.Equal(t, 60.0, got.Previous.Min)
	assert.Equal(t, 999.0, got.Previous.Max)
	assert.Equal(t, TrendDown, got.Trend)

	day := hpp.Day(today)
	assert.Equal(t, day.AddDate(0, 0, -6), got.Current.From)
	assert.Equal(t, day, got.Current.To)
	assert.Equal(t, day.AddDate(0, 0, -13), got.Previous.From)
	assert.Equal(t, day.AddDate(0, 0, -7), got.Previous.To)
}

func TestCompare_PeriodsAgoShiftsWindows(t *testing.T) {
	e := newEngine(at(10, 100), at(20, 50))

	got, err := e.Compare(context.Background(), "r1", Period7d, 1)
	require.NoError(t, err)
	assert.Equal(t, hpp.Day(today).AddDate(0, 0, -7), got.Current.To)
	assert.Equal(t, 1, got.Current.Count)
	assert.Equal(t, 1, got.Previous.Count)
	assert.Equal(t, 100.0, got.ChangePercentage)
	assert.Equal(t, TrendUp, got.Trend)
}

func TestCompare_EmptyWindows(t *testing.T) {
	got, err := newEngine().Compare(context.Background(), "r1", Period30d, 0)
	require.NoError(t, err)
	assert.False(t, got.Current.HasData)
	assert.False(t, got.Previous.HasData)
	assert.Zero(t, got.Current.Avg)
	assert.Equal(t, TrendStable, got.Trend)
}

func TestCompare_Errors(t *testing.T) {
	e := newEngine()
	ctx := context.Background()

	_, err := e.Compare(ctx, "missing", Period7d, 0)
	assert.True(t, hpp.IsKind(err, hpp.KindNotFound))

	_, err = e.Compare(ctx, "r1", Period("2w"), 0)
	assert.True(t, hpp.IsKind(err, hpp.KindValidation))

	_, err = e.Compare(ctx, "", Period7d, 0)
	assert.True(t, hpp.IsKind(err, hpp.KindValidation))

	_, err = e.Compare(ctx, "r1", Period7d, -1)
	assert.True(t, hpp.IsKind(err, hpp.KindValidation))
}

func TestClassify_Deadband(t *testing.T) {
	tests := []struct {
		name     string
		previous float64
		current  float64
		pct      float64
		trend    Trend
	}{
		{"exactly +5", 100, 105, 5, TrendStable},
		{"exactly -5", 100, 95, -5, TrendStable},
		{"just above", 100, 105.01, 5.01, TrendUp},
		{"just below", 100, 94.99, -5.01, TrendDown},
		{"flat", 200, 200, 0, TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, pct, trend := Classify(tt.previous, tt.current)
			assert.Equal(t, tt.pct, pct)
			assert.Equal(t, tt.trend, trend)
		})
	}
}

func TestClassify_ZeroPrevious(t *testing.T) {
	change, pct, trend := Classify(0, 500)
	assert.Equal(t, 500.0, change)
	assert.Equal(t, 0.0, pct)
	assert.Equal(t, TrendStable, trend)
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, Period30d, p)

	p, err = ParsePeriod("1y")
	require.NoError(t, err)
	assert.Equal(t, 365, p.Days())

	_, err = ParsePeriod("6m")
	assert.Error(t, err)
}
