package snapshot

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/hppengine/internal/db/dbtest"
	"github.com/Simplici0/hppengine/internal/hpp"
)

func day(s string) time.Time {
	t, err := time.Parse(hpp.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func snap(recipeID, date string, perServing float64) hpp.Snapshot {
	return hpp.Snapshot{
		RecipeID:       recipeID,
		SnapshotDate:   day(date),
		IngredientCost: perServing * 10,
		TotalCost:      perServing * 10,
		CostPerServing: perServing,
	}
}

func TestAppend_ChangePercentageAgainstPrior(t *testing.T) {
	ctx := context.Background()
	store := NewStore(dbtest.New(t))

	first, err := store.Append(ctx, snap("r1", "2026-03-01", 100), Reject)
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Nil(t, first.ChangePercentage)

	second, err := store.Append(ctx, snap("r1", "2026-03-02", 150), Reject)
	require.NoError(t, err)
	require.NotNil(t, second.ChangePercentage)
	assert.Equal(t, 50.0, *second.ChangePercentage)

	third, err := store.Append(ctx, snap("r1", "2026-03-05", 120), Reject)
	require.NoError(t, err)
	require.NotNil(t, third.ChangePercentage)
	assert.Equal(t, -20.0, *third.ChangePercentage)

	history, err := store.Query(ctx, "r1", day("2026-03-01"), day("2026-03-05"))
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i-1].SnapshotDate.Before(history[i].SnapshotDate))
	}
	assert.Equal(t, second.ID, history[1].ID)
}

func TestAppend_ZeroPriorLeavesChangeUnset(t *testing.T) {
	ctx := context.Background()
	store := NewStore(dbtest.New(t))

	_, err := store.Append(ctx, snap("r1", "2026-03-01", 0), Reject)
	require.NoError(t, err)
	next, err := store.Append(ctx, snap("r1", "2026-03-02", 40), Reject)
	require.NoError(t, err)
	assert.Nil(t, next.ChangePercentage)
}

func TestAppend_DuplicateDay(t *testing.T) {
	ctx := context.Background()
	store := NewStore(dbtest.New(t))

	_, err := store.Append(ctx, snap("r1", "2026-03-01", 100), Reject)
	require.NoError(t, err)
	original, err := store.Append(ctx, snap("r1", "2026-03-02", 110), Reject)
	require.NoError(t, err)

	_, err = store.Append(ctx, snap("r1", "2026-03-02", 130), Reject)
	require.Error(t, err)
	assert.True(t, hpp.IsKind(err, hpp.KindConflict))
	assert.Equal(t, hpp.CodeDuplicateSnapshot, hpp.CodeOf(err))

	// The change describes the move from the figure being replaced.
	replaced, err := store.Append(ctx, snap("r1", "2026-03-02", 132), Overwrite)
	require.NoError(t, err)
	assert.Equal(t, original.ID, replaced.ID)
	require.NotNil(t, replaced.ChangePercentage)
	assert.Equal(t, 20.0, *replaced.ChangePercentage)

	latest, found, err := store.Latest(ctx, "r1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 132.0, latest.CostPerServing)
	require.NotNil(t, latest.ChangePercentage)
	assert.Equal(t, 20.0, *latest.ChangePercentage)

	all, err := store.Query(ctx, "r1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAppend_RejectsEarlierDate(t *testing.T) {
	ctx := context.Background()
	store := NewStore(dbtest.New(t))

	_, err := store.Append(ctx, snap("r1", "2026-03-10", 100), Reject)
	require.NoError(t, err)

	_, err = store.Append(ctx, snap("r1", "2026-03-09", 100), Overwrite)
	require.Error(t, err)
	assert.Equal(t, hpp.CodeOutOfOrder, hpp.CodeOf(err))

	// Other recipes keep their own timeline.
	_, err = store.Append(ctx, snap("r2", "2026-03-09", 100), Reject)
	require.NoError(t, err)
}

func TestAppend_Validation(t *testing.T) {
	store := NewStore(dbtest.New(t))
	_, err := store.Append(context.Background(), hpp.Snapshot{SnapshotDate: day("2026-01-01")}, Reject)
	assert.True(t, hpp.IsKind(err, hpp.KindValidation))

	bad := snap("r1", "2026-01-01", 1)
	bad.TotalCost = -1
	_, err = store.Append(context.Background(), bad, Reject)
	assert.Equal(t, hpp.CodeNegativeCost, hpp.CodeOf(err))
}

func TestLatest_Empty(t *testing.T) {
	store := NewStore(dbtest.New(t))
	_, found, err := store.Latest(context.Background(), "none")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAppend_NullableFieldsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(dbtest.New(t))

	b := hpp.CostBreakdown{RecipeID: "r1", IngredientCost: 3000, TotalCost: 3000, CostPerServing: 300, SuggestedPrice: 500}
	price := 5000.0
	_, err := store.Append(ctx, hpp.NewSnapshot(b, day("2026-04-01"), &price), Reject)
	require.NoError(t, err)

	got, found, err := store.Latest(ctx, "r1")
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, got.SellingPrice)
	assert.Equal(t, 5000.0, *got.SellingPrice)
	require.NotNil(t, got.MarginPercentage)
	assert.Equal(t, 40.0, *got.MarginPercentage)
	assert.Equal(t, day("2026-04-01"), got.SnapshotDate)
}

func TestQueryMany_FiltersRecipesAndRange(t *testing.T) {
	ctx := context.Background()
	store := NewStore(dbtest.New(t))

	for _, s := range []hpp.Snapshot{
		snap("a", "2026-01-01", 10),
		snap("a", "2026-02-01", 11),
		snap("b", "2026-01-15", 20),
		snap("c", "2026-01-20", 30),
	} {
		_, err := store.Append(ctx, s, Reject)
		require.NoError(t, err)
	}

	got, err := store.QueryMany(ctx, Filter{RecipeIDs: []string{"a", "b"}, From: day("2026-01-10")})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].RecipeID)
	assert.Equal(t, day("2026-02-01"), got[0].SnapshotDate)
	assert.Equal(t, "b", got[1].RecipeID)

	got, err = store.QueryMany(ctx, Filter{To: day("2026-01-15")})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestAppend_ConcurrentSameRecipe(t *testing.T) {
	ctx := context.Background()
	store := NewStore(dbtest.New(t))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Append(ctx, snap("r1", "2026-05-01", float64(100+i)), Reject)
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case hpp.CodeOf(err) == hpp.CodeDuplicateSnapshot:
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, dup)
}

func TestAppend_PersistsCostLines(t *testing.T) {
	ctx := context.Background()
	store := NewStore(dbtest.New(t))

	b := hpp.CostBreakdown{
		RecipeID:       "r1",
		IngredientCost: 3500,
		TotalCost:      3500,
		CostPerServing: 350,
		Lines: []hpp.CostLine{
			{IngredientID: "flour", Quantity: 0.25, UnitPrice: 12000, Cost: 3000},
			{IngredientID: "egg", Quantity: 0.2, UnitPrice: 2500, Cost: 500},
		},
	}
	_, err := store.Append(ctx, hpp.NewSnapshot(b, day("2026-04-01"), nil), Reject)
	require.NoError(t, err)

	got, found, err := store.Latest(ctx, "r1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, b.Lines, got.Lines)
	assert.Equal(t, b.Lines, got.Breakdown().Lines)

	// Rows without lines read back as nil.
	_, err = store.Append(ctx, snap("r2", "2026-04-01", 10), Reject)
	require.NoError(t, err)
	history, err := store.Query(ctx, "r2", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].Lines)
}

func TestAppend_RejectsNonFiniteAmounts(t *testing.T) {
	store := NewStore(dbtest.New(t))

	bad := snap("r1", "2026-01-01", 1)
	bad.TotalCost = math.Inf(1)
	_, err := store.Append(context.Background(), bad, Reject)
	assert.True(t, hpp.IsKind(err, hpp.KindValidation))

	bad = snap("r1", "2026-01-01", math.NaN())
	_, err = store.Append(context.Background(), bad, Reject)
	assert.True(t, hpp.IsKind(err, hpp.KindValidation))

	_, found, err := store.Latest(context.Background(), "r1")
	require.NoError(t, err)
	assert.False(t, found)
}
