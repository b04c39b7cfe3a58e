package hpp

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentChange(t *testing.T) {
	pct, ok := PercentChange(100, 105)
	require.True(t, ok)
	assert.Equal(t, 5.0, pct)

	pct, ok = PercentChange(200, 150)
	require.True(t, ok)
	assert.Equal(t, -25.0, pct)

	_, ok = PercentChange(0, 10)
	assert.False(t, ok)
}

func TestMarginPercent_ExactBoundaries(t *testing.T) {
	cases := []struct {
		cost float64
		want float64
	}{
		{95.01, 4.99},
		{95, 5},
		{90.01, 9.99},
		{90, 10},
		{110, -10},
	}
	for _, tc := range cases {
		got, ok := MarginPercent(100, tc.cost)
		require.True(t, ok)
		assert.Equal(t, tc.want, got, "cost %v", tc.cost)
	}

	_, ok := MarginPercent(0, 10)
	assert.False(t, ok)
}

func TestMoney_NonFiniteInputs(t *testing.T) {
	inf := math.Inf(1)

	_, ok := PercentChange(100, inf)
	assert.False(t, ok)
	_, ok = PercentChange(math.NaN(), 100)
	assert.False(t, ok)
	_, ok = MarginPercent(inf, 100)
	assert.False(t, ok)
	_, ok = MarginPercent(100, inf)
	assert.False(t, ok)
	assert.True(t, math.IsInf(RoundMoney(inf), 1))

	assert.True(t, ValidAmount(0))
	assert.True(t, ValidAmount(MaxAmount))
	assert.False(t, ValidAmount(MaxAmount*10))
	assert.False(t, ValidAmount(-1))
	assert.False(t, ValidAmount(math.NaN()))
}

func TestIngredientPrice_PrefersWeightedAverage(t *testing.T) {
	wac := 900.0
	p := IngredientPrice{UnitPrice: 1000, WeightedAverageCost: &wac}
	assert.Equal(t, 900.0, p.Effective())

	zero := 0.0
	p.WeightedAverageCost = &zero
	assert.Equal(t, 1000.0, p.Effective())
}

func TestKindOf(t *testing.T) {
	err := fmt.Errorf("load recipe: %w", NotFoundf("recipe %q not found", "r1"))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, IsKind(err, KindNotFound))
	assert.Equal(t, `recipe "r1" not found`, MessageOf(err))

	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}
