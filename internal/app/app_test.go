package app

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/hppengine/internal/config"
	"github.com/Simplici0/hppengine/internal/db/dbtest"
	"github.com/Simplici0/hppengine/internal/pricing"
	"github.com/Simplici0/hppengine/internal/seed"
)

func TestFallback(t *testing.T) {
	cfg := config.Config{OverheadFallbackPercent: 15, OverheadFallbackMinimum: 2500}
	assert.Equal(t, pricing.DefaultFallback, Fallback(cfg))

	cfg.OverheadFallbackPercent = 20
	fb := Fallback(cfg)
	assert.Equal(t, "overhead-20pct-min-2500", fb.Name)
	assert.Equal(t, 20.0, fb.OverheadPercent)
	assert.Equal(t, 2500.0, fb.OverheadMinimum)
}

func TestNew_RecalculatesSeededCatalog(t *testing.T) {
	database := dbtest.New(t)
	_, err := seed.Run(database)
	require.NoError(t, err)

	a := New(database, config.Config{
		Workers:                 2,
		ExternalTimeout:         time.Second,
		OverheadFallbackPercent: 15,
		OverheadFallbackMinimum: 2500,
	}, zerolog.Nop())

	out, err := a.Coordinator.Recalculate(context.Background(), "bolu-pandan", false)
	require.NoError(t, err)
	require.NotNil(t, out.Snapshot)

	latest, ok, err := a.Snapshots.Latest(context.Background(), "bolu-pandan")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, out.Snapshot.ID, latest.ID)
}
