package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/hppengine/internal/alerts"
	"github.com/Simplici0/hppengine/internal/db/dbtest"
	"github.com/Simplici0/hppengine/internal/hpp"
	"github.com/Simplici0/hppengine/internal/recommendations"
	"github.com/Simplici0/hppengine/internal/snapshot"
)

type staticNames map[string]string

func (n staticNames) Names(context.Context) (map[string]string, error) { return n, nil }

func ptr[T any](v T) *T { return &v }

func day(s string) time.Time {
	t, _ := time.Parse(hpp.DateLayout, s)
	return t
}

type fixture struct {
	svc *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	database := dbtest.New(t)
	snaps := snapshot.NewStore(database)
	log := alerts.NewLog(database)
	recs := recommendations.NewStore(database)

	for _, s := range []hpp.Snapshot{
		{RecipeID: "bread", SnapshotDate: day("2026-01-01"), IngredientCost: 1000, OverheadCost: 2500, TotalCost: 3500, CostPerServing: 437.5, SuggestedPrice: 1000, SellingPrice: ptr(5000.0), MarginPercentage: ptr(30.0)},
		{RecipeID: "bread", SnapshotDate: day("2026-01-05"), IngredientCost: 1200, OverheadCost: 2500, TotalCost: 3700, CostPerServing: 462.5, SuggestedPrice: 1000},
		{RecipeID: "cake", SnapshotDate: day("2026-01-03"), IngredientCost: 9000, TotalCost: 9000, CostPerServing: 750, SuggestedPrice: 1500,
			Lines: []hpp.CostLine{{IngredientID: "flour", Quantity: 0.5, UnitPrice: 18000, Cost: 9000}}},
	} {
		_, err := snaps.Append(ctx, s, snapshot.Reject)
		require.NoError(t, err)
	}
	require.NoError(t, log.Record(ctx, []hpp.Alert{
		{ID: "a1", RecipeID: "bread", Type: hpp.AlertCostIncrease, Severity: hpp.SeverityHigh, Message: "up", CreatedAt: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)},
		{ID: "a2", RecipeID: "cake", Type: hpp.AlertNoData, Severity: hpp.SeverityMedium, Message: "none", CreatedAt: time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC)},
	}))
	_, err := recs.Create(ctx, "alice", recommendations.Input{RecipeID: ptr("bread"), Title: "Bulk flour", Description: "Buy 25kg sacks"})
	require.NoError(t, err)

	svc := NewService(snaps, log, recs, staticNames{"bread": "Sourdough", "cake": "Cake"})
	svc.Now = func() time.Time { return time.Date(2026, 1, 10, 12, 30, 0, 0, time.UTC) }
	return fixture{svc: svc}
}

func TestExport_CSV(t *testing.T) {
	f := newFixture(t)

	doc, err := f.svc.Export(context.Background(), FormatCSV, Filter{RecipeIDs: []string{"bread"}})
	require.NoError(t, err)
	assert.Equal(t, "hpp-export-20260110-123000.csv", doc.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", doc.MimeType)

	rows, err := csv.NewReader(bytes.NewReader(doc.Data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"bread", "Sourdough", "2026-01-01", "1000.00", "0.00", "2500.00", "0.00", "3500.00", "437.50", "1000.00", "5000.00", "30.00", ""}, rows[1])
	assert.Equal(t, "5.71", rows[2][12])
}

func TestExport_JSONSections(t *testing.T) {
	f := newFixture(t)

	doc, err := f.svc.Export(context.Background(), FormatJSON, Filter{
		From:    day("2026-01-02"),
		To:      day("2026-01-05"),
		OwnerID: "alice",
		Include: []string{IncludeSnapshots, IncludeAlerts, IncludeRecommendations},
	})
	require.NoError(t, err)
	assert.Equal(t, "application/json", doc.MimeType)

	var got struct {
		Metadata struct {
			From   string         `json:"from"`
			Counts map[string]int `json:"counts"`
		} `json:"metadata"`
		Snapshots []struct {
			RecipeID   string         `json:"recipe_id"`
			RecipeName string         `json:"recipe_name"`
			Lines      []hpp.CostLine `json:"lines"`
		} `json:"snapshots"`
		Alerts          []hpp.Alert          `json:"alerts"`
		Recommendations []hpp.Recommendation `json:"recommendations"`
	}
	require.NoError(t, json.Unmarshal(doc.Data, &got))
	assert.Equal(t, "2026-01-02", got.Metadata.From)
	assert.Equal(t, 2, got.Metadata.Counts["snapshots"])
	require.Len(t, got.Snapshots, 2)
	assert.Equal(t, "Sourdough", got.Snapshots[0].RecipeName)
	assert.Empty(t, got.Snapshots[0].Lines)
	require.Len(t, got.Snapshots[1].Lines, 1)
	assert.Equal(t, "flour", got.Snapshots[1].Lines[0].IngredientID)
	assert.Len(t, got.Alerts, 2)
	require.Len(t, got.Recommendations, 1)
	assert.Equal(t, "Bulk flour", got.Recommendations[0].Title)
}

func TestExport_JSONDefaultsToSnapshotsOnly(t *testing.T) {
	f := newFixture(t)

	doc, err := f.svc.Export(context.Background(), FormatJSON, Filter{})
	require.NoError(t, err)

	var got map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(doc.Data, &got))
	assert.Contains(t, got, "snapshots")
	assert.NotContains(t, got, "alerts")
	assert.NotContains(t, got, "recommendations")
}

func TestExport_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Export(context.Background(), FormatCSV, Filter{From: day("2026-02-01"), To: day("2026-01-01")})
	assert.True(t, hpp.IsKind(err, hpp.KindValidation))

	_, err = f.svc.Export(context.Background(), Format("xlsx"), Filter{})
	assert.True(t, hpp.IsKind(err, hpp.KindValidation))

	_, err = ParseFormat("pdf")
	assert.Error(t, err)
	format, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, format)
}
