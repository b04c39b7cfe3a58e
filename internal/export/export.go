// Package export serialises stored snapshots, alerts and recommendations.
// It never recalculates anything.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/hppengine/internal/alerts"
	"github.com/Simplici0/hppengine/internal/hpp"
	"github.com/Simplici0/hppengine/internal/snapshot"
)

// Format of an export document.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts csv or json, case-insensitively. Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatJSON:
		return f, nil
	}
	return "", hpp.Validationf("format must be csv or json")
}

// Sections a JSON export may include.
const (
	IncludeSnapshots       = "snapshots"
	IncludeAlerts          = "alerts"
	IncludeRecommendations = "recommendations"
)

// Filter scopes an export. Include applies to JSON only; CSV always holds
// snapshots. Recommendations need OwnerID.
type Filter struct {
	RecipeIDs []string
	From      time.Time
	To        time.Time
	OwnerID   string
	Include   []string
}

func (f Filter) includes(section string) bool {
	if len(f.Include) == 0 {
		return section == IncludeSnapshots
	}
	return slices.Contains(f.Include, section)
}

// Document is a finished export.
type Document struct {
	Data     []byte
	Filename string
	MimeType string
}

type SnapshotSource interface {
	QueryMany(ctx context.Context, f snapshot.Filter) ([]hpp.Snapshot, error)
}

type AlertSource interface {
	List(ctx context.Context, f alerts.ListFilter) ([]hpp.Alert, error)
}

type RecommendationSource interface {
	ForRecipes(ctx context.Context, owner string, recipeIDs []string) ([]hpp.Recommendation, error)
}

type RecipeNames interface {
	Names(ctx context.Context) (map[string]string, error)
}

// maxExportAlerts bounds the alert section of a JSON export.
const maxExportAlerts = 1000

// Service builds export documents. Alerts, Recommendations and Names may be
// nil, which leaves their sections empty.
type Service struct {
	Snapshots       SnapshotSource
	Alerts          AlertSource
	Recommendations RecommendationSource
	Names           RecipeNames
	Now             func() time.Time
}

func NewService(snapshots SnapshotSource, alerts AlertSource, recs RecommendationSource, names RecipeNames) *Service {
	return &Service{Snapshots: snapshots, Alerts: alerts, Recommendations: recs, Names: names, Now: time.Now}
}

// Export renders the stored data matching filter in format.
func (s *Service) Export(ctx context.Context, format Format, filter Filter) (Document, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return Document{}, hpp.Validationf("to must not be before from")
	}
	snaps, err := s.Snapshots.QueryMany(ctx, snapshot.Filter{RecipeIDs: filter.RecipeIDs, From: filter.From, To: filter.To})
	if err != nil {
		return Document{}, err
	}
	names := map[string]string{}
	if s.Names != nil {
		if names, err = s.Names.Names(ctx); err != nil {
			return Document{}, fmt.Errorf("load recipe names: %w", err)
		}
	}

	now := s.Now().UTC()
	base := "hpp-export-" + now.Format("20060102-150405")
	switch format {
	case FormatCSV:
		data, err := snapshotsCSV(snaps, names)
		if err != nil {
			return Document{}, err
		}
		return Document{Data: data, Filename: base + ".csv", MimeType: "text/csv; charset=utf-8"}, nil
	case FormatJSON:
		data, err := s.json(ctx, now, filter, snaps, names)
		if err != nil {
			return Document{}, err
		}
		return Document{Data: data, Filename: base + ".json", MimeType: "application/json"}, nil
	}
	return Document{}, hpp.Validationf("format must be csv or json")
}

var csvHeader = []string{
	"recipe_id", "recipe_name", "snapshot_date",
	"ingredient_cost", "labor_cost", "overhead_cost", "packaging_cost",
	"total_cost", "cost_per_serving", "suggested_price",
	"selling_price", "margin_percentage", "change_percentage",
}

func snapshotsCSV(snaps []hpp.Snapshot, names map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, s := range snaps {
		row := []string{
			s.RecipeID,
			names[s.RecipeID],
			s.SnapshotDate.Format(hpp.DateLayout),
			money(s.IngredientCost),
			money(s.LaborCost),
			money(s.OverheadCost),
			money(s.PackagingCost),
			money(s.TotalCost),
			money(s.CostPerServing),
			money(s.SuggestedPrice),
			optional(s.SellingPrice),
			optional(s.MarginPercentage),
			optional(s.ChangePercentage),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

type metadata struct {
	GeneratedAt time.Time      `json:"generated_at"`
	RecipeIDs   []string       `json:"recipe_ids,omitempty"`
	From        string         `json:"from,omitempty"`
	To          string         `json:"to,omitempty"`
	Counts      map[string]int `json:"counts"`
}

type namedSnapshot struct {
	hpp.Snapshot
	RecipeName string `json:"recipe_name,omitempty"`
}

type document struct {
	Metadata        metadata             `json:"metadata"`
	Snapshots       []namedSnapshot      `json:"snapshots,omitempty"`
	Alerts          []hpp.Alert          `json:"alerts,omitempty"`
	Recommendations []hpp.Recommendation `json:"recommendations,omitempty"`
}

func (s *Service) json(ctx context.Context, now time.Time, filter Filter, snaps []hpp.Snapshot, names map[string]string) ([]byte, error) {
	doc := document{Metadata: metadata{
		GeneratedAt: now,
		RecipeIDs:   filter.RecipeIDs,
		Counts:      map[string]int{},
	}}
	if !filter.From.IsZero() {
		doc.Metadata.From = filter.From.Format(hpp.DateLayout)
	}
	if !filter.To.IsZero() {
		doc.Metadata.To = filter.To.Format(hpp.DateLayout)
	}

	if filter.includes(IncludeSnapshots) {
		doc.Snapshots = make([]namedSnapshot, len(snaps))
		for i, snap := range snaps {
			doc.Snapshots[i] = namedSnapshot{Snapshot: snap, RecipeName: names[snap.RecipeID]}
		}
		doc.Metadata.Counts[IncludeSnapshots] = len(snaps)
	}
	if filter.includes(IncludeAlerts) && s.Alerts != nil {
		to := filter.To
		if !to.IsZero() {
			to = hpp.Day(to).AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		list, err := s.Alerts.List(ctx, alerts.ListFilter{RecipeIDs: filter.RecipeIDs, From: filter.From, To: to, Limit: maxExportAlerts})
		if err != nil {
			return nil, fmt.Errorf("list alerts: %w", err)
		}
		doc.Alerts = list
		doc.Metadata.Counts[IncludeAlerts] = len(list)
	}
	if filter.includes(IncludeRecommendations) && s.Recommendations != nil && filter.OwnerID != "" {
		list, err := s.Recommendations.ForRecipes(ctx, filter.OwnerID, filter.RecipeIDs)
		if err != nil {
			return nil, fmt.Errorf("list recommendations: %w", err)
		}
		doc.Recommendations = list
		doc.Metadata.Counts[IncludeRecommendations] = len(list)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return data, nil
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func optional(v *float64) string {
	if v == nil {
		return ""
	}
	return money(*v)
}
