// Package snapshot persists the append-only history of computed recipe
// costs. Append is the only mutation point and is serialised per recipe.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Simplici0/hppengine/internal/hpp"
)

// Mode selects what Append does when the recipe already has a snapshot for
// the same day.
type Mode int

const (
	// Reject fails with a duplicate_snapshot conflict.
	Reject Mode = iota
	// Overwrite replaces the day's figures in place.
	Overwrite
)

// Filter selects snapshots across recipes. Zero times are open bounds.
type Filter struct {
	RecipeIDs []string
	From      time.Time
	To        time.Time
}

// Store is the SQLite-backed snapshot history.
type Store struct {
	db    *sql.DB
	locks *keyedLocks
	now   func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, locks: newKeyedLocks(), now: time.Now}
}

const snapshotColumns = `
	id, recipe_id, snapshot_date, ingredient_cost, labor_cost, overhead_cost,
	packaging_cost, total_cost, cost_per_serving, suggested_price,
	selling_price, margin_percentage, change_percentage, created_at, lines`

// Append stores snap and returns it with its id, change percentage and
// creation time filled in. The change is computed against the recipe's
// latest snapshot; when Overwrite replaces the day's row, that is the row
// being replaced.
func (s *Store) Append(ctx context.Context, snap hpp.Snapshot, mode Mode) (hpp.Snapshot, error) {
	if snap.RecipeID == "" {
		return hpp.Snapshot{}, hpp.Validationf("snapshot recipe id is required")
	}
	if snap.TotalCost < 0 {
		return hpp.Snapshot{}, hpp.Errorf(hpp.KindValidation, hpp.CodeNegativeCost, "snapshot total cost must not be negative")
	}
	for _, v := range []float64{snap.IngredientCost, snap.LaborCost, snap.OverheadCost, snap.PackagingCost,
		snap.TotalCost, snap.CostPerServing, snap.SuggestedPrice} {
		if !hpp.Finite(v) {
			return hpp.Snapshot{}, hpp.Validationf("snapshot of recipe %q holds a non-finite amount", snap.RecipeID)
		}
	}
	lines, err := json.Marshal(nonNilLines(snap.Lines))
	if err != nil {
		return hpp.Snapshot{}, hpp.Wrap(err, hpp.KindValidation, hpp.CodeInvalidInput, "encode snapshot cost lines")
	}
	snap.SnapshotDate = hpp.Day(snap.SnapshotDate)
	day := snap.SnapshotDate.Format(hpp.DateLayout)

	unlock := s.locks.lock(snap.RecipeID)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return hpp.Snapshot{}, internal(err, "begin snapshot transaction")
	}
	defer tx.Rollback()

	latest, found, err := scanOne(tx.QueryRowContext(ctx, `
		SELECT`+snapshotColumns+`
		FROM hpp_snapshots
		WHERE recipe_id = ?
		ORDER BY snapshot_date DESC
		LIMIT 1
	`, snap.RecipeID))
	if err != nil {
		return hpp.Snapshot{}, internal(err, "query latest snapshot")
	}

	replace := false
	if found {
		latestDay := latest.SnapshotDate.Format(hpp.DateLayout)
		switch {
		case latestDay > day:
			return hpp.Snapshot{}, hpp.Errorf(hpp.KindConflict, hpp.CodeOutOfOrder,
				"recipe %q already has a snapshot dated %s, after %s", snap.RecipeID, latestDay, day)
		case latestDay == day:
			if mode != Overwrite {
				return hpp.Snapshot{}, hpp.Errorf(hpp.KindConflict, hpp.CodeDuplicateSnapshot,
					"recipe %q already has a snapshot for %s", snap.RecipeID, day)
			}
			replace = true
			snap.ID = latest.ID
		}
	}

	snap.ChangePercentage = nil
	if found {
		if pct, ok := hpp.PercentChange(latest.CostPerServing, snap.CostPerServing); ok {
			snap.ChangePercentage = &pct
		}
	}
	snap.CreatedAt = s.now().UTC()

	if replace {
		_, err = tx.ExecContext(ctx, `
			UPDATE hpp_snapshots
			SET ingredient_cost = ?, labor_cost = ?, overhead_cost = ?, packaging_cost = ?,
				total_cost = ?, cost_per_serving = ?, suggested_price = ?, selling_price = ?,
				margin_percentage = ?, change_percentage = ?, created_at = ?, lines = ?
			WHERE id = ?
		`, snap.IngredientCost, snap.LaborCost, snap.OverheadCost, snap.PackagingCost,
			snap.TotalCost, snap.CostPerServing, snap.SuggestedPrice, nullable(snap.SellingPrice),
			nullable(snap.MarginPercentage), nullable(snap.ChangePercentage),
			snap.CreatedAt.Format(hpp.TimestampLayout), string(lines), snap.ID)
	} else {
		snap.ID = uuid.NewString()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO hpp_snapshots (`+snapshotColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, snap.ID, snap.RecipeID, day, snap.IngredientCost, snap.LaborCost, snap.OverheadCost,
			snap.PackagingCost, snap.TotalCost, snap.CostPerServing, snap.SuggestedPrice,
			nullable(snap.SellingPrice), nullable(snap.MarginPercentage), nullable(snap.ChangePercentage),
			snap.CreatedAt.Format(hpp.TimestampLayout), string(lines))
	}
	if err != nil {
		return hpp.Snapshot{}, internal(err, "write snapshot")
	}

	if err := tx.Commit(); err != nil {
		return hpp.Snapshot{}, internal(err, "commit snapshot")
	}
	return snap, nil
}

// Latest returns the most recent snapshot of a recipe.
func (s *Store) Latest(ctx context.Context, recipeID string) (hpp.Snapshot, bool, error) {
	snap, found, err := scanOne(s.db.QueryRowContext(ctx, `
		SELECT`+snapshotColumns+`
		FROM hpp_snapshots
		WHERE recipe_id = ?
		ORDER BY snapshot_date DESC
		LIMIT 1
	`, recipeID))
	if err != nil {
		return hpp.Snapshot{}, false, internal(err, "query latest snapshot")
	}
	return snap, found, nil
}

// Query returns a recipe's snapshots dated within [from, to], oldest first.
func (s *Store) Query(ctx context.Context, recipeID string, from, to time.Time) ([]hpp.Snapshot, error) {
	return s.QueryMany(ctx, Filter{RecipeIDs: []string{recipeID}, From: from, To: to})
}

// QueryMany returns the snapshots matching f ordered by recipe and date.
func (s *Store) QueryMany(ctx context.Context, f Filter) ([]hpp.Snapshot, error) {
	var where []string
	var args []any
	if len(f.RecipeIDs) > 0 {
		where = append(where, "recipe_id IN ("+placeholders(len(f.RecipeIDs))+")")
		for _, id := range f.RecipeIDs {
			args = append(args, id)
		}
	}
	if !f.From.IsZero() {
		where = append(where, "snapshot_date >= ?")
		args = append(args, hpp.Day(f.From).Format(hpp.DateLayout))
	}
	if !f.To.IsZero() {
		where = append(where, "snapshot_date <= ?")
		args = append(args, hpp.Day(f.To).Format(hpp.DateLayout))
	}

	query := `SELECT` + snapshotColumns + ` FROM hpp_snapshots`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY recipe_id, snapshot_date"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, internal(err, "query snapshots")
	}
	defer rows.Close()

	snapshots := make([]hpp.Snapshot, 0)
	for rows.Next() {
		snap, err := scan(rows)
		if err != nil {
			return nil, internal(err, "scan snapshot")
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, internal(err, "iterate snapshots")
	}
	return snapshots, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row) (hpp.Snapshot, bool, error) {
	snap, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return hpp.Snapshot{}, false, nil
	}
	if err != nil {
		return hpp.Snapshot{}, false, err
	}
	return snap, true, nil
}

func scan(row scanner) (hpp.Snapshot, error) {
	var snap hpp.Snapshot
	var day, created, lines string
	var selling, margin, change sql.NullFloat64
	if err := row.Scan(
		&snap.ID, &snap.RecipeID, &day, &snap.IngredientCost, &snap.LaborCost, &snap.OverheadCost,
		&snap.PackagingCost, &snap.TotalCost, &snap.CostPerServing, &snap.SuggestedPrice,
		&selling, &margin, &change, &created, &lines,
	); err != nil {
		return hpp.Snapshot{}, err
	}

	var err error
	if snap.SnapshotDate, err = time.Parse(hpp.DateLayout, day); err != nil {
		return hpp.Snapshot{}, fmt.Errorf("parse snapshot date %q: %w", day, err)
	}
	if snap.CreatedAt, err = time.Parse(hpp.TimestampLayout, created); err != nil {
		return hpp.Snapshot{}, fmt.Errorf("parse snapshot created_at %q: %w", created, err)
	}
	snap.SellingPrice = fromNull(selling)
	snap.MarginPercentage = fromNull(margin)
	snap.ChangePercentage = fromNull(change)
	if err := json.Unmarshal([]byte(lines), &snap.Lines); err != nil {
		return hpp.Snapshot{}, fmt.Errorf("decode snapshot lines: %w", err)
	}
	if len(snap.Lines) == 0 {
		snap.Lines = nil
	}
	return snap, nil
}

func nonNilLines(lines []hpp.CostLine) []hpp.CostLine {
	if lines == nil {
		return []hpp.CostLine{}
	}
	return lines
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func internal(err error, msg string) error {
	return hpp.Wrap(err, hpp.KindInternal, "", msg)
}
