package alerts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Simplici0/hppengine/internal/hpp"
)

// Log persists every generated alert so lower-severity alerts stay
// queryable even though they are never pushed.
type Log struct {
	db *sql.DB
}

func NewLog(db *sql.DB) *Log {
	return &Log{db: db}
}

// ListFilter narrows List. Zero values mean no restriction; Limit defaults
// to 50.
type ListFilter struct {
	RecipeIDs []string
	From      time.Time
	To        time.Time
	Limit     int
}

// Record stores alerts in one transaction.
func (l *Log) Record(ctx context.Context, alerts []hpp.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin alert log: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hpp_alerts (id, recipe_id, alert_type, severity, message, impact, recommendation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare alert insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range alerts {
		if _, err := stmt.ExecContext(ctx, a.ID, a.RecipeID, string(a.Type), string(a.Severity),
			a.Message, a.Impact, a.Recommendation, a.CreatedAt.UTC().Format(hpp.TimestampLayout)); err != nil {
			return fmt.Errorf("insert alert %s: %w", a.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit alert log: %w", err)
	}
	return nil
}

// List returns logged alerts, newest first.
func (l *Log) List(ctx context.Context, f ListFilter) ([]hpp.Alert, error) {
	var where []string
	var args []any
	if len(f.RecipeIDs) > 0 {
		where = append(where, "recipe_id IN ("+strings.TrimSuffix(strings.Repeat("?,", len(f.RecipeIDs)), ",")+")")
		for _, id := range f.RecipeIDs {
			args = append(args, id)
		}
	}
	if !f.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.From.UTC().Format(hpp.TimestampLayout))
	}
	if !f.To.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, f.To.UTC().Format(hpp.TimestampLayout))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, recipe_id, alert_type, severity, message, impact, recommendation, created_at FROM hpp_alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]hpp.Alert, 0)
	for rows.Next() {
		var a hpp.Alert
		var typ, sev, created string
		if err := rows.Scan(&a.ID, &a.RecipeID, &typ, &sev, &a.Message, &a.Impact, &a.Recommendation, &created); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Type = hpp.AlertType(typ)
		a.Severity = hpp.Severity(sev)
		if a.CreatedAt, err = time.Parse(hpp.TimestampLayout, created); err != nil {
			return nil, fmt.Errorf("parse alert created_at %q: %w", created, err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}
