package seed

import (
	"database/sql"
	"testing"

	"github.com/Simplici0/hppengine/internal/db/dbtest"
)

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	database := dbtest.New(t)

	for i := 0; i < 10; i++ {
		stats, err := Run(database)
		if err != nil {
			t.Fatalf("run seed (iteration=%d): %v", i, err)
		}
		if i == 0 {
			if stats.Inserts != 13 {
				t.Fatalf("expected 13 inserts in first run, got %d", stats.Inserts)
			}
			continue
		}
		if stats.Inserts != 0 {
			t.Fatalf("expected 0 inserts in iteration %d, got %d", i, stats.Inserts)
		}
	}

	assertCount(t, database, `SELECT COUNT(*) FROM ingredients`, nil, 6)
	assertCount(t, database, `SELECT COUNT(*) FROM recipes WHERE is_active = 1`, nil, 3)
	assertCount(t, database, `SELECT COUNT(*) FROM recipe_ingredients WHERE recipe_id = ?`, "brownies", 5)
	assertCount(t, database, `SELECT COUNT(*) FROM operational_costs WHERE recipe_category IS NULL`, nil, 3)
	assertCount(t, database, `SELECT COUNT(*) FROM operational_costs WHERE cost_type = ? AND recipe_category = ?`, []any{"packaging", "kue"}, 1)
}

func TestRunKeepsEditedPrices(t *testing.T) {
	t.Parallel()

	database := dbtest.New(t)
	if _, err := Run(database); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if _, err := database.Exec(`UPDATE ingredients SET price_per_unit = 99999 WHERE id = 'telur'`); err != nil {
		t.Fatalf("edit price: %v", err)
	}
	if _, err := Run(database); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	assertCount(t, database, `SELECT COUNT(*) FROM ingredients WHERE id = 'telur' AND price_per_unit = ?`, 99999, 1)
}

func assertCount(t *testing.T, database *sql.DB, query string, args any, expected int) {
	t.Helper()

	var count int
	var err error
	switch v := args.(type) {
	case nil:
		err = database.QueryRow(query).Scan(&count)
	case []any:
		err = database.QueryRow(query, v...).Scan(&count)
	default:
		err = database.QueryRow(query, v).Scan(&count)
	}
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != expected {
		t.Fatalf("expected count %d, got %d", expected, count)
	}
}
