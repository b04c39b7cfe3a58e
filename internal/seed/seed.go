package seed

import (
	"database/sql"
	"fmt"
)

type ingredient struct {
	id    string
	name  string
	unit  string
	price float64
}

type component struct {
	ingredientID string
	quantity     float64
	unit         string
}

type recipe struct {
	id           string
	name         string
	category     string
	servings     int
	sellingPrice float64
	components   []component
}

type operationalCost struct {
	id       string
	name     string
	costType string
	category string
	amount   float64
}

var defaultIngredients = []ingredient{
	{"tepung-terigu", "Tepung terigu", "kg", 12000},
	{"gula-pasir", "Gula pasir", "kg", 15000},
	{"telur", "Telur ayam", "butir", 2500},
	{"mentega", "Mentega", "kg", 40000},
	{"susu-cair", "Susu cair", "liter", 18000},
	{"coklat-bubuk", "Coklat bubuk", "kg", 85000},
}

var defaultRecipes = []recipe{
	{
		id: "roti-tawar", name: "Roti tawar", category: "roti", servings: 16, sellingPrice: 25000,
		components: []component{
			{"tepung-terigu", 1, "kg"},
			{"gula-pasir", 0.1, "kg"},
			{"mentega", 0.1, "kg"},
			{"susu-cair", 0.3, "liter"},
		},
	},
	{
		id: "brownies", name: "Brownies coklat", category: "kue", servings: 12, sellingPrice: 60000,
		components: []component{
			{"tepung-terigu", 0.25, "kg"},
			{"gula-pasir", 0.3, "kg"},
			{"telur", 4, "butir"},
			{"mentega", 0.2, "kg"},
			{"coklat-bubuk", 0.15, "kg"},
		},
	},
	{
		id: "bolu-pandan", name: "Bolu pandan", category: "kue", servings: 10, sellingPrice: 45000,
		components: []component{
			{"tepung-terigu", 0.25, "kg"},
			{"gula-pasir", 0.25, "kg"},
			{"telur", 6, "butir"},
			{"susu-cair", 0.2, "liter"},
		},
	},
}

// An empty category applies to every recipe.
var defaultOperationalCosts = []operationalCost{
	{"gas-lpg", "Gas LPG", "overhead", "", 3000},
	{"listrik", "Listrik oven", "overhead", "", 2000},
	{"tenaga-kerja", "Tenaga kerja per batch", "labor", "", 10000},
	{"kemasan-kue", "Kotak kue", "packaging", "kue", 3500},
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
	Updates int
}

// Run inserts the demo catalog in an idempotent way. Rows that already
// exist are left as they are, so edited prices survive restarts.
func Run(db *sql.DB) (Stats, error) {
	tx, err := db.Begin()
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}

	if err := ensureIngredients(tx, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if err := ensureRecipes(tx, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if err := ensureOperationalCosts(tx, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

func exists(tx *sql.Tx, table, id string) (bool, error) {
	var found bool
	err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = ? LIMIT 1)`, id).Scan(&found)
	return found, err
}

func ensureIngredients(tx *sql.Tx, stats *Stats) error {
	for _, ing := range defaultIngredients {
		found, err := exists(tx, "ingredients", ing.id)
		if err != nil {
			return fmt.Errorf("check ingredient %s existence: %w", ing.id, err)
		}
		if found {
			continue
		}
		if _, err := tx.Exec(`
			INSERT INTO ingredients (id, name, unit, price_per_unit)
			VALUES (?, ?, ?, ?)
		`, ing.id, ing.name, ing.unit, ing.price); err != nil {
			return fmt.Errorf("insert ingredient %s: %w", ing.id, err)
		}
		stats.Inserts++
	}
	return nil
}

func ensureRecipes(tx *sql.Tx, stats *Stats) error {
	for _, r := range defaultRecipes {
		found, err := exists(tx, "recipes", r.id)
		if err != nil {
			return fmt.Errorf("check recipe %s existence: %w", r.id, err)
		}
		if found {
			continue
		}
		if _, err := tx.Exec(`
			INSERT INTO recipes (id, name, category, servings, selling_price, is_active)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.id, r.name, r.category, r.servings, r.sellingPrice, true); err != nil {
			return fmt.Errorf("insert recipe %s: %w", r.id, err)
		}
		for _, c := range r.components {
			if _, err := tx.Exec(`
				INSERT INTO recipe_ingredients (recipe_id, ingredient_id, quantity, unit)
				VALUES (?, ?, ?, ?)
			`, r.id, c.ingredientID, c.quantity, c.unit); err != nil {
				return fmt.Errorf("insert recipe %s component %s: %w", r.id, c.ingredientID, err)
			}
		}
		stats.Inserts++
	}
	return nil
}

func ensureOperationalCosts(tx *sql.Tx, stats *Stats) error {
	for _, c := range defaultOperationalCosts {
		found, err := exists(tx, "operational_costs", c.id)
		if err != nil {
			return fmt.Errorf("check operational cost %s existence: %w", c.id, err)
		}
		if found {
			continue
		}
		var category any
		if c.category != "" {
			category = c.category
		}
		if _, err := tx.Exec(`
			INSERT INTO operational_costs (id, name, cost_type, recipe_category, amount, is_active)
			VALUES (?, ?, ?, ?, ?, ?)
		`, c.id, c.name, c.costType, category, c.amount, true); err != nil {
			return fmt.Errorf("insert operational cost %s: %w", c.id, err)
		}
		stats.Inserts++
	}
	return nil
}
