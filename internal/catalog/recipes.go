// Package catalog provides the SQLite-backed Recipe, Ingredient and
// Operational Cost stores the cost engine reads from.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Simplici0/hppengine/internal/hpp"
)

// Recipes reads recipes and their components.
type Recipes struct {
	db *sql.DB
}

func NewRecipes(db *sql.DB) *Recipes {
	return &Recipes{db: db}
}

// GetRecipe returns the recipe with its components.
func (s *Recipes) GetRecipe(ctx context.Context, id string) (hpp.Recipe, error) {
	var r hpp.Recipe
	var selling sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, category, servings, selling_price, is_active
		FROM recipes
		WHERE id = ?
	`, id).Scan(&r.ID, &r.Name, &r.Category, &r.Servings, &selling, &r.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return hpp.Recipe{}, hpp.NotFoundf("recipe %q not found", id)
	}
	if err != nil {
		return hpp.Recipe{}, fmt.Errorf("query recipe: %w", err)
	}
	if selling.Valid {
		v := selling.Float64
		r.SellingPrice = &v
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ingredient_id, quantity, unit
		FROM recipe_ingredients
		WHERE recipe_id = ?
		ORDER BY ingredient_id
	`, id)
	if err != nil {
		return hpp.Recipe{}, fmt.Errorf("query recipe components: %w", err)
	}
	defer rows.Close()

	r.Components = make([]hpp.RecipeComponent, 0)
	for rows.Next() {
		var c hpp.RecipeComponent
		if err := rows.Scan(&c.IngredientID, &c.Quantity, &c.Unit); err != nil {
			return hpp.Recipe{}, fmt.Errorf("scan recipe component: %w", err)
		}
		r.Components = append(r.Components, c)
	}
	if err := rows.Err(); err != nil {
		return hpp.Recipe{}, fmt.Errorf("iterate recipe components: %w", err)
	}

	return r, nil
}

// ListActiveRecipeIDs returns the ids of all active recipes.
func (s *Recipes) ListActiveRecipeIDs(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx, `SELECT id FROM recipes WHERE is_active = 1 ORDER BY id`)
}

// RecipesUsingIngredient returns the active recipes that reference ingredientID.
func (s *Recipes) RecipesUsingIngredient(ctx context.Context, ingredientID string) ([]string, error) {
	return s.queryIDs(ctx, `
		SELECT DISTINCT r.id
		FROM recipes r
		JOIN recipe_ingredients ri ON ri.recipe_id = r.id
		WHERE ri.ingredient_id = ? AND r.is_active = 1
		ORDER BY r.id
	`, ingredientID)
}

// Names maps recipe ids to names.
func (s *Recipes) Names(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM recipes`)
	if err != nil {
		return nil, fmt.Errorf("query recipe names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan recipe name: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

// Save inserts or replaces a recipe and its components.
func (s *Recipes) Save(ctx context.Context, r hpp.Recipe) error {
	if strings.TrimSpace(r.ID) == "" || strings.TrimSpace(r.Name) == "" {
		return hpp.Validationf("recipe id and name are required")
	}
	for _, c := range r.Components {
		if c.IngredientID == "" || !hpp.ValidAmount(c.Quantity) {
			return hpp.Validationf("recipe %q has an invalid component", r.ID)
		}
	}
	category := r.Category
	if category == "" {
		category = "general"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recipe transaction: %w", err)
	}
	defer tx.Rollback()

	var selling any
	if r.SellingPrice != nil {
		selling = *r.SellingPrice
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO recipes (id, name, category, servings, selling_price, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			servings = excluded.servings,
			selling_price = excluded.selling_price,
			is_active = excluded.is_active
	`, r.ID, r.Name, category, r.Servings, selling, r.Active); err != nil {
		return fmt.Errorf("upsert recipe: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM recipe_ingredients WHERE recipe_id = ?`, r.ID); err != nil {
		return fmt.Errorf("clear recipe components: %w", err)
	}
	for _, c := range r.Components {
		unit := c.Unit
		if unit == "" {
			unit = "unit"
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO recipe_ingredients (recipe_id, ingredient_id, quantity, unit)
			VALUES (?, ?, ?, ?)
		`, r.ID, c.IngredientID, c.Quantity, unit); err != nil {
			return fmt.Errorf("insert recipe component: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recipe: %w", err)
	}
	return nil
}

func (s *Recipes) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recipe ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan recipe id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipe ids: %w", err)
	}
	return ids, nil
}
