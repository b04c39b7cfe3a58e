package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Simplici0/hppengine/internal/hpp"
)

// Ingredients reads and updates ingredient prices.
type Ingredients struct {
	db *sql.DB
}

func NewIngredients(db *sql.DB) *Ingredients {
	return &Ingredients{db: db}
}

// GetPrice returns the ingredient's price, including its weighted-average
// cost when one has been recorded.
func (s *Ingredients) GetPrice(ctx context.Context, id string) (hpp.IngredientPrice, error) {
	var p hpp.IngredientPrice
	var wac sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, unit, price_per_unit, weighted_average_cost
		FROM ingredients
		WHERE id = ?
	`, id).Scan(&p.IngredientID, &p.Name, &p.Unit, &p.UnitPrice, &wac)
	if errors.Is(err, sql.ErrNoRows) {
		return hpp.IngredientPrice{}, hpp.NotFoundf("ingredient %q not found", id)
	}
	if err != nil {
		return hpp.IngredientPrice{}, fmt.Errorf("query ingredient price: %w", err)
	}
	if wac.Valid {
		v := wac.Float64
		p.WeightedAverageCost = &v
	}
	return p, nil
}

// UpdatePrice sets the spot price of an ingredient.
func (s *Ingredients) UpdatePrice(ctx context.Context, id string, price float64) error {
	if !hpp.ValidAmount(price) {
		return hpp.Validationf("price must be between 0 and %g", hpp.MaxAmount)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE ingredients
		SET price_per_unit = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?
	`, price, id)
	if err != nil {
		return fmt.Errorf("update ingredient price: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ingredient price: %w", err)
	}
	if affected == 0 {
		return hpp.NotFoundf("ingredient %q not found", id)
	}
	return nil
}

// Save inserts or replaces an ingredient.
func (s *Ingredients) Save(ctx context.Context, p hpp.IngredientPrice) error {
	if strings.TrimSpace(p.IngredientID) == "" || strings.TrimSpace(p.Name) == "" {
		return hpp.Validationf("ingredient id and name are required")
	}
	if !hpp.ValidAmount(p.UnitPrice) || (p.WeightedAverageCost != nil && !hpp.ValidAmount(*p.WeightedAverageCost)) {
		return hpp.Validationf("price must be between 0 and %g", hpp.MaxAmount)
	}
	unit := p.Unit
	if unit == "" {
		unit = "unit"
	}
	var wac any
	if p.WeightedAverageCost != nil {
		wac = *p.WeightedAverageCost
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingredients (id, name, unit, price_per_unit, weighted_average_cost)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			unit = excluded.unit,
			price_per_unit = excluded.price_per_unit,
			weighted_average_cost = excluded.weighted_average_cost,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
	`, p.IngredientID, p.Name, unit, p.UnitPrice, wac)
	if err != nil {
		return fmt.Errorf("upsert ingredient: %w", err)
	}
	return nil
}
