package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Simplici0/hppengine/internal/hpp"
	"github.com/Simplici0/hppengine/internal/pricing"
)

// Operational cost types.
const (
	CostLabor     = "labor"
	CostOverhead  = "overhead"
	CostPackaging = "packaging"
)

// OperationalCost is one shared cost line allocated per recipe batch.
type OperationalCost struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	CostType       string  `json:"cost_type"`
	RecipeCategory *string `json:"recipe_category,omitempty"`
	Amount         float64 `json:"amount"`
	Active         bool    `json:"active"`
}

// OperationalCosts reads and updates the shared operational costs.
type OperationalCosts struct {
	db *sql.DB
}

func NewOperationalCosts(db *sql.DB) *OperationalCosts {
	return &OperationalCosts{db: db}
}

// GetAllocation sums the active costs that apply to category, per cost type.
// Cost types without any active line are left nil.
func (s *OperationalCosts) GetAllocation(ctx context.Context, category string) (pricing.Allocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cost_type, SUM(amount)
		FROM operational_costs
		WHERE is_active = 1 AND (recipe_category IS NULL OR recipe_category = ?)
		GROUP BY cost_type
	`, category)
	if err != nil {
		return pricing.Allocation{}, fmt.Errorf("query operational allocation: %w", err)
	}
	defer rows.Close()

	var alloc pricing.Allocation
	for rows.Next() {
		var costType string
		var sum float64
		if err := rows.Scan(&costType, &sum); err != nil {
			return pricing.Allocation{}, fmt.Errorf("scan operational allocation: %w", err)
		}
		v := sum
		switch costType {
		case CostLabor:
			alloc.LaborCost = &v
		case CostOverhead:
			alloc.OverheadCost = &v
		case CostPackaging:
			alloc.PackagingCost = &v
		}
	}
	if err := rows.Err(); err != nil {
		return pricing.Allocation{}, fmt.Errorf("iterate operational allocation: %w", err)
	}
	return alloc, nil
}

// UpdateAmount changes the amount of one cost line.
func (s *OperationalCosts) UpdateAmount(ctx context.Context, id string, amount float64) error {
	if !hpp.ValidAmount(amount) {
		return hpp.Validationf("amount must be between 0 and %g", hpp.MaxAmount)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE operational_costs
		SET amount = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		WHERE id = ?
	`, amount, id)
	if err != nil {
		return fmt.Errorf("update operational cost: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update operational cost: %w", err)
	}
	if affected == 0 {
		return hpp.NotFoundf("operational cost %q not found", id)
	}
	return nil
}

// List returns every operational cost line.
func (s *OperationalCosts) List(ctx context.Context) ([]OperationalCost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, cost_type, recipe_category, amount, is_active
		FROM operational_costs
		ORDER BY cost_type, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query operational costs: %w", err)
	}
	defer rows.Close()

	costs := make([]OperationalCost, 0)
	for rows.Next() {
		var c OperationalCost
		var category sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.CostType, &category, &c.Amount, &c.Active); err != nil {
			return nil, fmt.Errorf("scan operational cost: %w", err)
		}
		if category.Valid {
			v := category.String
			c.RecipeCategory = &v
		}
		costs = append(costs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operational costs: %w", err)
	}
	return costs, nil
}

// Save inserts or replaces a cost line.
func (s *OperationalCosts) Save(ctx context.Context, c OperationalCost) error {
	if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Name) == "" {
		return hpp.Validationf("operational cost id and name are required")
	}
	switch c.CostType {
	case CostLabor, CostOverhead, CostPackaging:
	default:
		return hpp.Validationf("cost_type must be labor, overhead or packaging")
	}
	if !hpp.ValidAmount(c.Amount) {
		return hpp.Validationf("amount must be between 0 and %g", hpp.MaxAmount)
	}
	var category any
	if c.RecipeCategory != nil {
		category = *c.RecipeCategory
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operational_costs (id, name, cost_type, recipe_category, amount, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			cost_type = excluded.cost_type,
			recipe_category = excluded.recipe_category,
			amount = excluded.amount,
			is_active = excluded.is_active,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
	`, c.ID, c.Name, c.CostType, category, c.Amount, c.Active)
	if err != nil {
		return fmt.Errorf("upsert operational cost: %w", err)
	}
	return nil
}
