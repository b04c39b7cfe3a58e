// Package recommendations stores human-authored cost advice, scoped to the
// user that wrote it.
package recommendations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Simplici0/hppengine/internal/hpp"
)

const (
	maxTitle       = 200
	maxDescription = 2000
	maxType        = 50
	defaultType    = "general"

	DefaultLimit = 10
	MaxLimit     = 100
	// MaxPage keeps (page-1)*limit well inside an int64 OFFSET.
	MaxPage = 1_000_000
)

// sortColumns whitelists the sortable fields.
var sortColumns = map[string]string{
	"created_at":        "created_at",
	"title":             "title",
	"potential_savings": "potential_savings",
	"priority":          "CASE priority WHEN 'HIGH' THEN 3 WHEN 'MEDIUM' THEN 2 ELSE 1 END",
}

// Input holds the fields of a new recommendation.
type Input struct {
	RecipeID           *string      `json:"recipe_id"`
	Title              string       `json:"title"`
	Description        string       `json:"description"`
	RecommendationType string       `json:"recommendation_type"`
	PotentialSavings   float64      `json:"potential_savings"`
	Priority           hpp.Priority `json:"priority"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	RecipeID           *string       `json:"recipe_id"`
	Title              *string       `json:"title"`
	Description        *string       `json:"description"`
	RecommendationType *string       `json:"recommendation_type"`
	PotentialSavings   *float64      `json:"potential_savings"`
	Priority           *hpp.Priority `json:"priority"`
	IsImplemented      *bool         `json:"is_implemented"`
}

// ListQuery pages and filters List.
type ListQuery struct {
	Page      int
	Limit     int
	Search    string
	SortBy    string
	SortOrder string
}

// Page is one page of List results.
type Page struct {
	Data       []hpp.Recommendation `json:"data"`
	Total      int                  `json:"total"`
	Page       int                  `json:"page"`
	Limit      int                  `json:"limit"`
	TotalPages int                  `json:"totalPages"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Create validates in and stores it for owner.
func (s *Store) Create(ctx context.Context, owner string, in Input) (hpp.Recommendation, error) {
	if err := requireOwner(owner); err != nil {
		return hpp.Recommendation{}, err
	}
	rec := hpp.Recommendation{
		ID:                 uuid.NewString(),
		OwnerID:            owner,
		RecipeID:           in.RecipeID,
		Title:              strings.TrimSpace(in.Title),
		Description:        strings.TrimSpace(in.Description),
		RecommendationType: strings.TrimSpace(in.RecommendationType),
		PotentialSavings:   in.PotentialSavings,
		Priority:           in.Priority,
	}
	if rec.RecommendationType == "" {
		rec.RecommendationType = defaultType
	}
	if rec.Priority == "" {
		rec.Priority = hpp.PriorityMedium
	}
	if err := validate(rec); err != nil {
		return hpp.Recommendation{}, err
	}
	now := s.now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hpp_recommendations
			(id, user_id, recipe_id, title, description, recommendation_type,
			 potential_savings, priority, is_implemented, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.OwnerID, nullString(rec.RecipeID), rec.Title, rec.Description, rec.RecommendationType,
		rec.PotentialSavings, string(rec.Priority), rec.IsImplemented,
		now.Format(hpp.TimestampLayout), now.Format(hpp.TimestampLayout))
	if err != nil {
		return hpp.Recommendation{}, fmt.Errorf("insert recommendation: %w", err)
	}
	return rec, nil
}

// Get returns one of owner's recommendations.
func (s *Store) Get(ctx context.Context, owner, id string) (hpp.Recommendation, error) {
	if err := requireOwner(owner); err != nil {
		return hpp.Recommendation{}, err
	}
	rec, err := scan(s.db.QueryRowContext(ctx, `
		SELECT`+columns+`
		FROM hpp_recommendations
		WHERE id = ? AND user_id = ?
	`, id, owner))
	if errors.Is(err, sql.ErrNoRows) {
		return hpp.Recommendation{}, hpp.NotFoundf("recommendation %q not found", id)
	}
	if err != nil {
		return hpp.Recommendation{}, fmt.Errorf("query recommendation: %w", err)
	}
	return rec, nil
}

// List returns a page of owner's recommendations, newest first unless q
// asks otherwise. Search matches title or description.
func (s *Store) List(ctx context.Context, owner string, q ListQuery) (Page, error) {
	if err := requireOwner(owner); err != nil {
		return Page{}, err
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		return Page{}, hpp.Validationf("page must be at most %d", MaxPage)
	}
	limit := q.Limit
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	sortBy := q.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := sortColumns[sortBy]
	if !ok {
		return Page{}, hpp.Validationf("sort_by must be one of created_at, title, priority, potential_savings")
	}
	order := "DESC"
	switch strings.ToLower(q.SortOrder) {
	case "", "desc":
	case "asc":
		order = "ASC"
	default:
		return Page{}, hpp.Validationf("sort_order must be asc or desc")
	}

	where := "user_id = ?"
	args := []any{owner}
	if search := strings.TrimSpace(q.Search); search != "" {
		where += ` AND (title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')`
		pattern := "%" + escapeLike(search) + "%"
		args = append(args, pattern, pattern)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM hpp_recommendations WHERE `+where, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count recommendations: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT`+columns+`
		FROM hpp_recommendations
		WHERE `+where+`
		ORDER BY `+column+` `+order+`, id `+order+`
		LIMIT ? OFFSET ?
	`, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return Page{}, fmt.Errorf("query recommendations: %w", err)
	}
	defer rows.Close()

	data := make([]hpp.Recommendation, 0, limit)
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return Page{}, fmt.Errorf("scan recommendation: %w", err)
		}
		data = append(data, rec)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterate recommendations: %w", err)
	}

	return Page{
		Data:       data,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// Update applies p to one of owner's recommendations.
func (s *Store) Update(ctx context.Context, owner, id string, p Patch) (hpp.Recommendation, error) {
	rec, err := s.Get(ctx, owner, id)
	if err != nil {
		return hpp.Recommendation{}, err
	}
	if p.RecipeID != nil {
		rec.RecipeID = p.RecipeID
		if *p.RecipeID == "" {
			rec.RecipeID = nil
		}
	}
	if p.Title != nil {
		rec.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		rec.Description = strings.TrimSpace(*p.Description)
	}
	if p.RecommendationType != nil {
		rec.RecommendationType = strings.TrimSpace(*p.RecommendationType)
	}
	if p.PotentialSavings != nil {
		rec.PotentialSavings = *p.PotentialSavings
	}
	if p.Priority != nil {
		rec.Priority = *p.Priority
	}
	if p.IsImplemented != nil {
		rec.IsImplemented = *p.IsImplemented
	}
	if err := validate(rec); err != nil {
		return hpp.Recommendation{}, err
	}
	rec.UpdatedAt = s.now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE hpp_recommendations
		SET recipe_id = ?, title = ?, description = ?, recommendation_type = ?,
			potential_savings = ?, priority = ?, is_implemented = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, nullString(rec.RecipeID), rec.Title, rec.Description, rec.RecommendationType,
		rec.PotentialSavings, string(rec.Priority), rec.IsImplemented,
		rec.UpdatedAt.Format(hpp.TimestampLayout), id, owner)
	if err != nil {
		return hpp.Recommendation{}, fmt.Errorf("update recommendation: %w", err)
	}
	return rec, nil
}

// Delete removes one of owner's recommendations for good.
func (s *Store) Delete(ctx context.Context, owner, id string) error {
	if err := requireOwner(owner); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM hpp_recommendations WHERE id = ? AND user_id = ?`, id, owner)
	if err != nil {
		return fmt.Errorf("delete recommendation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete recommendation: %w", err)
	}
	if affected == 0 {
		return hpp.NotFoundf("recommendation %q not found", id)
	}
	return nil
}

// ForRecipes returns every recommendation of owner tied to one of
// recipeIDs, or all of owner's when recipeIDs is empty.
func (s *Store) ForRecipes(ctx context.Context, owner string, recipeIDs []string) ([]hpp.Recommendation, error) {
	if err := requireOwner(owner); err != nil {
		return nil, err
	}
	query := `SELECT` + columns + ` FROM hpp_recommendations WHERE user_id = ?`
	args := []any{owner}
	if len(recipeIDs) > 0 {
		query += " AND recipe_id IN (" + strings.TrimSuffix(strings.Repeat("?,", len(recipeIDs)), ",") + ")"
		for _, id := range recipeIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recommendations: %w", err)
	}
	defer rows.Close()

	out := make([]hpp.Recommendation, 0)
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const columns = `
	id, user_id, recipe_id, title, description, recommendation_type,
	potential_savings, priority, is_implemented, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (hpp.Recommendation, error) {
	var rec hpp.Recommendation
	var recipeID sql.NullString
	var priority, created, updated string
	if err := row.Scan(&rec.ID, &rec.OwnerID, &recipeID, &rec.Title, &rec.Description, &rec.RecommendationType,
		&rec.PotentialSavings, &priority, &rec.IsImplemented, &created, &updated); err != nil {
		return hpp.Recommendation{}, err
	}
	if recipeID.Valid {
		v := recipeID.String
		rec.RecipeID = &v
	}
	rec.Priority = hpp.Priority(priority)
	var err error
	if rec.CreatedAt, err = time.Parse(hpp.TimestampLayout, created); err != nil {
		return hpp.Recommendation{}, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	if rec.UpdatedAt, err = time.Parse(hpp.TimestampLayout, updated); err != nil {
		return hpp.Recommendation{}, fmt.Errorf("parse updated_at %q: %w", updated, err)
	}
	return rec, nil
}

func validate(rec hpp.Recommendation) error {
	switch n := utf8.RuneCountInString(rec.Title); {
	case n == 0:
		return hpp.Validationf("title is required")
	case n > maxTitle:
		return hpp.Validationf("title must be at most %d characters", maxTitle)
	}
	switch n := utf8.RuneCountInString(rec.Description); {
	case n == 0:
		return hpp.Validationf("description is required")
	case n > maxDescription:
		return hpp.Validationf("description must be at most %d characters", maxDescription)
	}
	if rec.RecommendationType == "" || utf8.RuneCountInString(rec.RecommendationType) > maxType {
		return hpp.Validationf("recommendation_type must be 1 to %d characters", maxType)
	}
	if rec.PotentialSavings < 0 {
		return hpp.Validationf("potential_savings must be greater than or equal to 0")
	}
	if !rec.Priority.Valid() {
		return hpp.Validationf("priority must be LOW, MEDIUM or HIGH")
	}
	return nil
}

func requireOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return hpp.Validationf("caller identity is required")
	}
	return nil
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
