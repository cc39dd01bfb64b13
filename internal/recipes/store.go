package recipes

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/recipebot/recipeapp/internal/db"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the authoritative recipe store.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// GetForUser returns the recipe as seen by userID. Returns nil, nil when
// the recipe does not exist or is not linked to the user.
func (s *Store) GetForUser(ctx context.Context, recipeID, userID int64) (*Recipe, error) {
	return getForUser(ctx, s.db, recipeID, userID)
}

// ListCategories returns every category ordered by id.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, slug FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		var slug sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &slug); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		c.Slug = slug.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCategory inserts a category, or returns the existing one with the
// same slug.
func (s *Store) CreateCategory(ctx context.Context, name, slug string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "category name must not be empty"}
	}
	var slugArg sql.NullString
	if slug != "" {
		slugArg = sql.NullString{String: slug, Valid: true}
		var existing Category
		err := s.db.QueryRowContext(ctx, `SELECT id, name FROM categories WHERE slug = ?`, slug).
			Scan(&existing.ID, &existing.Name)
		if err == nil {
			existing.Slug = slug
			return &existing, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("looking up category: %w", err)
		}
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO categories (name, slug) VALUES (?, ?)`, name, slugArg)
	if err != nil {
		return nil, fmt.Errorf("inserting category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading category id: %w", err)
	}
	return &Category{ID: id, Name: name, Slug: slug}, nil
}

// Create inserts a recipe with its ingredients and optional video. The
// recipe is not linked to any user.
func (s *Store) Create(ctx context.Context, nr NewRecipe) (int64, error) {
	title, err := ValidateTitle(nr.Title)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := insertRecipe(ctx, tx, title, nullable(nr.Description))
	if err != nil {
		return 0, err
	}
	if err := setIngredients(ctx, tx, id, dedupe(nr.Ingredients)); err != nil {
		return 0, err
	}
	if nr.VideoURL != "" {
		if err := insertVideo(ctx, tx, id, Video{URL: nr.VideoURL, OriginalURL: nr.OriginalURL}); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing recipe: %w", err)
	}
	return id, nil
}

// LinkUser files the recipe under categoryID for userID. Linking again
// moves it to the new category.
func (s *Store) LinkUser(ctx context.Context, recipeID, userID, categoryID int64) error {
	return linkUser(ctx, s.db, recipeID, userID, categoryID)
}

// CountUsers returns how many users share the recipe.
func (s *Store) CountUsers(ctx context.Context, recipeID int64) (int, error) {
	return countUsers(ctx, s.db, recipeID)
}

func getForUser(ctx context.Context, q querier, recipeID, userID int64) (*Recipe, error) {
	var r Recipe
	var desc sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT r.id, r.title, r.description, ru.category_id
		FROM recipes r
		JOIN recipe_users ru ON ru.recipe_id = r.id
		WHERE r.id = ? AND ru.user_id = ?`, recipeID, userID,
	).Scan(&r.ID, &r.Title, &desc, &r.CategoryID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying recipe: %w", err)
	}
	if desc.Valid {
		r.Description = &desc.String
	}

	r.Ingredients, err = ingredientNames(ctx, q, r.ID)
	if err != nil {
		return nil, err
	}

	var v Video
	var orig sql.NullString
	err = q.QueryRowContext(ctx,
		`SELECT video_url, original_url FROM videos WHERE recipe_id = ? ORDER BY id LIMIT 1`, r.ID,
	).Scan(&v.URL, &orig)
	switch {
	case err == nil:
		v.OriginalURL = orig.String
		r.Video = &v
	case err != sql.ErrNoRows:
		return nil, fmt.Errorf("querying video: %w", err)
	}
	return &r, nil
}

func ingredientNames(ctx context.Context, q querier, recipeID int64) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT i.name FROM recipe_ingredients ri
		JOIN ingredients i ON i.id = ri.ingredient_id
		WHERE ri.recipe_id = ?
		ORDER BY ri.position, i.id`, recipeID)
	if err != nil {
		return nil, fmt.Errorf("querying ingredients: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scanning ingredient: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func insertRecipe(ctx context.Context, q querier, title string, description sql.NullString) (int64, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO recipes (title, description) VALUES (?, ?)`, title, description)
	if err != nil {
		return 0, fmt.Errorf("inserting recipe: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading recipe id: %w", err)
	}
	return id, nil
}

func insertVideo(ctx context.Context, q querier, recipeID int64, v Video) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO videos (recipe_id, video_url, original_url) VALUES (?, ?, ?)`,
		recipeID, v.URL, nullable(v.OriginalURL))
	if err != nil {
		return fmt.Errorf("inserting video: %w", err)
	}
	return nil
}

// setIngredients replaces the recipe's ingredient list, creating missing
// ingredients by name.
func setIngredients(ctx context.Context, q querier, recipeID int64, names []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM recipe_ingredients WHERE recipe_id = ?`, recipeID); err != nil {
		return fmt.Errorf("clearing ingredients: %w", err)
	}
	for pos, name := range names {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO ingredients (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
			return fmt.Errorf("inserting ingredient %q: %w", name, err)
		}
		var ingID int64
		if err := q.QueryRowContext(ctx, `SELECT id FROM ingredients WHERE name = ?`, name).Scan(&ingID); err != nil {
			return fmt.Errorf("looking up ingredient %q: %w", name, err)
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO recipe_ingredients (recipe_id, ingredient_id, position) VALUES (?, ?, ?)`,
			recipeID, ingID, pos); err != nil {
			return fmt.Errorf("linking ingredient %q: %w", name, err)
		}
	}
	return nil
}

func linkUser(ctx context.Context, q querier, recipeID, userID, categoryID int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO recipe_users (recipe_id, user_id, category_id) VALUES (?, ?, ?)
		ON CONFLICT(recipe_id, user_id) DO UPDATE SET category_id = excluded.category_id`,
		recipeID, userID, categoryID)
	if err != nil {
		return fmt.Errorf("linking user to recipe: %w", err)
	}
	return nil
}

func unlinkUser(ctx context.Context, q querier, recipeID, userID int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM recipe_users WHERE recipe_id = ? AND user_id = ?`, recipeID, userID)
	if err != nil {
		return fmt.Errorf("unlinking user from recipe: %w", err)
	}
	return nil
}

func countUsers(ctx context.Context, q querier, recipeID int64) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipe_users WHERE recipe_id = ?`, recipeID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting recipe users: %w", err)
	}
	return n, nil
}

func categoryExists(ctx context.Context, q querier, id int64) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("checking category: %w", err)
	}
	return n > 0, nil
}

// nullable stores an empty string as NULL so that "" and "no description"
// compare equal.
func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
