package recipes

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// ValidateTitle trims raw and rejects an empty result.
func ValidateTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", &ValidationError{Field: "title", Message: "title must not be empty"}
	}
	return title, nil
}

// ParseIngredientNames reads one ingredient per non-empty line, trimmed,
// with duplicates removed in order of first appearance.
func ParseIngredientNames(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return dedupe(strings.Split(text, "\n"))
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := []string{}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// ApplyPatch updates a recipe on behalf of userID in one transaction.
//
// A recipe linked to two or more users is shared: changing its content
// would change it for everyone, so the user is moved to a private copy
// instead (fork). A patch that resends the current values is not a content
// change and never forks. The category lives on the user's link and is
// updated in place even for shared recipes.
func (s *Store) ApplyPatch(ctx context.Context, recipeID, userID int64, p Patch) (*PatchResult, error) {
	var title string
	if p.Title != nil {
		t, err := ValidateTitle(*p.Title)
		if err != nil {
			return nil, err
		}
		title = t
	}
	if p.CategoryID != nil && *p.CategoryID <= 0 {
		return nil, &ValidationError{Field: "category_id", Message: "category_id must be positive"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := getForUser(ctx, tx, recipeID, userID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}

	if p.CategoryID != nil {
		ok, err := categoryExists(ctx, tx, *p.CategoryID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &ValidationError{Field: "category_id", Message: "unknown category"}
		}
	}

	users, err := countUsers(ctx, tx, recipeID)
	if err != nil {
		return nil, err
	}

	res := &PatchResult{RecipeID: recipeID, OldCategoryID: current.CategoryID, NewCategoryID: current.CategoryID}

	titleChanges := p.Title != nil && title != current.Title
	descChanges := p.Description != nil && *p.Description != deref(current.Description)
	var names []string
	ingredientsChange := false
	if p.IngredientsText != nil {
		names = ParseIngredientNames(*p.IngredientsText)
		ingredientsChange = !slices.Equal(names, current.Ingredients)
	}
	categoryChanges := p.CategoryID != nil && *p.CategoryID != current.CategoryID

	newTitle := current.Title
	if titleChanges {
		newTitle = title
	}
	newDesc := deref(current.Description)
	if descChanges {
		newDesc = *p.Description
	}
	if !ingredientsChange {
		names = current.Ingredients
	}
	newCategory := current.CategoryID
	if categoryChanges {
		newCategory = *p.CategoryID
	}

	contentChanges := titleChanges || descChanges || ingredientsChange
	if users >= 2 && contentChanges {
		forkID, err := insertRecipe(ctx, tx, newTitle, nullable(newDesc))
		if err != nil {
			return nil, err
		}
		if current.Video != nil {
			if err := insertVideo(ctx, tx, forkID, *current.Video); err != nil {
				return nil, err
			}
		}
		if err := setIngredients(ctx, tx, forkID, names); err != nil {
			return nil, err
		}
		if err := linkUser(ctx, tx, forkID, userID, newCategory); err != nil {
			return nil, err
		}
		if err := unlinkUser(ctx, tx, recipeID, userID); err != nil {
			return nil, err
		}
		res.RecipeID = forkID
		res.MembershipChanged = true
	} else {
		if titleChanges || descChanges {
			if _, err := tx.ExecContext(ctx,
				`UPDATE recipes SET title = ?, description = ? WHERE id = ?`,
				newTitle, nullable(newDesc), recipeID); err != nil {
				return nil, fmt.Errorf("updating recipe: %w", err)
			}
		}
		if ingredientsChange {
			if err := setIngredients(ctx, tx, recipeID, names); err != nil {
				return nil, err
			}
		}
		if categoryChanges {
			if err := linkUser(ctx, tx, recipeID, userID, newCategory); err != nil {
				return nil, err
			}
		}
	}

	res.TitleChanged = titleChanges
	res.CategoryChanged = categoryChanges
	res.NewCategoryID = newCategory

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing patch: %w", err)
	}
	return res, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
