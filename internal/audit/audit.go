package audit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/recipebot/recipeapp/internal/recipes"
)

// Action describes what was done.
type Action string

const (
	ActionRecipeUpdated Action = "recipe_updated"
	ActionRecipeForked  Action = "recipe_forked"
)

// Entry is one saved edit in a user's history.
type Entry struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	ActorID          string    `json:"actor_id"`
	Action           Action    `json:"action"`
	RecipeID         int64     `json:"recipe_id"`
	PreviousRecipeID int64     `json:"previous_recipe_id,omitempty"`
	Summary          string    `json:"summary"`
	ChangedFields    []string  `json:"changed_fields"`
	PreviousValue    string    `json:"previous_value,omitempty"`
	NewValue         string    `json:"new_value,omitempty"`
}

// FromPatch builds the history entry for a successful patch by userID.
// before is the recipe as it was, after as it is now.
func FromPatch(userID int64, requestedID int64, res *recipes.PatchResult, before, after *recipes.Recipe) Entry {
	e := Entry{
		ActorID:  strconv.FormatInt(userID, 10),
		Action:   ActionRecipeUpdated,
		RecipeID: res.RecipeID,
	}
	if res.Forked() {
		e.Action = ActionRecipeForked
		e.PreviousRecipeID = requestedID
	}

	if before != nil && after != nil {
		if before.Title != after.Title {
			e.ChangedFields = append(e.ChangedFields, "title")
			e.PreviousValue = before.Title
			e.NewValue = after.Title
		}
		if deref(before.Description) != deref(after.Description) {
			e.ChangedFields = append(e.ChangedFields, "description")
		}
		if !equalStrings(before.Ingredients, after.Ingredients) {
			e.ChangedFields = append(e.ChangedFields, "ingredients")
		}
	}
	if res.CategoryChanged {
		e.ChangedFields = append(e.ChangedFields, "category_id")
	}

	title := ""
	if after != nil {
		title = after.Title
	}
	switch {
	case res.Forked():
		e.Summary = fmt.Sprintf("Saved a personal copy of %q", title)
	case len(e.ChangedFields) == 0:
		e.Summary = fmt.Sprintf("Saved %q without changes", title)
	default:
		e.Summary = fmt.Sprintf("Edited %q", title)
	}
	return e
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
