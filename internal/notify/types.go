package notify

import (
	"time"

	"github.com/recipebot/recipeapp/internal/recipes"
)

// EventType categorises the change that triggered the event.
type EventType string

const (
	TypeRecipeUpdated EventType = "recipe_updated"
	TypeRecipeForked  EventType = "recipe_forked"
)

// Event tells the host that a user's view of their recipes changed. Hosts
// use it to drop cached recipe lists and refresh the message showing the
// recipe.
type Event struct {
	ID                 string    `json:"id"`
	Type               EventType `json:"type"`
	UserID             int64     `json:"user_id"`
	RecipeID           int64     `json:"recipe_id"`
	PreviousRecipeID   int64     `json:"previous_recipe_id,omitempty"`
	Title              string    `json:"title"`
	TitleChanged       bool      `json:"title_changed"`
	CategoryChanged    bool      `json:"category_changed"`
	MembershipChanged  bool      `json:"membership_changed"`
	AffectedCategories []int64   `json:"affected_categories"`
	CreatedAt          time.Time `json:"created_at"`
}

// FromPatch builds the event for a successful patch. requestedID is the
// recipe the user edited, which differs from res.RecipeID after a fork.
func FromPatch(userID, requestedID int64, res *recipes.PatchResult, title string) Event {
	e := Event{
		Type:              TypeRecipeUpdated,
		UserID:            userID,
		RecipeID:          res.RecipeID,
		Title:             title,
		TitleChanged:      res.TitleChanged,
		CategoryChanged:   res.CategoryChanged,
		MembershipChanged: res.MembershipChanged,
	}
	if res.Forked() {
		e.Type = TypeRecipeForked
		e.PreviousRecipeID = requestedID
	}
	e.AffectedCategories = []int64{res.OldCategoryID}
	if res.NewCategoryID != res.OldCategoryID {
		e.AffectedCategories = append(e.AffectedCategories, res.NewCategoryID)
	}
	return e
}
