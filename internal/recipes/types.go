package recipes

import "errors"

// ErrNotFound is returned when a recipe does not exist or is not linked to
// the requesting user.
var ErrNotFound = errors.New("recipe not found")

// ValidationError rejects user input. Handlers map it to 422.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Category groups a user's recipes.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// Video is the clip a recipe was extracted from.
type Video struct {
	URL         string `json:"video_url"`
	OriginalURL string `json:"original_url,omitempty"`
}

// Recipe is a recipe as seen by one user: the category is that user's.
type Recipe struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Description *string  `json:"description"`
	CategoryID  int64    `json:"category_id"`
	Ingredients []string `json:"ingredients"`
	Video       *Video   `json:"-"`
}

// NewRecipe describes a recipe to create.
type NewRecipe struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Ingredients []string `yaml:"ingredients"`
	VideoURL    string   `yaml:"video_url"`
	OriginalURL string   `yaml:"original_url"`
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Title           *string `json:"title,omitempty"`
	Description     *string `json:"description,omitempty"`
	CategoryID      *int64  `json:"category_id,omitempty"`
	IngredientsText *string `json:"ingredients_text,omitempty"`
}

// PatchResult reports what ApplyPatch did. RecipeID differs from the
// requested recipe when a shared recipe was forked.
type PatchResult struct {
	RecipeID          int64 `json:"recipe_id"`
	TitleChanged      bool  `json:"title_changed"`
	CategoryChanged   bool  `json:"category_changed"`
	MembershipChanged bool  `json:"membership_changed"`
	OldCategoryID     int64 `json:"old_category_id"`
	NewCategoryID     int64 `json:"new_category_id"`
}

// Forked reports whether the user was moved to a new copy of the recipe.
func (r PatchResult) Forked() bool { return r.MembershipChanged }
