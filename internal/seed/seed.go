// Package seed loads categories and recipes from YAML files into the
// recipe store.
package seed

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/recipebot/recipeapp/internal/progress"
	"github.com/recipebot/recipeapp/internal/recipes"
)

// File is the layout of one seed file.
type File struct {
	Categories []Category `yaml:"categories"`
	Recipes    []Recipe   `yaml:"recipes"`
}

// Category is a seeded category, referenced from recipes by slug.
type Category struct {
	Name string `yaml:"name"`
	Slug string `yaml:"slug"`
}

// Recipe is a seeded recipe and the users it is filed for.
type Recipe struct {
	recipes.NewRecipe `yaml:",inline"`
	Category          string  `yaml:"category"`
	Users             []int64 `yaml:"users"`
}

// Result counts what a seed run created.
type Result struct {
	Files      int
	Categories int
	Recipes    int
	Links      int
}

// Expand resolves glob patterns (** supported) to a sorted, de-duplicated
// list of files. A pattern matching nothing is an error.
func Expand(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no seed files match %q", p)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Load parses one seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	return &f, nil
}

// Apply writes f into store. Categories are matched by slug, so applying
// the same file twice does not duplicate them. rep may be nil.
func Apply(ctx context.Context, store *recipes.Store, f *File, rep progress.Reporter) (Result, error) {
	var res Result
	slugs := map[string]int64{}

	for _, c := range f.Categories {
		cat, err := store.CreateCategory(ctx, c.Name, c.Slug)
		if err != nil {
			return res, fmt.Errorf("category %q: %w", c.Name, err)
		}
		key := c.Slug
		if key == "" {
			key = c.Name
		}
		slugs[key] = cat.ID
		res.Categories++
	}

	if rep != nil {
		rep.Start(len(f.Recipes), "recipes")
		defer rep.Finish()
	}
	for i, r := range f.Recipes {
		catID, ok := slugs[r.Category]
		if !ok && len(r.Users) > 0 {
			return res, fmt.Errorf("recipe %q: unknown category %q", r.Title, r.Category)
		}
		id, err := store.Create(ctx, r.NewRecipe)
		if err != nil {
			return res, fmt.Errorf("recipe %q: %w", r.Title, err)
		}
		res.Recipes++
		for _, u := range r.Users {
			if err := store.LinkUser(ctx, id, u, catID); err != nil {
				return res, fmt.Errorf("recipe %q: %w", r.Title, err)
			}
			res.Links++
		}
		if rep != nil {
			rep.Update(i+1, r.Title)
		}
	}
	return res, nil
}
