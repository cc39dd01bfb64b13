package apiclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/recipebot/recipeapp/internal/draft"
	"github.com/recipebot/recipeapp/internal/recipes"
	"github.com/recipebot/recipeapp/internal/webdrafts"
)

// Authority adapts Client to draft.Authority.
type Authority struct {
	Client *Client
}

func (a Authority) Fetch(ctx context.Context, entityID string) (draft.Record, error) {
	id, err := parseID(entityID)
	if err != nil {
		return draft.Record{}, err
	}
	r, err := a.Client.GetRecipe(ctx, id)
	if err != nil {
		return draft.Record{}, err
	}
	return toRecord(r), nil
}

func (a Authority) Save(ctx context.Context, entityID string, changes draft.Fields) (draft.Record, error) {
	id, err := parseID(entityID)
	if err != nil {
		return draft.Record{}, err
	}

	var p recipes.Patch
	if v, ok := changes[draft.FieldTitle]; ok {
		p.Title = &v
	}
	if v, ok := changes[draft.FieldDescription]; ok {
		p.Description = &v
	}
	if v, ok := changes[draft.FieldCategoryID]; ok && strings.TrimSpace(v) != "" {
		cid, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return draft.Record{}, &draft.ValidationError{Field: draft.FieldCategoryID, Message: "category_id must be a number"}
		}
		p.CategoryID = &cid
	}

	r, err := a.Client.PatchRecipe(ctx, id, p)
	if err != nil {
		return draft.Record{}, err
	}
	return toRecord(r), nil
}

// DraftBackend adapts Client to draft.RemoteBackend. The server keeps
// only title and category.
type DraftBackend struct {
	Client *Client
}

func (b DraftBackend) GetDraft(ctx context.Context, entityID string) (draft.Fields, error) {
	id, err := parseID(entityID)
	if err != nil {
		return nil, err
	}
	d, err := b.Client.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	f := draft.Fields{}
	if d.Title != nil {
		f[draft.FieldTitle] = *d.Title
	}
	if d.CategoryID != nil {
		f[draft.FieldCategoryID] = strconv.FormatInt(*d.CategoryID, 10)
	}
	return f, nil
}

func (b DraftBackend) PutDraft(ctx context.Context, entityID string, fields draft.Fields) error {
	id, err := parseID(entityID)
	if err != nil {
		return err
	}
	var d webdrafts.Draft
	if v, ok := fields[draft.FieldTitle]; ok {
		d.Title = &v
	}
	if v, ok := fields[draft.FieldCategoryID]; ok {
		if cid, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			d.CategoryID = &cid
		}
	}
	if d.Empty() {
		return nil
	}
	_, err = b.Client.PutDraft(ctx, id, d)
	return err
}

func toRecord(r *recipes.Recipe) draft.Record {
	desc := ""
	if r.Description != nil {
		desc = *r.Description
	}
	return draft.Record{
		EntityID: strconv.FormatInt(r.ID, 10),
		Fields: draft.Fields{
			draft.FieldTitle:       r.Title,
			draft.FieldCategoryID:  strconv.FormatInt(r.CategoryID, 10),
			draft.FieldDescription: desc,
		},
	}
}

func parseID(entityID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(entityID), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid recipe id %q", entityID)
	}
	return id, nil
}
