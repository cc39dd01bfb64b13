// Package apiclient talks to the recipe WebApp API on behalf of one
// Telegram user.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/recipebot/recipeapp/internal/audit"
	"github.com/recipebot/recipeapp/internal/recipes"
	"github.com/recipebot/recipeapp/internal/tgauth"
	"github.com/recipebot/recipeapp/internal/webdrafts"
)

// ErrMissingIdentity is returned when no initData is available. Nothing
// can be loaded or saved without it.
var ErrMissingIdentity = errors.New("missing Telegram initData: open the editor from the bot")

const previewLimit = 200

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// Client is an HTTP client for /api/webapp.
type Client struct {
	baseURL  string
	initData string
	http     *http.Client
}

// New creates a client. initData identifies the user on every request.
func New(baseURL, initData string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(initData) == "" {
		return nil, ErrMissingIdentity
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		initData: strings.TrimSpace(initData),
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// GetRecipe fetches the recipe as the user sees it.
func (c *Client) GetRecipe(ctx context.Context, id int64) (*recipes.Recipe, error) {
	var out recipes.Recipe
	if err := c.do(ctx, http.MethodGet, recipePath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PatchRecipe saves p and returns the saved recipe, whose id differs from
// id when the server forked a shared recipe.
func (c *Client) PatchRecipe(ctx context.Context, id int64, p recipes.Patch) (*recipes.Recipe, error) {
	var out recipes.Recipe
	if err := c.do(ctx, http.MethodPatch, recipePath(id, ""), p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCategories returns every category.
func (c *Client) ListCategories(ctx context.Context) ([]recipes.Category, error) {
	var out []recipes.Category
	if err := c.do(ctx, http.MethodGet, "/api/webapp/categories", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDraft returns the server-side draft, empty when none is stored.
func (c *Client) GetDraft(ctx context.Context, id int64) (*webdrafts.Draft, error) {
	var out webdrafts.Draft
	if err := c.do(ctx, http.MethodGet, recipePath(id, "/draft"), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutDraft merges d into the server-side draft.
func (c *Client) PutDraft(ctx context.Context, id int64, d webdrafts.Draft) (*webdrafts.Draft, error) {
	var out webdrafts.Draft
	if err := c.do(ctx, http.MethodPut, recipePath(id, "/draft"), d, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteDraft removes the server-side draft.
func (c *Client) DeleteDraft(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, recipePath(id, "/draft"), nil, nil)
}

// History returns the user's most recent saved edits.
func (c *Client) History(ctx context.Context, limit int) ([]audit.Entry, error) {
	path := "/api/webapp/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []audit.Entry
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func recipePath(id int64, suffix string) string {
	return "/api/webapp/recipes/" + strconv.FormatInt(id, 10) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(tgauth.Header, c.initData)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// errorMessage prefers the server's own error text, then a preview of the
// body, then the bare status.
func errorMessage(status int, raw []byte) string {
	var body struct {
		Error  string `json:"error"`
		Detail any    `json:"detail"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		switch d := body.Detail.(type) {
		case string:
			if d != "" {
				return d
			}
		case nil:
		default:
			if b, err := json.Marshal(d); err == nil {
				return string(b)
			}
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		r := []rune(text)
		if len(r) > previewLimit {
			r = r[:previewLimit]
		}
		return string(r)
	}
	return "HTTP " + strconv.Itoa(status)
}
