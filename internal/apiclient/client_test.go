package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/recipebot/recipeapp/internal/audit"
	"github.com/recipebot/recipeapp/internal/db"
	"github.com/recipebot/recipeapp/internal/draft"
	"github.com/recipebot/recipeapp/internal/recipes"
	"github.com/recipebot/recipeapp/internal/tgauth"
	"github.com/recipebot/recipeapp/internal/webapp"
	"github.com/recipebot/recipeapp/internal/webdrafts"
)

const testToken = "42:SECRET"

func TestNewRequiresInitData(t *testing.T) {
	if _, err := New("http://localhost", "  ", time.Second); !errors.Is(err, ErrMissingIdentity) {
		t.Errorf("err = %v, want ErrMissingIdentity", err)
	}
}

func TestErrorMessage(t *testing.T) {
	long := strings.Repeat("x", 300)
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error field", 422, `{"error":"title must not be empty"}`, "title must not be empty"},
		{"detail string", 404, `{"detail":"Recipe not found"}`, "Recipe not found"},
		{"detail object", 422, `{"detail":[{"loc":["title"]}]}`, `[{"loc":["title"]}]`},
		{"plain text", 502, "Bad Gateway", "Bad Gateway"},
		{"long body", 500, long, long[:200]},
		{"empty body", 503, "", "HTTP 503"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorMessage(tt.status, []byte(tt.body)); got != tt.want {
				t.Errorf("errorMessage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNon2xxIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(tgauth.Header) != "init" {
			t.Errorf("initData header = %q", r.Header.Get(tgauth.Header))
		}
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	c, err := New(srv.URL, "init", time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.GetRecipe(context.Background(), 1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTeapot || apiErr.Message != "HTTP 418" {
		t.Errorf("err = %#v", err)
	}
}

type backend struct {
	server   *httptest.Server
	recipes  *recipes.Store
	drafts   *webdrafts.Store
	recipeID int64
	soups    int64
}

func setupBackend(t *testing.T) *backend {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	store := recipes.NewStore(database)
	soups, _ := store.CreateCategory(ctx, "Soups", "soups")
	id, err := store.Create(ctx, recipes.NewRecipe{Title: "Borscht", Description: "Beet soup"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	store.LinkUser(ctx, id, 7, soups.ID)

	drafts := webdrafts.NewStore(database, time.Hour)
	r := chi.NewRouter()
	webapp.RegisterRoutes(r, webapp.Services{
		Recipes:        store,
		Drafts:         drafts,
		Audit:          audit.NewStore(database),
		BotToken:       testToken,
		InitDataMaxAge: time.Hour,
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &backend{server: srv, recipes: store, drafts: drafts, recipeID: id, soups: soups.ID}
}

func (b *backend) client(t *testing.T, userID int64) *Client {
	t.Helper()
	c, err := New(b.server.URL, tgauth.SignUser(userID, time.Now(), testToken), 5*time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestAuthorityRoundTrip(t *testing.T) {
	b := setupBackend(t)
	auth := Authority{Client: b.client(t, 7)}
	id := strconv.FormatInt(b.recipeID, 10)

	rec, err := auth.Fetch(context.Background(), id)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if rec.Fields[draft.FieldTitle] != "Borscht" || rec.Fields[draft.FieldCategoryID] != strconv.FormatInt(b.soups, 10) {
		t.Errorf("record = %+v", rec)
	}

	saved, err := auth.Save(context.Background(), id, draft.Fields{draft.FieldTitle: "Cold Borscht"})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Fields[draft.FieldTitle] != "Cold Borscht" || saved.Fields[draft.FieldDescription] != "Beet soup" {
		t.Errorf("saved = %+v", saved)
	}

	_, err = auth.Save(context.Background(), id, draft.Fields{draft.FieldTitle: "  "})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("blank title: err = %v", err)
	}
}

func TestAuthorityUnauthorizedUser(t *testing.T) {
	b := setupBackend(t)
	auth := Authority{Client: b.client(t, 99)}

	_, err := auth.Fetch(context.Background(), strconv.FormatInt(b.recipeID, 10))
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Errorf("err = %v, want 404 APIError", err)
	}
}

func TestDraftBackendRoundTrip(t *testing.T) {
	b := setupBackend(t)
	be := DraftBackend{Client: b.client(t, 7)}
	id := strconv.FormatInt(b.recipeID, 10)
	ctx := context.Background()

	f, err := be.GetDraft(ctx, id)
	if err != nil || len(f) != 0 {
		t.Fatalf("empty draft = %v, %v", f, err)
	}

	if err := be.PutDraft(ctx, id, draft.Fields{draft.FieldTitle: "Handed off", draft.FieldDescription: "ignored"}); err != nil {
		t.Fatalf("PutDraft: %v", err)
	}
	f, err = be.GetDraft(ctx, id)
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if f[draft.FieldTitle] != "Handed off" {
		t.Errorf("title = %q", f[draft.FieldTitle])
	}
	if _, ok := f[draft.FieldDescription]; ok {
		t.Error("description is not kept remotely")
	}
}

func TestDeleteDraftAndIngredientsPatch(t *testing.T) {
	b := setupBackend(t)
	c := b.client(t, 7)
	ctx := context.Background()

	title := "Handed off"
	if _, err := c.PutDraft(ctx, b.recipeID, webdrafts.Draft{Title: &title}); err != nil {
		t.Fatalf("PutDraft: %v", err)
	}
	if err := c.DeleteDraft(ctx, b.recipeID); err != nil {
		t.Fatalf("DeleteDraft: %v", err)
	}
	if d, _ := b.drafts.Get(ctx, 7, b.recipeID); d != nil {
		t.Errorf("draft survived DeleteDraft: %+v", d)
	}

	text := "beet\ncabbage\nbeet"
	saved, err := c.PatchRecipe(ctx, b.recipeID, recipes.Patch{IngredientsText: &text})
	if err != nil {
		t.Fatalf("PatchRecipe: %v", err)
	}
	if saved.Title != "Borscht" || len(saved.Ingredients) != 2 || saved.Ingredients[1] != "cabbage" {
		t.Errorf("saved = %+v", saved)
	}
}

func TestReconcilerAgainstAPI(t *testing.T) {
	b := setupBackend(t)
	c := b.client(t, 7)
	id := strconv.FormatInt(b.recipeID, 10)
	ctx := context.Background()

	// Another surface left a remote draft behind.
	title := "From the other page"
	if _, err := c.PutDraft(ctx, b.recipeID, webdrafts.Draft{Title: &title}); err != nil {
		t.Fatalf("PutDraft: %v", err)
	}

	form := draft.NewMemoryForm()
	local := draft.NewLocalStore("recipe_draft:", draft.NewMemoryTier("session", 0))
	var categories []recipes.Category
	rec, err := draft.New(id, form, local, Authority{Client: c}, draft.Options{
		Remote: draft.NewRemote(DraftBackend{Client: c}, nil),
		Reference: func(ctx context.Context) error {
			var err error
			categories, err = c.ListCategories(ctx)
			return err
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := rec.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if form.Value(draft.FieldTitle) != title {
		t.Errorf("title = %q, want remote draft", form.Value(draft.FieldTitle))
	}
	if len(categories) != 1 {
		t.Errorf("categories = %+v", categories)
	}

	if _, err := rec.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ := b.recipes.GetForUser(ctx, b.recipeID, 7)
	if got.Title != title {
		t.Errorf("stored title = %q", got.Title)
	}
	if d, _ := b.drafts.Get(ctx, 7, b.recipeID); d != nil {
		t.Errorf("remote draft survived the save: %+v", d)
	}
	if _, ok := local.Read(id); ok {
		t.Error("local draft survived the save")
	}
}
