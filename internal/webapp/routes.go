// Package webapp serves the HTTP API used by the recipe editor WebApp.
package webapp

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/recipebot/recipeapp/internal/audit"
	"github.com/recipebot/recipeapp/internal/notify"
	"github.com/recipebot/recipeapp/internal/recipes"
	"github.com/recipebot/recipeapp/internal/tgauth"
	"github.com/recipebot/recipeapp/internal/webdrafts"
)

// Services bundles what the WebApp endpoints need. Audit and Notifier may
// be nil.
type Services struct {
	Recipes        *recipes.Store
	Drafts         *webdrafts.Store
	Audit          *audit.Store
	Notifier       *notify.Dispatcher
	BotToken       string
	InitDataMaxAge time.Duration
}

// RegisterRoutes mounts the WebApp endpoints under /api/webapp. Every
// endpoint requires valid Telegram initData.
func RegisterRoutes(r chi.Router, svc Services) {
	r.Route("/api/webapp", func(r chi.Router) {
		r.Use(tgauth.Middleware(svc.BotToken, svc.InitDataMaxAge))

		r.Get("/categories", handleListCategories(svc))
		r.Route("/recipes/{id}", func(r chi.Router) {
			r.Get("/", handleGetRecipe(svc))
			r.Patch("/", handlePatchRecipe(svc))
			r.Get("/draft", handleGetDraft(svc))
			r.Put("/draft", handlePutDraft(svc))
			r.Delete("/draft", handleDeleteDraft(svc))
		})
		if svc.Audit != nil {
			audit.RegisterRoutes(r, svc.Audit)
		}
	})
}

func handleListCategories(svc Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cats, err := svc.Recipes.ListCategories(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if cats == nil {
			cats = []recipes.Category{}
		}
		writeJSON(w, http.StatusOK, cats)
	}
}

func handleGetRecipe(svc Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, recipeID, ok := requestScope(w, r)
		if !ok {
			return
		}
		rec, err := svc.Recipes.GetForUser(r.Context(), recipeID, user.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if rec == nil {
			writeError(w, http.StatusNotFound, recipes.ErrNotFound.Error())
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handlePatchRecipe(svc Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, recipeID, ok := requestScope(w, r)
		if !ok {
			return
		}
		var p recipes.Patch
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		ctx := r.Context()
		before, err := svc.Recipes.GetForUser(ctx, recipeID, user.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if before == nil {
			writeError(w, http.StatusNotFound, recipes.ErrNotFound.Error())
			return
		}

		res, err := svc.Recipes.ApplyPatch(ctx, recipeID, user.ID, p)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		after, err := svc.Recipes.GetForUser(ctx, res.RecipeID, user.ID)
		if err != nil || after == nil {
			writeError(w, http.StatusInternalServerError, "reloading saved recipe failed")
			return
		}

		if err := svc.Drafts.Clear(ctx, user.ID, recipeID); err != nil {
			log.Printf("webapp: clearing draft for recipe %d: %v", recipeID, err)
		}
		if svc.Audit != nil {
			if err := svc.Audit.Log(ctx, audit.FromPatch(user.ID, recipeID, res, before, after)); err != nil {
				log.Printf("webapp: logging edit of recipe %d: %v", recipeID, err)
			}
		}
		svc.Notifier.Go(notify.FromPatch(user.ID, recipeID, res, after.Title))

		writeJSON(w, http.StatusOK, after)
	}
}

func handleGetDraft(svc Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, recipeID, ok := requireOwnedRecipe(svc, w, r)
		if !ok {
			return
		}
		d, err := svc.Drafts.Get(r.Context(), user.ID, recipeID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if d == nil {
			d = &webdrafts.Draft{}
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func handlePutDraft(svc Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, recipeID, ok := requireOwnedRecipe(svc, w, r)
		if !ok {
			return
		}
		var in webdrafts.Draft
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		d, err := svc.Drafts.SetMerge(r.Context(), user.ID, recipeID, in.Title, in.CategoryID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func handleDeleteDraft(svc Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, recipeID, ok := requestScope(w, r)
		if !ok {
			return
		}
		if err := svc.Drafts.Clear(r.Context(), user.ID, recipeID); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// requestScope extracts the authenticated user and the recipe id from the
// path, writing the error response itself when either is unusable.
func requestScope(w http.ResponseWriter, r *http.Request) (tgauth.User, int64, bool) {
	user, ok := tgauth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return tgauth.User{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid recipe id")
		return tgauth.User{}, 0, false
	}
	return user, id, true
}

func requireOwnedRecipe(svc Services, w http.ResponseWriter, r *http.Request) (tgauth.User, int64, bool) {
	user, recipeID, ok := requestScope(w, r)
	if !ok {
		return user, recipeID, false
	}
	rec, err := svc.Recipes.GetForUser(r.Context(), recipeID, user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return user, recipeID, false
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, recipes.ErrNotFound.Error())
		return user, recipeID, false
	}
	return user, recipeID, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	var verr *recipes.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusUnprocessableEntity, verr.Message)
	case errors.Is(err, recipes.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
