package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/recipebot/recipeapp/internal/recipes"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	status int
}

func (rc *recorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var e Event
		if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
			t.Errorf("decode: %v", err)
		}
		rc.mu.Lock()
		rc.events = append(rc.events, e)
		status := rc.status
		rc.mu.Unlock()
		if status == 0 {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
	}
}

func TestDispatchPostsEvent(t *testing.T) {
	rc := &recorder{}
	srv := httptest.NewServer(rc.handler(t))
	defer srv.Close()

	d := NewDispatcher(srv.URL)
	err := d.Dispatch(context.Background(), Event{Type: TypeRecipeUpdated, UserID: 1, RecipeID: 5})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(rc.events) != 1 {
		t.Fatalf("received %d events", len(rc.events))
	}
	got := rc.events[0]
	if got.ID == "" || got.CreatedAt.IsZero() {
		t.Errorf("event not stamped: %+v", got)
	}
	if got.RecipeID != 5 {
		t.Errorf("RecipeID = %d", got.RecipeID)
	}
}

func TestDispatchReportsBadStatus(t *testing.T) {
	rc := &recorder{status: http.StatusBadGateway}
	srv := httptest.NewServer(rc.handler(t))
	defer srv.Close()

	if err := NewDispatcher(srv.URL).Dispatch(context.Background(), Event{}); err == nil {
		t.Error("expected an error for a 502 response")
	}
}

func TestDisabledDispatcherIsNoop(t *testing.T) {
	d := NewDispatcher("")
	if d.Enabled() {
		t.Error("dispatcher without URL should be disabled")
	}
	if err := d.Dispatch(context.Background(), Event{}); err != nil {
		t.Errorf("Dispatch: %v", err)
	}
	d.Go(Event{})
	d.Wait()

	var nilDispatcher *Dispatcher
	nilDispatcher.Go(Event{})
	nilDispatcher.Wait()
}

func TestGoSurvivesCancelledCaller(t *testing.T) {
	rc := &recorder{}
	srv := httptest.NewServer(rc.handler(t))
	defer srv.Close()

	d := NewDispatcher(srv.URL)
	d.Go(Event{Type: TypeRecipeForked, RecipeID: 9})
	d.Wait()

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if len(rc.events) != 1 || rc.events[0].Type != TypeRecipeForked {
		t.Errorf("events = %+v", rc.events)
	}
}

func TestGoLogsFailures(t *testing.T) {
	d := NewDispatcher("http://127.0.0.1:1/unreachable")
	d.Go(Event{RecipeID: 1})
	d.Wait()
}

func TestFromPatch(t *testing.T) {
	res := &recipes.PatchResult{RecipeID: 9, MembershipChanged: true, OldCategoryID: 1, NewCategoryID: 2, CategoryChanged: true}
	e := FromPatch(42, 3, res, "My Soup")

	if e.Type != TypeRecipeForked || e.PreviousRecipeID != 3 || e.RecipeID != 9 {
		t.Errorf("event = %+v", e)
	}
	if len(e.AffectedCategories) != 2 {
		t.Errorf("AffectedCategories = %v", e.AffectedCategories)
	}

	inPlace := FromPatch(42, 3, &recipes.PatchResult{RecipeID: 3, OldCategoryID: 1, NewCategoryID: 1}, "Soup")
	if inPlace.Type != TypeRecipeUpdated || inPlace.PreviousRecipeID != 0 || len(inPlace.AffectedCategories) != 1 {
		t.Errorf("event = %+v", inPlace)
	}
}
