package draft

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeAuthority struct {
	mu      sync.Mutex
	records map[string]Fields
	fetches int
	saves   []Fields
	saveErr error
	fetchFn func(ctx context.Context) error
	forkTo  string
}

func newFakeAuthority(id string, fields Fields) *fakeAuthority {
	return &fakeAuthority{records: map[string]Fields{id: fields}}
}

func (a *fakeAuthority) Fetch(ctx context.Context, id string) (Record, error) {
	a.mu.Lock()
	a.fetches++
	fn := a.fetchFn
	a.mu.Unlock()
	if fn != nil {
		if err := fn(ctx); err != nil {
			return Record{}, err
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	f, ok := a.records[id]
	if !ok {
		return Record{}, errors.New("recipe not found")
	}
	return Record{EntityID: id, Fields: f.Clone()}, nil
}

func (a *fakeAuthority) Save(_ context.Context, id string, changes Fields) (Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saves = append(a.saves, changes.Clone())
	if a.saveErr != nil {
		return Record{}, a.saveErr
	}
	target := id
	if a.forkTo != "" {
		target = a.forkTo
	}
	next := a.records[id].Merge(changes)
	a.records[target] = next
	return Record{EntityID: target, Fields: next.Clone()}, nil
}

func (a *fakeAuthority) fetchCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fetches
}

type fakeBackend struct {
	mu     sync.Mutex
	drafts map[string]Fields
	getErr error
	block  chan struct{}
	puts   int
}

func (b *fakeBackend) GetDraft(_ context.Context, id string) (Fields, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return nil, b.getErr
	}
	return b.drafts[id].Clone(), nil
}

func (b *fakeBackend) PutDraft(_ context.Context, id string, f Fields) error {
	if b.block != nil {
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.drafts == nil {
		b.drafts = map[string]Fields{}
	}
	b.drafts[id] = b.drafts[id].Merge(f)
	b.puts++
	return nil
}

type fakeHost struct{ changed chan string }

func (h *fakeHost) NotifyChanged(id string) { h.changed <- id }

type harness struct {
	form      *MemoryForm
	tab       *MemoryTier
	durable   *SQLTier
	local     *LocalStore
	authority *fakeAuthority
	backend   *fakeBackend
	host      *fakeHost
	rec       *Reconciler
}

func newHarness(t *testing.T, server Fields) *harness {
	t.Helper()
	tab, durable := setupTiers(t)
	h := &harness{
		form:      NewMemoryForm(),
		tab:       tab,
		durable:   durable,
		local:     NewLocalStore(testPrefix, tab, durable),
		authority: newFakeAuthority("42", server),
		backend:   &fakeBackend{},
		host:      &fakeHost{changed: make(chan string, 1)},
	}
	rec, err := New("42", h.form, h.local, h.authority, Options{
		Remote:      NewRemote(h.backend, nil),
		Host:        h.host,
		HandoffWait: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.rec = rec
	return h
}

func serverRecipe() Fields {
	return Fields{FieldTitle: "Server Title", FieldCategoryID: "3", FieldDescription: ""}
}

func TestNewRequiresEntity(t *testing.T) {
	_, err := New("  ", NewMemoryForm(), NewLocalStore(testPrefix), newFakeAuthority("1", nil), Options{})
	if !errors.Is(err, ErrMissingEntity) {
		t.Errorf("err = %v, want ErrMissingEntity", err)
	}
}

func TestLoadWithoutDraftsBootstrapsBothTiers(t *testing.T) {
	h := newHarness(t, serverRecipe())

	if err := h.rec.Load(t.Context()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := h.form.Value(FieldTitle); got != "Server Title" {
		t.Errorf("title = %q", got)
	}
	if h.rec.State() != StateHydrated {
		t.Errorf("state = %s, want hydrated", h.rec.State())
	}
	for _, tier := range []Tier{h.tab, h.durable} {
		raw, ok, _ := tier.Load(Key(testPrefix, "42"))
		if !ok {
			t.Fatalf("tier %s has no draft after Load", tier.Name())
		}
		d, err := decode(raw, "42")
		if err != nil {
			t.Fatalf("tier %s: %v", tier.Name(), err)
		}
		if d.Fields[FieldTitle] != "Server Title" || d.Fields[FieldCategoryID] != "3" {
			t.Errorf("tier %s draft = %v", tier.Name(), d.Fields)
		}
	}
}

func TestLoadLocalDraftWinsOverServer(t *testing.T) {
	h := newHarness(t, serverRecipe())
	h.local.Write("42", Fields{FieldTitle: "Local Title"})

	if err := h.rec.Load(t.Context()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := h.form.Value(FieldTitle); got != "Local Title" {
		t.Errorf("title = %q, want local draft", got)
	}
	if got := h.form.Value(FieldCategoryID); got != "3" {
		t.Errorf("category_id = %q, want server value", got)
	}
}

func TestLoadRemoteDraftWinsWhenNoLocal(t *testing.T) {
	h := newHarness(t, serverRecipe())
	h.backend.drafts = map[string]Fields{"42": {FieldTitle: "Remote Title"}}

	if err := h.rec.Load(t.Context()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := h.form.Value(FieldTitle); got != "Remote Title" {
		t.Errorf("title = %q, want %q", got, "Remote Title")
	}
	d, ok := h.local.Read("42")
	if !ok || d.Fields[FieldTitle] != "Remote Title" {
		t.Errorf("local draft after bootstrap = %+v", d)
	}
}

func TestLoadLocalDraftWinsOverRemote(t *testing.T) {
	h := newHarness(t, serverRecipe())
	h.local.Write("42", Fields{FieldTitle: "Local Title"})
	h.backend.drafts = map[string]Fields{"42": {FieldTitle: "Remote Title", FieldCategoryID: "5"}}

	if err := h.rec.Load(t.Context()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := h.form.Value(FieldTitle); got != "Local Title" {
		t.Errorf("title after load = %q, want local draft", got)
	}
	if got := h.form.Value(FieldCategoryID); got != "5" {
		t.Errorf("category_id = %q, want remote value filling the gap", got)
	}
	d, ok := h.local.Read("42")
	if !ok || d.Fields[FieldCategoryID] != "5" || d.Fields[FieldTitle] != "Local Title" {
		t.Errorf("local draft after load = %+v", d)
	}

	h.form.Reset()
	if err := h.rec.Restore(t.Context()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := h.form.Value(FieldTitle); got != "Local Title" {
		t.Errorf("title after restore = %q, want it unchanged from load", got)
	}
	if got := h.form.Value(FieldCategoryID); got != "5" {
		t.Errorf("category_id after restore = %q", got)
	}
}

func TestLoadRemoteFillsBlankLocalTitle(t *testing.T) {
	h := newHarness(t, serverRecipe())
	h.local.Write("42", Fields{FieldTitle: "", FieldDescription: "Local notes"})
	h.backend.drafts = map[string]Fields{"42": {FieldTitle: "Remote Title"}}

	if err := h.rec.Load(t.Context()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := h.form.Value(FieldTitle); got != "Remote Title" {
		t.Errorf("title = %q, want remote draft filling the blank", got)
	}
	if got := h.form.Value(FieldDescription); got != "Local notes" {
		t.Errorf("description = %q", got)
	}
}

func TestLoadRemoteFailureIsSilent(t *testing.T) {
	h := newHarness(t, serverRecipe())
	h.backend.getErr = errors.New("connection refused")

	if err := h.rec.Load(t.Context()); err != nil {
		t.Fatalf("Load should ignore remote failures: %v", err)
	}
	if got := h.form.Value(FieldTitle); got != "Server Title" {
		t.Errorf("title = %q", got)
	}
}

func TestLoadSurfacesAuthorityFailure(t *testing.T) {
	h := newHarness(t, serverRecipe())
	boom := errors.New("recipe not found")
	h.authority.fetchFn = func(context.Context) error { return boom }

	err := h.rec.Load(t.Context())
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if h.rec.State() != StateUnknown {
		t.Errorf("state = %s, want unknown", h.rec.State())
	}
}

func TestLoadFailsWhenReferenceFails(t *testing.T) {
	h := newHarness(t, serverRecipe())
	refErr := errors.New("categories unavailable")
	rec, err := New("42", h.form, h.local, h.authority, Options{
		Reference: func(context.Context) error { return refErr },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := rec.Load(t.Context()); !errors.Is(err, refErr) {
		t.Errorf("err = %v, want %v", err, refErr)
	}
}

func TestEditWritesLocalAndMarksDirty(t *testing.T) {
	h := newHarness(t, serverRecipe())
	if err := h.rec.Load(t.Context()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	h.form.SetValue(FieldTitle, "Edited")
	h.rec.Edit(FieldTitle)

	if h.rec.State() != StateDirty {
		t.Errorf("state = %s, want dirty", h.rec.State())
	}
	d, _ := h.local.Read("42")
	if d.Fields[FieldTitle] != "Edited" {
		t.Errorf("local title = %q", d.Fields[FieldTitle])
	}
	if h.backend.puts != 0 {
		t.Error("Edit must not touch the remote tier")
	}
}

func TestEditClearingOptionalFieldIsRecorded(t *testing.T) {
	h := newHarness(t, Fields{FieldTitle: "T", FieldCategoryID: "3", FieldDescription: "Old"})
	if err := h.rec.Load(t.Context()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	h.form.SetValue(FieldDescription, "")
	h.rec.Edit(FieldDescription)

	d, _ := h.local.Read("42")
	if v, ok := d.Fields[FieldDescription]; !ok || v != "" {
		t.Errorf("description in draft = %q (present=%v), want cleared", v, ok)
	}
}

func TestRestoreFromLocalDoesNotFetch(t *testing.T) {
	h := newHarness(t, serverRecipe())
	if err := h.rec.Load(t.Context()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	h.form.SetValue(FieldTitle, "Kept Title")
	h.rec.Edit(FieldTitle)

	h.form.Reset()
	if err := h.rec.Restore(t.Context()); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if got := h.form.Value(FieldTitle); got != "Kept Title" {
		t.Errorf("title = %q, want %q", got, "Kept Title")
	}
	if n := h.authority.fetchCount(); n != 1 {
		t.Errorf("fetches = %d, want 1 (only the initial load)", n)
	}
	if h.rec.State() != StateDirty {
		t.Errorf("state = %s, want dirty", h.rec.State())
	}
}

func TestRestoreFromRemoteWhenLocalGone(t *testing.T) {
	h := newHarness(t, serverRecipe())
	h.backend.drafts = map[string]Fields{"42": {FieldTitle: "Remote Title", FieldCategoryID: "5"}}

	if err := h.rec.Restore(t.Context()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := h.form.Value(FieldTitle); got != "Remote Title" {
		t.Errorf("title = %q", got)
	}
	if n := h.authority.fetchCount(); n != 0 {
		t.Errorf("fetches = %d, want 0", n)
	}
	if h.rec.State() != StateHydrated {
		t.Errorf("state = %s, want hydrated", h.rec.State())
	}
}

func TestRestoreFullEscalationFetchesOnce(t *testing.T) {
	h := newHarness(t, serverRecipe())

	if err := h.rec.Restore(t.Context()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := h.form.Value(FieldTitle); got != "Server Title" {
		t.Errorf("title = %q, want %q", got, "Server Title")
	}
	if n := h.authority.fetchCount(); n != 1 {
		t.Errorf("fetches = %d, want exactly 1", n)
	}
}

func TestRestoreBlankDraftTitleDoesNotBlankForm(t *testing.T) {
	h := newHarness(t, serverRecipe())
	if err := h.rec.Load(t.Context()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	h.local.Write("42", Fields{FieldTitle: ""})

	if err := h.rec.Restore(t.Context()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := h.form.Value(FieldTitle); got != "Server Title" {
		t.Errorf("title = %q, blank draft must not overwrite it", got)
	}
}

func TestRestoreTwiceIsIdempotent(t *testing.T) {
	h := newHarness(t, serverRecipe())
	if err := h.rec.Load(t.Context()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	h.form.Reset()

	for i := 0; i < 2; i++ {
		if err := h.rec.Restore(t.Context()); err != nil {
			t.Fatalf("Restore #%d: %v", i+1, err)
		}
	}
	if got := h.form.Value(FieldTitle); got != "Server Title" {
		t.Errorf("title = %q", got)
	}
	if n := h.authority.fetchCount(); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
}

func TestHideWritesLocal(t *testing.T) {
	h := newHarness(t, serverRecipe())
	h.form.SetValue(FieldTitle, "Typed before hide")

	h.rec.Hide()

	d, ok := h.local.Read("42")
	if !ok || d.Fields[FieldTitle] != "Typed before hide" {
		t.Errorf("draft after Hide = %+v", d)
	}
}

func TestHandOffPushesRemoteThenNavigates(t *testing.T) {
	h := newHarness(t, serverRecipe())
	if err := h.rec.Load(t.Context()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	h.form.SetValue(FieldTitle, "Before handoff")
	h.rec.Edit(FieldTitle)

	navigated := false
	err := h.rec.HandOff(t.Context(), func() error {
		navigated = true
		d, ok := h.local.Read("42")
		if !ok || d.Fields[FieldTitle] != "Before handoff" {
			t.Errorf("local draft not written before navigation: %+v", d)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("HandOff: %v", err)
	}
	if !navigated {
		t.Fatal("navigate was not called")
	}
	got, _ := h.backend.GetDraft(t.Context(), "42")
	if got[FieldTitle] != "Before handoff" {
		t.Errorf("remote draft = %v", got)
	}
}

func TestHandOffDoesNotWaitForSlowRemote(t *testing.T) {
	h := newHarness(t, serverRecipe())
	h.backend.block = make(chan struct{})
	defer close(h.backend.block)
	h.form.SetValue(FieldTitle, "Slow")

	start := time.Now()
	navigated := make(chan struct{})
	err := h.rec.HandOff(t.Context(), func() error {
		close(navigated)
		return nil
	})
	if err != nil {
		t.Fatalf("HandOff: %v", err)
	}
	select {
	case <-navigated:
	default:
		t.Fatal("navigate was not called")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("HandOff blocked for %v", elapsed)
	}
}

func TestHandOffNavigateErrorIsReturned(t *testing.T) {
	h := newHarness(t, serverRecipe())
	h.form.SetValue(FieldTitle, "x")
	navErr := errors.New("no sibling surface")

	if err := h.rec.HandOff(t.Context(), func() error { return navErr }); !errors.Is(err, navErr) {
		t.Errorf("err = %v, want %v", err, navErr)
	}
}

func TestSaveRejectsBlankTitle(t *testing.T) {
	h := newHarness(t, serverRecipe())
	if err := h.rec.Load(t.Context()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	h.form.SetValue(FieldTitle, "   ")

	_, err := h.rec.Save(t.Context())
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != FieldTitle {
		t.Fatalf("err = %v, want title ValidationError", err)
	}
	if len(h.authority.saves) != 0 {
		t.Error("authority must not be called on validation failure")
	}
}

func TestSaveFailureKeepsDraft(t *testing.T) {
	h := newHarness(t, serverRecipe())
	if err := h.rec.Load(t.Context()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	h.form.SetValue(FieldTitle, "Unsaved")
	h.rec.Edit(FieldTitle)
	h.authority.saveErr = errors.New("HTTP 500")

	if _, err := h.rec.Save(t.Context()); err == nil {
		t.Fatal("expected save error")
	}
	d, ok := h.local.Read("42")
	if !ok || d.Fields[FieldTitle] != "Unsaved" {
		t.Errorf("draft after failed save = %+v", d)
	}
	if h.rec.State() != StateDirty {
		t.Errorf("state = %s, want dirty", h.rec.State())
	}
}

func TestSaveSuccessClearsDraftAndNotifies(t *testing.T) {
	h := newHarness(t, serverRecipe())
	if err := h.rec.Load(t.Context()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	h.form.SetValue(FieldTitle, "Saved Title")
	h.rec.Edit(FieldTitle)

	saved, err := h.rec.Save(t.Context())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Fields[FieldTitle] != "Saved Title" {
		t.Errorf("saved title = %q", saved.Fields[FieldTitle])
	}
	if _, ok := h.local.Read("42"); ok {
		t.Error("local draft should be cleared after a successful save")
	}
	if h.rec.State() != StateHydrated {
		t.Errorf("state = %s, want hydrated", h.rec.State())
	}
	select {
	case id := <-h.host.changed:
		if id != "42" {
			t.Errorf("notified id = %q", id)
		}
	case <-time.After(time.Second):
		t.Error("host was not notified")
	}
}

func TestSaveSendsOnlyChangedOptionalFields(t *testing.T) {
	h := newHarness(t, serverRecipe())
	if err := h.rec.Load(t.Context()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	h.form.SetValue(FieldTitle, "New")
	h.rec.Edit(FieldTitle)

	if _, err := h.rec.Save(t.Context()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	changes := h.authority.saves[0]
	if changes[FieldTitle] != "New" {
		t.Errorf("title change = %q", changes[FieldTitle])
	}
	if _, ok := changes[FieldDescription]; ok {
		t.Error("unchanged description should not be sent")
	}
	if _, ok := changes[FieldCategoryID]; ok {
		t.Error("unchanged category should not be sent")
	}
}

func TestSaveAdoptsForkedEntity(t *testing.T) {
	h := newHarness(t, serverRecipe())
	h.authority.forkTo = "77"
	if err := h.rec.Load(t.Context()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	h.form.SetValue(FieldTitle, "My Version")
	h.rec.Edit(FieldTitle)

	saved, err := h.rec.Save(t.Context())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.EntityID != "77" || h.rec.EntityID() != "77" {
		t.Errorf("entity after fork = %q / %q, want 77", saved.EntityID, h.rec.EntityID())
	}
	if id := <-h.host.changed; id != "77" {
		t.Errorf("notified id = %q, want 77", id)
	}

	h.form.SetValue(FieldTitle, "Further edit")
	h.rec.Edit(FieldTitle)
	if _, ok := h.local.Read("77"); !ok {
		t.Error("edits after a fork should be drafted under the new id")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateUnknown, "unknown"},
		{StateHydrated, "hydrated"},
		{StateSuspect, "suspect"},
		{StateDirty, "dirty"},
		{State(99), "invalid"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
