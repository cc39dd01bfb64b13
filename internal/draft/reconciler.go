package draft

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// State is the Reconciler's view of the visible form.
type State int

const (
	// StateUnknown: mounted, authoritative record not fetched yet.
	StateUnknown State = iota
	// StateHydrated: populated from the server and/or drafts.
	StateHydrated
	// StateSuspect: a lifecycle event fired that may have reset the surface.
	StateSuspect
	// StateDirty: the user edited since the last hydration.
	StateDirty
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateHydrated:
		return "hydrated"
	case StateSuspect:
		return "suspect"
	case StateDirty:
		return "dirty"
	default:
		return "invalid"
	}
}

// ErrMissingEntity is returned when no entity id is available to edit.
var ErrMissingEntity = errors.New("missing entity id")

// ValidationError rejects a save before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Record is the authoritative state of an entity.
type Record struct {
	EntityID string
	Fields   Fields
}

// Authority is the system of record. Its failures are the only ones the
// Reconciler surfaces.
type Authority interface {
	Fetch(ctx context.Context, entityID string) (Record, error)
	// Save applies changes and returns the saved record. The returned
	// EntityID may differ from the requested one when the server forked
	// the entity.
	Save(ctx context.Context, entityID string, changes Fields) (Record, error)
}

// Host is the embedding application. NotifyChanged is a fire-and-forget
// signal and must not be relied upon.
type Host interface {
	NotifyChanged(entityID string)
}

// Options tunes a Reconciler. The zero value edits title, category and
// description with title required.
type Options struct {
	Fields   []string
	Required []string
	// Reference loads data the form needs besides the record (category
	// list). It runs concurrently with the authoritative fetch.
	Reference   func(ctx context.Context) error
	Remote      *Remote
	Host        Host
	HandoffWait time.Duration
	Logger      *slog.Logger
}

// Reconciler decides at each lifecycle event whether the visible form can
// be trusted and, if not, where to restore it from.
type Reconciler struct {
	form        Form
	local       *LocalStore
	remote      *Remote
	authority   Authority
	host        Host
	fields      []string
	required    []string
	reference   func(ctx context.Context) error
	handoffWait time.Duration
	log         *slog.Logger

	mu       sync.Mutex
	entityID string
	state    State
	base     Fields
	flight   singleflight.Group
}

// New creates a Reconciler for entityID.
func New(entityID string, form Form, local *LocalStore, authority Authority, opts Options) (*Reconciler, error) {
	if strings.TrimSpace(entityID) == "" {
		return nil, ErrMissingEntity
	}
	if form == nil || local == nil || authority == nil {
		return nil, errors.New("draft: form, local store and authority are required")
	}
	if len(opts.Fields) == 0 {
		opts.Fields = []string{FieldTitle, FieldCategoryID, FieldDescription}
	}
	if len(opts.Required) == 0 {
		opts.Required = []string{FieldTitle}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Remote == nil {
		opts.Remote = NewRemote(nil, opts.Logger)
	}
	return &Reconciler{
		entityID:    entityID,
		form:        form,
		local:       local,
		remote:      opts.Remote,
		authority:   authority,
		host:        opts.Host,
		fields:      opts.Fields,
		required:    opts.Required,
		reference:   opts.Reference,
		handoffWait: opts.HandoffWait,
		log:         opts.Logger.With("component", "reconciler"),
		base:        Fields{},
	}, nil
}

// State returns the current form state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// EntityID returns the entity being edited. It changes after a save that
// forked the entity.
func (r *Reconciler) EntityID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entityID
}

func (r *Reconciler) setState(s State) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.state
	r.state = s
	return prev
}

// Load hydrates the form: authoritative record first, then the local
// draft, then the remote draft for the fields the local draft left missing
// or blank. When no local draft existed, or the remote draft filled
// something in, the local draft is written from the hydrated form.
// Concurrent calls share one fetch.
func (r *Reconciler) Load(ctx context.Context) error {
	_, err, _ := r.flight.Do("load", func() (any, error) {
		return nil, r.load(ctx)
	})
	return err
}

func (r *Reconciler) load(ctx context.Context) error {
	id := r.EntityID()

	var record Record
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rec, err := r.authority.Fetch(gctx, id)
		if err != nil {
			return err
		}
		record = rec
		return nil
	})
	if r.reference != nil {
		g.Go(func() error { return r.reference(gctx) })
	}
	if err := g.Wait(); err != nil {
		r.log.Warn("hydration failed", "entity", id, "err", err)
		return err
	}

	r.mu.Lock()
	r.base = record.Fields.Clone()
	r.mu.Unlock()
	for _, name := range r.fields {
		if v, ok := record.Fields[name]; ok {
			r.form.SetValue(name, v)
		}
	}

	local, hadLocal := r.overlayLocal(id)
	filled, hadRemote := r.overlayRemote(ctx, id, local)
	if !hadLocal || filled > 0 {
		r.writeLocal(id)
	}

	r.setState(StateHydrated)
	r.log.Debug("hydrated", "entity", id, "local_draft", hadLocal, "remote_draft", hadRemote)
	return nil
}

// Edit records that field changed on the form. The draft is merge-written
// to the local tiers before Edit returns; nothing touches the network.
func (r *Reconciler) Edit(field string) {
	r.writeLocal(r.EntityID(), field)
	r.setState(StateDirty)
}

// Hide persists the form ahead of the page being hidden or discarded.
func (r *Reconciler) Hide() {
	r.writeLocal(r.EntityID())
}

// HandOff moves the user to a sibling editing surface. The local draft is
// written first, then the remote push is started; navigate runs once the
// push finished or HandoffWait elapsed, whichever comes first.
func (r *Reconciler) HandOff(ctx context.Context, navigate func() error) error {
	id := r.EntityID()
	r.writeLocal(id)

	done := r.remote.PutDetached(ctx, id, r.snapshot())
	if r.handoffWait > 0 {
		timer := time.NewTimer(r.handoffWait)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			r.log.Debug("remote draft push still running, navigating anyway", "entity", id)
		case <-ctx.Done():
		}
	}

	if navigate == nil {
		return nil
	}
	return navigate()
}

// Restore re-validates the form after return-navigation or a visibility
// restore. The local draft is always re-applied; if the required fields
// are still blank the remote draft is tried, and failing that the form is
// hydrated again from the authoritative record. Duplicate triggers for the
// same transition share one run.
func (r *Reconciler) Restore(ctx context.Context) error {
	_, err, _ := r.flight.Do("restore", func() (any, error) {
		return nil, r.restore(ctx)
	})
	return err
}

func (r *Reconciler) restore(ctx context.Context) error {
	id := r.EntityID()
	prev := r.setState(StateSuspect)
	settled := StateHydrated
	if prev == StateDirty {
		settled = StateDirty
	}

	local, _ := r.overlayLocal(id)
	if r.requiredPresent() {
		r.setState(settled)
		return nil
	}

	r.log.Info("form blank after local restore, trying remote draft", "entity", id)
	if _, ok := r.overlayRemote(ctx, id, local); ok && r.requiredPresent() {
		r.setState(settled)
		return nil
	}

	r.log.Info("form blank after remote restore, refetching record", "entity", id)
	return r.Load(ctx)
}

// Save validates the form and sends it to the authority. On success the
// local draft is cleared and the form shows the saved record. On failure
// the draft is left exactly as it was.
func (r *Reconciler) Save(ctx context.Context) (Record, error) {
	for _, name := range r.required {
		if strings.TrimSpace(r.form.Value(name)) == "" {
			return Record{}, &ValidationError{Field: name, Message: name + " must not be empty"}
		}
	}

	id := r.EntityID()
	changes := r.changes()
	saved, err := r.authority.Save(ctx, id, changes)
	if err != nil {
		r.log.Warn("save failed, draft kept", "entity", id, "err", err)
		return Record{}, err
	}

	r.local.Clear(id)
	if saved.EntityID == "" {
		saved.EntityID = id
	}

	r.mu.Lock()
	r.entityID = saved.EntityID
	r.base = saved.Fields.Clone()
	r.mu.Unlock()
	for _, name := range r.fields {
		if v, ok := saved.Fields[name]; ok {
			r.form.SetValue(name, v)
		}
	}
	r.setState(StateHydrated)

	if r.host != nil {
		go r.host.NotifyChanged(saved.EntityID)
	}
	return saved, nil
}

// changes lists the fields that differ from the last authoritative
// record. Required fields are always sent.
func (r *Reconciler) changes() Fields {
	r.mu.Lock()
	base := r.base
	r.mu.Unlock()

	out := Fields{}
	for _, name := range r.fields {
		v := r.form.Value(name)
		prev, known := base[name]
		switch {
		case r.isRequired(name):
			out[name] = v
		case known && prev != v:
			out[name] = v
		case !known && v != "":
			out[name] = v
		}
	}
	return out
}

// writeLocal merge-writes every non-empty form field plus the explicitly
// changed ones, which are written even when blank.
func (r *Reconciler) writeLocal(id string, changed ...string) bool {
	partial := r.snapshot()
	for _, name := range changed {
		partial[name] = r.form.Value(name)
	}
	_, ok := r.local.Write(id, partial)
	if !ok {
		r.log.Debug("no local tier accepted the draft", "entity", id)
	}
	return ok
}

func (r *Reconciler) snapshot() Fields {
	out := Fields{}
	for _, name := range r.fields {
		if v := r.form.Value(name); v != "" {
			out[name] = v
		}
	}
	return out
}

// overlayLocal applies the local draft and returns its fields.
func (r *Reconciler) overlayLocal(id string) (Fields, bool) {
	d, ok := r.local.Read(id)
	if !ok {
		return nil, false
	}
	r.overlay(d.Fields, nil)
	return d.Fields, true
}

// overlayRemote applies the remote draft to the fields local left missing
// or blank. It reports how many fields it set and whether a remote draft
// existed.
func (r *Reconciler) overlayRemote(ctx context.Context, id string, local Fields) (int, bool) {
	d := r.remote.Get(ctx, id)
	if d == nil {
		return 0, false
	}
	return r.overlay(d.Fields, local), true
}

// overlay copies draft values onto the form, skipping fields that keep
// already holds a non-blank value. A blank value never overwrites a
// required field.
func (r *Reconciler) overlay(f, keep Fields) int {
	n := 0
	for _, name := range r.fields {
		v, ok := f[name]
		if !ok {
			continue
		}
		if strings.TrimSpace(keep[name]) != "" {
			continue
		}
		if strings.TrimSpace(v) == "" && r.isRequired(name) {
			continue
		}
		r.form.SetValue(name, v)
		n++
	}
	return n
}

func (r *Reconciler) requiredPresent() bool {
	for _, name := range r.required {
		if strings.TrimSpace(r.form.Value(name)) == "" {
			return false
		}
	}
	return true
}

func (r *Reconciler) isRequired(name string) bool {
	for _, req := range r.required {
		if req == name {
			return true
		}
	}
	return false
}
