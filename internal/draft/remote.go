package draft

import (
	"context"
	"io"
	"log/slog"
)

// RemoteBackend reaches the server-side draft cache. It reports failures;
// Remote is what turns them into "no draft".
type RemoteBackend interface {
	GetDraft(ctx context.Context, entityID string) (Fields, error)
	PutDraft(ctx context.Context, entityID string, fields Fields) error
}

// Remote is the advisory server-side draft tier. None of its operations
// ever report a failure to the caller.
type Remote struct {
	backend RemoteBackend
	log     *slog.Logger
}

// NewRemote wraps backend. A nil backend behaves as an always-empty cache.
func NewRemote(backend RemoteBackend, log *slog.Logger) *Remote {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Remote{backend: backend, log: log}
}

// Get returns the remote draft for entityID, or nil when there is none or
// the call failed for any reason.
func (r *Remote) Get(ctx context.Context, entityID string) *Draft {
	if r == nil || r.backend == nil {
		return nil
	}
	fields, err := r.backend.GetDraft(ctx, entityID)
	if err != nil {
		r.log.Debug("remote draft unavailable", "entity", entityID, "err", err)
		return nil
	}
	if len(fields) == 0 {
		return nil
	}
	return &Draft{EntityID: entityID, Fields: fields}
}

// Put stores fields remotely, ignoring any failure.
func (r *Remote) Put(ctx context.Context, entityID string, fields Fields) {
	if r == nil || r.backend == nil {
		return
	}
	if err := r.backend.PutDraft(ctx, entityID, fields); err != nil {
		r.log.Debug("remote draft push failed", "entity", entityID, "err", err)
	}
}

// PutDetached runs Put in its own goroutine, detached from the caller's
// cancellation. The returned channel closes when the push has finished;
// nobody is required to wait for it.
func (r *Remote) PutDetached(ctx context.Context, entityID string, fields Fields) <-chan struct{} {
	done := make(chan struct{})
	ctx = context.WithoutCancel(ctx)
	fields = fields.Clone()
	go func() {
		defer close(done)
		r.Put(ctx, entityID, fields)
	}()
	return done
}
