package draft

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// LocalStore is the two-tier local draft cache. Tiers are consulted in
// order: the first is preferred for reads, and every write goes to all of
// them independently.
type LocalStore struct {
	mu     sync.Mutex
	tiers  []Tier
	prefix string
	now    func() time.Time
	log    *slog.Logger
}

// NewLocalStore creates a store over tiers, preferred tier first.
func NewLocalStore(prefix string, tiers ...Tier) *LocalStore {
	return &LocalStore{
		tiers:  tiers,
		prefix: prefix,
		now:    time.Now,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger routes tier failures to log.
func (s *LocalStore) SetLogger(log *slog.Logger) {
	if log != nil {
		s.log = log
	}
}

// Write merges partial into the stored draft for entityID and persists the
// result to every tier. It reports whether at least one tier accepted it.
// The read-merge-write runs under one lock so a rapid double edit cannot
// lose an update.
func (s *LocalStore) Write(entityID string, partial Fields) (Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := Fields{}
	if d, ok := s.read(entityID); ok {
		prev = d.Fields
	}
	next := Draft{
		EntityID:   entityID,
		Fields:     prev.Merge(partial),
		CapturedAt: s.now().UTC(),
	}

	raw, err := encode(next)
	if err != nil {
		s.log.Debug("draft encode failed", "entity", entityID, "err", err)
		return next, false
	}
	key := Key(s.prefix, entityID)
	n := broadcast(s.log, "save", s.tiers, func(t Tier) error { return t.Save(key, raw) })
	return next, n > 0
}

// Read returns the stored draft for entityID, or false when no tier holds
// a usable one. Malformed content counts as absent.
func (s *LocalStore) Read(entityID string) (*Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(entityID)
}

func (s *LocalStore) read(entityID string) (*Draft, bool) {
	key := Key(s.prefix, entityID)
	for _, t := range s.tiers {
		raw, ok, err := t.Load(key)
		if err != nil {
			s.log.Debug("draft tier failed", "tier", t.Name(), "op", "load", "err", err)
			continue
		}
		if !ok {
			continue
		}
		d, err := decode(raw, entityID)
		if err != nil {
			s.log.Debug("ignoring unreadable draft", "tier", t.Name(), "entity", entityID, "err", err)
			continue
		}
		return d, true
	}
	return nil, false
}

// Clear removes the draft for entityID from every tier it can reach.
func (s *LocalStore) Clear(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Key(s.prefix, entityID)
	broadcast(s.log, "remove", s.tiers, func(t Tier) error { return t.Remove(key) })
}
