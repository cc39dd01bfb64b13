package draft

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/recipebot/recipeapp/internal/db"
)

// Tier is one local storage area. Implementations may fail at any time
// (quota, disabled storage); callers treat every failure as "not stored".
type Tier interface {
	Name() string
	Load(key string) (string, bool, error)
	Save(key, value string) error
	Remove(key string) error
}

var (
	// ErrQuotaExceeded is returned when a tier has no room for a value.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrTierDisabled is returned by a tier that has been switched off.
	ErrTierDisabled = errors.New("storage disabled")
)

// broadcast applies op to every tier in order and swallows per-tier
// failures. It reports how many tiers succeeded.
func broadcast(log *slog.Logger, op string, tiers []Tier, fn func(Tier) error) int {
	ok := 0
	for _, t := range tiers {
		if err := fn(t); err != nil {
			log.Debug("draft tier failed", "tier", t.Name(), "op", op, "err", err)
			continue
		}
		ok++
	}
	return ok
}

// MemoryTier is the tab-scoped tier: its contents live only as long as the
// editing session that owns it.
type MemoryTier struct {
	mu       sync.Mutex
	name     string
	data     map[string]string
	maxBytes int
	disabled bool
}

// NewMemoryTier creates a tab-scoped tier. maxBytes <= 0 means unbounded.
func NewMemoryTier(name string, maxBytes int) *MemoryTier {
	return &MemoryTier{name: name, data: make(map[string]string), maxBytes: maxBytes}
}

func (m *MemoryTier) Name() string { return m.name }

func (m *MemoryTier) Load(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return "", false, ErrTierDisabled
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryTier) Save(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return ErrTierDisabled
	}
	if m.maxBytes > 0 {
		used := 0
		for k, v := range m.data {
			if k != key {
				used += len(k) + len(v)
			}
		}
		if used+len(key)+len(value) > m.maxBytes {
			return ErrQuotaExceeded
		}
	}
	m.data[key] = value
	return nil
}

func (m *MemoryTier) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disabled {
		return ErrTierDisabled
	}
	delete(m.data, key)
	return nil
}

// SetDisabled switches the tier off or back on, as a browser does when
// storage is blocked.
func (m *MemoryTier) SetDisabled(disabled bool) {
	m.mu.Lock()
	m.disabled = disabled
	m.mu.Unlock()
}

// SQLTier is the durable tier, persisted in the local_drafts table.
type SQLTier struct {
	db  *db.DB
	now func() time.Time
}

// NewSQLTier creates a durable tier backed by database.
func NewSQLTier(database *db.DB) *SQLTier {
	return &SQLTier{db: database, now: time.Now}
}

func (s *SQLTier) Name() string { return "durable" }

func (s *SQLTier) Load(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(context.Background(),
		`SELECT value FROM local_drafts WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading local draft: %w", err)
	}
	return value, true, nil
}

func (s *SQLTier) Save(key, value string) error {
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO local_drafts (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving local draft: %w", err)
	}
	return nil
}

func (s *SQLTier) Remove(key string) error {
	if _, err := s.db.ExecContext(context.Background(), `DELETE FROM local_drafts WHERE key = ?`, key); err != nil {
		return fmt.Errorf("removing local draft: %w", err)
	}
	return nil
}
