// Package webdrafts is the short-lived server-side draft cache used while
// the user navigates between WebApp pages.
package webdrafts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/recipebot/recipeapp/internal/db"
)

// Draft is what the cache holds for one (user, recipe) pair.
type Draft struct {
	Title      *string `json:"title"`
	CategoryID *int64  `json:"category_id"`
}

// Empty reports whether the draft carries nothing.
func (d Draft) Empty() bool { return d.Title == nil && d.CategoryID == nil }

// Store keeps drafts in the webapp_drafts table with a sliding TTL.
type Store struct {
	db  *db.DB
	ttl time.Duration
	now func() time.Time
}

// NewStore creates a Store whose entries expire ttl after their last write.
func NewStore(database *db.DB, ttl time.Duration) *Store {
	return &Store{db: database, ttl: ttl, now: time.Now}
}

// Get returns the draft, or nil when it is absent, expired or unreadable.
func (s *Store) Get(ctx context.Context, userID, recipeID int64) (*Draft, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM webapp_drafts WHERE user_id = ? AND recipe_id = ? AND expires_at > ?`,
		userID, recipeID, s.now().Unix(),
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying web draft: %w", err)
	}

	var d Draft
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return nil, nil
	}
	return &d, nil
}

// SetMerge merges title and categoryID into the stored draft and refreshes
// its TTL. A blank title or a category <= 0 never overwrites a stored value.
func (s *Store) SetMerge(ctx context.Context, userID, recipeID int64, title *string, categoryID *int64) (*Draft, error) {
	prev, err := s.Get(ctx, userID, recipeID)
	if err != nil {
		return nil, err
	}
	next := Draft{}
	if prev != nil {
		next = *prev
	}
	if title != nil {
		if t := strings.TrimSpace(*title); t != "" {
			next.Title = &t
		}
	}
	if categoryID != nil && *categoryID > 0 {
		c := *categoryID
		next.CategoryID = &c
	}

	payload, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encoding web draft: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO webapp_drafts (user_id, recipe_id, payload, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, recipe_id) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`,
		userID, recipeID, string(payload), s.now().Add(s.ttl).Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("saving web draft: %w", err)
	}
	return &next, nil
}

// Clear deletes the draft. Clearing an absent draft is not an error.
func (s *Store) Clear(ctx context.Context, userID, recipeID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM webapp_drafts WHERE user_id = ? AND recipe_id = ?`, userID, recipeID); err != nil {
		return fmt.Errorf("clearing web draft: %w", err)
	}
	return nil
}

// PurgeExpired deletes every expired draft and returns how many were
// removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webapp_drafts WHERE expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purging web drafts: %w", err)
	}
	return res.RowsAffected()
}
