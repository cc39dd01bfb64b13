// Package draft keeps a user's unsaved recipe edits consistent across a
// tab-scoped cache, a durable local cache, a best-effort server-side cache
// and the authoritative record, across page-lifecycle events that may
// silently reset the editing surface.
package draft

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Field names shared by the form, the drafts and the authoritative record.
const (
	FieldTitle       = "title"
	FieldCategoryID  = "category_id"
	FieldDescription = "description"
)

// Fields maps a field name to its last-known edited value. A field the user
// cleared is present with an empty value; a field never edited is absent.
type Fields map[string]string

// Merge returns a copy of f overlaid by partial. Fields absent from partial
// keep their previous value.
func (f Fields) Merge(partial Fields) Fields {
	out := make(Fields, len(f)+len(partial))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range partial {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy of f.
func (f Fields) Clone() Fields {
	return Fields{}.Merge(f)
}

// Draft is the unit of persistence in every draft tier.
type Draft struct {
	EntityID   string    `json:"entity_id"`
	Fields     Fields    `json:"fields"`
	CapturedAt time.Time `json:"captured_at"`
}

// Key derives the storage key for an entity.
func Key(prefix, entityID string) string {
	return prefix + entityID
}

func encode(d Draft) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var errMalformed = errors.New("malformed draft")

// decode parses stored content. Anything that does not look like a draft
// for the expected entity is rejected.
func decode(raw, entityID string) (*Draft, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errMalformed
	}
	var d Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, err
	}
	if d.Fields == nil || (d.EntityID != "" && d.EntityID != entityID) {
		return nil, errMalformed
	}
	d.EntityID = entityID
	return &d, nil
}
