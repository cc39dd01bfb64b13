package draft

import "sync"

// Form reads and writes the visible values of the editable fields on
// whatever surface is rendering them.
type Form interface {
	Value(field string) string
	SetValue(field, value string)
}

// MemoryForm is a Form held in memory.
type MemoryForm struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryForm creates an empty form.
func NewMemoryForm() *MemoryForm {
	return &MemoryForm{values: make(map[string]string)}
}

func (f *MemoryForm) Value(field string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values[field]
}

func (f *MemoryForm) SetValue(field, value string) {
	f.mu.Lock()
	f.values[field] = value
	f.mu.Unlock()
}

// Reset blanks every field, the way a WebView may when it restores a page
// from its back/forward cache.
func (f *MemoryForm) Reset() {
	f.mu.Lock()
	f.values = make(map[string]string)
	f.mu.Unlock()
}
