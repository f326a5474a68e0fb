package state

import (
	"sort"

	"github.com/nerrad567/thingsmqtt/internal/value"
)

// Model caches the last known value of every key and tracks which keys
// changed since the last time they were collected.
//
// Values must be canonical (see package value). Model is not safe for
// concurrent use; it is owned by the application goroutine.
type Model struct {
	values map[string]any
	dirty  map[string]struct{}
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{
		values: make(map[string]any),
		dirty:  make(map[string]struct{}),
	}
}

// Set stores v under key. The key is marked dirty and true is returned only
// when the key was absent or held a structurally different value; writing
// an equal value is a no-op.
func (m *Model) Set(key string, v any) bool {
	if old, ok := m.values[key]; ok && value.Equal(old, v) {
		return false
	}
	m.values[key] = v
	m.dirty[key] = struct{}{}
	return true
}

// Get returns a copy of the cached value for key.
func (m *Model) Get(key string) (any, bool) {
	v, ok := m.values[key]
	if !ok {
		return nil, false
	}
	return value.Clone(v), true
}

// Len returns the number of cached keys.
func (m *Model) Len() int {
	return len(m.values)
}

// HasDirty reports whether any key changed since the last collection.
func (m *Model) HasDirty() bool {
	return len(m.dirty) > 0
}

// IsDirty reports whether key changed since the last collection.
func (m *Model) IsDirty(key string) bool {
	_, ok := m.dirty[key]
	return ok
}

// DirtyKeys returns the dirty keys in sorted order.
func (m *Model) DirtyKeys() []string {
	keys := make([]string, 0, len(m.dirty))
	for k := range m.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TakeDirty returns a copy of every dirty key's current value and clears the
// dirty set. It returns nil when nothing is dirty.
func (m *Model) TakeDirty() map[string]any {
	if len(m.dirty) == 0 {
		return nil
	}
	out := make(map[string]any, len(m.dirty))
	for k := range m.dirty {
		out[k] = value.Clone(m.values[k])
	}
	clear(m.dirty)
	return out
}

// ClearDirty forgets every pending change without emitting it.
func (m *Model) ClearDirty() {
	clear(m.dirty)
}

// Snapshot returns a copy of every cached key, dirty or not.
func (m *Model) Snapshot() map[string]any {
	out := make(map[string]any, len(m.values))
	for k, v := range m.values {
		out[k] = value.Clone(v)
	}
	return out
}

// Diff compares a whole document against the cache. Each key of doc that is
// new or structurally different is written into the cache, and the returned
// object holds exactly those keys with their new values. Keys of the cache
// absent from doc are left untouched. Returned keys are not left dirty, so
// a later TakeDirty does not emit them a second time.
//
// Diff returns nil when nothing differs.
func (m *Model) Diff(doc map[string]any) map[string]any {
	var changed map[string]any
	for k, v := range doc {
		if !m.Set(k, value.Clone(v)) {
			continue
		}
		delete(m.dirty, k)
		if changed == nil {
			changed = make(map[string]any)
		}
		changed[k] = value.Clone(v)
	}
	return changed
}
