package registry

import (
	"sort"
	"sync"

	"lootforge/internal/loot"
)

// Kind names a document corpus.
type Kind string

const (
	KindLootTable Kind = "loot_table"
	KindStructure Kind = "structure"
)

// Registry supplies document ids and raw document text. It never parses.
// RawJSON resolves loot-table ids; structures are only ever listed.
type Registry interface {
	ListIDs(kind Kind) []string
	RawJSON(id string) ([]byte, bool)
}

// MemoryRegistry is a Registry over in-memory documents.
type MemoryRegistry struct {
	mu   sync.RWMutex
	docs map[Kind]map[string][]byte
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{docs: make(map[Kind]map[string][]byte)}
}

// Put stores raw under id, normalising the namespace.
func (m *MemoryRegistry) Put(kind Kind, id string, raw []byte) {
	id = loot.NormalizeID(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[kind] == nil {
		m.docs[kind] = make(map[string][]byte)
	}
	m.docs[kind][id] = append([]byte(nil), raw...)
}

func (m *MemoryRegistry) Remove(kind Kind, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs[kind], loot.NormalizeID(id))
}

func (m *MemoryRegistry) ListIDs(kind Kind) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.docs[kind])
}

func (m *MemoryRegistry) RawJSON(id string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.docs[KindLootTable][loot.NormalizeID(id)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), raw...), true
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
