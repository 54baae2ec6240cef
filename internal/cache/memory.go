package cache

import (
	"sync"
	"time"
)

type memoryItem struct {
	entry    Entry
	storedAt time.Time
}

// MemoryStore is a Store kept in process memory. A zero ttl never expires entries.
type MemoryStore struct {
	ttl   time.Duration
	now   func() time.Time
	items map[string]memoryItem
	mu    sync.RWMutex
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]memoryItem),
	}
}

func (m *MemoryStore) Lookup(fingerprint string) (Entry, bool) {
	m.mu.RLock()
	item, ok := m.items[fingerprint]
	m.mu.RUnlock()
	if !ok {
		return Entry{}, false
	}
	if m.expired(item) {
		m.mu.Lock()
		// A Store may have refreshed the entry since the read lock was released.
		if cur, ok := m.items[fingerprint]; ok && m.expired(cur) {
			delete(m.items, fingerprint)
		}
		m.mu.Unlock()
		return Entry{}, false
	}
	return item.entry, true
}

func (m *MemoryStore) Store(fingerprint string, entry Entry) {
	m.mu.Lock()
	m.items[fingerprint] = memoryItem{entry: entry, storedAt: m.now()}
	m.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *MemoryStore) expired(item memoryItem) bool {
	return m.ttl > 0 && m.now().Sub(item.storedAt) > m.ttl
}
