package safemap

import (
	"sync"
)

type SafeMap[K comparable, V any] struct {
	sync.RWMutex
	data map[K]V
}

func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{
		data: make(map[K]V),
	}
}

func (m *SafeMap[K, V]) Get(key K) (V, bool) {
	m.RLock()
	defer m.RUnlock()
	value, ok := m.data[key]
	return value, ok
}

func (m *SafeMap[K, V]) Has(key K) bool {
	_, ok := m.Get(key)
	return ok
}

func (m *SafeMap[K, V]) Set(key K, value V) {
	m.Lock()
	defer m.Unlock()
	m.data[key] = value
}

// SetIfAbsent stores value only when key is missing and reports whether it did.
func (m *SafeMap[K, V]) SetIfAbsent(key K, value V) bool {
	m.Lock()
	defer m.Unlock()
	if _, ok := m.data[key]; ok {
		return false
	}
	m.data[key] = value
	return true
}

func (m *SafeMap[K, V]) Delete(key K) {
	m.Lock()
	defer m.Unlock()
	delete(m.data, key)
}

func (m *SafeMap[K, V]) Len() int {
	m.RLock()
	defer m.RUnlock()
	return len(m.data)
}

// Snapshot returns a copy of the map.
func (m *SafeMap[K, V]) Snapshot() map[K]V {
	m.RLock()
	defer m.RUnlock()
	snapshot := make(map[K]V, len(m.data))
	for k, v := range m.data {
		snapshot[k] = v
	}
	return snapshot
}
