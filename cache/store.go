package cache

import (
	"sync"

	"github.com/skipor/txcache/internal/tag"
)

// store holds entries and their write recency order.
// Table and order are always mutated together under write lock, so readers
// holding read lock never see partially updated entry/order pair.
type store[K comparable, V any] struct {
	sync.RWMutex
	table    map[K]*node[K, V]
	order    *queue[K, V]
	capacity int
	onEvict  func(key K, value V)
}

func newStore[K comparable, V any](capacity int, onEvict func(K, V)) *store[K, V] {
	s := &store[K, V]{
		table:    make(map[K]*node[K, V], capacity),
		order:    newQueue[K, V](),
		capacity: capacity,
		onEvict:  onEvict,
	}
	s.order.onShrink = s.evict
	return s
}

// put inserts or overwrites entry and makes it most recently written.
// Insert of new key into full store evicts least recently written entry.
func (s *store[K, V]) put(key K, value V) {
	s.Lock()
	defer s.Unlock()
	defer s.checkInvariants()
	if n, ok := s.table[key]; ok {
		n.value = value
		s.order.moveToTail(n)
		return
	}
	n := newNode(key, value)
	s.table[key] = n
	s.order.push(n)
	if s.order.size > s.capacity {
		// Capacity can be exceeded only by one, so exactly one entry evicted.
		s.order.shrink(s.capacity)
	}
}

func (s *store[K, V]) get(key K) (value V, ok bool) {
	s.RLock()
	defer s.RUnlock()
	n, ok := s.table[key]
	if !ok {
		return
	}
	return n.value, true
}

func (s *store[K, V]) contains(key K) bool {
	s.RLock()
	defer s.RUnlock()
	_, ok := s.table[key]
	return ok
}

func (s *store[K, V]) len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.table)
}

func (s *store[K, V]) keys() []K {
	s.RLock()
	defer s.RUnlock()
	return s.order.keys()
}

// evict removes disowned and detached node from table.
func (s *store[K, V]) evict(n *node[K, V]) {
	delete(s.table, n.key)
	if s.onEvict != nil {
		s.onEvict(n.key, n.value)
	}
	if tag.Debug {
		n.next = nil
		n.prev = nil
		n.owner = nil
	}
}
