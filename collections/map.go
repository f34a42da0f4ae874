package collections

import "github.com/latticedb/lattice/storage"

// Map is a persisted, open-addressed unique-key table: `insert` replaces
// any existing value for a key, per spec.md §4.6.
type Map[K comparable, V any] struct {
	t *table[K, V]
}

// NewMap creates a fresh, empty map.
func NewMap[K comparable, V any](s *storage.Storage, keyCodec Codec[K], valCodec Codec[V]) (*Map[K, V], error) {
	hash := func(k K) uint64 { return stableHashBytes(keyCodec.Encode(k)) }
	t, err := newTable(s, keyCodec, valCodec, hash)
	if err != nil {
		return nil, err
	}
	return &Map[K, V]{t: t}, nil
}

// OpenMap attaches to a map previously created at index.
func OpenMap[K comparable, V any](s *storage.Storage, index storage.Index, keyCodec Codec[K], valCodec Codec[V]) *Map[K, V] {
	hash := func(k K) uint64 { return stableHashBytes(keyCodec.Encode(k)) }
	return &Map[K, V]{t: openTable(s, index, keyCodec, valCodec, hash)}
}

// Index returns the storage index the map is rooted at.
func (m *Map[K, V]) Index() storage.Index { return m.t.index }

// Insert sets key's value, replacing any existing entry.
func (m *Map[K, V]) Insert(key K, val V) error {
	count, tombstones, capacity, err := m.t.header()
	if err != nil {
		return err
	}
	slot, found, err := m.t.probeInsertUnique(capacity, key)
	if err != nil {
		return err
	}
	if err := m.t.writeSlot(capacity, slot, slotValid, key, val); err != nil {
		return err
	}
	if found {
		return nil
	}
	if err := m.t.setHeader(count+1, tombstones, capacity); err != nil {
		return err
	}
	return m.t.maybeGrow(count+1, tombstones, capacity)
}

// Value looks up key, returning ok=false if absent.
func (m *Map[K, V]) Value(key K) (val V, ok bool, err error) {
	_, _, capacity, err := m.t.header()
	if err != nil {
		return val, false, err
	}
	slot, found, err := m.t.probeInsertUnique(capacity, key)
	if err != nil {
		return val, false, err
	}
	if !found {
		return val, false, nil
	}
	_, _, val, err = m.t.readSlot(capacity, slot)
	return val, true, err
}

// Contains reports whether key has an entry.
func (m *Map[K, V]) Contains(key K) (bool, error) {
	_, ok, err := m.Value(key)
	return ok, err
}

// Remove deletes key's entry, a no-op if key is absent.
func (m *Map[K, V]) Remove(key K) error {
	count, tombstones, capacity, err := m.t.header()
	if err != nil {
		return err
	}
	slot, found, err := m.t.probeInsertUnique(capacity, key)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	var zeroK K
	var zeroV V
	if err := m.t.writeSlot(capacity, slot, slotDeleted, zeroK, zeroV); err != nil {
		return err
	}
	if err := m.t.setHeader(count-1, tombstones+1, capacity); err != nil {
		return err
	}
	return m.t.maybeShrink(count-1, capacity)
}

// Len returns the number of live entries.
func (m *Map[K, V]) Len() (uint64, error) {
	count, _, _, err := m.t.header()
	return count, err
}

// Iter calls fn for every live (key, value) pair; stops early if fn
// returns false.
func (m *Map[K, V]) Iter(fn func(k K, v V) bool) error {
	return m.t.iterate(fn)
}
