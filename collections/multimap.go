package collections

import "github.com/latticedb/lattice/storage"

// MultiMap is a persisted, open-addressed key-to-many-values table:
// `insert` always appends a new entry, per spec.md §4.6.
type MultiMap[K comparable, V comparable] struct {
	t *table[K, V]
}

// NewMultiMap creates a fresh, empty multimap.
func NewMultiMap[K comparable, V comparable](s *storage.Storage, keyCodec Codec[K], valCodec Codec[V]) (*MultiMap[K, V], error) {
	hash := func(k K) uint64 { return stableHashBytes(keyCodec.Encode(k)) }
	t, err := newTable(s, keyCodec, valCodec, hash)
	if err != nil {
		return nil, err
	}
	return &MultiMap[K, V]{t: t}, nil
}

// OpenMultiMap attaches to a multimap previously created at index.
func OpenMultiMap[K comparable, V comparable](s *storage.Storage, index storage.Index, keyCodec Codec[K], valCodec Codec[V]) *MultiMap[K, V] {
	hash := func(k K) uint64 { return stableHashBytes(keyCodec.Encode(k)) }
	return &MultiMap[K, V]{t: openTable(s, index, keyCodec, valCodec, hash)}
}

// Index returns the storage index the multimap is rooted at.
func (m *MultiMap[K, V]) Index() storage.Index { return m.t.index }

// Insert appends (key, val) as a new entry, even if an identical pair
// already exists.
func (m *MultiMap[K, V]) Insert(key K, val V) error {
	count, tombstones, capacity, err := m.t.header()
	if err != nil {
		return err
	}
	slot, err := m.t.probeAppend(capacity, key)
	if err != nil {
		return err
	}
	if err := m.t.writeSlot(capacity, slot, slotValid, key, val); err != nil {
		return err
	}
	if err := m.t.setHeader(count+1, tombstones, capacity); err != nil {
		return err
	}
	return m.t.maybeGrow(count+1, tombstones, capacity)
}

// Values returns every value stored under key.
func (m *MultiMap[K, V]) Values(key K) ([]V, error) {
	_, _, capacity, err := m.t.header()
	if err != nil {
		return nil, err
	}
	slots, err := m.t.collect(capacity, key)
	if err != nil {
		return nil, err
	}
	out := make([]V, 0, len(slots))
	for _, slot := range slots {
		_, _, v, err := m.t.readSlot(capacity, slot)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// RemoveValue deletes the first (key, val) entry found, a no-op if absent.
func (m *MultiMap[K, V]) RemoveValue(key K, val V) error {
	count, tombstones, capacity, err := m.t.header()
	if err != nil {
		return err
	}
	slots, err := m.t.collect(capacity, key)
	if err != nil {
		return err
	}
	for _, slot := range slots {
		_, _, v, err := m.t.readSlot(capacity, slot)
		if err != nil {
			return err
		}
		if v != val {
			continue
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
	return nil
}

// RemoveKey deletes every entry stored under key.
func (m *MultiMap[K, V]) RemoveKey(key K) error {
	count, tombstones, capacity, err := m.t.header()
	if err != nil {
		return err
	}
	slots, err := m.t.collect(capacity, key)
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		return nil
	}
	var zeroK K
	var zeroV V
	for _, slot := range slots {
		if err := m.t.writeSlot(capacity, slot, slotDeleted, zeroK, zeroV); err != nil {
			return err
		}
	}
	count -= uint64(len(slots))
	tombstones += uint64(len(slots))
	if err := m.t.setHeader(count, tombstones, capacity); err != nil {
		return err
	}
	return m.t.maybeShrink(count, capacity)
}

// Len returns the total number of live (key, value) entries.
func (m *MultiMap[K, V]) Len() (uint64, error) {
	count, _, _, err := m.t.header()
	return count, err
}

// Iter calls fn for every live (key, value) pair; stops early if fn
// returns false.
func (m *MultiMap[K, V]) Iter(fn func(k K, v V) bool) error {
	return m.t.iterate(fn)
}
