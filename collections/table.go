package collections

import (
	"github.com/latticedb/lattice/serialize"
	"github.com/latticedb/lattice/storage"
)

// slot states for the open-addressed tables, per spec.md §4.6.
const (
	slotEmpty byte = iota
	slotValid
	slotDeleted
)

const minTableCapacity uint64 = 64

// Codec packs a type's fixed-width encode/decode pair plus its encoded
// length, the same "T implements storage value" contract spec.md §4.5-§4.6
// asks of container elements.
type Codec[T any] struct {
	Len    uint64
	Encode func(T) []byte
	Decode func([]byte) (T, error)
}

// table is the shared open-addressing engine behind Map and MultiMap: one
// storage record holding `[count][tombstones][capacity][slot_0...slot_{cap-1}]`,
// each slot `[state byte][key][value]`. Grounded on store/index/index.go's
// bucket array, generalized from sharded on-disk buckets into a single
// storage value per spec.md §4.6.
type table[K comparable, V any] struct {
	s        *storage.Storage
	index    storage.Index
	keyCodec Codec[K]
	valCodec Codec[V]
	hash     func(K) uint64
}

func (t *table[K, V]) slotLen() uint64 { return 1 + t.keyCodec.Len + t.valCodec.Len }

const tableHeaderLen = 24

func newTable[K comparable, V any](s *storage.Storage, keyCodec Codec[K], valCodec Codec[V], hash func(K) uint64) (*table[K, V], error) {
	t := &table[K, V]{s: s, keyCodec: keyCodec, valCodec: valCodec, hash: hash}
	header := make([]byte, tableHeaderLen)
	serialize.PutU64(header[0:8], 0)
	serialize.PutU64(header[8:16], 0)
	serialize.PutU64(header[16:24], minTableCapacity)
	body := make([]byte, tableHeaderLen+minTableCapacity*t.slotLen())
	copy(body, header)
	idx, err := s.InsertBytes(body)
	if err != nil {
		return nil, err
	}
	t.index = idx
	return t, nil
}

func openTable[K comparable, V any](s *storage.Storage, index storage.Index, keyCodec Codec[K], valCodec Codec[V], hash func(K) uint64) *table[K, V] {
	return &table[K, V]{s: s, index: index, keyCodec: keyCodec, valCodec: valCodec, hash: hash}
}

func (t *table[K, V]) header() (count, tombstones, capacity uint64, err error) {
	raw, err := t.s.ValueAtBytes(t.index, 0, tableHeaderLen)
	if err != nil {
		return 0, 0, 0, err
	}
	count, _ = serialize.GetU64(raw[0:8])
	tombstones, _ = serialize.GetU64(raw[8:16])
	capacity, _ = serialize.GetU64(raw[16:24])
	return
}

func (t *table[K, V]) setHeader(count, tombstones, capacity uint64) error {
	buf := make([]byte, tableHeaderLen)
	serialize.PutU64(buf[0:8], count)
	serialize.PutU64(buf[8:16], tombstones)
	serialize.PutU64(buf[16:24], capacity)
	return t.s.InsertAtBytes(t.index, 0, buf)
}

func (t *table[K, V]) slotOffset(capacity, i uint64) uint64 {
	return tableHeaderLen + (i%capacity)*t.slotLen()
}

func (t *table[K, V]) readSlot(capacity, i uint64) (state byte, key K, val V, err error) {
	raw, err := t.s.ValueAtBytes(t.index, t.slotOffset(capacity, i), t.slotLen())
	if err != nil {
		return 0, key, val, err
	}
	state = raw[0]
	if state == slotValid {
		key, err = t.keyCodec.Decode(raw[1 : 1+t.keyCodec.Len])
		if err != nil {
			return 0, key, val, err
		}
		val, err = t.valCodec.Decode(raw[1+t.keyCodec.Len:])
		if err != nil {
			return 0, key, val, err
		}
	}
	return state, key, val, nil
}

func (t *table[K, V]) writeSlot(capacity, i uint64, state byte, key K, val V) error {
	buf := make([]byte, t.slotLen())
	buf[0] = state
	if state == slotValid {
		copy(buf[1:1+t.keyCodec.Len], t.keyCodec.Encode(key))
		copy(buf[1+t.keyCodec.Len:], t.valCodec.Encode(val))
	}
	return t.s.InsertAtBytes(t.index, t.slotOffset(capacity, i), buf)
}

// probeInsertUnique finds the slot to use for key (matching live slot if
// present, else the first empty/deleted slot along the probe run) for
// Map's unique-key semantics. found reports whether an existing entry was
// located (its slot index in that case).
func (t *table[K, V]) probeInsertUnique(capacity uint64, key K) (slot uint64, found bool, err error) {
	start := t.hash(key) % capacity
	var firstFree uint64
	haveFree := false
	for step := uint64(0); step < capacity; step++ {
		i := (start + step) % capacity
		state, k, _, rerr := t.readSlot(capacity, i)
		if rerr != nil {
			return 0, false, rerr
		}
		switch state {
		case slotEmpty:
			if haveFree {
				return firstFree, false, nil
			}
			return i, false, nil
		case slotDeleted:
			if !haveFree {
				firstFree = i
				haveFree = true
			}
		case slotValid:
			if k == key {
				return i, true, nil
			}
		}
	}
	return firstFree, false, nil
}

// probeAppend finds the first empty/deleted slot along key's probe run,
// for MultiMap's "insert always appends" semantics.
func (t *table[K, V]) probeAppend(capacity uint64, key K) (uint64, error) {
	start := t.hash(key) % capacity
	for step := uint64(0); step < capacity; step++ {
		i := (start + step) % capacity
		state, _, _, err := t.readSlot(capacity, i)
		if err != nil {
			return 0, err
		}
		if state != slotValid {
			return i, nil
		}
	}
	return 0, storage.NewError(storage.ErrIO, "table full: no slot found during append probe")
}

// collect walks key's contiguous probe run (stopping at the first Empty)
// and returns the slot indices holding a Valid entry matching key.
func (t *table[K, V]) collect(capacity uint64, key K) ([]uint64, error) {
	start := t.hash(key) % capacity
	var out []uint64
	for step := uint64(0); step < capacity; step++ {
		i := (start + step) % capacity
		state, k, _, err := t.readSlot(capacity, i)
		if err != nil {
			return nil, err
		}
		if state == slotEmpty {
			break
		}
		if state == slotValid && k == key {
			out = append(out, i)
		}
	}
	return out, nil
}

func (t *table[K, V]) maybeGrow(count, tombstones, capacity uint64) error {
	if (count+tombstones)*100 < capacity*85 {
		return nil
	}
	return t.rehash(capacity * 2)
}

func (t *table[K, V]) maybeShrink(count, capacity uint64) error {
	target := capacity / 2
	if target < minTableCapacity {
		target = minTableCapacity
	}
	if capacity <= minTableCapacity || count*100 > capacity*15 {
		return nil
	}
	return t.rehash(target)
}

// rehash reallocates the slot array to newCapacity, reinserting every live
// entry and dropping tombstones, per spec.md §4.6's "tombstones are
// reclaimed on resize".
func (t *table[K, V]) rehash(newCapacity uint64) error {
	_, _, oldCapacity, err := t.header()
	if err != nil {
		return err
	}
	type kv struct {
		k K
		v V
	}
	var live []kv
	for i := uint64(0); i < oldCapacity; i++ {
		state, k, v, err := t.readSlot(oldCapacity, i)
		if err != nil {
			return err
		}
		if state == slotValid {
			live = append(live, kv{k, v})
		}
	}
	if err := t.s.ResizeValue(t.index, tableHeaderLen+newCapacity*t.slotLen()); err != nil {
		return err
	}
	empty := make([]byte, t.slotLen())
	for i := uint64(0); i < newCapacity; i++ {
		if err := t.s.InsertAtBytes(t.index, t.slotOffset(newCapacity, i), empty); err != nil {
			return err
		}
	}
	if err := t.setHeader(uint64(len(live)), 0, newCapacity); err != nil {
		return err
	}
	for _, e := range live {
		slot, err := t.probeAppend(newCapacity, e.k)
		if err != nil {
			return err
		}
		if err := t.writeSlot(newCapacity, slot, slotValid, e.k, e.v); err != nil {
			return err
		}
	}
	return nil
}

// iterate calls fn for every live (key, value) pair in slot order.
func (t *table[K, V]) iterate(fn func(k K, v V) bool) error {
	_, _, capacity, err := t.header()
	if err != nil {
		return err
	}
	for i := uint64(0); i < capacity; i++ {
		state, k, v, err := t.readSlot(capacity, i)
		if err != nil {
			return err
		}
		if state != slotValid {
			continue
		}
		if !fn(k, v) {
			break
		}
	}
	return nil
}

func stableHashBytes(enc []byte) uint64 { return serialize.StableHash(enc) }
