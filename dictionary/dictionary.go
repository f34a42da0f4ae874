// Package dictionary implements the reference-counted, content-addressed
// value pool of spec.md §4.7: identical values insert once and are shared
// by refcount, keyed by a stable hash over the value's serialized bytes.
// Grounded on store/index/index.go's Put, which already distinguishes
// "matching value found, treat as existing" from "new value, allocate a
// slot" (there keyed by prefix match, here by exact-value match after a
// hash probe).
package dictionary

import (
	"github.com/latticedb/lattice/collections"
	"github.com/latticedb/lattice/serialize"
	"github.com/latticedb/lattice/storage"
)

// slot is one entry of the backing StorageVec: a refcount, the value's
// stable hash, and the storage index where the value itself (serialized
// by Codec) actually lives. Unlike a fixed-width container element, T may
// be variably sized (strings, vecs of values), so the slot only ever
// holds a pointer to it rather than inlining it.
type slot struct {
	metaCount int64
	hash      uint64
	valueIdx  storage.Index
}

func (s slot) Encode() []byte {
	buf := make([]byte, 24)
	serialize.PutI64(buf[0:8], s.metaCount)
	serialize.PutU64(buf[8:16], s.hash)
	serialize.PutU64(buf[16:24], uint64(s.valueIdx))
	return buf
}

func (s slot) StorageLen() uint64 { return 24 }

func decodeSlot(b []byte) (slot, error) {
	meta, err := serialize.GetI64(b[0:8])
	if err != nil {
		return slot{}, err
	}
	hash, err := serialize.GetU64(b[8:16])
	if err != nil {
		return slot{}, err
	}
	idx, err := serialize.GetU64(b[16:24])
	if err != nil {
		return slot{}, err
	}
	return slot{metaCount: meta, hash: hash, valueIdx: storage.Index(idx)}, nil
}

// Codec is how a Dictionary[T] serializes/compares the values it pools.
type Codec[T any] struct {
	Serialize   func(T) []byte
	Deserialize func([]byte) (T, error)
	Equal       func(a, b T) bool
}

// Dictionary is a content-addressed, reference-counted pool of values of
// type T: a StorageVec[slot] for the entries plus a MultiMap from the
// value's stable hash to candidate slot indexes, mirroring spec.md §4.7's
// "MultiMap from hash to slot-index plus a Vector of DictionaryValue<T>".
type Dictionary[T any] struct {
	s      *storage.Storage
	slots  *collections.StorageVec[slot]
	byHash *collections.MultiMap[uint64, uint64]
	codec  Codec[T]
}

// New creates a fresh, empty dictionary. Slot 0 is reserved (per spec.md
// §4.7) and pushed here so that real entries start at index 1.
func New[T any](s *storage.Storage, codec Codec[T]) (*Dictionary[T], error) {
	vec, err := collections.NewStorageVec[slot](s, 24, decodeSlot)
	if err != nil {
		return nil, err
	}
	if err := vec.Push(slot{}); err != nil {
		return nil, err
	}
	byHash, err := collections.NewMultiMap(s, collections.Uint64Codec, collections.Uint64Codec)
	if err != nil {
		return nil, err
	}
	return &Dictionary[T]{s: s, slots: vec, byHash: byHash, codec: codec}, nil
}

// Roots is the pair of storage indexes a Dictionary needs to be reopened:
// the slot vector and the hash index.
type Roots struct {
	Slots  storage.Index
	ByHash storage.Index
}

// Open attaches to a dictionary previously created at the given roots.
func Open[T any](s *storage.Storage, roots Roots, codec Codec[T]) *Dictionary[T] {
	return &Dictionary[T]{
		s:      s,
		slots:  collections.OpenStorageVec[slot](s, roots.Slots, 24, decodeSlot),
		byHash: collections.OpenMultiMap(s, roots.ByHash, collections.Uint64Codec, collections.Uint64Codec),
		codec:  codec,
	}
}

// Roots returns the storage indexes needed to reopen this dictionary.
func (d *Dictionary[T]) Roots() Roots {
	return Roots{Slots: d.slots.Index(), ByHash: d.byHash.Index()}
}

func (d *Dictionary[T]) header() (slot, error) { return d.slots.Value(0) }

func (d *Dictionary[T]) setHeader(h slot) error { return d.slots.SetValue(0, h) }

// Len returns the total number of distinct values currently pooled.
func (d *Dictionary[T]) Len() (uint64, error) {
	h, err := d.header()
	if err != nil {
		return 0, err
	}
	return uint64(h.hash), nil
}

// findMatch checks every candidate slot index the hash index has recorded
// for hash, confirming equality byte-for-byte before reporting a match (a
// hash collision between unequal values must not merge their refcounts).
func (d *Dictionary[T]) findMatch(hash uint64, want T) (uint64, bool, error) {
	candidates, err := d.byHash.Values(hash)
	if err != nil {
		return 0, false, err
	}
	for _, idx := range candidates {
		s, err := d.slots.Value(idx)
		if err != nil {
			return 0, false, err
		}
		if s.metaCount <= 0 {
			continue
		}
		val, err := storage.Value(d.s, s.valueIdx, func(b []byte) (T, uint64, error) {
			v, err := d.codec.Deserialize(b)
			return v, uint64(len(b)), err
		})
		if err != nil {
			return 0, false, err
		}
		if d.codec.Equal(val, want) {
			return idx, true, nil
		}
	}
	return 0, false, nil
}

// Insert stores value, bumping the refcount if an identical value is
// already pooled, else allocating a fresh slot (reused from the free list
// when available).
func (d *Dictionary[T]) Insert(value T) (uint64, error) {
	hash := serialize.StableHash(d.codec.Serialize(value))
	if idx, found, err := d.findMatch(hash, value); err != nil {
		return 0, err
	} else if found {
		s, err := d.slots.Value(idx)
		if err != nil {
			return 0, err
		}
		s.metaCount++
		if err := d.slots.SetValue(idx, s); err != nil {
			return 0, err
		}
		return idx, nil
	}

	valIdx, err := d.s.InsertBytes(d.codec.Serialize(value))
	if err != nil {
		return 0, err
	}
	newSlot := slot{metaCount: 1, hash: hash, valueIdx: valIdx}

	head, err := d.header()
	if err != nil {
		return 0, err
	}
	var newIdx uint64
	if head.metaCount < 0 {
		newIdx = uint64(-head.metaCount)
		free, err := d.slots.Value(newIdx)
		if err != nil {
			return 0, err
		}
		head.metaCount = free.metaCount
		head.hash++
		if err := d.setHeader(head); err != nil {
			return 0, err
		}
		if err := d.slots.SetValue(newIdx, newSlot); err != nil {
			return 0, err
		}
	} else {
		head.hash++
		if err := d.setHeader(head); err != nil {
			return 0, err
		}
		if err := d.slots.Push(newSlot); err != nil {
			return 0, err
		}
		n, err := d.slots.Len()
		if err != nil {
			return 0, err
		}
		newIdx = n - 1
	}
	if err := d.byHash.Insert(hash, newIdx); err != nil {
		return 0, err
	}
	return newIdx, nil
}

// Remove decrements index's refcount; at zero, the underlying value record
// is freed and the slot is pushed onto the dictionary's free list.
func (d *Dictionary[T]) Remove(index uint64) error {
	s, err := d.slots.Value(index)
	if err != nil {
		return err
	}
	if s.metaCount <= 0 {
		return storage.IndexNotFoundError(storage.Index(index))
	}
	s.metaCount--
	if s.metaCount > 0 {
		return d.slots.SetValue(index, s)
	}

	if err := d.byHash.RemoveValue(s.hash, index); err != nil {
		return err
	}
	if err := d.s.Remove(s.valueIdx); err != nil {
		return err
	}
	head, err := d.header()
	if err != nil {
		return err
	}
	freed := slot{metaCount: head.metaCount, hash: 0, valueIdx: 0}
	if err := d.slots.SetValue(index, freed); err != nil {
		return err
	}
	head.metaCount = -int64(index)
	head.hash--
	return d.setHeader(head)
}

// Count returns index's current refcount.
func (d *Dictionary[T]) Count(index uint64) (int64, error) {
	s, err := d.slots.Value(index)
	if err != nil {
		return 0, err
	}
	return s.metaCount, nil
}

// Value returns the value stored at index.
func (d *Dictionary[T]) Value(index uint64) (T, error) {
	var zero T
	s, err := d.slots.Value(index)
	if err != nil {
		return zero, err
	}
	if s.metaCount <= 0 {
		return zero, storage.IndexNotFoundError(storage.Index(index))
	}
	return storage.Value(d.s, s.valueIdx, func(b []byte) (T, uint64, error) {
		v, err := d.codec.Deserialize(b)
		return v, uint64(len(b)), err
	})
}

// IndexOf looks up value's pool slot, if any.
func (d *Dictionary[T]) IndexOf(value T) (uint64, bool, error) {
	hash := serialize.StableHash(d.codec.Serialize(value))
	return d.findMatch(hash, value)
}
