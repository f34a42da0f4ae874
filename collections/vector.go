// Package collections provides typed, storage-backed growable sequences
// and open-addressed hash containers built directly on storage.Storage,
// per spec.md §4.5-§4.6: each container lives as exactly one storage
// value, the same "one index, one blob" discipline the teacher's
// store/index/recordlist.go uses for a bucket's record list.
package collections

import (
	"github.com/latticedb/lattice/serialize"
	"github.com/latticedb/lattice/storage"
)

// VecElem is the per-element contract a StorageVec needs: fixed-width
// encode/decode, matching spec.md §4.5's "T implements storage value with
// store/load/storage_len". Variable-width payloads (e.g. strings) should
// wrap an external storage.Index of this fixed width instead of trying to
// inline themselves.
type VecElem interface {
	Encode() []byte
	StorageLen() uint64
}

// VecDecoder decodes one fixed-width element from its encoded bytes.
type VecDecoder[T VecElem] func([]byte) (T, error)

// StorageVec is a persisted `[len u64][elem_0 ... elem_{len-1}]` sequence
// held in a single storage record, per spec.md §4.5. Capacity is implicit
// in the record's byte size; growth reallocates (via Storage.ResizeValue)
// in the same way the teacher's recordlist.go appends a fresh KeyPosition
// range rather than editing in place.
type StorageVec[T VecElem] struct {
	s       *storage.Storage
	index   storage.Index
	decode  VecDecoder[T]
	elemLen uint64
}

// NewStorageVec creates a fresh, empty vector and returns its root index.
func NewStorageVec[T VecElem](s *storage.Storage, elemLen uint64, decode VecDecoder[T]) (*StorageVec[T], error) {
	head := make([]byte, 8)
	serialize.PutU64(head, 0)
	idx, err := s.InsertBytes(head)
	if err != nil {
		return nil, err
	}
	return &StorageVec[T]{s: s, index: idx, decode: decode, elemLen: elemLen}, nil
}

// OpenStorageVec attaches to a vector previously created at index.
func OpenStorageVec[T VecElem](s *storage.Storage, index storage.Index, elemLen uint64, decode VecDecoder[T]) *StorageVec[T] {
	return &StorageVec[T]{s: s, index: index, decode: decode, elemLen: elemLen}
}

// Index returns the storage index this vector is rooted at.
func (v *StorageVec[T]) Index() storage.Index { return v.index }

func (v *StorageVec[T]) headerLen() uint64 { return 8 }

func (v *StorageVec[T]) offsetOf(i uint64) uint64 { return v.headerLen() + i*v.elemLen }

// Len returns the number of live elements.
func (v *StorageVec[T]) Len() (uint64, error) {
	head, err := v.s.ValueAtBytes(v.index, 0, 8)
	if err != nil {
		return 0, err
	}
	n, err := serialize.GetU64(head)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// IsEmpty reports whether the vector has zero elements.
func (v *StorageVec[T]) IsEmpty() (bool, error) {
	n, err := v.Len()
	return n == 0, err
}

// Capacity returns how many elements the underlying record currently has
// room for without a resize.
func (v *StorageVec[T]) Capacity() (uint64, error) {
	size, err := v.s.ValueSize(v.index)
	if err != nil {
		return 0, err
	}
	if size < v.headerLen() {
		return 0, nil
	}
	return (size - v.headerLen()) / v.elemLen, nil
}

func (v *StorageVec[T]) setLen(n uint64) error {
	buf := make([]byte, 8)
	serialize.PutU64(buf, n)
	return v.s.InsertAtBytes(v.index, 0, buf)
}

// Value reads the element at position i.
func (v *StorageVec[T]) Value(i uint64) (T, error) {
	var zero T
	n, err := v.Len()
	if err != nil {
		return zero, err
	}
	if i >= n {
		return zero, storage.OutOfBoundsError()
	}
	raw, err := v.s.ValueAtBytes(v.index, v.offsetOf(i), v.elemLen)
	if err != nil {
		return zero, err
	}
	return v.decode(raw)
}

// SetValue overwrites the element at position i.
func (v *StorageVec[T]) SetValue(i uint64, val T) error {
	n, err := v.Len()
	if err != nil {
		return err
	}
	if i >= n {
		return storage.OutOfBoundsError()
	}
	return v.s.InsertAtBytes(v.index, v.offsetOf(i), val.Encode())
}

// Push appends val, growing the backing record.
func (v *StorageVec[T]) Push(val T) error {
	n, err := v.Len()
	if err != nil {
		return err
	}
	if err := v.s.InsertAtBytes(v.index, v.offsetOf(n), val.Encode()); err != nil {
		return err
	}
	return v.setLen(n + 1)
}

// Pop removes and returns the last element.
func (v *StorageVec[T]) Pop() (T, error) {
	var zero T
	n, err := v.Len()
	if err != nil {
		return zero, err
	}
	if n == 0 {
		return zero, storage.OutOfBoundsError()
	}
	val, err := v.Value(n - 1)
	if err != nil {
		return zero, err
	}
	if err := v.setLen(n - 1); err != nil {
		return zero, err
	}
	return val, nil
}

// Remove deletes the element at i, shifting every later element down by
// one (spec.md §4.5: "remove shifts later elements").
func (v *StorageVec[T]) Remove(i uint64) error {
	n, err := v.Len()
	if err != nil {
		return err
	}
	if i >= n {
		return storage.OutOfBoundsError()
	}
	for j := i; j+1 < n; j++ {
		if err := v.s.MoveAt(v.index, v.offsetOf(j+1), v.offsetOf(j), v.elemLen); err != nil {
			return err
		}
	}
	return v.setLen(n - 1)
}

// Resize grows or shrinks the logical length to n, zero-filling any newly
// exposed elements' bytes.
func (v *StorageVec[T]) Resize(n uint64) error {
	oldLen, err := v.Len()
	if err != nil {
		return err
	}
	capacity, err := v.Capacity()
	if err != nil {
		return err
	}
	if n > capacity {
		if err := v.s.ResizeValue(v.index, v.headerLen()+n*v.elemLen); err != nil {
			return err
		}
	}
	if n > oldLen {
		if err := v.s.InsertAtBytes(v.index, v.offsetOf(oldLen), make([]byte, (n-oldLen)*v.elemLen)); err != nil {
			return err
		}
	}
	return v.setLen(n)
}

// ToSlice materializes every live element in order.
func (v *StorageVec[T]) ToSlice() ([]T, error) {
	n, err := v.Len()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, n)
	for i := uint64(0); i < n; i++ {
		val, err := v.Value(i)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}

// Iter calls fn for each live element in order, stopping early if fn
// returns false.
func (v *StorageVec[T]) Iter(fn func(i uint64, val T) bool) error {
	n, err := v.Len()
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		val, err := v.Value(i)
		if err != nil {
			return err
		}
		if !fn(i, val) {
			break
		}
	}
	return nil
}
