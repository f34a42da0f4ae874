package storage

// Decoder decodes a T from its serialized bytes, per serialize.Bytes'
// companion free-function convention (T has no generic methods, so
// encode/decode travel as plain functions).
type Decoder[T any] func([]byte) (T, uint64, error)

// Insert serializes value and appends it as a new record, returning its
// storage index.
func Insert[T interface{ Serialize() []byte }](s *Storage, value T) (Index, error) {
	return s.insertBytes(value.Serialize())
}

// Value deserializes the value stored at index using dec.
func Value[T any](s *Storage, index Index, dec Decoder[T]) (T, error) {
	var zero T
	raw, err := s.valueBytes(index)
	if err != nil {
		return zero, err
	}
	v, _, err := dec(raw)
	if err != nil {
		return zero, Wrap(ErrSerialization, "failed to deserialize value", err)
	}
	return v, nil
}

// ValueAt deserializes a value located at a byte offset within a larger
// record.
func ValueAt[T any](s *Storage, index Index, offset uint64, size uint64, dec Decoder[T]) (T, error) {
	var zero T
	raw, err := s.valueAtBytes(index, offset, size)
	if err != nil {
		return zero, err
	}
	v, _, err := dec(raw)
	if err != nil {
		return zero, Wrap(ErrSerialization, "failed to deserialize partial value", err)
	}
	return v, nil
}

// InsertAt writes value's bytes starting offset bytes into index's
// record, growing the record if necessary.
func InsertAt[T interface{ Serialize() []byte }](s *Storage, index Index, offset uint64, value T) error {
	_, err := s.insertAtBytes(index, offset, value.Serialize())
	return err
}

// ResizeValue grows or shrinks the record at index to newSize bytes.
func (s *Storage) ResizeValue(index Index, newSize uint64) error {
	return s.resizeValue(index, newSize)
}

// MoveAt performs an intra-record memmove.
func (s *Storage) MoveAt(index Index, from, to, size uint64) error {
	return s.moveAtBytes(index, from, to, size)
}

// ValueBytes exposes the raw payload at index (used by collections which
// manage their own internal layout rather than a single Serializable).
func (s *Storage) ValueBytes(index Index) ([]byte, error) { return s.valueBytes(index) }

// ValueAtBytes exposes a raw partial read at index.
func (s *Storage) ValueAtBytes(index Index, offset, size uint64) ([]byte, error) {
	return s.valueAtBytes(index, offset, size)
}

// InsertAtBytes exposes a raw partial write at index.
func (s *Storage) InsertAtBytes(index Index, offset uint64, value []byte) error {
	_, err := s.insertAtBytes(index, offset, value)
	return err
}

// InsertBytes exposes a raw append, returning the new index.
func (s *Storage) InsertBytes(value []byte) (Index, error) { return s.insertBytes(value) }
