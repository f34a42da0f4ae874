// Package serialize implements the fixed/variable byte encoding used by
// every persisted type in lattice: integers, strings, byte slices, and the
// vector-of-T convention shared by the storage and collections packages.
package serialize

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ErrOutOfBounds is returned whenever a deserializer is handed fewer bytes
// than it needs. Deserialization must never panic on short input.
var ErrOutOfBounds = fmt.Errorf("serialize: out of bounds")

// Bytes is the interface every serializable lattice type implements.
type Bytes interface {
	Serialize() []byte
	SerializedSize() uint64
}

// FixedSize describes types whose encoded size never depends on their
// value.
type FixedSize interface {
	Bytes
	SerializedSizeStatic() uint64
}

// --- unsigned/signed 64-bit ---

func PutU64(buf []byte, v uint64) { binary.LittleEndian.PutUint64(buf, v) }

func GetU64(data []byte) (uint64, error) {
	if len(data) < 8 {
		return 0, ErrOutOfBounds
	}
	return binary.LittleEndian.Uint64(data), nil
}

func PutI64(buf []byte, v int64) { binary.LittleEndian.PutUint64(buf, uint64(v)) }

func GetI64(data []byte) (int64, error) {
	u, err := GetU64(data)
	if err != nil {
		return 0, err
	}
	return int64(u), nil
}

// --- 32-bit helpers ---

func PutU32(buf []byte, v uint32) { binary.LittleEndian.PutUint32(buf, v) }

func GetU32(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, ErrOutOfBounds
	}
	return binary.LittleEndian.Uint32(data), nil
}

// --- F64 with a bit-identical canonical form (total ordering lives in db.DbF64) ---

func PutF64(buf []byte, v float64) { binary.LittleEndian.PutUint64(buf, math.Float64bits(v)) }

func GetF64(data []byte) (float64, error) {
	u, err := GetU64(data)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(u), nil
}

// --- strings and byte sequences: u64 length prefix + raw bytes ---

func SerializeBytes(b []byte) []byte {
	out := make([]byte, 8+len(b))
	PutU64(out, uint64(len(b)))
	copy(out[8:], b)
	return out
}

func SerializedBytesSize(b []byte) uint64 { return 8 + uint64(len(b)) }

// DeserializeBytes reads a length-prefixed byte sequence and returns the
// payload plus the number of bytes consumed.
func DeserializeBytes(data []byte) ([]byte, uint64, error) {
	n, err := GetU64(data)
	if err != nil {
		return nil, 0, err
	}
	if uint64(len(data)) < 8+n {
		return nil, 0, ErrOutOfBounds
	}
	out := make([]byte, n)
	copy(out, data[8:8+n])
	return out, 8 + n, nil
}

func SerializeString(s string) []byte { return SerializeBytes([]byte(s)) }

func DeserializeString(data []byte) (string, uint64, error) {
	b, n, err := DeserializeBytes(data)
	if err != nil {
		return "", 0, err
	}
	return string(b), n, nil
}

// --- vectors of a homogeneous element type: u64 count prefix + elements ---

// SerializeSlice encodes a count prefix followed by each element's own
// encoding, using enc to serialize a single element.
func SerializeSlice[T any](items []T, enc func(T) []byte) []byte {
	parts := make([][]byte, len(items))
	total := uint64(8)
	for i, it := range items {
		parts[i] = enc(it)
		total += uint64(len(parts[i]))
	}
	out := make([]byte, 0, total)
	head := make([]byte, 8)
	PutU64(head, uint64(len(items)))
	out = append(out, head...)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// DeserializeSlice decodes a count-prefixed slice, using dec to decode one
// element starting at the given offset; dec returns the element and the
// number of bytes it consumed.
func DeserializeSlice[T any](data []byte, dec func([]byte) (T, uint64, error)) ([]T, uint64, error) {
	count, err := GetU64(data)
	if err != nil {
		return nil, 0, err
	}
	out := make([]T, 0, count)
	pos := uint64(8)
	for i := uint64(0); i < count; i++ {
		if pos > uint64(len(data)) {
			return nil, 0, ErrOutOfBounds
		}
		el, n, err := dec(data[pos:])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, el)
		pos += n
	}
	return out, pos, nil
}
