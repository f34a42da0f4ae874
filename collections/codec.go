package collections

import "github.com/latticedb/lattice/serialize"

// Uint64Codec is the fixed-width Codec for uint64 keys/values (graph
// indices, storage indices, hashes).
var Uint64Codec = Codec[uint64]{
	Len:    8,
	Encode: func(v uint64) []byte { b := make([]byte, 8); serialize.PutU64(b, v); return b },
	Decode: func(b []byte) (uint64, error) { return serialize.GetU64(b) },
}

// Int64Codec is the fixed-width Codec for int64 keys/values (graph
// indices, which are signed).
var Int64Codec = Codec[int64]{
	Len:    8,
	Encode: func(v int64) []byte { b := make([]byte, 8); serialize.PutI64(b, v); return b },
	Decode: func(b []byte) (int64, error) { return serialize.GetI64(b) },
}

// Bytes16Codec is the fixed-width Codec for the 16-byte packed ValueIndex
// record used throughout the dictionary and db packages.
var Bytes16Codec = Codec[[16]byte]{
	Len:    16,
	Encode: func(v [16]byte) []byte { return v[:] },
	Decode: func(b []byte) ([16]byte, error) {
		var out [16]byte
		copy(out[:], b)
		return out, nil
	},
}
