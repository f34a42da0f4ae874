package serialize

import "encoding/binary"

// stableHashConst is the fixed mixing constant used by every chunk of the
// rotate-xor-multiply loop. It must never change: changing it would change
// every hash ever produced by a database file on disk.
const stableHashConst uint64 = 0x9E3779B97F4A7C15

// StableHash computes a 64-bit hash of data that is stable across
// processes, platforms, and Go versions: it never uses map iteration order,
// pointer identity, or the platform's native byte order, only explicit
// little-endian chunk decoding and a fixed rotate-xor-multiply mix.
//
// Identical bytes always hash identically, which is the only property the
// dictionary (package dictionary) and the collections hash tables depend on.
func StableHash(data []byte) uint64 {
	var h uint64 = stableHashConst
	chunks := len(data) / 8
	for i := 0; i < chunks; i++ {
		v := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		h = rotl64(h^v, 31) * stableHashConst
	}
	// Tail shorter than 8 bytes: pack into one final little-endian word.
	if rem := len(data) % 8; rem != 0 {
		var tail [8]byte
		copy(tail[:], data[chunks*8:])
		v := binary.LittleEndian.Uint64(tail[:])
		h = rotl64(h^v, 31) * stableHashConst
	}
	// Mix the length in last so that e.g. []byte{0} and []byte{0,0} differ.
	h ^= uint64(len(data))
	h = rotl64(h, 27) * stableHashConst
	h ^= h >> 33
	return h
}

func rotl64(x uint64, r uint) uint64 {
	return (x << r) | (x >> (64 - r))
}
