package db

import (
	"github.com/latticedb/lattice/serialize"
)

// ValueIndex is the 16-byte packed either-inline-or-dictionary reference
// of spec.md §3: bytes 0..15 hold either the value's own bytes (when its
// raw payload is 1..15 bytes long) or the pooled dictionary slot number
// (bytes 0..8), with the high 4 bits of byte 15 carrying the value's
// ValueKind tag and the low 4 bits carrying the inline payload length (0
// meaning "not inline, look the value up in the dictionary").
type ValueIndex [16]byte

func (vi ValueIndex) tag() ValueKind  { return ValueKind(vi[15] >> 4) }
func (vi ValueIndex) inlineLen() byte { return vi[15] & 0x0F }

// isInline reports whether vi self-describes its value, with KindNone
// always trivially "inline" (it carries no payload to look up at all).
func (vi ValueIndex) isInline() bool { return vi.tag() == KindNone || vi.inlineLen() != 0 }

func makeInlineIndex(kind ValueKind, payload []byte) ValueIndex {
	var vi ValueIndex
	vi[15] = byte(kind)<<4 | byte(len(payload))
	copy(vi[:len(payload)], payload)
	return vi
}

func makeDictIndex(kind ValueKind, slot uint64) ValueIndex {
	var vi ValueIndex
	serialize.PutU64(vi[0:8], slot)
	vi[15] = byte(kind) << 4
	return vi
}

func (vi ValueIndex) dictSlot() uint64 {
	slot, _ := serialize.GetU64(vi[0:8])
	return slot
}

// inlinePayload returns the raw (tag-less) bytes v would need to be
// self-described by a ValueIndex, and whether that payload legally fits
// inline (1..15 bytes — 0 bytes is reserved to mean "dictionary-backed",
// so a value whose natural raw encoding is empty, such as ""  or an empty
// byte slice, is deliberately always dictionary-backed instead).
func inlinePayload(v Value) ([]byte, bool) {
	switch v.kind {
	case KindNone:
		return nil, true
	case KindI64:
		b := make([]byte, 8)
		serialize.PutI64(b, v.i64V)
		return b, true
	case KindU64:
		b := make([]byte, 8)
		serialize.PutU64(b, v.u64V)
		return b, true
	case KindF64:
		b := make([]byte, 8)
		serialize.PutF64(b, float64(v.f64V))
		return b, true
	case KindBytes:
		if n := len(v.bytesV); n >= 1 && n <= 15 {
			return v.bytesV, true
		}
		return nil, false
	case KindString:
		raw := []byte(v.stringV)
		if n := len(raw); n >= 1 && n <= 15 {
			return raw, true
		}
		return nil, false
	case KindVecI64:
		if n := len(v.vecI64V); n >= 1 && n*8 <= 15 {
			return serialize.SerializeSlice(v.vecI64V, func(x int64) []byte { b := make([]byte, 8); serialize.PutI64(b, x); return b })[8:], true
		}
		return nil, false
	case KindVecU64:
		if n := len(v.vecU64V); n >= 1 && n*8 <= 15 {
			return serialize.SerializeSlice(v.vecU64V, func(x uint64) []byte { b := make([]byte, 8); serialize.PutU64(b, x); return b })[8:], true
		}
		return nil, false
	case KindVecF64:
		if n := len(v.vecF64V); n >= 1 && n*8 <= 15 {
			out := make([]byte, n*8)
			for i, f := range v.vecF64V {
				serialize.PutF64(out[i*8:], float64(f))
			}
			return out, true
		}
		return nil, false
	default:
		// KindVecString: variable-length elements never fit a fixed
		// inline budget with no length table, so it is always
		// dictionary-backed.
		return nil, false
	}
}

func decodeInlinePayload(kind ValueKind, raw []byte) Value {
	switch kind {
	case KindNone:
		return NewNone()
	case KindI64:
		v, _ := serialize.GetI64(raw)
		return NewI64(v)
	case KindU64:
		v, _ := serialize.GetU64(raw)
		return NewU64(v)
	case KindF64:
		v, _ := serialize.GetF64(raw)
		return NewF64(v)
	case KindBytes:
		return NewBytes(raw)
	case KindString:
		return NewString(string(raw))
	case KindVecI64:
		n := len(raw) / 8
		out := make([]int64, n)
		for i := 0; i < n; i++ {
			out[i], _ = serialize.GetI64(raw[i*8:])
		}
		return NewVecI64(out)
	case KindVecU64:
		n := len(raw) / 8
		out := make([]uint64, n)
		for i := 0; i < n; i++ {
			out[i], _ = serialize.GetU64(raw[i*8:])
		}
		return NewVecU64(out)
	case KindVecF64:
		n := len(raw) / 8
		out := make([]float64, n)
		for i := 0; i < n; i++ {
			out[i], _ = serialize.GetF64(raw[i*8:])
		}
		return NewVecF64(out)
	default:
		return NewNone()
	}
}

// valueSerialize is the Dictionary[Value] Codec's Serialize function: a
// one-byte kind tag followed by the value's own encoding, used whenever a
// value is too large to inline into a ValueIndex.
func valueSerialize(v Value) []byte {
	switch v.kind {
	case KindNone:
		return []byte{byte(KindNone)}
	case KindBytes:
		return append([]byte{byte(KindBytes)}, serialize.SerializeBytes(v.bytesV)...)
	case KindI64:
		b := make([]byte, 9)
		b[0] = byte(KindI64)
		serialize.PutI64(b[1:], v.i64V)
		return b
	case KindU64:
		b := make([]byte, 9)
		b[0] = byte(KindU64)
		serialize.PutU64(b[1:], v.u64V)
		return b
	case KindF64:
		b := make([]byte, 9)
		b[0] = byte(KindF64)
		serialize.PutF64(b[1:], float64(v.f64V))
		return b
	case KindString:
		return append([]byte{byte(KindString)}, serialize.SerializeString(v.stringV)...)
	case KindVecI64:
		return append([]byte{byte(KindVecI64)}, serialize.SerializeSlice(v.vecI64V, func(x int64) []byte {
			b := make([]byte, 8)
			serialize.PutI64(b, x)
			return b
		})...)
	case KindVecU64:
		return append([]byte{byte(KindVecU64)}, serialize.SerializeSlice(v.vecU64V, func(x uint64) []byte {
			b := make([]byte, 8)
			serialize.PutU64(b, x)
			return b
		})...)
	case KindVecF64:
		vals, _ := v.AsVecF64()
		return append([]byte{byte(KindVecF64)}, serialize.SerializeSlice(vals, func(x float64) []byte {
			b := make([]byte, 8)
			serialize.PutF64(b, x)
			return b
		})...)
	case KindVecString:
		return append([]byte{byte(KindVecString)}, serialize.SerializeSlice(v.vecStringV, serialize.SerializeString)...)
	default:
		return []byte{byte(KindNone)}
	}
}

func valueDeserialize(b []byte) (Value, error) {
	if len(b) < 1 {
		return Value{}, serialize.ErrOutOfBounds
	}
	kind := ValueKind(b[0])
	rest := b[1:]
	switch kind {
	case KindNone:
		return NewNone(), nil
	case KindBytes:
		raw, _, err := serialize.DeserializeBytes(rest)
		if err != nil {
			return Value{}, err
		}
		return NewBytes(raw), nil
	case KindI64:
		v, err := serialize.GetI64(rest)
		if err != nil {
			return Value{}, err
		}
		return NewI64(v), nil
	case KindU64:
		v, err := serialize.GetU64(rest)
		if err != nil {
			return Value{}, err
		}
		return NewU64(v), nil
	case KindF64:
		v, err := serialize.GetF64(rest)
		if err != nil {
			return Value{}, err
		}
		return NewF64(v), nil
	case KindString:
		s, _, err := serialize.DeserializeString(rest)
		if err != nil {
			return Value{}, err
		}
		return NewString(s), nil
	case KindVecI64:
		vs, _, err := serialize.DeserializeSlice(rest, func(b []byte) (int64, uint64, error) {
			v, err := serialize.GetI64(b)
			return v, 8, err
		})
		if err != nil {
			return Value{}, err
		}
		return NewVecI64(vs), nil
	case KindVecU64:
		vs, _, err := serialize.DeserializeSlice(rest, func(b []byte) (uint64, uint64, error) {
			v, err := serialize.GetU64(b)
			return v, 8, err
		})
		if err != nil {
			return Value{}, err
		}
		return NewVecU64(vs), nil
	case KindVecF64:
		vs, _, err := serialize.DeserializeSlice(rest, func(b []byte) (float64, uint64, error) {
			v, err := serialize.GetF64(b)
			return v, 8, err
		})
		if err != nil {
			return Value{}, err
		}
		return NewVecF64(vs), nil
	case KindVecString:
		vs, _, err := serialize.DeserializeSlice(rest, serialize.DeserializeString)
		if err != nil {
			return Value{}, err
		}
		return NewVecString(vs), nil
	default:
		return Value{}, serialize.ErrOutOfBounds
	}
}
