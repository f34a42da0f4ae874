package graph

import (
	"github.com/latticedb/lattice/serialize"
)

// Index is a graph element identifier, per spec.md §3: positive values
// name a node, negative values name an edge, and the absolute value is
// the slot the element occupies in the graph's four parallel vectors.
// Index 0 is invalid/reserved.
type Index int64

// IsNode reports whether idx names a node.
func (idx Index) IsNode() bool { return idx > 0 }

// IsEdge reports whether idx names an edge.
func (idx Index) IsEdge() bool { return idx < 0 }

func (idx Index) slot() uint64 { return idx.Slot() }

// Slot returns the absolute slot this index occupies in the graph's
// parallel vectors, per spec.md §3 ("absolute value is the slot index").
// Exported so package search can key its visited BitSet by it.
func (idx Index) Slot() uint64 {
	if idx < 0 {
		return uint64(-idx)
	}
	return uint64(idx)
}

// int64Elem is the collections.VecElem wrapper around a plain int64,
// letting the graph's four bookkeeping vectors reuse collections.StorageVec.
type int64Elem int64

func (e int64Elem) Encode() []byte {
	b := make([]byte, 8)
	serialize.PutI64(b, int64(e))
	return b
}

func (e int64Elem) StorageLen() uint64 { return 8 }

func decodeInt64Elem(b []byte) (int64Elem, error) {
	v, err := serialize.GetI64(b)
	return int64Elem(v), err
}
