// Package graph implements the doubly linked incidence-list graph of
// spec.md §4.8 on top of four parallel StorageVec[int64] vectors,
// supporting O(1) node/edge insertion and O(degree) traversal. Grounded
// on gsfa/linkedlog/linked-log.go's per-key appended offset list (there:
// a growable list of transaction offsets threaded per address; here:
// a mutable, free-list-backed doubly linked list of edge ids threaded per
// node), adapted from append-only to support O(1) removal.
package graph

import (
	"github.com/latticedb/lattice/collections"
	"github.com/latticedb/lattice/storage"
)

// Roots is the set of storage indexes needed to reopen a Graph.
type Roots struct {
	From, To, FromMeta, ToMeta storage.Index
}

// Graph is the node/edge incidence structure. Node slots and edge slots
// are drawn from two independent free lists threaded through the same
// four vectors (a slot's kind, once assigned, never changes), per
// spec.md §4.8's single signed index space.
type Graph struct {
	s        *storage.Storage
	from     *collections.StorageVec[int64Elem] // node: outgoing-edge head (<=0); edge: src node id (>0 when alive, 0 when free)
	to       *collections.StorageVec[int64Elem] // node: incoming-edge head (<=0); edge: dst node id
	fromMeta *collections.StorageVec[int64Elem] // node: 1 alive / 0 dead; edge: next outgoing edge in src's list
	toMeta   *collections.StorageVec[int64Elem] // node: next free node slot when dead; edge: next incoming edge in dst's list, or next free edge slot when dead
}

// New creates an empty graph. Slot 0 is reserved for header bookkeeping:
// from[0]=nodeCount, to[0]=edgeCount, fromMeta[0]=freeNodeHead,
// toMeta[0]=freeEdgeHead.
func New(s *storage.Storage) (*Graph, error) {
	from, err := collections.NewStorageVec[int64Elem](s, 8, decodeInt64Elem)
	if err != nil {
		return nil, err
	}
	to, err := collections.NewStorageVec[int64Elem](s, 8, decodeInt64Elem)
	if err != nil {
		return nil, err
	}
	fromMeta, err := collections.NewStorageVec[int64Elem](s, 8, decodeInt64Elem)
	if err != nil {
		return nil, err
	}
	toMeta, err := collections.NewStorageVec[int64Elem](s, 8, decodeInt64Elem)
	if err != nil {
		return nil, err
	}
	g := &Graph{s: s, from: from, to: to, fromMeta: fromMeta, toMeta: toMeta}
	for _, v := range []*collections.StorageVec[int64Elem]{from, to, fromMeta, toMeta} {
		if err := v.Push(0); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Open attaches to a graph previously created at roots.
func Open(s *storage.Storage, roots Roots) *Graph {
	return &Graph{
		s:        s,
		from:     collections.OpenStorageVec[int64Elem](s, roots.From, 8, decodeInt64Elem),
		to:       collections.OpenStorageVec[int64Elem](s, roots.To, 8, decodeInt64Elem),
		fromMeta: collections.OpenStorageVec[int64Elem](s, roots.FromMeta, 8, decodeInt64Elem),
		toMeta:   collections.OpenStorageVec[int64Elem](s, roots.ToMeta, 8, decodeInt64Elem),
	}
}

// Roots returns the storage indexes needed to reopen this graph.
func (g *Graph) Roots() Roots {
	return Roots{From: g.from.Index(), To: g.to.Index(), FromMeta: g.fromMeta.Index(), ToMeta: g.toMeta.Index()}
}

func (g *Graph) length() (uint64, error) { return g.from.Len() }

func (g *Graph) getFrom(i uint64) (int64, error) { v, err := g.from.Value(i); return int64(v), err }
func (g *Graph) getTo(i uint64) (int64, error)   { v, err := g.to.Value(i); return int64(v), err }
func (g *Graph) getFromMeta(i uint64) (int64, error) {
	v, err := g.fromMeta.Value(i)
	return int64(v), err
}
func (g *Graph) getToMeta(i uint64) (int64, error) { v, err := g.toMeta.Value(i); return int64(v), err }

func (g *Graph) setFrom(i uint64, v int64) error     { return g.from.SetValue(i, int64Elem(v)) }
func (g *Graph) setTo(i uint64, v int64) error       { return g.to.SetValue(i, int64Elem(v)) }
func (g *Graph) setFromMeta(i uint64, v int64) error { return g.fromMeta.SetValue(i, int64Elem(v)) }
func (g *Graph) setToMeta(i uint64, v int64) error   { return g.toMeta.SetValue(i, int64Elem(v)) }

// NodeCount returns the number of live nodes.
func (g *Graph) NodeCount() (int64, error) { return g.getFrom(0) }

// EdgeCount returns the number of live edges.
func (g *Graph) EdgeCount() (int64, error) { return g.getTo(0) }

func (g *Graph) setNodeCount(n int64) error { return g.setFrom(0, n) }
func (g *Graph) setEdgeCount(n int64) error { return g.setTo(0, n) }

func (g *Graph) freeNodeHead() (uint64, error) {
	v, err := g.getFromMeta(0)
	return uint64(v), err
}
func (g *Graph) setFreeNodeHead(slot uint64) error { return g.setFromMeta(0, int64(slot)) }

func (g *Graph) freeEdgeHead() (uint64, error) {
	v, err := g.getToMeta(0)
	return uint64(v), err
}
func (g *Graph) setFreeEdgeHead(slot uint64) error { return g.setToMeta(0, int64(slot)) }

func (g *Graph) pushSlot() (uint64, error) {
	for _, v := range []*collections.StorageVec[int64Elem]{g.from, g.to, g.fromMeta, g.toMeta} {
		if err := v.Push(0); err != nil {
			return 0, err
		}
	}
	n, err := g.length()
	if err != nil {
		return 0, err
	}
	return n - 1, nil
}

func (g *Graph) allocateNodeSlot() (uint64, error) {
	head, err := g.freeNodeHead()
	if err != nil {
		return 0, err
	}
	if head != 0 {
		next, err := g.getToMeta(head)
		if err != nil {
			return 0, err
		}
		if err := g.setFreeNodeHead(uint64(next)); err != nil {
			return 0, err
		}
		return head, nil
	}
	return g.pushSlot()
}

func (g *Graph) allocateEdgeSlot() (uint64, error) {
	head, err := g.freeEdgeHead()
	if err != nil {
		return 0, err
	}
	if head != 0 {
		next, err := g.getToMeta(head)
		if err != nil {
			return 0, err
		}
		if err := g.setFreeEdgeHead(uint64(next)); err != nil {
			return 0, err
		}
		return head, nil
	}
	return g.pushSlot()
}

// IsLiveNode reports whether idx names a currently live node.
func (g *Graph) IsLiveNode(idx Index) (bool, error) {
	if !idx.IsNode() {
		return false, nil
	}
	n, err := g.length()
	if err != nil {
		return false, err
	}
	slot := idx.slot()
	if slot >= n {
		return false, nil
	}
	alive, err := g.getFromMeta(slot)
	if err != nil {
		return false, err
	}
	return alive == 1, nil
}

// IsLiveEdge reports whether idx names a currently live edge.
func (g *Graph) IsLiveEdge(idx Index) (bool, error) {
	if !idx.IsEdge() {
		return false, nil
	}
	n, err := g.length()
	if err != nil {
		return false, err
	}
	slot := idx.slot()
	if slot >= n {
		return false, nil
	}
	src, err := g.getFrom(slot)
	if err != nil {
		return false, err
	}
	return src > 0, nil
}

// InsertNode allocates a new node and returns its positive id.
func (g *Graph) InsertNode() (Index, error) {
	slot, err := g.allocateNodeSlot()
	if err != nil {
		return 0, err
	}
	if err := g.setFrom(slot, 0); err != nil {
		return 0, err
	}
	if err := g.setTo(slot, 0); err != nil {
		return 0, err
	}
	if err := g.setFromMeta(slot, 1); err != nil {
		return 0, err
	}
	if err := g.setToMeta(slot, 0); err != nil {
		return 0, err
	}
	count, err := g.NodeCount()
	if err != nil {
		return 0, err
	}
	if err := g.setNodeCount(count + 1); err != nil {
		return 0, err
	}
	return Index(slot), nil
}

// InsertEdge allocates a new edge from `from` to `to`, both of which must
// already be live nodes, splicing it into both incidence lists.
func (g *Graph) InsertEdge(from, to Index) (Index, error) {
	liveFrom, err := g.IsLiveNode(from)
	if err != nil {
		return 0, err
	}
	liveTo, err := g.IsLiveNode(to)
	if err != nil {
		return 0, err
	}
	if !liveFrom || !liveTo {
		return 0, storage.NewError(storage.ErrIndexNotFound, "insert_edge: endpoint is not a live node")
	}

	slot, err := g.allocateEdgeSlot()
	if err != nil {
		return 0, err
	}
	fromSlot, toSlot := from.slot(), to.slot()

	oldOut, err := g.getFrom(fromSlot)
	if err != nil {
		return 0, err
	}
	oldIn, err := g.getTo(toSlot)
	if err != nil {
		return 0, err
	}

	if err := g.setFrom(slot, int64(from)); err != nil {
		return 0, err
	}
	if err := g.setTo(slot, int64(to)); err != nil {
		return 0, err
	}
	if err := g.setFromMeta(slot, oldOut); err != nil {
		return 0, err
	}
	if err := g.setToMeta(slot, oldIn); err != nil {
		return 0, err
	}

	newEdgeID := -int64(slot)
	if err := g.setFrom(fromSlot, newEdgeID); err != nil {
		return 0, err
	}
	if err := g.setTo(toSlot, newEdgeID); err != nil {
		return 0, err
	}

	count, err := g.EdgeCount()
	if err != nil {
		return 0, err
	}
	if err := g.setEdgeCount(count + 1); err != nil {
		return 0, err
	}
	return Index(newEdgeID), nil
}

// unspliceOutgoing removes edgeID from node fromSlot's outgoing list.
func (g *Graph) unspliceOutgoing(fromSlot uint64, edgeID int64) error {
	head, err := g.getFrom(fromSlot)
	if err != nil {
		return err
	}
	if head == edgeID {
		next, err := g.getFromMeta(uint64(-edgeID))
		if err != nil {
			return err
		}
		return g.setFrom(fromSlot, next)
	}
	prev := uint64(-head)
	for {
		next, err := g.getFromMeta(prev)
		if err != nil {
			return err
		}
		if next == edgeID {
			after, err := g.getFromMeta(uint64(-edgeID))
			if err != nil {
				return err
			}
			return g.setFromMeta(prev, after)
		}
		prev = uint64(-next)
	}
}

// unspliceIncoming removes edgeID from node toSlot's incoming list.
func (g *Graph) unspliceIncoming(toSlot uint64, edgeID int64) error {
	head, err := g.getTo(toSlot)
	if err != nil {
		return err
	}
	if head == edgeID {
		next, err := g.getToMeta(uint64(-edgeID))
		if err != nil {
			return err
		}
		return g.setTo(toSlot, next)
	}
	prev := uint64(-head)
	for {
		next, err := g.getToMeta(prev)
		if err != nil {
			return err
		}
		if next == edgeID {
			after, err := g.getToMeta(uint64(-edgeID))
			if err != nil {
				return err
			}
			return g.setToMeta(prev, after)
		}
		prev = uint64(-next)
	}
}

// RemoveEdge unsplices and frees edge idx; a no-op if idx is already dead.
func (g *Graph) RemoveEdge(idx Index) error {
	live, err := g.IsLiveEdge(idx)
	if err != nil || !live {
		return err
	}
	slot := idx.slot()
	srcID, err := g.getFrom(slot)
	if err != nil {
		return err
	}
	dstID, err := g.getTo(slot)
	if err != nil {
		return err
	}
	edgeID := int64(idx)
	if err := g.unspliceOutgoing(uint64(srcID), edgeID); err != nil {
		return err
	}
	if err := g.unspliceIncoming(uint64(dstID), edgeID); err != nil {
		return err
	}

	freeHead, err := g.freeEdgeHead()
	if err != nil {
		return err
	}
	if err := g.setFrom(slot, 0); err != nil {
		return err
	}
	if err := g.setToMeta(slot, int64(freeHead)); err != nil {
		return err
	}
	if err := g.setFreeEdgeHead(slot); err != nil {
		return err
	}
	count, err := g.EdgeCount()
	if err != nil {
		return err
	}
	return g.setEdgeCount(count - 1)
}

// OutgoingEdges returns node idx's outgoing edge ids, LIFO relative to
// insertion order (spec.md §4.8).
func (g *Graph) OutgoingEdges(idx Index) ([]Index, error) {
	live, err := g.IsLiveNode(idx)
	if err != nil || !live {
		return nil, err
	}
	var out []Index
	cur, err := g.getFrom(idx.slot())
	if err != nil {
		return nil, err
	}
	for cur != 0 {
		out = append(out, Index(cur))
		cur, err = g.getFromMeta(uint64(-cur))
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// IncomingEdges returns node idx's incoming edge ids, LIFO relative to
// insertion order.
func (g *Graph) IncomingEdges(idx Index) ([]Index, error) {
	live, err := g.IsLiveNode(idx)
	if err != nil || !live {
		return nil, err
	}
	var out []Index
	cur, err := g.getTo(idx.slot())
	if err != nil {
		return nil, err
	}
	for cur != 0 {
		out = append(out, Index(cur))
		cur, err = g.getToMeta(uint64(-cur))
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RemoveNode detaches and removes every incident edge, then frees idx; a
// no-op if idx is already dead.
func (g *Graph) RemoveNode(idx Index) error {
	live, err := g.IsLiveNode(idx)
	if err != nil || !live {
		return err
	}
	out, err := g.OutgoingEdges(idx)
	if err != nil {
		return err
	}
	for _, e := range out {
		if err := g.RemoveEdge(e); err != nil {
			return err
		}
	}
	in, err := g.IncomingEdges(idx)
	if err != nil {
		return err
	}
	for _, e := range in {
		if err := g.RemoveEdge(e); err != nil {
			return err
		}
	}

	slot := idx.slot()
	if err := g.setFromMeta(slot, 0); err != nil {
		return err
	}
	freeHead, err := g.freeNodeHead()
	if err != nil {
		return err
	}
	if err := g.setToMeta(slot, int64(freeHead)); err != nil {
		return err
	}
	if err := g.setFreeNodeHead(slot); err != nil {
		return err
	}
	count, err := g.NodeCount()
	if err != nil {
		return err
	}
	return g.setNodeCount(count - 1)
}

// From returns edge idx's source node id.
func (g *Graph) From(idx Index) (Index, error) {
	live, err := g.IsLiveEdge(idx)
	if err != nil {
		return 0, err
	}
	if !live {
		return 0, storage.IndexNotFoundError(storage.Index(idx.slot()))
	}
	v, err := g.getFrom(idx.slot())
	return Index(v), err
}

// To returns edge idx's destination node id.
func (g *Graph) To(idx Index) (Index, error) {
	live, err := g.IsLiveEdge(idx)
	if err != nil {
		return 0, err
	}
	if !live {
		return 0, storage.IndexNotFoundError(storage.Index(idx.slot()))
	}
	v, err := g.getTo(idx.slot())
	return Index(v), err
}

// Iter calls fn for every live graph index (nodes and edges interleaved
// by ascending slot), stopping early if fn returns false.
func (g *Graph) Iter(fn func(idx Index) bool) error {
	n, err := g.length()
	if err != nil {
		return err
	}
	for i := uint64(1); i < n; i++ {
		alive, err := g.getFromMeta(i)
		if err != nil {
			return err
		}
		if alive == 1 {
			if !fn(Index(i)) {
				return nil
			}
			continue
		}
		src, err := g.getFrom(i)
		if err != nil {
			return err
		}
		if src > 0 {
			if !fn(Index(-int64(i))) {
				return nil
			}
		}
	}
	return nil
}
