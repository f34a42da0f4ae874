package search

import (
	"container/heap"

	"github.com/latticedb/lattice/bitset"
	"github.com/latticedb/lattice/graph"
)

// PathHandler supplies per-step costs for ShortestPath, per spec.md §4.9:
// a cost of 0 means the edge or node is forbidden (never traversed).
type PathHandler interface {
	EdgeCost(edge graph.Index) (float64, error)
	NodeCost(node graph.Index) (float64, error)
}

// partialPath is one entry of the shortest-path priority queue: the
// sequence of graph indices visited so far (alternating node, edge, node,
// ...), its accumulated cost, and the tail node it currently ends at.
type partialPath struct {
	elems []graph.Index
	cost  float64
	tail  graph.Index
}

// pathQueue orders partial paths by (totalCost ASC, length ASC), per
// spec.md §4.9's A*-ish tie-breaking rule: among equally cheap paths,
// prefer the one with fewer elements.
type pathQueue []partialPath

func (q pathQueue) Len() int { return len(q) }
func (q pathQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	return len(q[i].elems) < len(q[j].elems)
}
func (q pathQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *pathQueue) Push(x any)        { *q = append(*q, x.(partialPath)) }
func (q *pathQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// ShortestPath finds the minimum-cost path from `from` to `to` using a
// priority-queue expansion over outgoing edges, per spec.md §4.9. Returns
// the path's nodes and edges in traversal order, or an empty slice if `to`
// is unreachable through edges and nodes of non-zero cost (the cost of
// `from` itself is never queried).
func ShortestPath(g *graph.Graph, from, to graph.Index, h PathHandler) ([]graph.Index, error) {
	if from == to {
		return []graph.Index{from}, nil
	}

	pq := &pathQueue{{elems: []graph.Index{from}, cost: 0, tail: from}}
	heap.Init(pq)
	visitedNodes := bitset.New()

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(partialPath)
		if cur.tail == to {
			return cur.elems, nil
		}
		if visitedNodes.TestAndSet(cur.tail.Slot()) {
			continue
		}

		outgoing, err := g.OutgoingEdges(cur.tail)
		if err != nil {
			return nil, err
		}
		for _, e := range outgoing {
			ecost, err := h.EdgeCost(e)
			if err != nil {
				return nil, err
			}
			if ecost == 0 {
				continue
			}
			next, err := g.To(e)
			if err != nil {
				return nil, err
			}
			if visitedNodes.Contains(next.Slot()) {
				continue
			}
			ncost, err := h.NodeCost(next)
			if err != nil {
				return nil, err
			}
			if ncost == 0 {
				continue
			}
			elems := make([]graph.Index, len(cur.elems), len(cur.elems)+2)
			copy(elems, cur.elems)
			elems = append(elems, e, next)
			heap.Push(pq, partialPath{elems: elems, cost: cur.cost + ecost + ncost, tail: next})
		}
	}
	return nil, nil
}
