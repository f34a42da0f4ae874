// Package search implements the reusable BFS/DFS/shortest-path traversal
// core of spec.md §4.9: a pluggable Handler decides inclusion, expansion,
// and termination for every element visited, independent of what a caller
// eventually does with the result (select properties, filter by a
// condition, and so on — that lives in package db). Grounded on
// store/iterator.go's Next() (..., done bool, err error) handler shape,
// generalized from "emit one value, loop" into the Continue/Stop/Finish
// SearchControl vocabulary spec.md §4.9 requires, and cross-checked
// against the traversal vocabulary in the reference file
// 372d2b5b_agentic-research-mache__internal-graph-graph.go.go.
package search

import (
	"github.com/latticedb/lattice/bitset"
	"github.com/latticedb/lattice/graph"
)

// Algorithm selects which adjacency a step follows and in what order the
// frontier is drained.
type Algorithm int

const (
	BreadthFirstForward Algorithm = iota
	BreadthFirstReverse
	DepthFirstForward
	DepthFirstReverse
)

// controlKind is the SearchControl discriminant of spec.md §4.9.
type controlKind int

const (
	kindContinue controlKind = iota
	kindStop
	kindFinish
)

// Control is the result a Handler returns for each visited element:
// whether to include it in the result set, and whether to keep expanding
// neighbors, stop at this element, or terminate the whole search.
type Control struct {
	kind    controlKind
	Include bool
}

// Continue includes the element (if requested) and expands its neighbors.
func Continue(include bool) Control { return Control{kind: kindContinue, Include: include} }

// Stop includes the element (if requested) but does not expand it.
func Stop(include bool) Control { return Control{kind: kindStop, Include: include} }

// Finish includes the element (if requested) and terminates the search
// immediately, regardless of what remains in the frontier.
func Finish(include bool) Control { return Control{kind: kindFinish, Include: include} }

// Handler is invoked once per visited element, in the order the strategy
// discovers them, receiving the element's graph index and its distance
// from the origin.
type Handler interface {
	Handle(idx graph.Index, distance uint64) (Control, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(idx graph.Index, distance uint64) (Control, error)

func (f HandlerFunc) Handle(idx graph.Index, distance uint64) (Control, error) { return f(idx, distance) }

type frontierItem struct {
	idx      graph.Index
	distance uint64
}

// frontier is a double-ended queue used as a FIFO (BFS) or LIFO (DFS)
// depending on which end Run pops from.
type frontier struct {
	items []frontierItem
}

func (f *frontier) pushBack(it frontierItem)  { f.items = append(f.items, it) }
func (f *frontier) empty() bool               { return len(f.items) == 0 }
func (f *frontier) popFront() frontierItem {
	it := f.items[0]
	f.items = f.items[1:]
	return it
}
func (f *frontier) popBack() frontierItem {
	it := f.items[len(f.items)-1]
	f.items = f.items[:len(f.items)-1]
	return it
}

func (a Algorithm) isDepthFirst() bool {
	return a == DepthFirstForward || a == DepthFirstReverse
}

func (a Algorithm) isReverse() bool {
	return a == BreadthFirstReverse || a == DepthFirstReverse
}

// neighbors returns the elements reachable in one step from idx following
// the algorithm's direction: a node expands to its incident edges, an edge
// expands to its other endpoint node.
func neighbors(g *graph.Graph, algo Algorithm, idx graph.Index) ([]graph.Index, error) {
	reverse := algo.isReverse()
	if idx.IsNode() {
		if reverse {
			return g.IncomingEdges(idx)
		}
		return g.OutgoingEdges(idx)
	}
	// idx is an edge: step to the node at its far end.
	var node graph.Index
	var err error
	if reverse {
		node, err = g.From(idx)
	} else {
		node, err = g.To(idx)
	}
	if err != nil {
		return nil, err
	}
	return []graph.Index{node}, nil
}

// Run walks g starting at origin using algo, calling handler for every
// element reached and returning those Control reported as Include, in
// visitation order. Every search over a finite graph terminates: the
// visited BitSet ensures each element is handled at most once.
func Run(g *graph.Graph, algo Algorithm, origin graph.Index, handler Handler) ([]graph.Index, error) {
	visited := bitset.New()
	f := &frontier{}
	f.pushBack(frontierItem{idx: origin, distance: 0})

	var result []graph.Index
	for !f.empty() {
		var it frontierItem
		if algo.isDepthFirst() {
			it = f.popBack()
		} else {
			it = f.popFront()
		}
		if visited.TestAndSet(it.idx.Slot()) {
			continue
		}

		ctrl, err := handler.Handle(it.idx, it.distance)
		if err != nil {
			return nil, err
		}
		if ctrl.Include {
			result = append(result, it.idx)
		}
		if ctrl.kind == kindFinish {
			return result, nil
		}
		if ctrl.kind == kindStop {
			continue
		}

		next, err := neighbors(g, algo, it.idx)
		if err != nil {
			return nil, err
		}
		for _, n := range next {
			if !visited.Contains(n.Slot()) {
				f.pushBack(frontierItem{idx: n, distance: it.distance + 1})
			}
		}
	}
	return result, nil
}

// Elements applies handler to every live graph element in ascending
// absolute-index order, with distance set to the element's rank (its
// position in that ascending enumeration), per spec.md §4.9's "element
// iteration" search mode.
func Elements(g *graph.Graph, handler Handler) ([]graph.Index, error) {
	var result []graph.Index
	var rank uint64
	var handlerErr error
	finished := false
	err := g.Iter(func(idx graph.Index) bool {
		ctrl, err := handler.Handle(idx, rank)
		if err != nil {
			handlerErr = err
			return false
		}
		rank++
		if ctrl.Include {
			result = append(result, idx)
		}
		if ctrl.kind == kindFinish {
			finished = true
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if handlerErr != nil {
		return nil, handlerErr
	}
	_ = finished
	return result, nil
}
