package search_test

import (
	"path/filepath"
	"testing"

	"github.com/latticedb/lattice/graph"
	"github.com/latticedb/lattice/search"
	"github.com/latticedb/lattice/storage"
	"github.com/stretchr/testify/require"
)

func openGraph(t *testing.T) *graph.Graph {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	g, err := graph.New(s)
	require.NoError(t, err)
	return g
}

// chain builds n1 -> n2 -> n3 -> ... -> nN and returns the node indices.
func chain(t *testing.T, g *graph.Graph, n int) []graph.Index {
	t.Helper()
	nodes := make([]graph.Index, n)
	for i := 0; i < n; i++ {
		id, err := g.InsertNode()
		require.NoError(t, err)
		nodes[i] = id
	}
	for i := 0; i+1 < n; i++ {
		_, err := g.InsertEdge(nodes[i], nodes[i+1])
		require.NoError(t, err)
	}
	return nodes
}

func includeAll() search.Handler {
	return search.HandlerFunc(func(idx graph.Index, distance uint64) (search.Control, error) {
		return search.Continue(true), nil
	})
}

func TestBFSForwardVisitsEachElementOnce(t *testing.T) {
	g := openGraph(t)
	nodes := chain(t, g, 4)

	result, err := search.Run(g, search.BreadthFirstForward, nodes[0], includeAll())
	require.NoError(t, err)
	require.Len(t, result, 7) // 4 nodes + 3 edges
}

func TestBFSReverseFollowsIncomingEdges(t *testing.T) {
	g := openGraph(t)
	nodes := chain(t, g, 3)

	result, err := search.Run(g, search.BreadthFirstReverse, nodes[2], includeAll())
	require.NoError(t, err)
	require.Contains(t, result, nodes[0])
	require.Contains(t, result, nodes[1])
}

func TestStopDoesNotExpand(t *testing.T) {
	g := openGraph(t)
	nodes := chain(t, g, 3)

	handler := search.HandlerFunc(func(idx graph.Index, distance uint64) (search.Control, error) {
		if idx == nodes[0] {
			return search.Stop(true), nil
		}
		return search.Continue(true), nil
	})
	result, err := search.Run(g, search.BreadthFirstForward, nodes[0], handler)
	require.NoError(t, err)
	require.Equal(t, []graph.Index{nodes[0]}, result)
}

func TestFinishTerminatesImmediately(t *testing.T) {
	g := openGraph(t)
	nodes := chain(t, g, 5)

	var seen []graph.Index
	handler := search.HandlerFunc(func(idx graph.Index, distance uint64) (search.Control, error) {
		seen = append(seen, idx)
		if idx == nodes[1] {
			return search.Finish(true), nil
		}
		return search.Continue(false), nil
	})
	result, err := search.Run(g, search.BreadthFirstForward, nodes[0], handler)
	require.NoError(t, err)
	require.Equal(t, []graph.Index{nodes[1]}, result)
	require.NotContains(t, seen, nodes[3])
	require.NotContains(t, seen, nodes[4])
}

func TestElementsIteratesAscendingOrder(t *testing.T) {
	g := openGraph(t)
	chain(t, g, 3)

	var seen []graph.Index
	handler := search.HandlerFunc(func(idx graph.Index, distance uint64) (search.Control, error) {
		seen = append(seen, idx)
		return search.Continue(true), nil
	})
	result, err := search.Elements(g, handler)
	require.NoError(t, err)
	require.Equal(t, seen, result)
	require.Len(t, result, 5) // 3 nodes + 2 edges
	for i := 1; i < len(result); i++ {
		require.Less(t, result[i-1].Slot(), result[i].Slot())
	}
}

type uniformCost struct{ cost float64 }

func (c uniformCost) EdgeCost(graph.Index) (float64, error) { return c.cost, nil }
func (c uniformCost) NodeCost(graph.Index) (float64, error) { return c.cost, nil }

func TestShortestPathFindsDirectEdge(t *testing.T) {
	g := openGraph(t)
	n1, _ := g.InsertNode()
	n2, _ := g.InsertNode()
	n3, _ := g.InsertNode()
	n4, _ := g.InsertNode()
	_, err := g.InsertEdge(n1, n2)
	require.NoError(t, err)
	_, err = g.InsertEdge(n2, n3)
	require.NoError(t, err)
	_, err = g.InsertEdge(n3, n4)
	require.NoError(t, err)
	e14, err := g.InsertEdge(n1, n4)
	require.NoError(t, err)

	path, err := search.ShortestPath(g, n1, n4, uniformCost{cost: 1})
	require.NoError(t, err)
	require.Equal(t, []graph.Index{n1, e14, n4}, path)
}

func TestShortestPathPrefersFewerElementsOnEqualCost(t *testing.T) {
	g := openGraph(t)
	n1, _ := g.InsertNode()
	n2, _ := g.InsertNode()
	n3, _ := g.InsertNode()
	eDirect, err := g.InsertEdge(n1, n2)
	require.NoError(t, err)
	eToDetour, err := g.InsertEdge(n1, n3)
	require.NoError(t, err)
	eFromDetour, err := g.InsertEdge(n3, n2)
	require.NoError(t, err)

	// eDirect (n1->n2) costs 5+1=6 total. The detour through n3 costs
	// 2+1 + 2+1 = 6 too: same total cost, but twice the element count.
	// The shorter, direct path must be the one returned.
	costs := map[graph.Index]float64{eDirect: 5, eToDetour: 2, eFromDetour: 2}
	ph := costFn{
		edge: func(e graph.Index) (float64, error) { return costs[e], nil },
		node: func(graph.Index) (float64, error) { return 1, nil },
	}
	path, err := search.ShortestPath(g, n1, n2, ph)
	require.NoError(t, err)
	require.Equal(t, []graph.Index{n1, eDirect, n2}, path)
}

func TestShortestPathUnreachableReturnsEmpty(t *testing.T) {
	g := openGraph(t)
	n1, _ := g.InsertNode()
	n2, _ := g.InsertNode()

	path, err := search.ShortestPath(g, n1, n2, uniformCost{cost: 1})
	require.NoError(t, err)
	require.Empty(t, path)
}

func TestShortestPathForbiddenCostSkipsEdge(t *testing.T) {
	g := openGraph(t)
	n1, _ := g.InsertNode()
	n2, _ := g.InsertNode()
	n3, _ := g.InsertNode()
	eDirect, err := g.InsertEdge(n1, n2)
	require.NoError(t, err)
	_, err = g.InsertEdge(n1, n3)
	require.NoError(t, err)
	eLong, err := g.InsertEdge(n3, n2)
	require.NoError(t, err)

	costs := map[graph.Index]float64{eDirect: 0, eLong: 1}
	ph := costFn{edge: func(e graph.Index) (float64, error) { return costs[e], nil }, node: func(graph.Index) (float64, error) { return 1, nil }}
	path, err := search.ShortestPath(g, n1, n2, ph)
	require.NoError(t, err)
	require.NotContains(t, path, eDirect)
}

type costFn struct {
	edge func(graph.Index) (float64, error)
	node func(graph.Index) (float64, error)
}

func (c costFn) EdgeCost(e graph.Index) (float64, error) { return c.edge(e) }
func (c costFn) NodeCost(n graph.Index) (float64, error) { return c.node(n) }
