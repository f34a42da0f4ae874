package graph_test

import (
	"path/filepath"
	"testing"

	"github.com/latticedb/lattice/graph"
	"github.com/latticedb/lattice/storage"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertNodeAndEdge(t *testing.T) {
	s := openStore(t)
	g, err := graph.New(s)
	require.NoError(t, err)

	n1, err := g.InsertNode()
	require.NoError(t, err)
	n2, err := g.InsertNode()
	require.NoError(t, err)
	require.True(t, n1.IsNode())
	require.True(t, n2.IsNode())

	e, err := g.InsertEdge(n1, n2)
	require.NoError(t, err)
	require.True(t, e.IsEdge())

	from, err := g.From(e)
	require.NoError(t, err)
	require.Equal(t, n1, from)
	to, err := g.To(e)
	require.NoError(t, err)
	require.Equal(t, n2, to)

	out, err := g.OutgoingEdges(n1)
	require.NoError(t, err)
	require.Equal(t, []graph.Index{e}, out)

	in, err := g.IncomingEdges(n2)
	require.NoError(t, err)
	require.Equal(t, []graph.Index{e}, in)
}

func TestInsertEdgeRequiresLiveNodes(t *testing.T) {
	s := openStore(t)
	g, err := graph.New(s)
	require.NoError(t, err)
	n1, err := g.InsertNode()
	require.NoError(t, err)

	_, err = g.InsertEdge(n1, graph.Index(999))
	require.Error(t, err)
}

func TestRemoveEdgeUnsplices(t *testing.T) {
	s := openStore(t)
	g, err := graph.New(s)
	require.NoError(t, err)
	n1, _ := g.InsertNode()
	n2, _ := g.InsertNode()
	e, err := g.InsertEdge(n1, n2)
	require.NoError(t, err)

	require.NoError(t, g.RemoveEdge(e))

	out, err := g.OutgoingEdges(n1)
	require.NoError(t, err)
	require.Empty(t, out)

	live, err := g.IsLiveEdge(e)
	require.NoError(t, err)
	require.False(t, live)

	count, err := g.EdgeCount()
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}

func TestRemoveNodeCascadesEdges(t *testing.T) {
	s := openStore(t)
	g, err := graph.New(s)
	require.NoError(t, err)
	n1, _ := g.InsertNode()
	n2, _ := g.InsertNode()
	e, err := g.InsertEdge(n1, n2)
	require.NoError(t, err)

	require.NoError(t, g.RemoveNode(n1))

	live, err := g.IsLiveEdge(e)
	require.NoError(t, err)
	require.False(t, live)

	liveNode, err := g.IsLiveNode(n1)
	require.NoError(t, err)
	require.False(t, liveNode)

	in, err := g.IncomingEdges(n2)
	require.NoError(t, err)
	require.Empty(t, in)
}

func TestSlotReuseAfterRemoval(t *testing.T) {
	s := openStore(t)
	g, err := graph.New(s)
	require.NoError(t, err)
	n1, _ := g.InsertNode()
	require.NoError(t, g.RemoveNode(n1))
	n2, err := g.InsertNode()
	require.NoError(t, err)
	require.Equal(t, n1, n2) // free list reused the vacated slot
}

func TestMultipleOutgoingEdgesLIFOOrder(t *testing.T) {
	s := openStore(t)
	g, err := graph.New(s)
	require.NoError(t, err)
	n1, _ := g.InsertNode()
	n2, _ := g.InsertNode()
	n3, _ := g.InsertNode()
	e1, err := g.InsertEdge(n1, n2)
	require.NoError(t, err)
	e2, err := g.InsertEdge(n1, n3)
	require.NoError(t, err)

	out, err := g.OutgoingEdges(n1)
	require.NoError(t, err)
	require.Equal(t, []graph.Index{e2, e1}, out)
}

func TestIterYieldsLiveElements(t *testing.T) {
	s := openStore(t)
	g, err := graph.New(s)
	require.NoError(t, err)
	n1, _ := g.InsertNode()
	n2, _ := g.InsertNode()
	e, err := g.InsertEdge(n1, n2)
	require.NoError(t, err)

	var seen []graph.Index
	require.NoError(t, g.Iter(func(idx graph.Index) bool {
		seen = append(seen, idx)
		return true
	}))
	require.ElementsMatch(t, []graph.Index{n1, n2, e}, seen)
}

func TestGraphRoundTripThroughRoots(t *testing.T) {
	s := openStore(t)
	g, err := graph.New(s)
	require.NoError(t, err)
	n1, _ := g.InsertNode()
	n2, _ := g.InsertNode()
	_, err = g.InsertEdge(n1, n2)
	require.NoError(t, err)
	roots := g.Roots()

	reopened := graph.Open(s, roots)
	count, err := reopened.NodeCount()
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
}
