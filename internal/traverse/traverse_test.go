package traverse_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orneryd/sqlitegraph/internal/gstore"
	"github.com/orneryd/sqlitegraph/internal/gstore/native"
	"github.com/orneryd/sqlitegraph/internal/traverse"
)

func linearChain(t *testing.T) gstore.Engine {
	t.Helper()
	e, err := native.Create(t.TempDir() + "/graph.sqlg")
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	a, err := e.InsertNode(gstore.NodeSpec{Kind: "Fn", Name: "a"})
	require.NoError(t, err)
	b, err := e.InsertNode(gstore.NodeSpec{Kind: "Fn", Name: "b"})
	require.NoError(t, err)
	c, err := e.InsertNode(gstore.NodeSpec{Kind: "Fn", Name: "c"})
	require.NoError(t, err)

	_, err = e.InsertEdge(gstore.EdgeSpec{From: a, To: b, EdgeType: "CALLS"})
	require.NoError(t, err)
	_, err = e.InsertEdge(gstore.EdgeSpec{From: b, To: c, EdgeType: "CALLS"})
	require.NoError(t, err)

	return e
}

func TestScenario1LinearChain(t *testing.T) {
	e := linearChain(t)

	bfs, err := traverse.BFS(e, 1, 2)
	require.NoError(t, err)
	require.Equal(t, []gstore.NodeID{1, 2, 3}, bfs)

	path, ok, err := traverse.ShortestPath(e, 1, 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []gstore.NodeID{1, 2, 3}, path)

	k1, err := traverse.KHop(e, 1, 1, gstore.Outgoing)
	require.NoError(t, err)
	require.Equal(t, []gstore.NodeID{2}, k1)

	k2, err := traverse.KHop(e, 1, 2, gstore.Outgoing)
	require.NoError(t, err)
	require.Equal(t, []gstore.NodeID{2, 3}, k2)

	in, err := e.Neighbors(2, gstore.NeighborQuery{Direction: gstore.Incoming})
	require.NoError(t, err)
	require.Equal(t, []gstore.NodeID{1}, in)
}

func TestBoundaryBehaviours(t *testing.T) {
	e := linearChain(t)

	zero, err := traverse.KHop(e, 1, 0, gstore.Outgoing)
	require.NoError(t, err)
	require.Empty(t, zero)

	bfsZero, err := traverse.BFS(e, 1, 0)
	require.NoError(t, err)
	require.Equal(t, []gstore.NodeID{1}, bfsZero)

	chainEmpty, err := traverse.ChainQuery(e, 1, nil)
	require.NoError(t, err)
	require.Equal(t, []gstore.NodeID{1}, chainEmpty)

	path, ok, err := traverse.ShortestPath(e, 1, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []gstore.NodeID{1}, path)

	_, ok, err = traverse.ShortestPath(e, 3, 1)
	require.NoError(t, err)
	require.False(t, ok)

	filtered, err := traverse.KHopFiltered(e, 1, 2, gstore.Outgoing, nil)
	require.NoError(t, err)
	require.Empty(t, filtered)
}

func TestIsolatedNode(t *testing.T) {
	e, err := native.Create(t.TempDir() + "/graph.sqlg")
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	id, err := e.InsertNode(gstore.NodeSpec{Kind: "Module", Name: "core"})
	require.NoError(t, err)

	out, in, err := e.NodeDegree(id)
	require.NoError(t, err)
	require.Equal(t, 0, out)
	require.Equal(t, 0, in)

	neighbors, err := e.Neighbors(id, gstore.NeighborQuery{Direction: gstore.Outgoing})
	require.NoError(t, err)
	require.Empty(t, neighbors)

	bfs, err := traverse.BFS(e, id, 3)
	require.NoError(t, err)
	require.Equal(t, []gstore.NodeID{id}, bfs)
}

func TestDiamond(t *testing.T) {
	e, err := native.Create(t.TempDir() + "/graph.sqlg")
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	a, _ := e.InsertNode(gstore.NodeSpec{Kind: "N", Name: "a"})
	b, _ := e.InsertNode(gstore.NodeSpec{Kind: "N", Name: "b"})
	c, _ := e.InsertNode(gstore.NodeSpec{Kind: "N", Name: "c"})
	d, _ := e.InsertNode(gstore.NodeSpec{Kind: "N", Name: "d"})

	_, err = e.InsertEdge(gstore.EdgeSpec{From: a, To: b, EdgeType: "E"})
	require.NoError(t, err)
	_, err = e.InsertEdge(gstore.EdgeSpec{From: a, To: c, EdgeType: "E"})
	require.NoError(t, err)
	_, err = e.InsertEdge(gstore.EdgeSpec{From: b, To: d, EdgeType: "E"})
	require.NoError(t, err)
	_, err = e.InsertEdge(gstore.EdgeSpec{From: c, To: d, EdgeType: "E"})
	require.NoError(t, err)

	bfs, err := traverse.BFS(e, a, 2)
	require.NoError(t, err)
	require.Equal(t, []gstore.NodeID{a, b, c, d}, bfs)

	path, ok, err := traverse.ShortestPath(e, a, d)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []gstore.NodeID{a, b, d}, path)
}
