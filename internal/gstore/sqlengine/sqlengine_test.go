package sqlengine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orneryd/sqlitegraph/internal/gstore"
	"github.com/orneryd/sqlitegraph/internal/gstore/sqlengine"
	"github.com/orneryd/sqlitegraph/internal/traverse"
)

func openTestEngine(t *testing.T) *sqlengine.Engine {
	t.Helper()
	e, err := sqlengine.Open(t.TempDir()+"/graph.db", sqlengine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestInsertAndGetNode(t *testing.T) {
	e := openTestEngine(t)

	id, err := e.InsertNode(gstore.NodeSpec{Kind: "Module", Name: "core"})
	require.NoError(t, err)
	require.Equal(t, gstore.NodeID(1), id)

	node, err := e.GetNode(id)
	require.NoError(t, err)
	require.Equal(t, "Module", node.Kind)
	require.Equal(t, "core", node.Name)

	_, err = e.GetNode(999)
	require.ErrorIs(t, err, gstore.ErrNotFound)
}

func TestInsertNodeRejectsEmptyFields(t *testing.T) {
	e := openTestEngine(t)
	_, err := e.InsertNode(gstore.NodeSpec{Kind: "", Name: "x"})
	require.ErrorIs(t, err, gstore.ErrInvalidInput)
}

func TestLinearChainTraversal(t *testing.T) {
	e := openTestEngine(t)

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

	bfs, err := traverse.BFS(e, a, 2)
	require.NoError(t, err)
	require.Equal(t, []gstore.NodeID{a, b, c}, bfs)

	path, ok, err := traverse.ShortestPath(e, a, c)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []gstore.NodeID{a, b, c}, path)

	out, in, err := e.NodeDegree(b)
	require.NoError(t, err)
	require.Equal(t, 1, out)
	require.Equal(t, 1, in)
}

func TestNodeDegreeAbsentIsZeroZero(t *testing.T) {
	e := openTestEngine(t)
	out, in, err := e.NodeDegree(42)
	require.NoError(t, err)
	require.Equal(t, 0, out)
	require.Equal(t, 0, in)
}

func TestSchemaVersionSeededOnCreate(t *testing.T) {
	e := openTestEngine(t)
	v, err := e.SchemaVersion()
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestOrphanEdgeViaDirectTableWrite(t *testing.T) {
	e := openTestEngine(t)
	a, err := e.InsertNode(gstore.NodeSpec{Kind: "N", Name: "a"})
	require.NoError(t, err)

	_, err = e.DB().Exec(`INSERT INTO graph_edges(from_id, to_id, edge_type, data) VALUES (?, ?, ?, '{}')`, int64(a), 999, "REFERS")
	require.NoError(t, err)

	edges, err := e.AllEdges()
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.EqualValues(t, 999, edges[0].Target)
}

// TestSnapshotIsolatesReaderFromConcurrentMutation is spec.md invariant 8:
// a reader holding a snapshot handle while N mutations occur observes the
// pre-mutation state for every traversal.
func TestSnapshotIsolatesReaderFromConcurrentMutation(t *testing.T) {
	e := openTestEngine(t)
	a, err := e.InsertNode(gstore.NodeSpec{Kind: "N", Name: "a"})
	require.NoError(t, err)
	b, err := e.InsertNode(gstore.NodeSpec{Kind: "N", Name: "b"})
	require.NoError(t, err)
	c, err := e.InsertNode(gstore.NodeSpec{Kind: "N", Name: "c"})
	require.NoError(t, err)

	_, err = e.InsertEdge(gstore.EdgeSpec{From: a, To: b, EdgeType: "CALLS"})
	require.NoError(t, err)

	held := e.Snapshot()
	require.Equal(t, []gstore.NodeID{b}, held.Outgoing[a])

	_, err = e.InsertEdge(gstore.EdgeSpec{From: a, To: c, EdgeType: "CALLS"})
	require.NoError(t, err)
	_, err = e.InsertEdge(gstore.EdgeSpec{From: b, To: c, EdgeType: "CALLS"})
	require.NoError(t, err)

	require.Equal(t, []gstore.NodeID{b}, held.Outgoing[a], "a handle taken before the mutations must not observe them")

	fresh := e.Snapshot()
	require.Equal(t, []gstore.NodeID{b, c}, fresh.Outgoing[a])
	require.Equal(t, []gstore.NodeID{c}, fresh.Outgoing[b])
}
