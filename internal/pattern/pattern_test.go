package pattern_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orneryd/sqlitegraph/internal/gstore"
	"github.com/orneryd/sqlitegraph/internal/gstore/sqlengine"
	"github.com/orneryd/sqlitegraph/internal/pattern"
)

// TestCallsUsesPattern mirrors spec.md Scenario 4's graph shape: node 1
// --CALLS--> node 2 --USES--> node 3. A two-leg pattern should yield the
// single sequence [1,2,3].
func TestCallsUsesPattern(t *testing.T) {
	e, err := sqlengine.Open(t.TempDir()+"/graph.db", sqlengine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	n1, err := e.InsertNode(gstore.NodeSpec{Kind: "Fn", Name: "a"})
	require.NoError(t, err)
	n2, err := e.InsertNode(gstore.NodeSpec{Kind: "Fn", Name: "b"})
	require.NoError(t, err)
	n3, err := e.InsertNode(gstore.NodeSpec{Kind: "Fn", Name: "c"})
	require.NoError(t, err)
	_, err = e.InsertEdge(gstore.EdgeSpec{From: n1, To: n2, EdgeType: "CALLS"})
	require.NoError(t, err)
	_, err = e.InsertEdge(gstore.EdgeSpec{From: n2, To: n3, EdgeType: "USES"})
	require.NoError(t, err)

	p := gstore.Pattern{
		Legs: []gstore.Leg{
			{Direction: gstore.Outgoing, EdgeType: "CALLS"},
			{Direction: gstore.Outgoing, EdgeType: "USES"},
		},
	}
	results, err := e.PatternSearch(n1, p)
	require.NoError(t, err)
	require.Equal(t, [][]gstore.NodeID{{n1, n2, n3}}, results)
}

func TestPatternWithNoLegsMatchesStartOnly(t *testing.T) {
	e, err := sqlengine.Open(t.TempDir()+"/graph.db", sqlengine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	n1, err := e.InsertNode(gstore.NodeSpec{Kind: "Module", Name: "core"})
	require.NoError(t, err)

	results, err := e.PatternSearch(n1, gstore.Pattern{})
	require.NoError(t, err)
	require.Equal(t, [][]gstore.NodeID{{n1}}, results)
}

func TestPatternKindFilterPrunesWrongKind(t *testing.T) {
	e, err := sqlengine.Open(t.TempDir()+"/graph.db", sqlengine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	a, err := e.InsertNode(gstore.NodeSpec{Kind: "Fn", Name: "a"})
	require.NoError(t, err)
	b, err := e.InsertNode(gstore.NodeSpec{Kind: "Fn", Name: "b"})
	require.NoError(t, err)
	c, err := e.InsertNode(gstore.NodeSpec{Kind: "Module", Name: "c"})
	require.NoError(t, err)
	_, err = e.InsertEdge(gstore.EdgeSpec{From: a, To: b, EdgeType: "CALLS"})
	require.NoError(t, err)
	_, err = e.InsertEdge(gstore.EdgeSpec{From: a, To: c, EdgeType: "CALLS"})
	require.NoError(t, err)

	p := gstore.Pattern{
		Legs: []gstore.Leg{
			{Direction: gstore.Outgoing, EdgeType: "CALLS", Next: gstore.Constraint{Kind: "Fn"}},
		},
	}
	results, err := pattern.Search(e, a, p, nil)
	require.NoError(t, err)
	require.Equal(t, [][]gstore.NodeID{{a, b}}, results)
}
