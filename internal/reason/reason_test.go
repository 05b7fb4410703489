package reason_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orneryd/sqlitegraph/internal/gstore"
	"github.com/orneryd/sqlitegraph/internal/gstore/sqlengine"
	"github.com/orneryd/sqlitegraph/internal/reason"
)

// TestScenario4PipelineScoresDescendingByOutgoingDegree mirrors spec.md
// Scenario 4: DSL "CALLS->USES" parsed and applied at node 1 in a graph
// where 1 --CALLS--> 2 --USES--> 3 yields pipeline nodes [1,2,3] scored
// descending by outgoing degree.
func TestScenario4PipelineScoresDescendingByOutgoingDegree(t *testing.T) {
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

	result := reason.ParseDSL("CALLS->USES")
	require.NoError(t, result.Err)
	require.NotNil(t, result.PatternQuery)

	matches, err := e.PatternSearch(n1, *result.PatternQuery)
	require.NoError(t, err)
	require.Equal(t, [][]gstore.NodeID{{n1, n2, n3}}, matches)

	pipeline := reason.Pipeline{
		{Kind: reason.StepPattern, Pattern: *result.PatternQuery},
		{Kind: reason.StepScore, ScoreWeights: reason.ScoreWeights{OutgoingDegree: 1}},
	}
	scored, err := reason.Execute(context.Background(), e, pipeline, []gstore.NodeID{n1})
	require.NoError(t, err)
	require.Len(t, scored, 3)

	nodes := make([]gstore.NodeID, len(scored))
	for i, s := range scored {
		nodes[i] = s.Node
	}
	require.Equal(t, []gstore.NodeID{n1, n2, n3}, nodes)
	require.Equal(t, 1.0, scored[0].Score)
	require.Equal(t, 1.0, scored[1].Score)
	require.Equal(t, 0.0, scored[2].Score)
}

func TestParseDSLSimpleChain(t *testing.T) {
	r := reason.ParseDSL("CALLS->USES->WRITES")
	require.NoError(t, r.Err)
	require.NotNil(t, r.PatternQuery)
	require.Len(t, r.PatternQuery.Legs, 3)
	require.Equal(t, "CALLS", r.PatternQuery.Legs[0].EdgeType)
	require.Equal(t, "WRITES", r.PatternQuery.Legs[2].EdgeType)
}

func TestParseDSLRepeatShorthand(t *testing.T) {
	r := reason.ParseDSL("CALLS*3")
	require.NoError(t, r.Err)
	require.NotNil(t, r.PatternQuery)
	require.Len(t, r.PatternQuery.Legs, 3)
	for _, leg := range r.PatternQuery.Legs {
		require.Equal(t, "CALLS", leg.EdgeType)
	}
}

func TestParseDSLNegativeRepetitionErrors(t *testing.T) {
	r := reason.ParseDSL("CALLS*-2")
	require.Error(t, r.Err)
	var perr *reason.DslParseError
	require.ErrorAs(t, r.Err, &perr)
}

func TestParseDSLKHop(t *testing.T) {
	r := reason.ParseDSL("3-hop type=Module")
	require.NoError(t, r.Err)
	require.NotNil(t, r.Subgraph)
	require.Equal(t, 3, r.Subgraph.Depth)
	require.Equal(t, "Module", r.Subgraph.NodeKind)
}

func TestParseDSLPatternFilterPipeline(t *testing.T) {
	r := reason.ParseDSL("pattern CALLS->USES filter type=Module")
	require.NoError(t, r.Err)
	require.Len(t, r.Pipeline, 2)
	require.Equal(t, reason.StepPattern, r.Pipeline[0].Kind)
	require.Equal(t, reason.StepFilter, r.Pipeline[1].Kind)
	require.Equal(t, "Module", r.Pipeline[1].FilterConstraint.Kind)
}

func TestParseDSLMultipleFilterClausesErrors(t *testing.T) {
	r := reason.ParseDSL("pattern CALLS filter type=Module filter type=Fn")
	require.Error(t, r.Err)
}

func TestParseDSLUnknownTokenErrors(t *testing.T) {
	r := reason.ParseDSL("CALLS=>USES")
	require.Error(t, r.Err)
}

func TestPipelineValidateRejectsMultipleFilters(t *testing.T) {
	p := reason.Pipeline{
		{Kind: reason.StepFilter},
		{Kind: reason.StepFilter},
	}
	require.ErrorIs(t, p.Validate(), gstore.ErrInvalidInput)
}

func TestPipelineValidateRejectsScoreNotLast(t *testing.T) {
	p := reason.Pipeline{
		{Kind: reason.StepScore},
		{Kind: reason.StepFilter},
	}
	require.ErrorIs(t, p.Validate(), gstore.ErrInvalidInput)
}

func TestExecuteEmptyRootsYieldsEmptyOutput(t *testing.T) {
	e, err := sqlengine.Open(t.TempDir()+"/graph.db", sqlengine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	out, err := reason.Execute(context.Background(), e, reason.Pipeline{{Kind: reason.StepKHops, KHopDepth: 1}}, nil)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestIdempotentExecution(t *testing.T) {
	e, err := sqlengine.Open(t.TempDir()+"/graph.db", sqlengine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	a, err := e.InsertNode(gstore.NodeSpec{Kind: "Fn", Name: "a"})
	require.NoError(t, err)
	b, err := e.InsertNode(gstore.NodeSpec{Kind: "Fn", Name: "b"})
	require.NoError(t, err)
	_, err = e.InsertEdge(gstore.EdgeSpec{From: a, To: b, EdgeType: "CALLS"})
	require.NoError(t, err)

	pipeline := reason.Pipeline{
		{Kind: reason.StepKHops, KHopDepth: 1, KHopDirection: gstore.Outgoing},
		{Kind: reason.StepScore, ScoreWeights: reason.ScoreWeights{OutgoingDegree: 1}},
	}

	first, err := reason.Execute(context.Background(), e, pipeline, []gstore.NodeID{a})
	require.NoError(t, err)
	second, err := reason.Execute(context.Background(), e, pipeline, []gstore.NodeID{a})
	require.NoError(t, err)
	require.Equal(t, first, second)
}
