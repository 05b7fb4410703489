package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orneryd/sqlitegraph/internal/gstore"
	"github.com/orneryd/sqlitegraph/internal/gstore/native"
	"github.com/orneryd/sqlitegraph/internal/gstore/sqlengine"
	"github.com/orneryd/sqlitegraph/internal/migrate"
)

func openEngine(t *testing.T) gstore.Engine {
	t.Helper()
	e, err := sqlengine.Open(t.TempDir()+"/graph.db", sqlengine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func openNativeEngine(t *testing.T) gstore.Engine {
	t.Helper()
	e, err := native.Create(t.TempDir() + "/graph.sqlg")
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestDualWriterMirrorsInsertsAndMatches(t *testing.T) {
	primary := openEngine(t)
	shadow := openEngine(t)
	dw := migrate.NewDualWriter(primary, shadow)

	n1, err := dw.InsertNode(gstore.NodeSpec{Kind: "Fn", Name: "a"})
	require.NoError(t, err)
	n2, err := dw.InsertNode(gstore.NodeSpec{Kind: "Fn", Name: "b"})
	require.NoError(t, err)
	_, err = dw.InsertEdge(gstore.EdgeSpec{From: n1, To: n2, EdgeType: "CALLS"})
	require.NoError(t, err)

	log := dw.Log()
	require.Len(t, log, 3)
	for _, entry := range log {
		require.True(t, entry.Match, "entry %+v should match between primary and shadow", entry)
	}
}

func TestCutoverIsOneWay(t *testing.T) {
	dw := migrate.NewDualWriter(openEngine(t), openEngine(t))
	require.False(t, dw.IsCutover())

	require.NoError(t, dw.Cutover())
	require.True(t, dw.IsCutover())

	err := dw.Cutover()
	require.Error(t, err)
	require.ErrorIs(t, err, gstore.ErrInvalidInput)
	require.True(t, dw.IsCutover())
}

func TestActiveEngineSwitchesOnCutover(t *testing.T) {
	primary := openEngine(t)
	shadow := openEngine(t)
	dw := migrate.NewDualWriter(primary, shadow)

	require.Same(t, primary, dw.ActiveEngine())
	require.NoError(t, dw.Cutover())
	require.Same(t, shadow, dw.ActiveEngine())
}

// TestCompareShadowScenario6 mirrors spec.md Scenario 6: 10 nodes chained
// 1->2->...->10 by CALLS edges on both primary and shadow, except shadow is
// missing the edge 5->6. One comparison job per node, at depth 0 so BFS
// itself never diverges, isolates the mismatch to the single node whose
// direct outgoing neighbor set differs: 9 match entries, 1 mismatch entry.
func TestCompareShadowScenario6(t *testing.T) {
	primary := openEngine(t)
	shadow := openEngine(t)

	primaryIDs := chainOfTen(t, primary)
	shadowIDs := chainOfTenMissingOneEdge(t, shadow)
	require.Equal(t, primaryIDs, shadowIDs)

	var jobs []migrate.Job
	for _, id := range primaryIDs {
		jobs = append(jobs, migrate.Job{Node: id, Depth: 0})
	}

	report, err := migrate.CompareShadow(context.Background(), primary, shadow, jobs)
	require.NoError(t, err)
	require.Len(t, report.Entries, 10)
	require.Equal(t, 9, report.MatchCount)
	require.Equal(t, 1, report.MismatchCount)

	mismatches := migrate.DedupMismatches(report)
	require.Len(t, mismatches, 1)
	require.Equal(t, primaryIDs[4], mismatches[0].Node)
}

// TestCompareShadowScenario6CrossBackend mirrors Scenario 6 again, but with
// a native primary and a sql shadow — the pairing spec.md §1 names as the
// harness's actual purpose. Native preserves edge-insertion order while sql
// sorts by node id (invariant 2), so this also exercises that CompareShadow
// compares neighbor sets rather than neighbor sequences: the 9 untouched
// chain nodes must still match despite the two backends ordering Neighbors
// differently.
func TestCompareShadowScenario6CrossBackend(t *testing.T) {
	primary := openNativeEngine(t)
	shadow := openEngine(t)

	primaryIDs := chainOfTen(t, primary)
	shadowIDs := chainOfTenMissingOneEdge(t, shadow)
	require.Equal(t, primaryIDs, shadowIDs)

	var jobs []migrate.Job
	for _, id := range primaryIDs {
		jobs = append(jobs, migrate.Job{Node: id, Depth: 0})
	}

	report, err := migrate.CompareShadow(context.Background(), primary, shadow, jobs)
	require.NoError(t, err)
	require.Len(t, report.Entries, 10)
	require.Equal(t, 9, report.MatchCount)
	require.Equal(t, 1, report.MismatchCount)

	mismatches := migrate.DedupMismatches(report)
	require.Len(t, mismatches, 1)
	require.Equal(t, primaryIDs[4], mismatches[0].Node)
}

func TestDedupMismatchesCollapsesRepeatedSweeps(t *testing.T) {
	primary := openEngine(t)
	shadow := openEngine(t)
	primaryIDs := chainOfTen(t, primary)
	chainOfTenMissingOneEdge(t, shadow)

	jobs := []migrate.Job{{Node: primaryIDs[4], Depth: 0}}

	first, err := migrate.CompareShadow(context.Background(), primary, shadow, jobs)
	require.NoError(t, err)
	second, err := migrate.CompareShadow(context.Background(), primary, shadow, jobs)
	require.NoError(t, err)

	combined := migrate.ShadowReport{
		Entries:       append(append([]migrate.CompareEntry{}, first.Entries...), second.Entries...),
		MismatchCount: first.MismatchCount + second.MismatchCount,
	}
	require.Len(t, migrate.DedupMismatches(combined), 1)
}

func chainOfTen(t *testing.T, e gstore.Engine) []gstore.NodeID {
	t.Helper()
	ids := make([]gstore.NodeID, 10)
	for i := range ids {
		id, err := e.InsertNode(gstore.NodeSpec{Kind: "Fn", Name: string(rune('a' + i))})
		require.NoError(t, err)
		ids[i] = id
	}
	for i := 0; i < len(ids)-1; i++ {
		_, err := e.InsertEdge(gstore.EdgeSpec{From: ids[i], To: ids[i+1], EdgeType: "CALLS"})
		require.NoError(t, err)
	}
	return ids
}

func chainOfTenMissingOneEdge(t *testing.T, e gstore.Engine) []gstore.NodeID {
	t.Helper()
	ids := make([]gstore.NodeID, 10)
	for i := range ids {
		id, err := e.InsertNode(gstore.NodeSpec{Kind: "Fn", Name: string(rune('a' + i))})
		require.NoError(t, err)
		ids[i] = id
	}
	for i := 0; i < len(ids)-1; i++ {
		if i == 4 { // skip the 5th->6th edge (0-indexed: ids[4]->ids[5])
			continue
		}
		_, err := e.InsertEdge(gstore.EdgeSpec{From: ids[i], To: ids[i+1], EdgeType: "CALLS"})
		require.NoError(t, err)
	}
	return ids
}
