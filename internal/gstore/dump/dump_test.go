package dump_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orneryd/sqlitegraph/internal/gstore"
	"github.com/orneryd/sqlitegraph/internal/gstore/dump"
	"github.com/orneryd/sqlitegraph/internal/gstore/sqlengine"
	"github.com/orneryd/sqlitegraph/internal/safety"
)

// TestRoundTripPreservesMultisets exercises invariant 5: dump-then-restore
// preserves the node/edge/label/property multisets exactly, and the
// restored engine's safety check reports zero violations.
func TestRoundTripPreservesMultisets(t *testing.T) {
	src, err := sqlengine.Open(t.TempDir()+"/src.db", sqlengine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	a, err := src.InsertNode(gstore.NodeSpec{Kind: "Module", Name: "core"})
	require.NoError(t, err)
	b, err := src.InsertNode(gstore.NodeSpec{Kind: "Module", Name: "util"})
	require.NoError(t, err)
	_, err = src.InsertEdge(gstore.EdgeSpec{From: a, To: b, EdgeType: "USES"})
	require.NoError(t, err)
	require.NoError(t, src.AddLabel(a, "Public"))
	require.NoError(t, src.SetProperty(a, "version", "1.2.3"))

	var buf bytes.Buffer
	require.NoError(t, dump.Write(&buf, src))

	dst, err := sqlengine.Open(t.TempDir()+"/dst.db", sqlengine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dst.Close() })

	require.NoError(t, dump.Restore(&buf, dst))

	srcNodes, err := src.AllNodeIDs()
	require.NoError(t, err)
	dstNodes, err := dst.AllNodeIDs()
	require.NoError(t, err)
	require.Len(t, dstNodes, len(srcNodes))

	dstEdges, err := dst.AllEdges()
	require.NoError(t, err)
	require.Len(t, dstEdges, 1)
	require.Equal(t, "USES", dstEdges[0].Type)

	labelRefs, err := dst.AllLabelRefs()
	require.NoError(t, err)
	require.Len(t, labelRefs, 1)
	require.Equal(t, "Public", labelRefs[0].Label)

	propRefs, err := dst.AllPropertyRefs()
	require.NoError(t, err)
	require.Len(t, propRefs, 1)
	require.Equal(t, "1.2.3", propRefs[0].Value)

	report, err := safety.Check(context.Background(), dst, safety.Options{})
	require.NoError(t, err)
	require.True(t, report.Clean())
}

func TestRestoreRejectsEmptyStream(t *testing.T) {
	dst, err := sqlengine.Open(t.TempDir()+"/dst.db", sqlengine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dst.Close() })

	err = dump.Restore(&bytes.Buffer{}, dst)
	require.ErrorIs(t, err, gstore.ErrInvalidInput)
}
