package gstore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orneryd/sqlitegraph/internal/gstore"
	_ "github.com/orneryd/sqlitegraph/internal/gstore/native"
	_ "github.com/orneryd/sqlitegraph/internal/gstore/sqlengine"
)

func TestOpenDispatchesToSQLBackend(t *testing.T) {
	e, err := gstore.Open(gstore.OpenConfig{
		Backend: gstore.BackendSQL,
		Path:    t.TempDir() + "/graph.db",
	})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.InsertNode(gstore.NodeSpec{Kind: "Fn", Name: "a"})
	require.NoError(t, err)
}

func TestOpenDispatchesToNativeBackend(t *testing.T) {
	e, err := gstore.Open(gstore.OpenConfig{
		Backend:         gstore.BackendNative,
		Path:            t.TempDir() + "/graph.sqlgf",
		CreateIfMissing: true,
	})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.InsertNode(gstore.NodeSpec{Kind: "Fn", Name: "a"})
	require.NoError(t, err)
}

func TestOpenDefaultsToSQLBackend(t *testing.T) {
	e, err := gstore.Open(gstore.OpenConfig{Path: t.TempDir() + "/graph.db"})
	require.NoError(t, err)
	defer e.Close()
}

func TestOpenUnknownBackendErrors(t *testing.T) {
	_, err := gstore.Open(gstore.OpenConfig{Backend: "postgres", Path: "x"})
	require.Error(t, err)
	var ub *gstore.UnknownBackend
	require.ErrorAs(t, err, &ub)
}
