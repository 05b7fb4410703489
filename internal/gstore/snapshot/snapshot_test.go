package snapshot_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orneryd/sqlitegraph/internal/gstore"
	"github.com/orneryd/sqlitegraph/internal/gstore/snapshot"
)

func TestPublishDoesNotMutatePriorSnapshot(t *testing.T) {
	m := snapshot.New()
	first := m.Current()
	require.Empty(t, first.Outgoing)

	m.Publish(gstore.Outgoing, func(out map[gstore.NodeID][]gstore.NodeID) {
		out[1] = []gstore.NodeID{2, 3}
	})

	require.Empty(t, first.Outgoing, "a snapshot already taken by a reader must never change")

	second := m.Current()
	require.Equal(t, []gstore.NodeID{2, 3}, second.Outgoing[1])
}

func TestPublishBothTouchesIndependentMappings(t *testing.T) {
	m := snapshot.New()
	m.PublishBoth(
		func(out map[gstore.NodeID][]gstore.NodeID) { out[1] = []gstore.NodeID{2} },
		func(in map[gstore.NodeID][]gstore.NodeID) { in[2] = []gstore.NodeID{1} },
	)

	snap := m.Current()
	require.Equal(t, []gstore.NodeID{2}, snap.Outgoing[1])
	require.Equal(t, []gstore.NodeID{1}, snap.Incoming[2])
}

func TestSequentialPublishesAccumulate(t *testing.T) {
	m := snapshot.New()
	m.Publish(gstore.Outgoing, func(out map[gstore.NodeID][]gstore.NodeID) { out[1] = []gstore.NodeID{2} })
	m.Publish(gstore.Outgoing, func(out map[gstore.NodeID][]gstore.NodeID) { out[3] = []gstore.NodeID{4} })

	snap := m.Current()
	require.Equal(t, []gstore.NodeID{2}, snap.Outgoing[1])
	require.Equal(t, []gstore.NodeID{4}, snap.Outgoing[3])
}
