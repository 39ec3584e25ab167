package roomsync

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/discretgraph/graphauth/internal/graph"
)

func TestMergeEdgesByDestSortsByCreationDateAscending(t *testing.T) {
	owner := mustSigner(t)
	roomID := id(0x40)

	remoteLate := edge(t, owner, roomID, labelAdmin, id(0x41), 300)
	localEarly := edge(t, owner, roomID, labelAdmin, id(0x42), 100)
	remoteMiddle := edge(t, owner, roomID, labelAdmin, id(0x43), 200)

	out := mergeEdgesByDest([]*graph.Edge{remoteLate, remoteMiddle}, []*graph.Edge{localEarly})

	require.Len(t, out, 3)
	for i := 1; i < len(out); i++ {
		require.LessOrEqual(t, out[i-1].CDate, out[i].CDate)
	}
	require.Equal(t, int64(100), out[0].CDate)
	require.Equal(t, int64(200), out[1].CDate)
	require.Equal(t, int64(300), out[2].CDate)
}

func TestMergeEdgesByDestDedupesByDestinationPreferringRemote(t *testing.T) {
	owner := mustSigner(t)
	roomID := id(0x44)
	destID := id(0x45)

	remoteEdge := edge(t, owner, roomID, labelAdmin, destID, 50)
	localDup := edge(t, owner, roomID, labelAdmin, destID, 50)
	localOnly := edge(t, owner, roomID, labelAdmin, id(0x46), 10)

	out := mergeEdgesByDest([]*graph.Edge{remoteEdge}, []*graph.Edge{localDup, localOnly})

	require.Len(t, out, 2)
	require.Equal(t, int64(10), out[0].CDate)
	require.Equal(t, int64(50), out[1].CDate)
}
