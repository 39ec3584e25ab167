package roomsync

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/discretgraph/graphauth/internal/graph"
	"github.com/discretgraph/graphauth/internal/store"
)

// memStore is a minimal in-memory store.RowStore for exercising
// BuildRoomNode against the exact key scheme internal/writer persists
// to, without a real Badger/Pebble engine.
type memStore struct{ data map[string][]byte }

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}

func (m *memStore) Batch(ctx context.Context, sets map[string][]byte, deletes []string) error {
	for k, v := range sets {
		m.data[k] = v
	}
	for _, k := range deletes {
		delete(m.data, k)
	}
	return nil
}

func (m *memStore) Scan(ctx context.Context, prefix, startKey string, fn func(key string, val []byte) bool) error {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if startKey != "" && k < startKey {
			continue
		}
		if !fn(k, m.data[k]) {
			break
		}
	}
	return nil
}

func (m *memStore) Close() error { return nil }

func putNode(t *testing.T, rows store.RowStore, n *graph.Node) {
	t.Helper()
	b, err := json.Marshal(n)
	require.NoError(t, err)
	key := store.NodeKey(graph.ShortName(n.Entity), n.ID)
	require.NoError(t, rows.Batch(context.Background(), map[string][]byte{key: b}, nil))
}

func putEdge(t *testing.T, rows store.RowStore, e *graph.Edge) {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	key := store.EdgeKey(e.Src, e.Label, e.Dest)
	require.NoError(t, rows.Batch(context.Background(), map[string][]byte{key: b}, nil))
}

// persistRoomNode writes a RoomNode's rows into rows the same way
// internal/writer.stageRoomNode does, so BuildRoomNode can read them
// back out.
func persistRoomNode(t *testing.T, rows store.RowStore, rn *RoomNode) {
	t.Helper()
	putNode(t, rows, rn.Node)
	for i, e := range rn.AdminEdges {
		putEdge(t, rows, e)
		putNode(t, rows, rn.AdminNodes[i].Node)
	}
	for i, e := range rn.UserAdminEdges {
		putEdge(t, rows, e)
		putNode(t, rows, rn.UserAdminNodes[i].Node)
	}
	for i, e := range rn.AuthEdges {
		putEdge(t, rows, e)
		an := rn.AuthNodes[i]
		putNode(t, rows, an.Node)
		for j, ue := range an.UserEdges {
			putEdge(t, rows, ue)
			putNode(t, rows, an.UserNodes[j].Node)
		}
		for j, re := range an.RightEdges {
			putEdge(t, rows, re)
			putNode(t, rows, an.RightNodes[j].Node)
		}
	}
}

func TestBuildRoomNodeRoundTripsARoomPersistedTheWayTheWriterPersistsOne(t *testing.T) {
	owner := mustSigner(t)
	roomID := id(0x50)
	rn := buildRoom(t, owner, roomID, 100)

	rows := newMemStore()
	persistRoomNode(t, rows, rn)

	got, err := BuildRoomNode(context.Background(), rows, roomID)
	require.NoError(t, err)
	require.NoError(t, got.CheckConsistency())

	require.Equal(t, roomID, got.Node.ID)
	require.Len(t, got.AdminNodes, 1)
	require.Equal(t, rn.AdminNodes[0].Node.ID, got.AdminNodes[0].Node.ID)
	require.Len(t, got.AuthNodes, 1)
	require.Equal(t, rn.AuthNodes[0].Node.ID, got.AuthNodes[0].Node.ID)
	require.Len(t, got.AuthNodes[0].UserNodes, 1)
	require.Len(t, got.AuthNodes[0].RightNodes, 1)
}
