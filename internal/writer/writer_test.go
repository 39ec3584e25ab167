package writer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/discretgraph/graphauth/internal/crypto"
	"github.com/discretgraph/graphauth/internal/deletion"
	"github.com/discretgraph/graphauth/internal/graph"
	"github.com/discretgraph/graphauth/internal/room"
	"github.com/discretgraph/graphauth/internal/store"
)

// memStore is a minimal in-memory store.RowStore, standing in for
// BadgerStore/PebbleStore in tests that only exercise the writer's
// batching and staging logic, not a real storage engine.
type memStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	failNext bool
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return v, nil
}

func (m *memStore) Batch(ctx context.Context, sets map[string][]byte, deletes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return context.DeadlineExceeded
	}
	for k, v := range sets {
		m.data[k] = v
	}
	for _, k := range deletes {
		delete(m.data, k)
	}
	return nil
}

func (m *memStore) Scan(ctx context.Context, prefix, startKey string, fn func(key string, val []byte) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.data {
		if !fn(k, v) {
			break
		}
	}
	return nil
}

func (m *memStore) Close() error { return nil }

var _ store.RowStore = (*memStore)(nil)

func startWriter(t *testing.T, rows store.RowStore) (*BatchedWriter, context.Context) {
	t.Helper()
	w := NewBatchedWriter(rows, nil, Options{MaxBatch: 4, Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)
	return w, ctx
}

func TestMutationRequestPersistsNodesAndEdges(t *testing.T) {
	rows := newMemStore()
	w, ctx := startWriter(t, rows)

	signer, err := crypto.GenerateSigner()
	require.NoError(t, err)
	node := &graph.Node{ID: []byte("n1"), Entity: "Document", CDate: 1, MDate: 1}
	require.NoError(t, node.Sign(signer))

	reply := make(chan Result, 1)
	require.NoError(t, w.Submit(ctx, MutationRequest{Nodes: []*graph.Node{node}, Reply: reply}))

	res := <-reply
	require.NoError(t, res.Err)

	_, err = rows.Get(ctx, store.NodeKey(graph.ShortName("Document"), node.ID))
	require.NoError(t, err)
}

func TestBatchFailureFailsEveryRequestInTheBatch(t *testing.T) {
	rows := newMemStore()
	rows.failNext = true
	w, ctx := startWriter(t, rows)

	signer, err := crypto.GenerateSigner()
	require.NoError(t, err)
	node := &graph.Node{ID: []byte("n2"), Entity: "Document", CDate: 1, MDate: 1}
	require.NoError(t, node.Sign(signer))

	reply := make(chan Result, 1)
	require.NoError(t, w.Submit(ctx, MutationRequest{Nodes: []*graph.Node{node}, Reply: reply}))

	res := <-reply
	require.Error(t, res.Err)

	_, err = rows.Get(ctx, store.NodeKey(graph.ShortName("Document"), node.ID))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRoomMutationRequestPersistsRoomSnapshot(t *testing.T) {
	rows := newMemStore()
	w, ctx := startWriter(t, rows)

	roomID := []byte("room-writer")
	rm := room.NewRoom(roomID, nil, 0)

	cb := make(chan RoomMutationWrite, 1)
	require.NoError(t, w.Submit(ctx, RoomMutationRequest{Rooms: []*room.Room{rm}, Callback: cb}))

	res := <-cb
	require.NoError(t, res.Err)

	_, err := rows.Get(ctx, store.RoomSnapshotKey(roomID))
	require.NoError(t, err)
}

func TestDeletionRequestRecordsNodeTombstone(t *testing.T) {
	rows := newMemStore()
	w, ctx := startWriter(t, rows)

	signer, err := crypto.GenerateSigner()
	require.NoError(t, err)

	entry := &graph.NodeDeletionEntry{
		RoomID:       []byte("room-del-writer"),
		NodeID:       []byte("doc-del-writer"),
		VerifyingKey: signer.VerifyingKey(),
		DeletedAt:    10,
	}
	reply := make(chan Result, 1)
	require.NoError(t, w.Submit(ctx, DeletionRequest{
		Result: &deletion.Result{NodeEntries: []*graph.NodeDeletionEntry{entry}},
		Reply:  reply,
	}))

	res := <-reply
	require.NoError(t, res.Err)

	_, err = rows.Get(ctx, store.NodeDeletionKey(entry.RoomID, entry.NodeID))
	require.NoError(t, err)
}

func TestBatchingAcknowledgesEveryConcurrentRequest(t *testing.T) {
	rows := newMemStore()
	w, ctx := startWriter(t, rows)

	var replies []chan Result
	for i := 0; i < 3; i++ {
		signer, err := crypto.GenerateSigner()
		require.NoError(t, err)
		node := &graph.Node{ID: []byte{byte(i)}, Entity: "Document", CDate: 1, MDate: 1}
		require.NoError(t, node.Sign(signer))
		reply := make(chan Result, 1)
		replies = append(replies, reply)
		require.NoError(t, w.Submit(ctx, MutationRequest{Nodes: []*graph.Node{node}, Reply: reply}))
	}

	for _, reply := range replies {
		require.NoError(t, (<-reply).Err)
	}
}
