package writer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/discretgraph/graphauth/internal/graph"
	"github.com/discretgraph/graphauth/internal/metrics"
	"github.com/discretgraph/graphauth/internal/room"
	"github.com/discretgraph/graphauth/internal/roomsync"
	"github.com/discretgraph/graphauth/internal/store"
	"github.com/discretgraph/graphauth/internal/store/sqlitelog"
)

// Request is the tagged union the writer accepts on its queue.
type Request interface{ isWriteRequest() }

func (MutationRequest) isWriteRequest()     {}
func (RoomMutationRequest) isWriteRequest() {}
func (RoomNodeRequest) isWriteRequest()     {}
func (DeletionRequest) isWriteRequest()     {}
func (FullNodeRequest) isWriteRequest()     {}

// Writer accepts write requests for durable persistence.
type Writer interface {
	Submit(ctx context.Context, req Request) error
}

// BatchedWriter is the single serialisation point for durability: it
// accepts a batch of heterogeneous write messages, opens one
// transaction per batch, applies them in arrival order, and rolls the
// whole batch back on any failure.
type BatchedWriter struct {
	rows     store.RowStore
	dellog   *sqlitelog.Log
	requests chan Request
	maxBatch int
	interval time.Duration
	metrics  *metrics.Recorder
	log      *logrus.Entry
}

// Options configures a BatchedWriter's batching behaviour. A zero
// Options is filled with the teacher's replication-worker defaults:
// batches of up to 64 requests, flushed at least every 20ms.
type Options struct {
	MaxBatch int
	Interval time.Duration
	Recorder *metrics.Recorder
}

// NewBatchedWriter returns a writer backed by rows for row storage and
// dellog for the durable deletion tombstone index.
func NewBatchedWriter(rows store.RowStore, dellog *sqlitelog.Log, opts Options) *BatchedWriter {
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = 64
	}
	if opts.Interval <= 0 {
		opts.Interval = 20 * time.Millisecond
	}
	return &BatchedWriter{
		rows:     rows,
		dellog:   dellog,
		requests: make(chan Request, 256),
		maxBatch: opts.MaxBatch,
		interval: opts.Interval,
		metrics:  opts.Recorder,
		log:      logrus.WithField("component", "writer"),
	}
}

// Submit enqueues req, blocking if the queue is full (the spec's
// back-pressure requirement) or until ctx is done.
func (w *BatchedWriter) Submit(ctx context.Context, req Request) error {
	select {
	case w.requests <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the request queue, grouping arrivals into batches of up
// to maxBatch or every interval, whichever comes first, until ctx is
// done.
func (w *BatchedWriter) Run(ctx context.Context) {
	w.log.Info("writer started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var batch []Request
	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.applyBatch(ctx, batch)
		batch = batch[:0]
	}

	for {
		if w.metrics != nil {
			w.metrics.SetQueueDepth("writer", len(w.requests))
		}

		select {
		case <-ctx.Done():
			flush()
			w.log.Info("writer stopped")
			return
		case req, ok := <-w.requests:
			if !ok {
				flush()
				return
			}
			batch = append(batch, req)
			if len(batch) >= w.maxBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// applyBatch opens one store transaction covering every request in
// batch, then delivers each request's result to its own reply/callback
// channel. A transaction failure fails every request in the batch.
func (w *BatchedWriter) applyBatch(ctx context.Context, batch []Request) {
	batchID := uuid.NewString()
	blog := w.log.WithField("batch_id", batchID)

	sets := map[string][]byte{}
	var deletes []string

	for _, req := range batch {
		if err := stage(req, sets); err != nil {
			blog.WithError(err).Warn("failed to stage write batch")
			w.deliver(ctx, batch, err)
			return
		}
	}

	err := w.rows.Batch(ctx, sets, deletes)
	if err != nil {
		blog.WithError(err).WithField("requests", len(batch)).Warn("failed to commit write batch")
	} else {
		blog.WithField("requests", len(batch)).Debug("committed write batch")
		w.recordDeletionLog(ctx, batch)
	}
	w.deliver(ctx, batch, err)
}

// stage writes req's rows into sets, the pending transaction's
// key/value set.
func stage(req Request, sets map[string][]byte) error {
	switch r := req.(type) {
	case MutationRequest:
		stageNodesAndEdges(sets, r.Nodes, r.Edges)
		stageEdgeDeletions(sets, r.EdgeDeletions)
	case RoomMutationRequest:
		stageNodesAndEdges(sets, r.Nodes, r.Edges)
		for _, rm := range r.Rooms {
			if err := stageRoomSnapshot(sets, rm); err != nil {
				return err
			}
		}
	case RoomNodeRequest:
		stageRoomNode(sets, r.RoomNode)
	case DeletionRequest:
		stageNodeDeletions(sets, r.Result.NodeEntries)
		stageEdgeDeletions(sets, r.Result.EdgeEntries)
	case FullNodeRequest:
		stageNodesAndEdges(sets, r.Nodes, r.Edges)
	default:
		return fmt.Errorf("writer: unknown request type %T", req)
	}
	return nil
}

func stageNodesAndEdges(sets map[string][]byte, nodes []*graph.Node, edges []*graph.Edge) {
	for _, n := range nodes {
		sets[store.NodeKey(graph.ShortName(n.Entity), n.ID)] = encodeNode(n)
	}
	for _, e := range edges {
		sets[store.EdgeKey(e.Src, e.Label, e.Dest)] = encodeEdge(e)
	}
}

func stageNodeDeletions(sets map[string][]byte, entries []*graph.NodeDeletionEntry) {
	for _, e := range entries {
		b, _ := json.Marshal(e)
		sets[store.NodeDeletionKey(e.RoomID, e.NodeID)] = b
	}
}

func stageEdgeDeletions(sets map[string][]byte, entries []*graph.EdgeDeletionEntry) {
	for _, e := range entries {
		b, _ := json.Marshal(e)
		sets[store.EdgeDeletionKey(e.RoomID, e.Src, e.Label, e.Dest)] = b
	}
}

func stageRoomSnapshot(sets map[string][]byte, rm *room.Room) error {
	b, err := room.DumpJSON(map[string]*room.Room{base64.StdEncoding.EncodeToString(rm.ID): rm})
	if err != nil {
		return fmt.Errorf("writer: dump room snapshot: %w", err)
	}
	sets[store.RoomSnapshotKey(rm.ID)] = b
	return nil
}

func stageRoomNode(sets map[string][]byte, rn *roomsync.RoomNode) {
	stageNodesAndEdges(sets, []*graph.Node{rn.Node}, nil)
	stageNodesAndEdges(sets, userNodesOf(rn.AdminNodes), rn.AdminEdges)
	stageNodesAndEdges(sets, userNodesOf(rn.UserAdminNodes), rn.UserAdminEdges)
	stageNodesAndEdges(sets, authNodesOf(rn.AuthNodes), rn.AuthEdges)
	for _, a := range rn.AuthNodes {
		stageNodesAndEdges(sets, userNodesOf(a.UserNodes), a.UserEdges)
		stageNodesAndEdges(sets, rightNodesOf(a.RightNodes), a.RightEdges)
	}
}

func userNodesOf(nodes []*roomsync.UserNode) []*graph.Node {
	out := make([]*graph.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Node
	}
	return out
}

func rightNodesOf(nodes []*roomsync.EntityRightNode) []*graph.Node {
	out := make([]*graph.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Node
	}
	return out
}

func authNodesOf(nodes []*roomsync.AuthorisationNode) []*graph.Node {
	out := make([]*graph.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Node
	}
	return out
}

// recordDeletionLog mirrors committed tombstones into the durable
// deletion index.
func (w *BatchedWriter) recordDeletionLog(ctx context.Context, batch []Request) {
	if w.dellog == nil {
		return
	}
	for _, req := range batch {
		var nodeEntries []*graph.NodeDeletionEntry
		var edgeEntries []*graph.EdgeDeletionEntry
		switch r := req.(type) {
		case MutationRequest:
			edgeEntries = r.EdgeDeletions
		case DeletionRequest:
			nodeEntries = r.Result.NodeEntries
			edgeEntries = r.Result.EdgeEntries
		}
		for _, e := range nodeEntries {
			if err := w.dellog.RecordNodeDeletion(ctx, e.RoomID, e.NodeID, e.VerifyingKey, e.Signature, e.DeletedAt); err != nil {
				w.log.WithError(err).Warn("failed to record node deletion tombstone")
			}
		}
		for _, e := range edgeEntries {
			if err := w.dellog.RecordEdgeDeletion(ctx, e.RoomID, e.Src, e.Label, e.Dest, e.VerifyingKey, e.Signature, e.DeletedAt); err != nil {
				w.log.WithError(err).Warn("failed to record edge deletion tombstone")
			}
		}
	}
}

func (w *BatchedWriter) deliver(ctx context.Context, batch []Request, err error) {
	for _, req := range batch {
		switch r := req.(type) {
		case MutationRequest:
			sendResult(ctx, r.Reply, Result{Err: err})
		case RoomMutationRequest:
			sendRoomMutationWrite(ctx, r.Callback, RoomMutationWrite{Rooms: r.Rooms, Err: err})
		case RoomNodeRequest:
			sendRoomNodeWrite(ctx, r.Callback, RoomNodeWrite{RoomNode: r.RoomNode, Err: err})
		case DeletionRequest:
			sendResult(ctx, r.Reply, Result{Err: err})
		case FullNodeRequest:
			sendResult(ctx, r.Reply, Result{Err: err})
		}
	}
}

func encodeNode(n *graph.Node) []byte {
	b, _ := json.Marshal(n)
	return b
}

func encodeEdge(e *graph.Edge) []byte {
	b, _ := json.Marshal(e)
	return b
}

func sendResult(ctx context.Context, ch chan<- Result, r Result) {
	if ch == nil {
		return
	}
	select {
	case ch <- r:
	case <-ctx.Done():
	}
}

func sendRoomMutationWrite(ctx context.Context, ch chan<- RoomMutationWrite, r RoomMutationWrite) {
	if ch == nil {
		return
	}
	select {
	case ch <- r:
	case <-ctx.Done():
	}
}

func sendRoomNodeWrite(ctx context.Context, ch chan<- RoomNodeWrite, r RoomNodeWrite) {
	if ch == nil {
		return
	}
	select {
	case ch <- r:
	case <-ctx.Done():
	}
}

var _ Writer = (*BatchedWriter)(nil)
