// Package writer implements the batched row-store writer: the single
// durability serialisation point the authorisation service forwards
// validated writes to.
package writer

import (
	"github.com/discretgraph/graphauth/internal/deletion"
	"github.com/discretgraph/graphauth/internal/graph"
	"github.com/discretgraph/graphauth/internal/room"
	"github.com/discretgraph/graphauth/internal/roomsync"
)

// Result is returned to a request's reply channel once its batch has
// committed (or failed).
type Result struct {
	Err error
}

// MutationRequest persists the signed rows and edge-deletion log
// entries produced by a validated ordinary-entity mutation.
type MutationRequest struct {
	Nodes         []*graph.Node
	Edges         []*graph.Edge
	EdgeDeletions []*graph.EdgeDeletionEntry
	Reply         chan<- Result
}

// RoomMutationRequest persists a room-shaping mutation's resulting
// Room snapshots (a single mutation tree may touch more than one
// room). Callback carries the result back to the authorisation
// service's room-mutation callback queue rather than to the original
// caller, so the service installs the rooms in memory only after the
// write has landed, and then replies to the caller itself.
type RoomMutationRequest struct {
	Nodes    []*graph.Node
	Edges    []*graph.Edge
	Rooms    []*room.Room
	Callback chan<- RoomMutationWrite
}

// RoomMutationWrite is the callback payload after a room-mutation
// write completes.
type RoomMutationWrite struct {
	Rooms []*room.Room
	Err   error
}

// RoomNodeRequest persists a reconciled RoomNode in full (every
// admin/user_admin/authorisation node and edge it carries).
type RoomNodeRequest struct {
	RoomNode *roomsync.RoomNode
	Callback chan<- RoomNodeWrite
}

// RoomNodeWrite is the callback payload after a room-node write
// completes.
type RoomNodeWrite struct {
	RoomNode *roomsync.RoomNode
	Err      error
}

// DeletionRequest persists the tombstone log entries produced by a
// validated deletion.
type DeletionRequest struct {
	Result *deletion.Result
	Reply  chan<- Result
}

// FullNodeRequest bulk-inserts a list of pre-validated nodes and edges
// in one batch.
type FullNodeRequest struct {
	Nodes []*graph.Node
	Edges []*graph.Edge
	Reply chan<- Result
}
