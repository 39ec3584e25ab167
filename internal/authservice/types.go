// Package authservice implements the single-threaded authorisation
// service (§5): the sole owner of in-memory room state, demultiplexing
// validation requests from two bounded queues and forwarding accepted
// writes to the row-store writer.
package authservice

import (
	"github.com/discretgraph/graphauth/internal/crypto"
	"github.com/discretgraph/graphauth/internal/deletion"
	"github.com/discretgraph/graphauth/internal/mutation"
	"github.com/discretgraph/graphauth/internal/room"
	"github.com/discretgraph/graphauth/internal/roomsync"
	"github.com/discretgraph/graphauth/internal/writer"
)

// Message is the tagged union accepted on either of the service's
// inbound queues.
type Message interface{ isMessage() }

// Load rebuilds in-memory state from a canonical JSON snapshot,
// replacing whatever state the service currently holds.
type Load struct {
	Snapshot []byte
	Reply    chan<- error
}

// MutationReply is the result of a Mutation request.
type MutationReply struct {
	Err error
}

// Mutation validates and writes a mutation tree, room-shaping or not.
type Mutation struct {
	Query  *mutation.MutationQuery
	Signer crypto.Signer
	Now    int64
	Reply  chan<- MutationReply
}

// DeletionReply is the result of a Deletion request.
type DeletionReply struct {
	Err error
}

// Deletion validates and writes a deletion query.
type Deletion struct {
	Query  *deletion.DeletionQuery
	Signer crypto.Signer
	Now    int64
	Reply  chan<- DeletionReply
}

// roomMutationWriteback is the internal callback-queue message
// delivered once a room-shaping mutation's write has been
// acknowledged; it carries the rooms the validator built, which the
// run loop installs in memory before replying to the original caller.
type roomMutationWriteback struct {
	write writer.RoomMutationWrite
	rooms []*room.Room
	reply chan<- MutationReply
}

func (roomMutationWriteback) isMessage() {}

// RoomNodeAddReply is the result of a RoomNodeAdd request.
type RoomNodeAddReply struct {
	RoomNode    *roomsync.RoomNode
	NeedsUpdate bool
	Err         error
}

// RoomNodeAdd reconciles a remote RoomNode against whatever this
// service already holds for the same room id, and writes the merged
// result if it differs.
type RoomNodeAdd struct {
	RoomID []byte
	Remote *roomsync.RoomNode
	Reply  chan<- RoomNodeAddReply
}

// roomNodeWriteback is the internal callback-queue message delivered
// once a RoomNodeAdd's write has been acknowledged.
type roomNodeWriteback struct {
	write       writer.RoomNodeWrite
	needsUpdate bool
	reply       chan<- RoomNodeAddReply
}

func (roomNodeWriteback) isMessage() {}

// RoomForUser returns the ids of every room in which verifyingKey is a
// valid principal (admin, user_admin, or authorisation member) at
// date.
type RoomForUser struct {
	VerifyingKey []byte
	Date         int64
	Reply        chan<- [][]byte
}

// FullNodeCandidate is one pre-signed row the AddFullNode surface is
// asked to admit, already carrying its own signature; only the
// authorisation predicate itself is evaluated against it.
type FullNodeCandidate struct {
	Entity       string
	RoomID       []byte
	Date         int64
	VerifyingKey []byte
}

// FullNodeRejection names a candidate AddFullNode rejected and why.
type FullNodeRejection struct {
	Candidate FullNodeCandidate
	Err       error
}

// AddFullNode validates a list of pre-signed rows with the same
// can(...) predicate §4.1 uses, partitioning them into writable and
// rejected without needing a full InsertEntity tree.
type AddFullNode struct {
	Candidates []FullNodeCandidate
	Reply      chan<- AddFullNodeReply
}

// AddFullNodeReply partitions AddFullNode's candidates.
type AddFullNodeReply struct {
	Accepted []FullNodeCandidate
	Rejected []FullNodeRejection
}

// RoomNodeGetReply carries the RoomNode this service currently holds
// for the requested room, or nil if it has never seen that room.
type RoomNodeGetReply struct {
	RoomNode *roomsync.RoomNode
	Err      error
}

// RoomNodeGet returns the RoomNode this service currently holds for
// RoomID, the pull side of room-node reconciliation: a peer calls this
// to obtain what to reconcile against before pushing its own view.
type RoomNodeGet struct {
	RoomID []byte
	Reply  chan<- RoomNodeGetReply
}

func (Load) isMessage()        {}
func (Mutation) isMessage()    {}
func (Deletion) isMessage()    {}
func (RoomNodeAdd) isMessage() {}
func (RoomNodeGet) isMessage() {}
func (RoomForUser) isMessage() {}
func (AddFullNode) isMessage() {}
