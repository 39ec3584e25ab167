// Package mutation implements the depth-first mutation validator
// (§4.1) and the room-mutation sub-validator (§4.3) that gates every
// InsertEntity tree before it reaches the row-store writer.
package mutation

import (
	"encoding/base64"

	"github.com/discretgraph/graphauth/internal/graph"
	"github.com/discretgraph/graphauth/internal/room"
)

// EdgeDeletion names one edge being replaced by this mutation.
type EdgeDeletion struct {
	Src   []byte
	Label string
	Dest  []byte
}

// InsertEntity is one node in the mutation tree: a pending row (or a
// mere reference to an existing one), its prior version if this is an
// update, and any children grouped by field name.
type InsertEntity struct {
	Entity   string
	TargetID []byte
	RoomID   []byte // nil for unrooted entities
	Date     int64

	PendingRow *graph.Node // nil if this InsertEntity only references an existing row
	OldNode    *graph.Node // nil for creations

	JSONBody []byte

	SubNodes map[string][]*InsertEntity

	EdgeDeletions []EdgeDeletion

	// EdgeDeletionsLog is populated by the validator: one signed
	// tombstone per entry in EdgeDeletions.
	EdgeDeletionsLog []*graph.EdgeDeletionEntry
}

// MutationQuery is a forest of InsertEntity trees submitted atomically.
type MutationQuery struct {
	Roots []*InsertEntity
}

// RoomLookup resolves a room id to its current in-memory state. The
// authorisation service is the only real implementation; tests can
// supply a plain map.
type RoomLookup interface {
	Room(id []byte) (*room.Room, bool)
}

// MapLookup is a RoomLookup backed by a plain map keyed by
// base64(room id), the same keying convention the room package uses
// internally.
type MapLookup map[string]*room.Room

func (m MapLookup) Room(id []byte) (*room.Room, bool) {
	r, ok := m[base64.StdEncoding.EncodeToString(id)]
	return r, ok
}
