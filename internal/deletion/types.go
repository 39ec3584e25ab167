// Package deletion implements the deletion validator (§4.2): given a
// resolved DeletionQuery it decides whether each node or edge removal
// is permitted and produces the matching deletion-log tombstones.
package deletion

// NodeDeletion names a node to remove, with enough of its resolved row
// known to evaluate rights: the signer that originally wrote it and
// its own declared date.
type NodeDeletion struct {
	Entity string
	RoomID []byte // nil for an unrooted entity
	NodeID []byte
	Signer []byte
	Date   int64
}

// EdgeDeletion names an edge to remove; Entity is the name of the
// source node's entity kind, which governs the right check.
type EdgeDeletion struct {
	Entity string
	RoomID []byte
	Src    []byte
	Label  string
	Dest   []byte
	Signer []byte
	Date   int64
}

// DeletionQuery is a validated-shape list of node and edge removals
// submitted atomically.
type DeletionQuery struct {
	Nodes []*NodeDeletion
	Edges []*EdgeDeletion
}
