package deletion

import (
	"bytes"
	"fmt"

	"github.com/discretgraph/graphauth/internal/crypto"
	"github.com/discretgraph/graphauth/internal/graph"
	"github.com/discretgraph/graphauth/internal/mutation"
	"github.com/discretgraph/graphauth/internal/room"
)

// Validator evaluates deletions against current room state.
type Validator struct{}

// NewValidator returns a ready-to-use Validator.
func NewValidator() *Validator { return &Validator{} }

// Result carries the signed tombstones produced by a successful
// validation, to be written atomically with the deletions themselves.
type Result struct {
	NodeEntries []*graph.NodeDeletionEntry
	EdgeEntries []*graph.EdgeDeletionEntry
}

// ValidateDeletion checks every node and edge deletion in q against
// lookup's room state, using now as the wall clock for "other user"
// deletions (§4.2). On success it returns the deletion-log entries to
// persist alongside the deletions; on failure nothing is returned and
// the caller must leave the rows untouched.
func (v *Validator) ValidateDeletion(lookup mutation.RoomLookup, signer crypto.Signer, now int64, q *DeletionQuery) (*Result, error) {
	selfKey := signer.VerifyingKey()
	res := &Result{}

	for _, nd := range q.Nodes {
		if graph.IsAdministrative(nd.Entity) {
			return nil, fmt.Errorf("%w: %s", room.ErrDeleteNotAllowed, nd.Entity)
		}
		if len(nd.RoomID) > 0 {
			required, at := deletionRight(selfKey, nd.Signer, nd.Date, now)
			rm, ok := lookup.Room(nd.RoomID)
			if !ok {
				return nil, fmt.Errorf("%w: %x", room.ErrUnknownRoom, nd.RoomID)
			}
			if !rm.Can(selfKey, nd.Entity, at, required) {
				return nil, &room.ValidationError{Kind: room.KindAuthorisationRejected, Entity: nd.Entity, Room: nd.RoomID}
			}
		}
		entry, err := graph.BuildNodeDeletionEntry(signer, nd.RoomID, nd.NodeID, now)
		if err != nil {
			return nil, err
		}
		res.NodeEntries = append(res.NodeEntries, entry)
	}

	for _, ed := range q.Edges {
		if graph.IsAdministrative(ed.Entity) {
			return nil, fmt.Errorf("%w: %s", room.ErrDeleteNotAllowed, ed.Entity)
		}
		if len(ed.RoomID) > 0 {
			required, at := deletionRight(selfKey, ed.Signer, ed.Date, now)
			rm, ok := lookup.Room(ed.RoomID)
			if !ok {
				return nil, fmt.Errorf("%w: %x", room.ErrUnknownRoom, ed.RoomID)
			}
			if !rm.Can(selfKey, ed.Entity, at, required) {
				return nil, &room.ValidationError{Kind: room.KindAuthorisationRejected, Entity: ed.Entity, Room: ed.RoomID}
			}
		}
		entry, err := graph.BuildEdgeDeletionEntry(signer, ed.RoomID, ed.Src, ed.Label, ed.Dest, now)
		if err != nil {
			return nil, err
		}
		res.EdgeEntries = append(res.EdgeEntries, entry)
	}

	return res, nil
}

// deletionRight picks MutateSelf against the row's own date when the
// local key wrote the row, otherwise MutateAll evaluated at wall-clock
// now: the right to delete someone else's row must be held now, not
// merely at the row's declared date.
func deletionRight(selfKey, rowSigner []byte, rowDate, now int64) (room.RightKind, int64) {
	if bytes.Equal(selfKey, rowSigner) {
		return room.RightMutateSelf, rowDate
	}
	return room.RightMutateAll, now
}
