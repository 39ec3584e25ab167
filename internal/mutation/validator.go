package mutation

import (
	"bytes"
	"fmt"

	"github.com/discretgraph/graphauth/internal/crypto"
	"github.com/discretgraph/graphauth/internal/graph"
	"github.com/discretgraph/graphauth/internal/room"
)

// Validator walks InsertEntity trees depth-first, root-first, signing
// every pending row and checking the right lattice before admitting
// each one.
type Validator struct{}

// NewValidator returns a ready-to-use Validator. It is stateless: all
// context (signer, room lookup, wall clock) is passed per call.
func NewValidator() *Validator { return &Validator{} }

// ValidateMutation validates q against the rooms visible through
// lookup, signing every row with signer. now is the wall-clock
// timestamp used for edge-deletion tombstones. On success it returns
// every Room touched by a Room-entity in the tree, ready to be merged
// into in-memory state once the row store has accepted the batch.
func (v *Validator) ValidateMutation(lookup RoomLookup, signer crypto.Signer, now int64, q *MutationQuery) ([]*room.Room, error) {
	var rooms []*room.Room
	for _, root := range q.Roots {
		rs, err := v.validateEntity(lookup, signer, now, root)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, rs...)
	}
	return rooms, nil
}

func (v *Validator) validateEntity(lookup RoomLookup, signer crypto.Signer, now int64, ie *InsertEntity) ([]*room.Room, error) {
	switch ie.Entity {
	case graph.EntityRoom:
		rm, err := validateRoomMutation(lookup, signer, now, ie)
		if err != nil {
			return nil, err
		}
		return []*room.Room{rm}, nil

	case graph.EntityAuthorisation, graph.EntityEntityRight, graph.EntityUserAuth:
		return nil, room.ErrUpdateNotAllowed

	default:
		if err := v.validateOrdinaryEntity(lookup, signer, now, ie); err != nil {
			return nil, err
		}
		var rooms []*room.Room
		for _, children := range ie.SubNodes {
			for _, child := range children {
				rs, err := v.validateEntity(lookup, signer, now, child)
				if err != nil {
					return nil, err
				}
				rooms = append(rooms, rs...)
			}
		}
		return rooms, nil
	}
}

func (v *Validator) validateOrdinaryEntity(lookup RoomLookup, signer crypto.Signer, now int64, ie *InsertEntity) error {
	selfKey := signer.VerifyingKey()

	required := room.RightMutateSelf
	if ie.OldNode != nil {
		sameUser := bytes.Equal(ie.OldNode.VerifyingKey, selfKey)
		if !sameUser {
			required = room.RightMutateAll
		}
	}

	if len(ie.RoomID) > 0 {
		rm, ok := lookup.Room(ie.RoomID)
		if !ok {
			return fmt.Errorf("%w: %x", room.ErrUnknownRoom, ie.RoomID)
		}
		if !rm.Can(selfKey, ie.Entity, ie.Date, required) {
			return &room.ValidationError{Kind: room.KindAuthorisationRejected, Entity: ie.Entity, Room: ie.RoomID}
		}
	}

	for _, del := range ie.EdgeDeletions {
		entry, err := graph.BuildEdgeDeletionEntry(signer, ie.RoomID, del.Src, del.Label, del.Dest, now)
		if err != nil {
			return err
		}
		ie.EdgeDeletionsLog = append(ie.EdgeDeletionsLog, entry)
	}

	if ie.PendingRow != nil {
		if err := ie.PendingRow.Sign(signer); err != nil {
			return err
		}
	}
	return nil
}
