package mutation

import (
	"fmt"

	"github.com/discretgraph/graphauth/internal/crypto"
	"github.com/discretgraph/graphauth/internal/graph"
	"github.com/discretgraph/graphauth/internal/room"
)

func parseUserBody(body []byte) (*room.User, error) {
	key, enabled, err := graph.DecodeUserBody(body)
	if err != nil {
		return nil, fmt.Errorf("mutation: %w", err)
	}
	return &room.User{VerifyingKey: key, Enabled: enabled}, nil
}

func parseRightBody(body []byte) (*room.EntityRight, error) {
	entity, mutateSelf, mutateAll, err := graph.DecodeRightBody(body)
	if err != nil {
		return nil, fmt.Errorf("mutation: %w", err)
	}
	return &room.EntityRight{Entity: entity, MutateSelf: mutateSelf, MutateAll: mutateAll}, nil
}

// validateRoomMutation implements §4.3: the room-mutation
// sub-validator. It runs over a cloned snapshot of the target room so
// the whole step is rolled back (simply discarded) on any failure.
func validateRoomMutation(lookup RoomLookup, signer crypto.Signer, now int64, ie *InsertEntity) (*room.Room, error) {
	if len(ie.EdgeDeletions) > 0 {
		return nil, &room.ValidationError{Kind: room.KindCannotRemove, Entity: graph.EntityRoom, Room: ie.TargetID, Detail: "authorisations are never detached, only appended"}
	}

	selfKey := signer.VerifyingKey()
	var rm *room.Room

	if ie.OldNode != nil {
		existing, ok := lookup.Room(ie.TargetID)
		if !ok {
			return nil, fmt.Errorf("%w: %x", room.ErrUnknownRoom, ie.TargetID)
		}
		if !existing.IsAdmin(selfKey, ie.Date) {
			return nil, &room.ValidationError{Kind: room.KindAuthorisationRejected, Entity: graph.EntityRoom, Room: ie.TargetID}
		}
		rm = existing.Clone()
		rm.MDate = ie.Date
	} else {
		if len(ie.RoomID) > 0 {
			parent, ok := lookup.Room(ie.RoomID)
			if !ok {
				return nil, fmt.Errorf("%w: %x", room.ErrUnknownRoom, ie.RoomID)
			}
			if !parent.Can(selfKey, graph.EntityRoom, ie.Date, room.RightMutateSelf) {
				return nil, &room.ValidationError{Kind: room.KindAuthorisationRejected, Entity: graph.EntityRoom, Room: ie.RoomID}
			}
		}
		rm = room.NewRoom(ie.TargetID, ie.RoomID, ie.Date)
	}

	roomMutationNeeded := false
	userMutationNeeded := false

	for _, child := range ie.SubNodes["admin"] {
		if child.OldNode != nil {
			return nil, room.ErrUpdateNotAllowed
		}
		u, err := parseUserBody(child.JSONBody)
		if err != nil {
			return nil, err
		}
		u.Date = child.Date
		if err := rm.AddAdminUser(u); err != nil {
			return nil, err
		}
		if err := signChild(signer, child); err != nil {
			return nil, err
		}
		roomMutationNeeded = true
	}

	for _, child := range ie.SubNodes["user_admin"] {
		if child.OldNode != nil {
			return nil, room.ErrUpdateNotAllowed
		}
		u, err := parseUserBody(child.JSONBody)
		if err != nil {
			return nil, err
		}
		u.Date = child.Date
		if err := rm.AddUserAdminUser(u); err != nil {
			return nil, err
		}
		if err := signChild(signer, child); err != nil {
			return nil, err
		}
		roomMutationNeeded = true
	}

	for _, child := range ie.SubNodes["authorisations"] {
		needRoom, needUser, err := validateAuthorisationMutation(lookup, signer, rm, child)
		if err != nil {
			return nil, err
		}
		if needRoom {
			roomMutationNeeded = true
		}
		if needUser {
			userMutationNeeded = true
		}
	}

	if roomMutationNeeded && !rm.IsAdmin(selfKey, now) {
		return nil, &room.ValidationError{Kind: room.KindAuthorisationRejected, Entity: graph.EntityRoom, Room: rm.ID}
	}
	if userMutationNeeded && !rm.IsUserAdmin(selfKey, now) {
		return nil, &room.ValidationError{Kind: room.KindAuthorisationRejected, Entity: graph.EntityUserAuth, Room: rm.ID}
	}

	if ie.PendingRow != nil {
		if err := ie.PendingRow.Sign(signer); err != nil {
			return nil, err
		}
	}

	return rm, nil
}

// validateAuthorisationMutation implements the authorisation
// sub-validator nested in §4.3.
func validateAuthorisationMutation(lookup RoomLookup, signer crypto.Signer, rm *room.Room, ie *InsertEntity) (roomMutationNeeded, userMutationNeeded bool, err error) {
	if len(ie.EdgeDeletions) > 0 {
		return false, false, &room.ValidationError{Kind: room.KindCannotRemove, Entity: graph.EntityAuthorisation, Room: rm.ID}
	}

	auth, exists := rm.Auth(ie.TargetID)
	if !exists {
		if ie.OldNode != nil {
			return false, false, fmt.Errorf("%w: %x", room.ErrUnknownRoom, ie.TargetID)
		}
		auth = room.NewAuthorisation(ie.TargetID, ie.Date)
		if err := rm.AddAuth(auth); err != nil {
			return false, false, err
		}
	}

	for _, child := range ie.SubNodes["rights"] {
		if child.OldNode != nil {
			return false, false, room.ErrUpdateNotAllowed
		}
		r, err := parseRightBody(child.JSONBody)
		if err != nil {
			return false, false, err
		}
		r.ValidFrom = child.Date
		if err := auth.AddRight(r); err != nil {
			return false, false, err
		}
		if err := signChild(signer, child); err != nil {
			return false, false, err
		}
		roomMutationNeeded = true
	}

	for _, child := range ie.SubNodes["users"] {
		if child.OldNode != nil {
			return false, false, room.ErrUpdateNotAllowed
		}
		u, err := parseUserBody(child.JSONBody)
		if err != nil {
			return false, false, err
		}
		u.Date = child.Date

		if !userAllowedInAuth(lookup, rm, u.VerifyingKey, child.Date) {
			return false, false, &room.ValidationError{Kind: room.KindUserNotInParentRoom, Entity: graph.EntityUserAuth, Room: rm.ID}
		}

		if err := auth.AddUser(u); err != nil {
			return false, false, err
		}
		if err := signChild(signer, child); err != nil {
			return false, false, err
		}
		userMutationNeeded = true
	}

	if ie.PendingRow != nil {
		if err := ie.PendingRow.Sign(signer); err != nil {
			return false, false, err
		}
	}

	return roomMutationNeeded, userMutationNeeded, nil
}

// userAllowedInAuth implements the UserNotInParentRoom rule: a user
// may be added to an authorisation only if the room has no parent, the
// user already appears in the room's own state, or the user appears in
// the parent room's state.
func userAllowedInAuth(lookup RoomLookup, rm *room.Room, verifyingKey []byte, at int64) bool {
	if len(rm.Parent) == 0 {
		return true
	}
	if rm.IsUserValidAt(verifyingKey, at) {
		return true
	}
	parent, ok := lookup.Room(rm.Parent)
	if !ok {
		return false
	}
	return parent.IsUserValidAt(verifyingKey, at)
}

func signChild(signer crypto.Signer, ie *InsertEntity) error {
	if ie.PendingRow == nil {
		return nil
	}
	return ie.PendingRow.Sign(signer)
}
