package deletion

import (
	"encoding/base64"
	"testing"

	"github.com/discretgraph/graphauth/internal/crypto"
	"github.com/discretgraph/graphauth/internal/graph"
	"github.com/discretgraph/graphauth/internal/mutation"
	"github.com/discretgraph/graphauth/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roomWithOwnerRight(id, owner []byte) *room.Room {
	rm := room.NewRoom(id, nil, 0)
	_ = rm.AddAdminUser(&room.User{VerifyingKey: owner, Date: 0, Enabled: true})
	auth := room.NewAuthorisation([]byte("auth"), 0)
	_ = auth.AddUser(&room.User{VerifyingKey: owner, Date: 0, Enabled: true})
	_ = auth.AddRight(&room.EntityRight{ValidFrom: 0, Entity: "Person", MutateSelf: true})
	_ = rm.AddAuth(auth)
	return rm
}

func TestDeleteNotAllowedForAdministrativeEntities(t *testing.T) {
	signer, err := crypto.GenerateSigner()
	require.NoError(t, err)

	q := &DeletionQuery{Nodes: []*NodeDeletion{{Entity: graph.EntityRoom, NodeID: []byte("r1")}}}
	_, err = NewValidator().ValidateDeletion(mutation.MapLookup{}, signer, 0, q)
	assert.ErrorIs(t, err, room.ErrDeleteNotAllowed)
}

func TestUnrootedNodeDeletionAllowedUnconditionally(t *testing.T) {
	signer, err := crypto.GenerateSigner()
	require.NoError(t, err)

	q := &DeletionQuery{Nodes: []*NodeDeletion{{Entity: "Person", NodeID: []byte("p1")}}}
	res, err := NewValidator().ValidateDeletion(mutation.MapLookup{}, signer, 100, q)
	require.NoError(t, err)
	require.Len(t, res.NodeEntries, 1)
	assert.NoError(t, res.NodeEntries[0].Verify())
}

func TestOwnerCanDeleteOwnRowUsingItsOwnDate(t *testing.T) {
	signer, err := crypto.GenerateSigner()
	require.NoError(t, err)
	owner := signer.VerifyingKey()

	rm := roomWithOwnerRight([]byte("room1"), owner)
	lookup := mutation.MapLookup{base64.StdEncoding.EncodeToString(rm.ID): rm}

	q := &DeletionQuery{Nodes: []*NodeDeletion{{Entity: "Person", RoomID: rm.ID, NodeID: []byte("p1"), Signer: owner, Date: 10}}}
	_, err = NewValidator().ValidateDeletion(lookup, signer, 1000, q)
	assert.NoError(t, err)
}

func TestStrangerCannotDeleteOthersRowWithoutMutateAll(t *testing.T) {
	signer, err := crypto.GenerateSigner()
	require.NoError(t, err)
	owner := signer.VerifyingKey()

	rm := roomWithOwnerRight([]byte("room1"), owner)
	lookup := mutation.MapLookup{base64.StdEncoding.EncodeToString(rm.ID): rm}

	stranger, err := crypto.GenerateSigner()
	require.NoError(t, err)

	q := &DeletionQuery{Nodes: []*NodeDeletion{{Entity: "Person", RoomID: rm.ID, NodeID: []byte("p1"), Signer: owner, Date: 10}}}
	_, err = NewValidator().ValidateDeletion(lookup, stranger, 1000, q)
	var verr *room.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, room.KindAuthorisationRejected, verr.Kind)
}
