package roomsync

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/discretgraph/graphauth/internal/crypto"
	"github.com/discretgraph/graphauth/internal/graph"
)

func mustSigner(t *testing.T) crypto.Signer {
	t.Helper()
	s, err := crypto.GenerateSigner()
	require.NoError(t, err)
	return s
}

func id(b byte) []byte { return []byte{b, b, b, b} }

func userNode(t *testing.T, signer crypto.Signer, nodeID []byte, roomID []byte, mdate int64, grantee crypto.Signer, enabled bool) *UserNode {
	t.Helper()
	body, err := graph.EncodeUserBody(grantee.VerifyingKey(), enabled)
	require.NoError(t, err)
	n := &graph.Node{ID: nodeID, Entity: graph.EntityUserAuth, CDate: mdate, MDate: mdate, RoomID: roomID, JSON: body}
	require.NoError(t, n.Sign(signer))
	return &UserNode{Node: n}
}

func rightNode(t *testing.T, signer crypto.Signer, nodeID []byte, roomID []byte, validFrom int64, entity string, mutateSelf, mutateAll bool) *EntityRightNode {
	t.Helper()
	body, err := graph.EncodeRightBody(entity, mutateSelf, mutateAll)
	require.NoError(t, err)
	n := &graph.Node{ID: nodeID, Entity: graph.EntityEntityRight, CDate: validFrom, MDate: validFrom, RoomID: roomID, JSON: body}
	require.NoError(t, n.Sign(signer))
	return &EntityRightNode{Node: n}
}

func edge(t *testing.T, signer crypto.Signer, src []byte, label string, dest []byte, cdate int64) *graph.Edge {
	t.Helper()
	e := &graph.Edge{Src: src, Label: label, Dest: dest, CDate: cdate}
	require.NoError(t, e.Sign(signer))
	return e
}

// buildRoom assembles a one-admin, one-authorisation RoomNode: admin
// is also the sole user of auth, which grants mutate_self over
// "Document".
func buildRoom(t *testing.T, owner crypto.Signer, roomID []byte, mdate int64) *RoomNode {
	t.Helper()
	adminID := append([]byte{0x01}, roomID...)
	admin := userNode(t, owner, adminID, roomID, mdate, owner, true)
	adminEdge := edge(t, owner, roomID, labelAdmin, adminID, mdate)

	authID := append([]byte{0x02}, roomID...)
	authUserID := append([]byte{0x03}, roomID...)
	authUser := userNode(t, owner, authUserID, roomID, mdate, owner, true)
	authUserEdge := edge(t, owner, authID, labelUsers, authUserID, mdate)

	rightID := append([]byte{0x04}, roomID...)
	right := rightNode(t, owner, rightID, roomID, mdate, "Document", true, false)
	rightEdge := edge(t, owner, authID, labelRights, rightID, mdate)

	authNode := &graph.Node{ID: authID, Entity: graph.EntityAuthorisation, CDate: mdate, MDate: mdate, RoomID: roomID}
	require.NoError(t, authNode.Sign(owner))
	auth := &AuthorisationNode{
		Node:       authNode,
		RightEdges: []*graph.Edge{rightEdge},
		RightNodes: []*EntityRightNode{right},
		UserEdges:  []*graph.Edge{authUserEdge},
		UserNodes:  []*UserNode{authUser},
	}
	authEdge := edge(t, owner, roomID, labelAuth, authID, mdate)

	rn := &graph.Node{ID: roomID, Entity: graph.EntityRoom, CDate: mdate, MDate: mdate}
	require.NoError(t, rn.Sign(owner))

	return &RoomNode{
		Node:       rn,
		AdminEdges: []*graph.Edge{adminEdge},
		AdminNodes: []*UserNode{admin},
		AuthEdges:  []*graph.Edge{authEdge},
		AuthNodes:  []*AuthorisationNode{auth},
	}
}

func TestCheckConsistencyRejectsTamperedSignature(t *testing.T) {
	owner := mustSigner(t)
	rn := buildRoom(t, owner, id(0x10), 100)
	rn.AdminNodes[0].Node.JSON = []byte(`{"verifying_key":"AAAA","enabled":true}`)
	require.ErrorIs(t, rn.CheckConsistency(), ErrInvalidNode)
}

func TestCheckConsistencyRejectsCountMismatch(t *testing.T) {
	owner := mustSigner(t)
	rn := buildRoom(t, owner, id(0x11), 100)
	rn.AdminEdges = nil
	require.ErrorIs(t, rn.CheckConsistency(), ErrInvalidNode)
}

func TestCheckConsistencyRejectsWrongEdgeSource(t *testing.T) {
	owner := mustSigner(t)
	rn := buildRoom(t, owner, id(0x12), 100)
	rn.AdminEdges[0] = edge(t, owner, id(0x99), labelAdmin, rn.AdminNodes[0].Node.ID, 100)
	require.ErrorIs(t, rn.CheckConsistency(), ErrInvalidNode)
}

func TestReconcileNewRoomAcceptsSelfConsistentBootstrap(t *testing.T) {
	owner := mustSigner(t)
	remote := buildRoom(t, owner, id(0x20), 100)

	merged, needsUpdate, err := Reconcile(nil, remote)
	require.NoError(t, err)
	require.True(t, needsUpdate)
	require.Same(t, remote, merged)
}

func TestReconcileNewRoomRejectsNonAdminSigner(t *testing.T) {
	owner := mustSigner(t)
	stranger := mustSigner(t)
	remote := buildRoom(t, owner, id(0x21), 100)

	remote.AuthNodes[0].UserNodes[0] = userNode(t, stranger, remote.AuthNodes[0].UserNodes[0].Node.ID, id(0x21), 100, owner, true)

	_, _, err := Reconcile(nil, remote)
	require.ErrorIs(t, err, ErrInvalidNode)
}

func TestReconcileExistingRoomAddsNewAdmin(t *testing.T) {
	owner := mustSigner(t)
	roomID := id(0x30)
	local := buildRoom(t, owner, roomID, 100)

	newAdminSigner := mustSigner(t)
	newAdminID := append([]byte{0x05}, roomID...)
	newAdmin := userNode(t, owner, newAdminID, roomID, 200, newAdminSigner, true)
	newAdminEdge := edge(t, owner, roomID, labelAdmin, newAdminID, 200)

	remote := buildRoom(t, owner, roomID, 100)
	remote.AdminNodes = append(remote.AdminNodes, newAdmin)
	remote.AdminEdges = append(remote.AdminEdges, newAdminEdge)

	merged, needsUpdate, err := Reconcile(local, remote)
	require.NoError(t, err)
	require.True(t, needsUpdate)
	require.Len(t, merged.AdminNodes, 2)
}

func TestReconcileExistingRoomRejectsAdminAddedByNonAdmin(t *testing.T) {
	owner := mustSigner(t)
	stranger := mustSigner(t)
	roomID := id(0x31)
	local := buildRoom(t, owner, roomID, 100)

	newAdminID := append([]byte{0x05}, roomID...)
	newAdmin := userNode(t, stranger, newAdminID, roomID, 200, stranger, true)
	newAdminEdge := edge(t, stranger, roomID, labelAdmin, newAdminID, 200)

	remote := buildRoom(t, owner, roomID, 100)
	remote.AdminNodes = append(remote.AdminNodes, newAdmin)
	remote.AdminEdges = append(remote.AdminEdges, newAdminEdge)

	_, _, err := Reconcile(local, remote)
	require.ErrorIs(t, err, ErrInvalidNode)
}

func TestReconcileExistingRoomRejectsMutatedAdminNode(t *testing.T) {
	owner := mustSigner(t)
	roomID := id(0x32)
	local := buildRoom(t, owner, roomID, 100)
	remote := buildRoom(t, owner, roomID, 100)
	// Same id, different signed content: a mutation of an
	// already-accepted node, which append-only history forbids.
	remote.AdminNodes[0] = userNode(t, owner, local.AdminNodes[0].Node.ID, roomID, 150, owner, false)

	_, _, err := Reconcile(local, remote)
	require.ErrorIs(t, err, ErrInvalidNode)
}

func TestReconcileNewAuthorisationInRemoteRequiresUserAdminForItsMembers(t *testing.T) {
	owner := mustSigner(t)
	roomID := id(0x40)
	local := buildRoom(t, owner, roomID, 100)
	remote := buildRoom(t, owner, roomID, 100)

	stranger := mustSigner(t)
	newAuthID := append([]byte{0x06}, roomID...)
	newAuthUserID := append([]byte{0x07}, roomID...)
	newAuthUser := userNode(t, stranger, newAuthUserID, roomID, 200, stranger, true)
	newAuthUserEdge := edge(t, stranger, newAuthID, labelUsers, newAuthUserID, 200)
	newAuthNode := &graph.Node{ID: newAuthID, Entity: graph.EntityAuthorisation, CDate: 200, MDate: 200, RoomID: roomID}
	require.NoError(t, newAuthNode.Sign(owner))
	newAuth := &AuthorisationNode{
		Node:      newAuthNode,
		UserEdges: []*graph.Edge{newAuthUserEdge},
		UserNodes: []*UserNode{newAuthUser},
	}
	newAuthEdge := edge(t, owner, roomID, labelAuth, newAuthID, 200)
	remote.AuthNodes = append(remote.AuthNodes, newAuth)
	remote.AuthEdges = append(remote.AuthEdges, newAuthEdge)

	// Rejected: the new authorisation's signer (owner) is an admin so
	// the authorisation itself is accepted, but its member was signed
	// by a verifying key the room never granted user_admin to, so the
	// membership row itself cannot be authorised.
	_, _, err := Reconcile(local, remote)
	require.ErrorIs(t, err, ErrInvalidNode)
}

func TestReconcileNewAuthorisationInRemoteAcceptedWhenMemberSignedByUserAdmin(t *testing.T) {
	owner := mustSigner(t)
	roomID := id(0x41)
	local := buildRoom(t, owner, roomID, 100)

	userAdminSigner := mustSigner(t)
	userAdminID := append([]byte{0x08}, roomID...)
	userAdminNode := userNode(t, owner, userAdminID, roomID, 150, userAdminSigner, true)
	userAdminEdge := edge(t, owner, roomID, labelUserAdmin, userAdminID, 150)
	local.UserAdminNodes = append(local.UserAdminNodes, userAdminNode)
	local.UserAdminEdges = append(local.UserAdminEdges, userAdminEdge)

	remote := buildRoom(t, owner, roomID, 100)
	remote.UserAdminNodes = append(remote.UserAdminNodes, userAdminNode)
	remote.UserAdminEdges = append(remote.UserAdminEdges, userAdminEdge)

	memberSigner := mustSigner(t)
	newAuthID := append([]byte{0x09}, roomID...)
	newAuthUserID := append([]byte{0x0a}, roomID...)
	newAuthUser := userNode(t, userAdminSigner, newAuthUserID, roomID, 200, memberSigner, true)
	newAuthUserEdge := edge(t, userAdminSigner, newAuthID, labelUsers, newAuthUserID, 200)
	newAuthNode := &graph.Node{ID: newAuthID, Entity: graph.EntityAuthorisation, CDate: 200, MDate: 200, RoomID: roomID}
	require.NoError(t, newAuthNode.Sign(owner))
	newAuth := &AuthorisationNode{
		Node:      newAuthNode,
		UserEdges: []*graph.Edge{newAuthUserEdge},
		UserNodes: []*UserNode{newAuthUser},
	}
	newAuthEdge := edge(t, owner, roomID, labelAuth, newAuthID, 200)
	remote.AuthNodes = append(remote.AuthNodes, newAuth)
	remote.AuthEdges = append(remote.AuthEdges, newAuthEdge)

	merged, needsUpdate, err := Reconcile(local, remote)
	require.NoError(t, err)
	require.True(t, needsUpdate)
	require.Len(t, merged.AuthNodes, 2)
}

func TestReconcileIsIdempotent(t *testing.T) {
	owner := mustSigner(t)
	roomID := id(0x50)
	local := buildRoom(t, owner, roomID, 100)
	remote := buildRoom(t, owner, roomID, 100)

	merged, needsUpdate, err := Reconcile(local, remote)
	require.NoError(t, err)
	require.False(t, needsUpdate)
	require.Len(t, merged.AdminNodes, 1)
	require.Len(t, merged.AuthNodes, 1)
}

func TestReconcileKeepsLocalHeaderWhenRemoteAuthorisationIsStale(t *testing.T) {
	owner := mustSigner(t)
	roomID := id(0x51)
	local := buildRoom(t, owner, roomID, 100)
	local.AuthNodes[0].Node.MDate = 500

	remote := buildRoom(t, owner, roomID, 100)
	// remote's authorisation header is older than local's.

	merged, _, err := Reconcile(local, remote)
	require.NoError(t, err)
	require.Equal(t, int64(500), merged.AuthNodes[0].Node.MDate)
}
