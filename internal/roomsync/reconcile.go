package roomsync

import (
	"fmt"

	"github.com/discretgraph/graphauth/internal/graph"
	"github.com/discretgraph/graphauth/internal/room"
)

// Reconcile merges remote into local, the room-node reconciliation
// protocol of the authorisation engine. local is nil when the room is
// not yet known to this peer. It returns the merged RoomNode, whether
// it differs from local (so the caller knows whether to persist and
// emit a RoomModified event), and an error if remote cannot be trusted
// as-is.
//
// remote is always consistency-checked before its contents are
// examined. Every newly admitted admin, user_admin or authorisation
// header is authorised against the room state as it stood at the
// point that entry was reached — admins and user_admins are verified
// first and folded into the authority used to judge authorisations,
// matching the order a human reviewer would apply them in.
func Reconcile(local, remote *RoomNode) (*RoomNode, bool, error) {
	if err := remote.CheckConsistency(); err != nil {
		return nil, false, err
	}
	if local == nil {
		return reconcileNewRoom(remote)
	}
	return reconcileExistingRoom(local, remote)
}

// reconcileNewRoom accepts remote as the seed of a room this peer has
// never seen. Since there is no prior authority to appeal to, every
// signer in the subgraph — including every user and right nested
// inside an authorisation — must be an admin at the mdate of the row
// it signed.
func reconcileNewRoom(remote *RoomNode) (*RoomNode, bool, error) {
	transient, err := ParseRoomNode(remote)
	if err != nil {
		return nil, false, err
	}

	for _, n := range remote.AdminNodes {
		if !transient.IsAdmin(n.Node.VerifyingKey, n.Node.MDate) {
			return nil, false, bootstrapErr("admin")
		}
	}
	for _, n := range remote.UserAdminNodes {
		if !transient.IsAdmin(n.Node.VerifyingKey, n.Node.MDate) {
			return nil, false, bootstrapErr("user_admin")
		}
	}
	for _, an := range remote.AuthNodes {
		if !transient.IsAdmin(an.Node.VerifyingKey, an.Node.MDate) {
			return nil, false, bootstrapErr("authorisation")
		}
		for _, un := range an.UserNodes {
			if !transient.IsAdmin(un.Node.VerifyingKey, un.Node.MDate) {
				return nil, false, bootstrapErr("authorisation user")
			}
		}
		for _, rn := range an.RightNodes {
			if !transient.IsAdmin(rn.Node.VerifyingKey, rn.Node.MDate) {
				return nil, false, bootstrapErr("authorisation right")
			}
		}
	}

	return remote, true, nil
}

func bootstrapErr(what string) error {
	return fmt.Errorf("%w: new room bootstrap: %s signer is not an admin at its own mdate", ErrInvalidNode, what)
}

// reconcileExistingRoom merges remote into local, a room this peer
// already holds. clonedRoom starts as local's parsed, trusted state
// and is grown admin-by-admin and user_admin-by-user_admin as new
// entries are authorised, so an authorisation user or right minted by a
// user_admin who only arrived in this same remote update is still
// honoured.
func reconcileExistingRoom(local, remote *RoomNode) (*RoomNode, bool, error) {
	clonedRoom, err := ParseRoomNode(local)
	if err != nil {
		return nil, false, err
	}

	needsUpdate := false

	adminNodes, freshAdmins, err := mergeUserNodes(remote.AdminNodes, local.AdminNodes)
	if err != nil {
		return nil, false, err
	}
	for _, n := range freshAdmins {
		if !clonedRoom.IsAdmin(n.Node.VerifyingKey, n.Node.MDate) {
			return nil, false, authorityErr("admin")
		}
		u, perr := parseUser(n)
		if perr != nil {
			return nil, false, perr
		}
		if err := clonedRoom.AddAdminUser(u); err != nil {
			return nil, false, fmt.Errorf("roomsync: %w", err)
		}
		needsUpdate = true
	}
	adminEdges := mergeEdgesByDest(remote.AdminEdges, local.AdminEdges)

	userAdminNodes, freshUserAdmins, err := mergeUserNodes(remote.UserAdminNodes, local.UserAdminNodes)
	if err != nil {
		return nil, false, err
	}
	for _, n := range freshUserAdmins {
		// New user_admins are minted by admins, same as new admins.
		if !clonedRoom.IsAdmin(n.Node.VerifyingKey, n.Node.MDate) {
			return nil, false, authorityErr("user_admin")
		}
		u, perr := parseUser(n)
		if perr != nil {
			return nil, false, perr
		}
		if err := clonedRoom.AddUserAdminUser(u); err != nil {
			return nil, false, fmt.Errorf("roomsync: %w", err)
		}
		needsUpdate = true
	}
	userAdminEdges := mergeEdgesByDest(remote.UserAdminEdges, local.UserAdminEdges)

	authNodes, authEdges, authChanged, err := reconcileAuthorisations(clonedRoom, local, remote)
	if err != nil {
		return nil, false, err
	}
	needsUpdate = needsUpdate || authChanged

	merged := &RoomNode{
		Node:           remote.Node,
		AdminEdges:     adminEdges,
		AdminNodes:     adminNodes,
		UserAdminEdges: userAdminEdges,
		UserAdminNodes: userAdminNodes,
		AuthEdges:      authEdges,
		AuthNodes:      authNodes,
	}
	if remote.Node.MDate <= local.Node.MDate {
		merged.Node = local.Node
	} else {
		needsUpdate = true
	}

	if _, err := ParseRoomNode(merged); err != nil {
		return nil, false, err
	}

	return merged, needsUpdate, nil
}

func authorityErr(what string) error {
	return fmt.Errorf("%w: new %s signer is not an admin of the room", ErrInvalidNode, what)
}

// reconcileAuthorisations unions the authorisation collections of
// local and remote. Authorisations present only locally are carried
// forward untouched. Authorisations present in both keep whichever
// header is newer by mdate, but always recurse into content
// reconciliation so a stale header doesn't shadow new members. An
// authorisation present only in remote is treated exactly like an
// empty local counterpart, so every user and right inside it is
// "fresh" and judged by the same is_user_admin rule as an update to an
// existing authorisation.
func reconcileAuthorisations(clonedRoom *room.Room, local, remote *RoomNode) ([]*AuthorisationNode, []*graph.Edge, bool, error) {
	changed := false
	byID := make(map[string]*AuthorisationNode, len(remote.AuthNodes)+len(local.AuthNodes))
	var order [][]byte

	for _, ra := range remote.AuthNodes {
		if !clonedRoom.IsAdmin(ra.Node.VerifyingKey, ra.Node.MDate) {
			return nil, nil, false, fmt.Errorf("%w: authorisation signer is not an admin of the room", ErrInvalidNode)
		}

		localAuth, existsLocally := local.findAuthNode(ra.Node.ID)
		merged, authChanged, err := reconcileAuthorisationContents(clonedRoom, localAuth, ra)
		if err != nil {
			return nil, nil, false, err
		}
		if !existsLocally {
			authChanged = true
		} else if ra.Node.MDate > localAuth.Node.MDate {
			merged.Node = ra.Node
			authChanged = true
		} else {
			merged.Node = localAuth.Node
		}
		changed = changed || authChanged
		byID[idKey(ra.Node.ID)] = merged
		order = append(order, ra.Node.ID)
	}

	for _, la := range local.AuthNodes {
		if _, ok := byID[idKey(la.Node.ID)]; ok {
			continue
		}
		byID[idKey(la.Node.ID)] = la
		order = append(order, la.Node.ID)
	}

	out := make([]*AuthorisationNode, 0, len(order))
	for _, id := range order {
		out = append(out, byID[idKey(id)])
	}
	out = sortedAuthNodes(out)

	return out, mergeEdgesByDest(remote.AuthEdges, local.AuthEdges), changed, nil
}

// reconcileAuthorisationContents unions an authorisation's user and
// right collections. local may be nil, meaning remote is new to this
// peer in its entirety — every user and right is then "fresh" and
// subject to the same is_user_admin check as a genuinely new member
// of an existing authorisation.
func reconcileAuthorisationContents(clonedRoom *room.Room, local, remote *AuthorisationNode) (*AuthorisationNode, bool, error) {
	var localUsers []*UserNode
	var localUserEdges []*graph.Edge
	var localRights []*EntityRightNode
	var localRightEdges []*graph.Edge
	if local != nil {
		localUsers = local.UserNodes
		localUserEdges = local.UserEdges
		localRights = local.RightNodes
		localRightEdges = local.RightEdges
	}

	userNodes, freshUsers, err := mergeUserNodes(remote.UserNodes, localUsers)
	if err != nil {
		return nil, false, err
	}
	for _, n := range freshUsers {
		if !clonedRoom.IsUserAdmin(n.Node.VerifyingKey, n.Node.MDate) {
			return nil, false, fmt.Errorf("%w: new authorisation user signer is not a user_admin", ErrInvalidNode)
		}
	}

	rightNodes, freshRights, err := mergeRightNodes(remote.RightNodes, localRights)
	if err != nil {
		return nil, false, err
	}
	for _, n := range freshRights {
		if !clonedRoom.IsUserAdmin(n.Node.VerifyingKey, n.Node.MDate) {
			return nil, false, fmt.Errorf("%w: new authorisation right signer is not a user_admin", ErrInvalidNode)
		}
	}

	changed := len(freshUsers) > 0 || len(freshRights) > 0

	merged := &AuthorisationNode{
		Node:       remote.Node,
		RightEdges: mergeEdgesByDest(remote.RightEdges, localRightEdges),
		RightNodes: rightNodes,
		UserEdges:  mergeEdgesByDest(remote.UserEdges, localUserEdges),
		UserNodes:  userNodes,
	}
	return merged, changed, nil
}
