// Package roomsync implements the room-node reconciler (§4.4): the
// merge of a locally held room subgraph with a remote one under
// append-only, admin-authorised rules.
package roomsync

import "github.com/discretgraph/graphauth/internal/graph"

// Edge labels match the InsertEntity sub-node field names a mutation
// is keyed by (internal/mutation.roommutation.go, internal/authservice
// .collectRows), so a RoomNode rebuilt from the store by BuildRoomNode
// lines up with one assembled from a freshly validated mutation.
const (
	labelAdmin     = "admin"
	labelUserAdmin = "user_admin"
	labelAuth      = "authorisations"
	labelRights    = "rights"
	labelUsers     = "users"
)

// UserNode is a UserAuth row as carried inside a RoomNode or
// AuthorisationNode.
type UserNode struct {
	Node *graph.Node
}

// EntityRightNode is an EntityRight row as carried inside an
// AuthorisationNode.
type EntityRightNode struct {
	Node *graph.Node
}

// AuthorisationNode is an Authorisation row plus its right and user
// sub-nodes and the edges connecting them.
type AuthorisationNode struct {
	Node *graph.Node

	RightEdges []*graph.Edge
	RightNodes []*EntityRightNode

	UserEdges []*graph.Edge
	UserNodes []*UserNode
}

// RoomNode is the external serialisation of a room's subgraph: the
// Room row, its admin/user_admin/authorisation edges and nodes.
type RoomNode struct {
	Node *graph.Node

	AdminEdges []*graph.Edge
	AdminNodes []*UserNode

	UserAdminEdges []*graph.Edge
	UserAdminNodes []*UserNode

	AuthEdges []*graph.Edge
	AuthNodes []*AuthorisationNode
}

func idKey(b []byte) string { return string(b) }

func (a *AuthorisationNode) findRightNode(id []byte) (*EntityRightNode, bool) {
	for _, n := range a.RightNodes {
		if idKey(n.Node.ID) == idKey(id) {
			return n, true
		}
	}
	return nil, false
}

func (a *AuthorisationNode) findUserNode(id []byte) (*UserNode, bool) {
	for _, n := range a.UserNodes {
		if idKey(n.Node.ID) == idKey(id) {
			return n, true
		}
	}
	return nil, false
}

func (rn *RoomNode) findAdminNode(id []byte) (*UserNode, bool) {
	for _, n := range rn.AdminNodes {
		if idKey(n.Node.ID) == idKey(id) {
			return n, true
		}
	}
	return nil, false
}

func (rn *RoomNode) findUserAdminNode(id []byte) (*UserNode, bool) {
	for _, n := range rn.UserAdminNodes {
		if idKey(n.Node.ID) == idKey(id) {
			return n, true
		}
	}
	return nil, false
}

func (rn *RoomNode) findAuthNode(id []byte) (*AuthorisationNode, bool) {
	for _, n := range rn.AuthNodes {
		if idKey(n.Node.ID) == idKey(id) {
			return n, true
		}
	}
	return nil, false
}
