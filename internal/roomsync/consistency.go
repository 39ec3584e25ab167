package roomsync

import (
	"bytes"
	"fmt"

	"github.com/discretgraph/graphauth/internal/graph"
)

// checkEdgeNodeCollection verifies one (edges, node ids) collection
// belonging to parentID: equal cardinality, every edge's own signature
// and source, and every edge's destination resolving to a node in the
// set.
func checkEdgeNodeCollection(parentID []byte, edges []*graph.Edge, nodeIDs [][]byte) error {
	if len(edges) != len(nodeIDs) {
		return fmt.Errorf("%w: %d edges but %d nodes", ErrInvalidNode, len(edges), len(nodeIDs))
	}
	nodeSet := make(map[string]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		nodeSet[idKey(id)] = struct{}{}
	}
	for _, e := range edges {
		if err := e.Verify(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidNode, err)
		}
		if !bytes.Equal(e.Src, parentID) {
			return fmt.Errorf("%w: edge source does not match parent id", ErrInvalidNode)
		}
		if _, ok := nodeSet[idKey(e.Dest)]; !ok {
			return fmt.Errorf("%w: edge destination has no matching node", ErrInvalidNode)
		}
	}
	return nil
}

// CheckConsistency verifies a's own signature, its right and user
// sub-nodes' signatures, and the edge/node shape connecting them to a.
func (a *AuthorisationNode) CheckConsistency() error {
	if err := a.Node.Verify(); err != nil {
		return fmt.Errorf("%w: authorisation node: %v", ErrInvalidNode, err)
	}

	rightIDs := make([][]byte, len(a.RightNodes))
	for i, n := range a.RightNodes {
		if err := n.Node.Verify(); err != nil {
			return fmt.Errorf("%w: right node: %v", ErrInvalidNode, err)
		}
		rightIDs[i] = n.Node.ID
	}
	if err := checkEdgeNodeCollection(a.Node.ID, a.RightEdges, rightIDs); err != nil {
		return err
	}

	userIDs := make([][]byte, len(a.UserNodes))
	for i, n := range a.UserNodes {
		if err := n.Node.Verify(); err != nil {
			return fmt.Errorf("%w: user node: %v", ErrInvalidNode, err)
		}
		userIDs[i] = n.Node.ID
	}
	return checkEdgeNodeCollection(a.Node.ID, a.UserEdges, userIDs)
}

// CheckConsistency verifies the room node's own signature, its
// admin/user_admin/auth collections, and recurses into every
// authorisation's own consistency check.
func (rn *RoomNode) CheckConsistency() error {
	if err := rn.Node.Verify(); err != nil {
		return fmt.Errorf("%w: room node: %v", ErrInvalidNode, err)
	}

	adminIDs := make([][]byte, len(rn.AdminNodes))
	for i, n := range rn.AdminNodes {
		if err := n.Node.Verify(); err != nil {
			return fmt.Errorf("%w: admin node: %v", ErrInvalidNode, err)
		}
		adminIDs[i] = n.Node.ID
	}
	if err := checkEdgeNodeCollection(rn.Node.ID, rn.AdminEdges, adminIDs); err != nil {
		return err
	}

	userAdminIDs := make([][]byte, len(rn.UserAdminNodes))
	for i, n := range rn.UserAdminNodes {
		if err := n.Node.Verify(); err != nil {
			return fmt.Errorf("%w: user_admin node: %v", ErrInvalidNode, err)
		}
		userAdminIDs[i] = n.Node.ID
	}
	if err := checkEdgeNodeCollection(rn.Node.ID, rn.UserAdminEdges, userAdminIDs); err != nil {
		return err
	}

	authIDs := make([][]byte, len(rn.AuthNodes))
	for i, a := range rn.AuthNodes {
		if err := a.CheckConsistency(); err != nil {
			return err
		}
		authIDs[i] = a.Node.ID
	}
	return checkEdgeNodeCollection(rn.Node.ID, rn.AuthEdges, authIDs)
}
