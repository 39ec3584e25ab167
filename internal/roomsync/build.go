package roomsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/discretgraph/graphauth/internal/graph"
	"github.com/discretgraph/graphauth/internal/store"
)

// BuildRoomNode reads a room's admin/user_admin/authorisation subgraph
// back out of rows and assembles it into a RoomNode ready to export to
// a peer. It is the read half of the round trip spec.md §8 names
// (parse_room_node(build_room_node(room)) ≡ room); the write half is
// internal/writer's RoomNodeRequest staging, which already persists a
// RoomNode's nodes and edges under the same keys this reads back, and
// an ordinary room-shaping Mutation, which persists the same node/edge
// shape via RoomMutationRequest. Grounded on authorisation_sync.rs's
// RoomNode::read and the teacher's RawKVStore prefix-scan idiom for
// rebuilding a row's neighbourhood from a key-value store.
func BuildRoomNode(ctx context.Context, rows store.RowStore, roomID []byte) (*RoomNode, error) {
	roomRow, err := getNode(ctx, rows, graph.EntityRoom, roomID)
	if err != nil {
		return nil, err
	}

	adminEdges, adminNodes, err := readUserCollection(ctx, rows, roomID, labelAdmin)
	if err != nil {
		return nil, err
	}
	userAdminEdges, userAdminNodes, err := readUserCollection(ctx, rows, roomID, labelUserAdmin)
	if err != nil {
		return nil, err
	}
	authEdges, authNodes, err := readAuthCollection(ctx, rows, roomID)
	if err != nil {
		return nil, err
	}

	return &RoomNode{
		Node:           roomRow,
		AdminEdges:     adminEdges,
		AdminNodes:     adminNodes,
		UserAdminEdges: userAdminEdges,
		UserAdminNodes: userAdminNodes,
		AuthEdges:      authEdges,
		AuthNodes:      authNodes,
	}, nil
}

// readAuthCollection reads a room's authorisation edges and, for each
// destination, the Authorisation node plus its own users and rights
// sub-collections.
func readAuthCollection(ctx context.Context, rows store.RowStore, roomID []byte) ([]*graph.Edge, []*AuthorisationNode, error) {
	edges, err := scanEdges(ctx, rows, roomID, labelAuth)
	if err != nil {
		return nil, nil, err
	}

	nodes := make([]*AuthorisationNode, 0, len(edges))
	for _, e := range edges {
		authRow, err := getNode(ctx, rows, graph.EntityAuthorisation, e.Dest)
		if err != nil {
			return nil, nil, err
		}
		userEdges, userNodes, err := readUserCollection(ctx, rows, authRow.ID, labelUsers)
		if err != nil {
			return nil, nil, err
		}
		rightEdges, rightNodes, err := readRightCollection(ctx, rows, authRow.ID)
		if err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, &AuthorisationNode{
			Node:       authRow,
			RightEdges: rightEdges,
			RightNodes: rightNodes,
			UserEdges:  userEdges,
			UserNodes:  userNodes,
		})
	}
	return edges, nodes, nil
}

// readUserCollection reads the (edges, UserAuth nodes) pair for one
// parent/label combination: a room's admins or user_admins, or an
// authorisation's users.
func readUserCollection(ctx context.Context, rows store.RowStore, parentID []byte, label string) ([]*graph.Edge, []*UserNode, error) {
	edges, err := scanEdges(ctx, rows, parentID, label)
	if err != nil {
		return nil, nil, err
	}
	nodes := make([]*UserNode, 0, len(edges))
	for _, e := range edges {
		n, err := getNode(ctx, rows, graph.EntityUserAuth, e.Dest)
		if err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, &UserNode{Node: n})
	}
	return edges, nodes, nil
}

// readRightCollection reads an authorisation's rights edges and nodes.
func readRightCollection(ctx context.Context, rows store.RowStore, authID []byte) ([]*graph.Edge, []*EntityRightNode, error) {
	edges, err := scanEdges(ctx, rows, authID, labelRights)
	if err != nil {
		return nil, nil, err
	}
	nodes := make([]*EntityRightNode, 0, len(edges))
	for _, e := range edges {
		n, err := getNode(ctx, rows, graph.EntityEntityRight, e.Dest)
		if err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, &EntityRightNode{Node: n})
	}
	return edges, nodes, nil
}

// scanEdges returns every edge stored under the (src, label) index, in
// whatever order the underlying engine yields keys (lexicographic by
// destination id); callers that need a stable order sort afterward.
func scanEdges(ctx context.Context, rows store.RowStore, src []byte, label string) ([]*graph.Edge, error) {
	prefix := store.EdgeLabelPrefix(src, label)
	var edges []*graph.Edge
	var scanErr error
	err := rows.Scan(ctx, prefix, "", func(key string, val []byte) bool {
		var e graph.Edge
		if err := json.Unmarshal(val, &e); err != nil {
			scanErr = fmt.Errorf("roomsync: decode edge %q: %w", key, err)
			return false
		}
		edges = append(edges, &e)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("roomsync: scan edges %q: %w", prefix, err)
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return edges, nil
}

// getNode fetches and decodes a single node by entity kind and id.
func getNode(ctx context.Context, rows store.RowStore, entity string, id []byte) (*graph.Node, error) {
	key := store.NodeKey(graph.ShortName(entity), id)
	val, err := rows.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("roomsync: get node %q: %w", key, err)
	}
	var n graph.Node
	if err := json.Unmarshal(val, &n); err != nil {
		return nil, fmt.Errorf("roomsync: decode node %q: %w", key, err)
	}
	return &n, nil
}
