package roomsync

import (
	"bytes"
	"sort"

	"github.com/discretgraph/graphauth/internal/graph"
)

func nodeEqual(a, b *graph.Node) bool {
	return bytes.Equal(a.ID, b.ID) &&
		a.Entity == b.Entity &&
		a.CDate == b.CDate &&
		a.MDate == b.MDate &&
		bytes.Equal(a.RoomID, b.RoomID) &&
		bytes.Equal(a.VerifyingKey, b.VerifyingKey) &&
		bytes.Equal(a.JSON, b.JSON) &&
		bytes.Equal(a.Signature, b.Signature)
}

// mergeEdgesByDest unions two edge lists belonging to the same
// collection, deduplicating by destination id with remote edges
// taking priority (their content is identical by construction — only
// local-only edges are carried forward), and sorts the result by
// creation date ascending so both peers converge on the same byte
// encoding after a round trip.
func mergeEdgesByDest(remote, local []*graph.Edge) []*graph.Edge {
	seen := make(map[string]struct{}, len(remote))
	out := append([]*graph.Edge{}, remote...)
	for _, e := range remote {
		seen[idKey(e.Dest)] = struct{}{}
	}
	for _, e := range local {
		if _, ok := seen[idKey(e.Dest)]; !ok {
			out = append(out, e)
			seen[idKey(e.Dest)] = struct{}{}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CDate < out[j].CDate })
	return out
}

// mergeUserNodes unions two UserNode lists by id, rejecting any
// collision that is not byte-identical (append-only immutability).
// fresh lists the merged nodes absent from local — candidates the
// caller must still authorise before accepting the merge.
func mergeUserNodes(remote, local []*UserNode) (merged, fresh []*UserNode, err error) {
	byID := make(map[string]*UserNode, len(remote))
	for _, n := range remote {
		byID[idKey(n.Node.ID)] = n
	}
	merged = append(merged, remote...)

	localByID := make(map[string]*UserNode, len(local))
	for _, n := range local {
		localByID[idKey(n.Node.ID)] = n
		if existing, ok := byID[idKey(n.Node.ID)]; ok {
			if !nodeEqual(existing.Node, n.Node) {
				return nil, nil, mutationErr("user node", "User nodes cannot be mutated")
			}
			continue
		}
		merged = append(merged, n)
		byID[idKey(n.Node.ID)] = n
	}

	for _, n := range merged {
		if _, ok := localByID[idKey(n.Node.ID)]; !ok {
			fresh = append(fresh, n)
		}
	}
	return sortedUserNodes(merged), fresh, nil
}

// mergeRightNodes is mergeUserNodes' twin for EntityRightNode
// collections.
func mergeRightNodes(remote, local []*EntityRightNode) (merged, fresh []*EntityRightNode, err error) {
	byID := make(map[string]*EntityRightNode, len(remote))
	for _, n := range remote {
		byID[idKey(n.Node.ID)] = n
	}
	merged = append(merged, remote...)

	localByID := make(map[string]*EntityRightNode, len(local))
	for _, n := range local {
		localByID[idKey(n.Node.ID)] = n
		if existing, ok := byID[idKey(n.Node.ID)]; ok {
			if !nodeEqual(existing.Node, n.Node) {
				return nil, nil, mutationErr("right node", "Right nodes cannot be mutated")
			}
			continue
		}
		merged = append(merged, n)
		byID[idKey(n.Node.ID)] = n
	}

	for _, n := range merged {
		if _, ok := localByID[idKey(n.Node.ID)]; !ok {
			fresh = append(fresh, n)
		}
	}
	return sortedRightNodes(merged), fresh, nil
}

func mutationErr(what, detail string) error {
	return &immutabilityError{what: what, detail: detail}
}

type immutabilityError struct {
	what   string
	detail string
}

func (e *immutabilityError) Error() string { return "roomsync: invalid node: " + e.detail }
func (e *immutabilityError) Unwrap() error { return ErrInvalidNode }
