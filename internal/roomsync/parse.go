package roomsync

import (
	"fmt"
	"sort"

	"github.com/discretgraph/graphauth/internal/graph"
	"github.com/discretgraph/graphauth/internal/room"
)

func sortedUserNodes(nodes []*UserNode) []*UserNode {
	out := append([]*UserNode{}, nodes...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Node.MDate < out[j].Node.MDate })
	return out
}

func sortedRightNodes(nodes []*EntityRightNode) []*EntityRightNode {
	out := append([]*EntityRightNode{}, nodes...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Node.MDate < out[j].Node.MDate })
	return out
}

func sortedAuthNodes(nodes []*AuthorisationNode) []*AuthorisationNode {
	out := append([]*AuthorisationNode{}, nodes...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Node.MDate < out[j].Node.MDate })
	return out
}

func parseUser(n *UserNode) (*room.User, error) {
	key, enabled, err := graph.DecodeUserBody(n.Node.JSON)
	if err != nil {
		return nil, fmt.Errorf("roomsync: %w", err)
	}
	return &room.User{VerifyingKey: key, Date: n.Node.MDate, Enabled: enabled}, nil
}

func parseRight(n *EntityRightNode) (*room.EntityRight, error) {
	entity, mutateSelf, mutateAll, err := graph.DecodeRightBody(n.Node.JSON)
	if err != nil {
		return nil, fmt.Errorf("roomsync: %w", err)
	}
	return &room.EntityRight{ValidFrom: n.Node.MDate, Entity: entity, MutateSelf: mutateSelf, MutateAll: mutateAll}, nil
}

func parseAuthorisation(an *AuthorisationNode) (*room.Authorisation, error) {
	auth := room.NewAuthorisation(an.Node.ID, an.Node.MDate)
	for _, n := range sortedRightNodes(an.RightNodes) {
		r, err := parseRight(n)
		if err != nil {
			return nil, err
		}
		if err := auth.AddRight(r); err != nil {
			return nil, fmt.Errorf("roomsync: %w", err)
		}
	}
	for _, n := range sortedUserNodes(an.UserNodes) {
		u, err := parseUser(n)
		if err != nil {
			return nil, err
		}
		if err := auth.AddUser(u); err != nil {
			return nil, fmt.Errorf("roomsync: %w", err)
		}
	}
	return auth, nil
}

// ParseRoomNode decodes a RoomNode's JSON bodies into a domain Room,
// appending every sub-record in mdate order so I1/I2 are re-validated.
// It does not itself check signatures or admin authority; callers run
// CheckConsistency and the reconciler's authority checks first.
func ParseRoomNode(rn *RoomNode) (*room.Room, error) {
	rm := room.NewRoom(rn.Node.ID, rn.Node.RoomID, rn.Node.MDate)

	for _, n := range sortedUserNodes(rn.AdminNodes) {
		u, err := parseUser(n)
		if err != nil {
			return nil, err
		}
		if err := rm.AddAdminUser(u); err != nil {
			return nil, fmt.Errorf("roomsync: %w", err)
		}
	}

	for _, n := range sortedUserNodes(rn.UserAdminNodes) {
		u, err := parseUser(n)
		if err != nil {
			return nil, err
		}
		if err := rm.AddUserAdminUser(u); err != nil {
			return nil, fmt.Errorf("roomsync: %w", err)
		}
	}

	for _, an := range sortedAuthNodes(rn.AuthNodes) {
		auth, err := parseAuthorisation(an)
		if err != nil {
			return nil, err
		}
		if err := rm.AddAuth(auth); err != nil {
			return nil, fmt.Errorf("roomsync: %w", err)
		}
	}

	return rm, nil
}
