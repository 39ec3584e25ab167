// Package room implements the in-memory authorisation graph: Room,
// Authorisation, User and EntityRight, the append-only temporal
// sequences that back them, and the derived predicates the validators
// and reconciler evaluate against.
package room

import "encoding/base64"

// RightKind distinguishes the two grant shapes a right record can
// carry. A single EntityRight record can grant both.
type RightKind int

const (
	RightMutateSelf RightKind = iota
	RightMutateAll
)

// User is a temporal enable/disable marker for one verifying key
// inside a scope (room admin/user_admin, or authorisation user).
type User struct {
	VerifyingKey []byte
	Date         int64
	Enabled      bool
}

// EntityRight is a temporal grant of mutate_self and/or mutate_all
// over one entity kind, valid from ValidFrom onward until superseded
// by a later record for the same entity.
type EntityRight struct {
	ValidFrom  int64
	Entity     string
	MutateSelf bool
	MutateAll  bool
}

// Grants reports whether this right satisfies kind.
func (r *EntityRight) Grants(kind RightKind) bool {
	if r == nil {
		return false
	}
	switch kind {
	case RightMutateSelf:
		return r.MutateSelf
	case RightMutateAll:
		return r.MutateAll
	default:
		return false
	}
}

// Authorisation is a named subset of principals with per-entity
// rights within a Room.
type Authorisation struct {
	ID     []byte
	MDate  int64
	Users  map[string][]*User        // keyed by base64(verifying key)
	Rights map[string][]*EntityRight // keyed by entity name
}

// NewAuthorisation returns an empty Authorisation with id.
func NewAuthorisation(id []byte, mdate int64) *Authorisation {
	return &Authorisation{ID: id, MDate: mdate, Users: map[string][]*User{}, Rights: map[string][]*EntityRight{}}
}

// Room is the root of an authorisation scope: a set of admins,
// user-admins, and named authorisations, each governing rights over
// entity kinds.
type Room struct {
	ID             []byte
	MDate          int64
	Parent         []byte // nil for a root room
	Admins         map[string][]*User
	UserAdmins     map[string][]*User
	Authorisations map[string]*Authorisation // keyed by base64(id)
}

// NewRoom returns an empty Room with id and optional parent (nil for a
// root room).
func NewRoom(id, parent []byte, mdate int64) *Room {
	return &Room{
		ID:             id,
		MDate:          mdate,
		Parent:         parent,
		Admins:         map[string][]*User{},
		UserAdmins:     map[string][]*User{},
		Authorisations: map[string]*Authorisation{},
	}
}

func keyOf(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Auth looks up an authorisation by id.
func (rm *Room) Auth(id []byte) (*Authorisation, bool) {
	a, ok := rm.Authorisations[keyOf(id)]
	return a, ok
}
