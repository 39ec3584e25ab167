package graph

import (
	"fmt"

	"github.com/discretgraph/graphauth/internal/crypto"
)

// Node is an opaque, signed row as seen by the row store: the
// authorisation engine never interprets Node.JSON itself beyond
// parsing it into a domain type where the spec calls for that; the
// row store persists Node/Edge/*DeletionEntry blindly.
type Node struct {
	ID           []byte
	Entity       string
	CDate        int64
	MDate        int64
	RoomID       []byte // nil for unrooted entities
	VerifyingKey []byte
	JSON         []byte // canonical body, already marshalled
	Signature    []byte
}

// Sign signs a Node, filling in VerifyingKey and Signature.
func (n *Node) Sign(signer crypto.Signer) error {
	n.VerifyingKey = signer.VerifyingKey()
	payload := signingBytes(n.ID, ShortName(n.Entity), n.CDate, n.MDate, n.RoomID, n.VerifyingKey, n.JSON)
	sig, err := signer.Sign(payload)
	if err != nil {
		return fmt.Errorf("graph: sign node %s: %w", n.Entity, err)
	}
	n.Signature = sig
	return nil
}

// Verify checks the node's signature against its own embedded
// verifying key.
func (n *Node) Verify() error {
	payload := signingBytes(n.ID, ShortName(n.Entity), n.CDate, n.MDate, n.RoomID, n.VerifyingKey, n.JSON)
	if err := crypto.Verify(n.VerifyingKey, payload, n.Signature); err != nil {
		return fmt.Errorf("graph: verify node %s %x: %w", n.Entity, n.ID, err)
	}
	return nil
}

// Edge is a signed, directed relationship between two nodes.
type Edge struct {
	Src          []byte
	Label        string
	Dest         []byte
	CDate        int64
	VerifyingKey []byte
	Signature    []byte
}

// Sign signs an Edge, filling in VerifyingKey and Signature.
func (e *Edge) Sign(signer crypto.Signer) error {
	e.VerifyingKey = signer.VerifyingKey()
	payload := edgeSigningBytes(e.Src, e.Label, e.Dest, e.CDate, e.VerifyingKey)
	sig, err := signer.Sign(payload)
	if err != nil {
		return fmt.Errorf("graph: sign edge %s: %w", e.Label, err)
	}
	e.Signature = sig
	return nil
}

// Verify checks the edge's signature against its own embedded
// verifying key.
func (e *Edge) Verify() error {
	payload := edgeSigningBytes(e.Src, e.Label, e.Dest, e.CDate, e.VerifyingKey)
	if err := crypto.Verify(e.VerifyingKey, payload, e.Signature); err != nil {
		return fmt.Errorf("graph: verify edge %s %x->%x: %w", e.Label, e.Src, e.Dest, err)
	}
	return nil
}
