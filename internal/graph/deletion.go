package graph

import (
	"fmt"

	"github.com/discretgraph/graphauth/internal/crypto"
)

// NodeDeletionEntry is a signed tombstone recording that a node was
// removed, so peers that have not yet seen the deletion can reconcile
// it instead of treating the missing row as data loss.
type NodeDeletionEntry struct {
	RoomID       []byte
	NodeID       []byte
	DeletedAt    int64
	VerifyingKey []byte
	Signature    []byte
}

// BuildNodeDeletionEntry signs a NodeDeletionEntry for node in room, deleted at now by
// signer.
func BuildNodeDeletionEntry(signer crypto.Signer, roomID, nodeID []byte, now int64) (*NodeDeletionEntry, error) {
	e := &NodeDeletionEntry{RoomID: roomID, NodeID: nodeID, DeletedAt: now, VerifyingKey: signer.VerifyingKey()}
	sig, err := signer.Sign(e.signingBytes())
	if err != nil {
		return nil, fmt.Errorf("graph: sign node deletion entry: %w", err)
	}
	e.Signature = sig
	return e, nil
}

func (e *NodeDeletionEntry) signingBytes() []byte {
	return signingBytes(e.NodeID, "nd", e.DeletedAt, e.DeletedAt, e.RoomID, e.VerifyingKey, nil)
}

// Verify checks the entry's signature.
func (e *NodeDeletionEntry) Verify() error {
	return crypto.Verify(e.VerifyingKey, e.signingBytes(), e.Signature)
}

// EdgeDeletionEntry is a signed tombstone for a removed edge.
type EdgeDeletionEntry struct {
	RoomID       []byte
	Src          []byte
	Label        string
	Dest         []byte
	DeletedAt    int64
	VerifyingKey []byte
	Signature    []byte
}

// BuildEdgeDeletionEntry signs an EdgeDeletionEntry for the edge
// src-label->dest, deleted at now by signer.
func BuildEdgeDeletionEntry(signer crypto.Signer, roomID, src []byte, label string, dest []byte, now int64) (*EdgeDeletionEntry, error) {
	e := &EdgeDeletionEntry{RoomID: roomID, Src: src, Label: label, Dest: dest, DeletedAt: now, VerifyingKey: signer.VerifyingKey()}
	sig, err := signer.Sign(e.signingBytes())
	if err != nil {
		return nil, fmt.Errorf("graph: sign edge deletion entry: %w", err)
	}
	e.Signature = sig
	return e, nil
}

func (e *EdgeDeletionEntry) signingBytes() []byte {
	body := append(append([]byte{}, e.Src...), []byte(e.Label)...)
	body = append(body, e.Dest...)
	return signingBytes(e.Src, "ed", e.DeletedAt, e.DeletedAt, e.RoomID, e.VerifyingKey, body)
}

// Verify checks the entry's signature.
func (e *EdgeDeletionEntry) Verify() error {
	return crypto.Verify(e.VerifyingKey, e.signingBytes(), e.Signature)
}
