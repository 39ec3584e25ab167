package roomsync

import "errors"

// ErrInvalidNode is returned for any structural or signature failure
// surfaced during consistency checking or reconciliation: size
// mismatches, dangling edges, wrong edge sources, tampered signatures,
// or an append-only collision that isn't byte-equal.
var ErrInvalidNode = errors.New("roomsync: invalid node")
