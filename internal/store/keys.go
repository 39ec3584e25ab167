package store

import "encoding/base64"

// Key naming scheme for the row store.
//
// node:<entity short name>:<id>        - a signed graph.Node
// edge:<src>:<label>:<dest>            - a signed graph.Edge
// ndel:<room>:<node id>                - a NodeDeletionEntry tombstone
// edel:<room>:<src>:<label>:<dest>     - an EdgeDeletionEntry tombstone
// room:<id>                            - the canonical JSON snapshot of a room

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func NodeKey(entityShort string, id []byte) string {
	return "node:" + entityShort + ":" + b64(id)
}

func EdgeKey(src []byte, label string, dest []byte) string {
	return "edge:" + b64(src) + ":" + label + ":" + b64(dest)
}

// EdgeLabelPrefix is the Scan prefix covering every edge from src
// carrying label, the indexed (source, label) read the authorisation
// engine uses to rebuild a room's subgraph without a full table scan.
func EdgeLabelPrefix(src []byte, label string) string {
	return "edge:" + b64(src) + ":" + label + ":"
}

func NodeDeletionKey(roomID, nodeID []byte) string {
	return "ndel:" + b64(roomID) + ":" + b64(nodeID)
}

func EdgeDeletionKey(roomID, src []byte, label string, dest []byte) string {
	return "edel:" + b64(roomID) + ":" + b64(src) + ":" + label + ":" + b64(dest)
}

func RoomSnapshotKey(id []byte) string {
	return "room:" + b64(id)
}
