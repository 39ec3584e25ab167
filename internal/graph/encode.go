package graph

import (
	"encoding/binary"
)

// signingBytes builds the canonical byte string a Node signature (and a
// deletion entry's) covers; edges use edgeSigningBytes below: id, entity short name, cdate, mdate, room id (if
// any), verifying key, then the canonical JSON body. The order is
// fixed; changing it is a wire-format break.
func signingBytes(id []byte, entityShort string, cdate, mdate int64, roomID, verifyingKey, body []byte) []byte {
	var dateBuf [8]byte
	out := make([]byte, 0, len(id)+len(entityShort)+16+len(roomID)+len(verifyingKey)+len(body))
	out = append(out, id...)
	out = append(out, entityShort...)

	binary.BigEndian.PutUint64(dateBuf[:], uint64(cdate))
	out = append(out, dateBuf[:]...)
	binary.BigEndian.PutUint64(dateBuf[:], uint64(mdate))
	out = append(out, dateBuf[:]...)

	if len(roomID) > 0 {
		out = append(out, roomID...)
	}
	out = append(out, verifyingKey...)
	out = append(out, body...)
	return out
}

// edgeSigningBytes builds the canonical byte string an Edge signature
// covers: source, label, destination, creation date, verifying key.
func edgeSigningBytes(src []byte, label string, dest []byte, cdate int64, verifyingKey []byte) []byte {
	var dateBuf [8]byte
	out := make([]byte, 0, len(src)+len(label)+len(dest)+8+len(verifyingKey))
	out = append(out, src...)
	out = append(out, label...)
	out = append(out, dest...)
	binary.BigEndian.PutUint64(dateBuf[:], uint64(cdate))
	out = append(out, dateBuf[:]...)
	out = append(out, verifyingKey...)
	return out
}
