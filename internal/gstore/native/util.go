package native

import "encoding/binary"

func be32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

func putUint64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

func putUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }

// putAdjMeta writes the 24-byte adjacency-metadata sub-record for rec into
// buf, which must be exactly adjacencyMetaSize long.
func putAdjMeta(buf []byte, rec *nodeRecord) {
	binary.BigEndian.PutUint64(buf[0:8], rec.outgoingOffset)
	binary.BigEndian.PutUint64(buf[8:16], rec.incomingOffset)
	binary.BigEndian.PutUint32(buf[16:20], rec.outgoingCount)
	binary.BigEndian.PutUint32(buf[20:24], rec.incomingCount)
}
