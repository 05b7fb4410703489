package native

import (
	"encoding/binary"
	"encoding/json"

	"golang.org/x/crypto/blake2b"

	"github.com/orneryd/sqlitegraph/internal/gstore"
)

// recordChecksumSize is the width of the trailing per-record content
// checksum (spec.md §4.C, "record checksum where present"): the first 8
// bytes of a blake2b-256 digest of everything preceding it in the record,
// distinct from the header's wrapping-sum checksum in format.go.
const recordChecksumSize = 8

// recordChecksum returns the first 8 bytes of the blake2b-256 digest of buf
// as a big-endian uint64.
func recordChecksum(buf []byte) uint64 {
	sum := blake2b.Sum256(buf)
	return binary.BigEndian.Uint64(sum[:8])
}

// Node records carry 24 bytes of adjacency metadata, placed just before the
// record checksum (spec.md §4.A): the byte offset and live entry count of the node's outgoing and
// incoming postings blocks (see postings.go). A freshly inserted node has
// no postings block yet, so both offsets are 0 and both counts are 0.
const adjacencyMetaSize = 24

const nodeFlagHasFilePath uint32 = 1 << 0

// nodeRecord is the in-memory shape of one on-disk node record.
type nodeRecord struct {
	id       gstore.NodeID
	kind     string
	name     string
	filePath *string
	data     json.RawMessage

	outgoingOffset uint64
	incomingOffset uint64
	outgoingCount  uint32
	incomingCount  uint32
}

// encode serializes a node record, returning the bytes and the byte offset
// of the adjacency-metadata sub-record relative to the record's own start
// (needed later to patch counts/offsets in place without rewriting the
// whole record).
func (n *nodeRecord) encode() (buf []byte, adjMetaAt int) {
	kindB := []byte(n.kind)
	nameB := []byte(n.name)
	var fpB []byte
	var flags uint32
	if n.filePath != nil {
		flags |= nodeFlagHasFilePath
		fpB = []byte(*n.filePath)
	}
	if n.data == nil {
		n.data = json.RawMessage("{}")
	}

	fixed := 1 + 8 + 4 + 2 + 2 + 2 + 4
	total := fixed + len(kindB) + len(nameB) + len(fpB) + len(n.data) + adjacencyMetaSize + recordChecksumSize
	buf = make([]byte, total)

	buf[0] = 0x10 // version=1 (high nibble), flags=0 (low nibble): reserved for future per-record flags
	binary.BigEndian.PutUint64(buf[1:9], uint64(n.id))
	binary.BigEndian.PutUint32(buf[9:13], flags)
	binary.BigEndian.PutUint16(buf[13:15], uint16(len(kindB)))
	binary.BigEndian.PutUint16(buf[15:17], uint16(len(nameB)))
	binary.BigEndian.PutUint16(buf[17:19], uint16(len(fpB)))
	binary.BigEndian.PutUint32(buf[19:23], uint32(len(n.data)))

	off := fixed
	copy(buf[off:], kindB)
	off += len(kindB)
	copy(buf[off:], nameB)
	off += len(nameB)
	copy(buf[off:], fpB)
	off += len(fpB)
	copy(buf[off:], n.data)
	off += len(n.data)

	adjMetaAt = off
	binary.BigEndian.PutUint64(buf[off:off+8], n.outgoingOffset)
	binary.BigEndian.PutUint64(buf[off+8:off+16], n.incomingOffset)
	binary.BigEndian.PutUint32(buf[off+16:off+20], n.outgoingCount)
	binary.BigEndian.PutUint32(buf[off+20:off+24], n.incomingCount)
	off += adjacencyMetaSize

	binary.BigEndian.PutUint64(buf[off:off+recordChecksumSize], recordChecksum(buf[:off]))

	return buf, adjMetaAt
}

// decodeNodeRecord parses a node record starting at buf[0], returning the
// record, its total on-disk length, and the offset of its adjacency
// sub-record relative to the record start.
func decodeNodeRecord(buf []byte, id gstore.NodeID) (*nodeRecord, int, int, error) {
	if len(buf) < 23 {
		return nil, 0, 0, &gstore.CorruptRecord{ID: int64(id), Reason: "short node record"}
	}
	flags := binary.BigEndian.Uint32(buf[9:13])
	kindLen := int(binary.BigEndian.Uint16(buf[13:15]))
	nameLen := int(binary.BigEndian.Uint16(buf[15:17]))
	fpLen := int(binary.BigEndian.Uint16(buf[17:19]))
	dataLen := int(binary.BigEndian.Uint32(buf[19:23]))

	need := 23 + kindLen + nameLen + fpLen + dataLen + adjacencyMetaSize + recordChecksumSize
	if len(buf) < need {
		return nil, 0, 0, &gstore.CorruptRecord{ID: int64(id), Reason: "truncated node record"}
	}

	wantChecksum := binary.BigEndian.Uint64(buf[need-recordChecksumSize : need])
	if gotChecksum := recordChecksum(buf[:need-recordChecksumSize]); gotChecksum != wantChecksum {
		return nil, 0, 0, &gstore.CorruptRecord{ID: int64(id), Reason: "node record checksum mismatch"}
	}

	off := 23
	kind := string(buf[off : off+kindLen])
	off += kindLen
	name := string(buf[off : off+nameLen])
	off += nameLen
	var fp *string
	if flags&nodeFlagHasFilePath != 0 {
		s := string(buf[off : off+fpLen])
		fp = &s
	}
	off += fpLen
	data := append(json.RawMessage(nil), buf[off:off+dataLen]...)
	off += dataLen

	adjMetaAt := off
	rec := &nodeRecord{
		id:             id,
		kind:           kind,
		name:           name,
		filePath:       fp,
		data:           data,
		outgoingOffset: binary.BigEndian.Uint64(buf[off : off+8]),
		incomingOffset: binary.BigEndian.Uint64(buf[off+8 : off+16]),
		outgoingCount:  binary.BigEndian.Uint32(buf[off+16 : off+20]),
		incomingCount:  binary.BigEndian.Uint32(buf[off+20 : off+24]),
	}
	return rec, need, adjMetaAt, nil
}

// edgeRecord is the in-memory shape of one on-disk edge record, tagged with
// recordKindEdge so a sequential scan of the edge-data region can tell it
// apart from a postings block (see postings.go).
const recordKindEdge byte = 1

type edgeRecord struct {
	id     gstore.EdgeID
	source gstore.NodeID
	target gstore.NodeID
	etype  string
	data   json.RawMessage
}

func (e *edgeRecord) encode() []byte {
	typeB := []byte(e.etype)
	if e.data == nil {
		e.data = json.RawMessage("{}")
	}
	fixed := 1 + 8 + 8 + 8 + 2 + 2 + 4
	buf := make([]byte, fixed+len(typeB)+len(e.data)+recordChecksumSize)
	buf[0] = recordKindEdge
	binary.BigEndian.PutUint64(buf[1:9], uint64(e.id))
	binary.BigEndian.PutUint64(buf[9:17], uint64(e.source))
	binary.BigEndian.PutUint64(buf[17:25], uint64(e.target))
	binary.BigEndian.PutUint16(buf[25:27], uint16(len(typeB)))
	binary.BigEndian.PutUint16(buf[27:29], 0)
	binary.BigEndian.PutUint32(buf[29:33], uint32(len(e.data)))
	off := fixed
	copy(buf[off:], typeB)
	off += len(typeB)
	copy(buf[off:], e.data)
	off += len(e.data)

	binary.BigEndian.PutUint64(buf[off:off+recordChecksumSize], recordChecksum(buf[:off]))
	return buf
}

func decodeEdgeRecord(buf []byte) (*edgeRecord, int, error) {
	if len(buf) < 1 || buf[0] != recordKindEdge {
		return nil, 0, &gstore.CorruptRecord{Reason: "bad edge record tag"}
	}
	if len(buf) < 33 {
		return nil, 0, &gstore.CorruptRecord{Reason: "short edge record"}
	}
	id := gstore.EdgeID(binary.BigEndian.Uint64(buf[1:9]))
	source := gstore.NodeID(binary.BigEndian.Uint64(buf[9:17]))
	target := gstore.NodeID(binary.BigEndian.Uint64(buf[17:25]))
	typeLen := int(binary.BigEndian.Uint16(buf[25:27]))
	dataLen := int(binary.BigEndian.Uint32(buf[29:33]))
	need := 33 + typeLen + dataLen + recordChecksumSize
	if len(buf) < need {
		return nil, 0, &gstore.CorruptRecord{ID: int64(id), Reason: "truncated edge record"}
	}

	wantChecksum := binary.BigEndian.Uint64(buf[need-recordChecksumSize : need])
	if gotChecksum := recordChecksum(buf[:need-recordChecksumSize]); gotChecksum != wantChecksum {
		return nil, 0, &gstore.CorruptRecord{ID: int64(id), Reason: "edge record checksum mismatch"}
	}

	etype := string(buf[33 : 33+typeLen])
	data := append(json.RawMessage(nil), buf[33+typeLen:33+typeLen+dataLen]...)
	return &edgeRecord{id: id, source: source, target: target, etype: etype, data: data}, need, nil
}
