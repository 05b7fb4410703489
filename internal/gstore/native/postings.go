package native

import (
	"encoding/binary"

	"github.com/orneryd/sqlitegraph/internal/gstore"
)

// recordKindPostings tags a postings block so a sequential scan of the
// edge-data region can tell it apart from an edgeRecord (tagged
// recordKindEdge). A postings block is a growable, contiguous array of the
// edge ids incident to one node in one direction: spec.md §4.C's
// "scan outgoing_count consecutive edge slots starting at outgoing_offset"
// realized as a scan over this block rather than over raw edge records,
// which keeps the scan genuinely contiguous (and outgoing_count/
// incoming_count exactly equal to true degree, per invariant 7) even
// though edges themselves are variable-length and may be inserted in any
// order relative to other nodes' edges.
const recordKindPostings byte = 2

const postingsHeaderSize = 1 + 4 + 4 // kind + capacity + length

// postingsBlock is the decoded form of one on-disk postings block. Entries
// are edge ids, not neighbor node ids: the neighbor and the edge type are
// both recovered by looking the edge id up in the edge index, so a single
// postings list serves both unfiltered and edge-type-filtered queries.
type postingsBlock struct {
	capacity uint32
	entries  []gstore.EdgeID
}

func (p *postingsBlock) encode() []byte {
	buf := make([]byte, postingsHeaderSize+int(p.capacity)*8)
	buf[0] = recordKindPostings
	binary.BigEndian.PutUint32(buf[1:5], p.capacity)
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(p.entries)))
	off := postingsHeaderSize
	for _, id := range p.entries {
		binary.BigEndian.PutUint64(buf[off:off+8], uint64(id))
		off += 8
	}
	return buf
}

func decodePostingsBlock(buf []byte) (*postingsBlock, int, error) {
	if len(buf) < postingsHeaderSize || buf[0] != recordKindPostings {
		return nil, 0, &gstore.CorruptRecord{Reason: "bad postings block tag"}
	}
	capacity := binary.BigEndian.Uint32(buf[1:5])
	length := binary.BigEndian.Uint32(buf[5:9])
	total := postingsHeaderSize + int(capacity)*8
	if len(buf) < total || length > capacity {
		return nil, 0, &gstore.CorruptRecord{Reason: "truncated postings block"}
	}
	entries := make([]gstore.EdgeID, length)
	off := postingsHeaderSize
	for i := range entries {
		entries[i] = gstore.EdgeID(binary.BigEndian.Uint64(buf[off : off+8]))
		off += 8
	}
	return &postingsBlock{capacity: capacity, entries: entries}, total, nil
}

func (p *postingsBlock) byteLen() int {
	return postingsHeaderSize + int(p.capacity)*8
}

const postingsInitialCapacity = 4

// nextCapacity doubles, matching the amortized-growth discipline ordinary
// growable arrays use.
func nextCapacity(cur uint32) uint32 {
	if cur == 0 {
		return postingsInitialCapacity
	}
	return cur * 2
}
