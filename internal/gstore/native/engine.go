package native

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/orneryd/sqlitegraph/internal/gstore"
	"github.com/orneryd/sqlitegraph/internal/gstore/snapshot"
	"github.com/orneryd/sqlitegraph/internal/pattern"
	"github.com/orneryd/sqlitegraph/internal/traverse"
)

// nodeEntry is the in-memory index for one node: its on-disk position, the
// decoded record, and the decoded postings lists for both directions.
type nodeEntry struct {
	offset    int64
	length    int64
	adjMetaAt int64
	rec       *nodeRecord
	outgoing  []gstore.EdgeID
	incoming  []gstore.EdgeID
}

type edgeEntry struct {
	offset int64
	length int64
	rec    *edgeRecord
}

// Engine is the native binary-format storage engine. A single *os.File
// backs both the durable byte-exact layout and (via the maps below) an
// in-memory adjacency index rebuilt at Open time, mirroring the teacher's
// BadgerEngine pattern of an RWMutex-guarded handle plus derived indexes
// kept in sync with every mutation.
type Engine struct {
	mu   sync.RWMutex
	f    *os.File
	path string

	featureFlags  uint32
	schemaVersion uint64

	nodeRegionOffset int64 // fixed: HeaderSize
	nodeRegionEnd    int64 // == current edge-region start
	edgeRegionEnd    int64 // == current EOF

	nodes map[gstore.NodeID]*nodeEntry
	edges map[gstore.EdgeID]*edgeEntry

	nextNodeID gstore.NodeID
	nextEdgeID gstore.EdgeID

	patternCache *pattern.Cache

	// snap backs Snapshot(): an MVCC-style adjacency view a caller can hold
	// across concurrent mutations (spec.md §4.I, invariant 8), republished
	// on every InsertEdge.
	snap *snapshot.Manager
}

var _ gstore.Engine = (*Engine)(nil)

// Create initializes a fresh native-format file at path, truncating any
// existing content, and returns an Engine ready to accept inserts.
func Create(path string) (*Engine, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("native: create %s: %w", path, err)
	}

	e := &Engine{
		f:                f,
		path:             path,
		schemaVersion:    SchemaVersion,
		nodeRegionOffset: HeaderSize,
		nodeRegionEnd:    HeaderSize,
		edgeRegionEnd:    HeaderSize,
		nodes:            make(map[gstore.NodeID]*nodeEntry),
		edges:            make(map[gstore.EdgeID]*edgeEntry),
		nextNodeID:       1,
		nextEdgeID:       1,
		patternCache:     pattern.NewCache(),
		snap:             snapshot.New(),
	}
	if err := e.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return e, nil
}

// Open reads and validates an existing native-format file, rebuilding the
// in-memory adjacency index by a single forward scan of both regions, and
// surfaces any corruption found along the way.
func Open(path string) (*Engine, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("native: open %s: %w", path, err)
	}

	hdrBuf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(hdrBuf, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("native: read header: %w: %v", gstore.ErrIOFailure, err)
	}
	hdr, err := decodeHeader(hdrBuf)
	if err != nil {
		f.Close()
		return nil, err
	}

	e := &Engine{
		f:                f,
		path:             path,
		featureFlags:     hdr.FeatureFlags,
		schemaVersion:    hdr.SchemaVersion,
		nodeRegionOffset: HeaderSize,
		nodeRegionEnd:    int64(hdr.EdgeRegionOffset),
		edgeRegionEnd:    int64(hdr.EdgeRegionOffset),
		nodes:            make(map[gstore.NodeID]*nodeEntry),
		edges:            make(map[gstore.EdgeID]*edgeEntry),
		patternCache:     pattern.NewCache(),
	}

	if err := e.scanNodeRegion(int64(hdr.NodeCount)); err != nil {
		f.Close()
		return nil, err
	}

	end, err := f.Seek(0, os.SEEK_END)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("native: seek end: %w", gstore.ErrIOFailure)
	}
	if err := e.scanEdgeRegion(end, int64(hdr.NodeCount)); err != nil {
		f.Close()
		return nil, err
	}

	e.nextNodeID = gstore.NodeID(hdr.NodeCount) + 1
	e.nextEdgeID = gstore.EdgeID(hdr.EdgeCount) + 1
	e.rebuildSnapshot()
	return e, nil
}

// rebuildSnapshot seeds a fresh snapshot.Manager from the current in-memory
// adjacency index, in each node's insertion order — called once at Open
// time (Create starts from an already-empty Manager) since the index isn't
// available until the forward scan finishes.
func (e *Engine) rebuildSnapshot() {
	out := map[gstore.NodeID][]gstore.NodeID{}
	in := map[gstore.NodeID][]gstore.NodeID{}
	for id, entry := range e.nodes {
		for _, eid := range entry.outgoing {
			if edge, ok := e.edges[eid]; ok {
				out[id] = append(out[id], edge.rec.target)
			}
		}
		for _, eid := range entry.incoming {
			if edge, ok := e.edges[eid]; ok {
				in[id] = append(in[id], edge.rec.source)
			}
		}
	}
	e.snap = snapshot.New()
	e.snap.PublishBoth(
		func(o map[gstore.NodeID][]gstore.NodeID) {
			for k, v := range out {
				o[k] = v
			}
		},
		func(i map[gstore.NodeID][]gstore.NodeID) {
			for k, v := range in {
				i[k] = v
			}
		},
	)
}

// Snapshot returns the presently published adjacency view (spec.md §4.I):
// a caller holding the returned handle keeps observing its pre-mutation
// state for every traversal even if concurrent InsertEdge calls publish
// newer snapshots — the Manager only ever swaps its own current pointer,
// never the contents of a Snapshot already handed out.
func (e *Engine) Snapshot() *snapshot.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap.Current()
}

func (e *Engine) scanNodeRegion(nodeCount int64) error {
	off := e.nodeRegionOffset
	for i := int64(1); i <= nodeCount; i++ {
		buf, err := e.readFrom(off, 1<<20)
		if err != nil {
			return err
		}
		rec, length, adjAt, err := decodeNodeRecord(buf, gstore.NodeID(i))
		if err != nil {
			return err
		}
		entry := &nodeEntry{offset: off, length: int64(length), adjMetaAt: int64(adjAt), rec: rec}
		e.nodes[rec.id] = entry
		off += int64(length)
	}
	if off != e.nodeRegionEnd {
		return fmt.Errorf("native: %w: node region length mismatch", errCorruptHeader)
	}
	return nil
}

func (e *Engine) scanEdgeRegion(fileEnd, nodeCount int64) error {
	off := e.nodeRegionEnd
	for off < fileEnd {
		buf, err := e.readFrom(off, 1<<20)
		if err != nil {
			return err
		}
		switch buf[0] {
		case recordKindEdge:
			rec, length, err := decodeEdgeRecord(buf)
			if err != nil {
				return err
			}
			if int64(rec.source) > nodeCount || int64(rec.target) > nodeCount || rec.source < 1 || rec.target < 1 {
				return &gstore.InvalidReference{ID: int64(rec.source), Max: nodeCount}
			}
			e.edges[rec.id] = &edgeEntry{offset: off, length: int64(length), rec: rec}
			off += int64(length)
		case recordKindPostings:
			block, length, err := decodePostingsBlock(buf)
			if err != nil {
				return err
			}
			off += int64(length)
			_ = block // ownership recovered below by cross-referencing node adjacency metadata
		default:
			return &gstore.CorruptRecord{Reason: "unknown edge-region record tag"}
		}
	}
	e.edgeRegionEnd = off

	// Rehydrate each node's postings lists from the block its adjacency
	// metadata points at, verifying invariant 7 (declared count == observed
	// entries in the block) along the way.
	for id, entry := range e.nodes {
		if entry.rec.outgoingOffset != 0 {
			entries, err := e.readPostings(int64(entry.rec.outgoingOffset))
			if err != nil {
				return err
			}
			if len(entries) != int(entry.rec.outgoingCount) {
				return &gstore.InconsistentAdjacency{Node: int64(id), Dir: gstore.Outgoing, Declared: int(entry.rec.outgoingCount), Observed: len(entries)}
			}
			entry.outgoing = entries
		}
		if entry.rec.incomingOffset != 0 {
			entries, err := e.readPostings(int64(entry.rec.incomingOffset))
			if err != nil {
				return err
			}
			if len(entries) != int(entry.rec.incomingCount) {
				return &gstore.InconsistentAdjacency{Node: int64(id), Dir: gstore.Incoming, Declared: int(entry.rec.incomingCount), Observed: len(entries)}
			}
			entry.incoming = entries
		}
	}
	return nil
}

func (e *Engine) readPostings(offset int64) ([]gstore.EdgeID, error) {
	buf, err := e.readFrom(offset, 1<<20)
	if err != nil {
		return nil, err
	}
	block, _, err := decodePostingsBlock(buf)
	if err != nil {
		return nil, err
	}
	return block.entries, nil
}

// readFrom reads up to max bytes starting at offset, clamped to the
// current file size, for callers that don't know a record's exact length
// in advance.
func (e *Engine) readFrom(offset int64, max int64) ([]byte, error) {
	info, err := e.f.Stat()
	if err != nil {
		return nil, fmt.Errorf("native: stat: %w", gstore.ErrIOFailure)
	}
	remaining := info.Size() - offset
	if remaining <= 0 {
		return nil, fmt.Errorf("native: %w: read past end of file", gstore.ErrIOFailure)
	}
	if remaining < max {
		max = remaining
	}
	buf := make([]byte, max)
	if _, err := e.f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("native: read at %d: %w", offset, gstore.ErrIOFailure)
	}
	return buf, nil
}

func (e *Engine) writeHeader() error {
	h := &header{
		Magic:            magic,
		FormatVersion:    FormatVersion,
		FeatureFlags:     e.featureFlags,
		NodeCount:        uint64(len(e.nodes)),
		EdgeCount:        uint64(len(e.edges)),
		SchemaVersion:    e.schemaVersion,
		NodeRegionOffset: uint64(e.nodeRegionOffset),
		EdgeRegionOffset: uint64(e.nodeRegionEnd),
	}
	if _, err := e.f.WriteAt(h.encode(), 0); err != nil {
		return fmt.Errorf("native: write header: %w", gstore.ErrIOFailure)
	}
	return nil
}

// InsertNode appends a node record. If edges already exist, the edge
// region is shifted forward in place to make room and every affected
// node's adjacency metadata and edge index offset are corrected, so the
// node-data-region/edge-data-region split stays contiguous per spec.md
// §4.A. In the common case — all nodes inserted before any edge — this
// reduces to a plain append.
func (e *Engine) InsertNode(spec gstore.NodeSpec) (gstore.NodeID, error) {
	if spec.Kind == "" || spec.Name == "" {
		return 0, fmt.Errorf("native: %w: kind and name are required", gstore.ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextNodeID
	rec := &nodeRecord{id: id, kind: spec.Kind, name: spec.Name, filePath: spec.FilePath, data: spec.Data}
	buf, adjAt := rec.encode()
	recordLen := int64(len(buf))

	if e.edgeRegionEnd > e.nodeRegionEnd {
		if err := e.shiftEdgeRegion(recordLen); err != nil {
			return 0, err
		}
	}

	insertAt := e.nodeRegionEnd
	if _, err := e.f.WriteAt(buf, insertAt); err != nil {
		return 0, fmt.Errorf("native: write node: %w", gstore.ErrIOFailure)
	}

	e.nodes[id] = &nodeEntry{offset: insertAt, length: recordLen, adjMetaAt: int64(adjAt), rec: rec}
	e.nodeRegionEnd += recordLen
	e.edgeRegionEnd += recordLen
	e.nextNodeID++

	if err := e.writeHeader(); err != nil {
		return 0, err
	}
	return id, nil
}

// shiftEdgeRegion relocates the entire current edge-data region forward by
// delta bytes and corrects every offset (postings pointers in node
// records, edge index positions) that pointed into it.
func (e *Engine) shiftEdgeRegion(delta int64) error {
	size := e.edgeRegionEnd - e.nodeRegionEnd
	buf := make([]byte, size)
	if _, err := e.f.ReadAt(buf, e.nodeRegionEnd); err != nil {
		return fmt.Errorf("native: read edge region for shift: %w", gstore.ErrIOFailure)
	}
	if _, err := e.f.WriteAt(buf, e.nodeRegionEnd+delta); err != nil {
		return fmt.Errorf("native: write shifted edge region: %w", gstore.ErrIOFailure)
	}

	for _, entry := range e.nodes {
		changed := false
		if entry.rec.outgoingOffset != 0 {
			entry.rec.outgoingOffset += uint64(delta)
			changed = true
		}
		if entry.rec.incomingOffset != 0 {
			entry.rec.incomingOffset += uint64(delta)
			changed = true
		}
		if changed {
			if err := e.writeAdjMeta(entry); err != nil {
				return err
			}
		}
	}
	for _, entry := range e.edges {
		entry.offset += delta
	}
	return nil
}

func (e *Engine) writeAdjMeta(entry *nodeEntry) error {
	buf := make([]byte, adjacencyMetaSize)
	putAdjMeta(buf, entry.rec)
	if _, err := e.f.WriteAt(buf, entry.offset+entry.adjMetaAt); err != nil {
		return fmt.Errorf("native: write adjacency metadata: %w", gstore.ErrIOFailure)
	}
	return nil
}

// GetNode looks up a node by id.
func (e *Engine) GetNode(id gstore.NodeID) (gstore.Node, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.nodes[id]
	if !ok {
		return gstore.Node{}, fmt.Errorf("native: node %d: %w", id, gstore.ErrNotFound)
	}
	return gstore.Node{ID: id, Kind: entry.rec.kind, Name: entry.rec.name, FilePath: entry.rec.filePath, Data: entry.rec.data}, nil
}

// InsertEdge appends an edge record and extends both endpoints' postings
// (when the endpoint exists; dangling references are accepted here and
// caught later by the safety validator, matching EdgeSpec's contract).
func (e *Engine) InsertEdge(spec gstore.EdgeSpec) (gstore.EdgeID, error) {
	if spec.EdgeType == "" {
		return 0, fmt.Errorf("native: %w: edge type is required", gstore.ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextEdgeID
	rec := &edgeRecord{id: id, source: spec.From, target: spec.To, etype: spec.EdgeType, data: spec.Data}
	buf := rec.encode()
	offset := e.edgeRegionEnd
	if _, err := e.f.WriteAt(buf, offset); err != nil {
		return 0, fmt.Errorf("native: write edge: %w", gstore.ErrIOFailure)
	}
	e.edges[id] = &edgeEntry{offset: offset, length: int64(len(buf)), rec: rec}
	e.edgeRegionEnd += int64(len(buf))
	e.nextEdgeID++

	if err := e.appendPosting(spec.From, gstore.Outgoing, id); err != nil {
		return 0, err
	}
	if err := e.appendPosting(spec.To, gstore.Incoming, id); err != nil {
		return 0, err
	}

	if err := e.writeHeader(); err != nil {
		return 0, err
	}

	from, to := spec.From, spec.To
	e.snap.PublishBoth(
		func(o map[gstore.NodeID][]gstore.NodeID) { o[from] = append(o[from], to) },
		func(i map[gstore.NodeID][]gstore.NodeID) { i[to] = append(i[to], from) },
	)
	e.patternCache = pattern.NewCache()

	return id, nil
}

// appendPosting records edgeID in node's postings list for direction dir,
// growing (and relocating, doubling capacity) the backing block when full,
// or patching the existing block in place when there's room.
func (e *Engine) appendPosting(node gstore.NodeID, dir gstore.Direction, edgeID gstore.EdgeID) error {
	entry, ok := e.nodes[node]
	if !ok {
		return nil
	}

	var offset *uint64
	var count *uint32
	var list *[]gstore.EdgeID
	if dir == gstore.Outgoing {
		offset, count, list = &entry.rec.outgoingOffset, &entry.rec.outgoingCount, &entry.outgoing
	} else {
		offset, count, list = &entry.rec.incomingOffset, &entry.rec.incomingCount, &entry.incoming
	}

	// Determine current capacity: 0 when no block exists yet, else read it
	// back from the header we already know (avoids tracking a parallel
	// capacity field by deriving it from count rounded up at the last
	// growth point — simplest correct source of truth is the on-disk
	// block header, a single 9-byte read).
	var capacity uint32
	if *offset != 0 {
		capBuf, err := e.readFrom(int64(*offset), postingsHeaderSize)
		if err != nil {
			return err
		}
		capacity = be32(capBuf[1:5])
	}

	if *offset == 0 || *count >= capacity {
		newCap := nextCapacity(capacity)
		newEntries := append(append([]gstore.EdgeID{}, (*list)...), edgeID)
		block := &postingsBlock{capacity: newCap, entries: newEntries}
		newOffset := e.edgeRegionEnd
		if _, err := e.f.WriteAt(block.encode(), newOffset); err != nil {
			return fmt.Errorf("native: write postings block: %w", gstore.ErrIOFailure)
		}
		e.edgeRegionEnd += int64(block.byteLen())
		*list = newEntries
		*offset = uint64(newOffset)
		*count = uint32(len(newEntries))
		return e.writeAdjMeta(entry)
	}

	idx := len(*list)
	entrySlotOffset := int64(*offset) + int64(postingsHeaderSize) + int64(idx)*8
	slotBuf := make([]byte, 8)
	putUint64(slotBuf, uint64(edgeID))
	if _, err := e.f.WriteAt(slotBuf, entrySlotOffset); err != nil {
		return fmt.Errorf("native: write postings entry: %w", gstore.ErrIOFailure)
	}
	*list = append(*list, edgeID)
	*count = uint32(len(*list))
	lenBuf := make([]byte, 4)
	putUint32(lenBuf, *count)
	if _, err := e.f.WriteAt(lenBuf, int64(*offset)+5); err != nil {
		return fmt.Errorf("native: write postings length: %w", gstore.ErrIOFailure)
	}
	return e.writeAdjMeta(entry)
}

// Neighbors yields, for node in direction q.Direction, the opposite
// endpoint of each matching edge in physical postings order (ascending
// edge-id, i.e. insertion order) — the native engine's deterministic
// order per spec.md §4.C.
func (e *Engine) Neighbors(node gstore.NodeID, q gstore.NeighborQuery) ([]gstore.NodeID, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entry, ok := e.nodes[node]
	if !ok {
		return nil, fmt.Errorf("native: node %d: %w", node, gstore.ErrNotFound)
	}

	var postings []gstore.EdgeID
	if q.Direction == gstore.Outgoing {
		postings = entry.outgoing
	} else {
		postings = entry.incoming
	}

	out := make([]gstore.NodeID, 0, len(postings))
	for _, eid := range postings {
		edge, ok := e.edges[eid]
		if !ok {
			return nil, &gstore.CorruptRecord{ID: int64(eid), Reason: "postings reference unknown edge"}
		}
		if q.EdgeType != "" && edge.rec.etype != q.EdgeType {
			continue
		}
		if q.Direction == gstore.Outgoing {
			out = append(out, edge.rec.target)
		} else {
			out = append(out, edge.rec.source)
		}
	}
	return out, nil
}

func (e *Engine) BFS(start gstore.NodeID, depth int) ([]gstore.NodeID, error) {
	return traverse.BFS(e, start, depth)
}

func (e *Engine) ShortestPath(start, end gstore.NodeID) ([]gstore.NodeID, bool, error) {
	return traverse.ShortestPath(e, start, end)
}

func (e *Engine) KHop(start gstore.NodeID, depth int, dir gstore.Direction) ([]gstore.NodeID, error) {
	return traverse.KHop(e, start, depth, dir)
}

func (e *Engine) KHopFiltered(start gstore.NodeID, depth int, dir gstore.Direction, allowed []string) ([]gstore.NodeID, error) {
	return traverse.KHopFiltered(e, start, depth, dir, allowed)
}

func (e *Engine) ChainQuery(start gstore.NodeID, steps []gstore.ChainStep) ([]gstore.NodeID, error) {
	return traverse.ChainQuery(e, start, steps)
}

// NodeDegree reports the node's out-degree and in-degree directly from its
// adjacency metadata — O(1), no postings scan needed.
func (e *Engine) NodeDegree(node gstore.NodeID) (int, int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	entry, ok := e.nodes[node]
	if !ok {
		return 0, 0, fmt.Errorf("native: node %d: %w", node, gstore.ErrNotFound)
	}
	return int(entry.rec.outgoingCount), int(entry.rec.incomingCount), nil
}

// AllNodeIDs returns every node id in ascending order.
func (e *Engine) AllNodeIDs() ([]gstore.NodeID, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]gstore.NodeID, 0, len(e.nodes))
	for id := range e.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// AllEdges returns every edge, ordered ascending by id.
func (e *Engine) AllEdges() ([]gstore.Edge, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]gstore.Edge, 0, len(e.edges))
	for _, entry := range e.edges {
		out = append(out, gstore.Edge{ID: entry.rec.id, Source: entry.rec.source, Target: entry.rec.target, Type: entry.rec.etype, Data: entry.rec.data})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Labels has no dedicated storage in the native format (unlike sqlengine's
// graph_labels table); the native engine treats Kind as the sole label.
func (e *Engine) Labels(node gstore.NodeID) ([]string, error) {
	n, err := e.GetNode(node)
	if err != nil {
		return nil, err
	}
	return []string{n.Kind}, nil
}

// Properties has no dedicated key/value storage in the native format; it
// is always empty here. Callers wanting arbitrary properties should use
// Node.Data directly, or the SQL-backed engine's graph_properties table.
func (e *Engine) Properties(node gstore.NodeID) (map[string]string, error) {
	if _, err := e.GetNode(node); err != nil {
		return nil, err
	}
	return map[string]string{}, nil
}

// AllLabelRefs returns one LabelRef per node, Kind doubling as the sole
// label, in ascending node-id order. There is no way for a native record to
// reference a node id that no longer resolves — every label ref here is
// necessarily attached to a live node.
func (e *Engine) AllLabelRefs() ([]gstore.LabelRef, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]gstore.LabelRef, 0, len(e.nodes))
	for id, entry := range e.nodes {
		out = append(out, gstore.LabelRef{NodeID: id, Label: entry.rec.kind})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out, nil
}

// AllPropertyRefs always returns nil: the native format has no dedicated
// key/value storage (see Properties).
func (e *Engine) AllPropertyRefs() ([]gstore.PropertyRef, error) {
	return nil, nil
}

// PatternSearch delegates to the shared pattern package, reusing this
// engine's constraint-match cache across repeated calls.
func (e *Engine) PatternSearch(start gstore.NodeID, p gstore.Pattern) ([][]gstore.NodeID, error) {
	return pattern.Search(e, start, p, e.patternCache)
}

func (e *Engine) SchemaVersion() (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return int(e.schemaVersion), nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.f.Close()
}
