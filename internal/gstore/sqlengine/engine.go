package sqlengine

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/orneryd/sqlitegraph/internal/gstore"
	"github.com/orneryd/sqlitegraph/internal/gstore/snapshot"
	"github.com/orneryd/sqlitegraph/internal/pattern"
	"github.com/orneryd/sqlitegraph/internal/traverse"
)

// Engine is the SQL-backed storage engine. A small unfiltered-neighbor
// cache sits in front of the database, grounded on the teacher's
// pkg/storage/memory.go outgoingEdges/incomingEdges maps repurposed as a
// cache rather than the primary store; InsertEdge, AddLabel and SetProperty
// invalidate it and the pattern cache wholesale (InsertNode adds no
// adjacency and invalidates nothing), per spec.md §4.B's cache
// invalidation rule.
type Engine struct {
	db *sql.DB

	connMu sync.Mutex
	tx     *sql.Tx

	cacheMu  sync.Mutex
	outCache map[gstore.NodeID][]gstore.NodeID
	inCache  map[gstore.NodeID][]gstore.NodeID

	patternCache *pattern.Cache

	// snap backs Snapshot(): an MVCC-style adjacency view a caller can hold
	// across concurrent mutations (spec.md §4.I, invariant 8), republished
	// on every InsertEdge.
	snap *snapshot.Manager
}

var _ gstore.Engine = (*Engine)(nil)

func (e *Engine) invalidateCaches() {
	e.cacheMu.Lock()
	e.outCache = map[gstore.NodeID][]gstore.NodeID{}
	e.inCache = map[gstore.NodeID][]gstore.NodeID{}
	e.cacheMu.Unlock()
	e.patternCache = pattern.NewCache()
}

// rebuildSnapshot seeds e.snap from every row in graph_edges, in ascending
// id (insertion) order — called once at Open time since the table's
// contents aren't known until the DB connection is established.
func (e *Engine) rebuildSnapshot() error {
	edges, err := e.AllEdges()
	if err != nil {
		return err
	}
	out := map[gstore.NodeID][]gstore.NodeID{}
	in := map[gstore.NodeID][]gstore.NodeID{}
	for _, ed := range edges {
		out[ed.Source] = append(out[ed.Source], ed.Target)
		in[ed.Target] = append(in[ed.Target], ed.Source)
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
	return nil
}

// Snapshot returns the presently published adjacency view (spec.md §4.I):
// a caller holding the returned handle keeps observing its pre-mutation
// state for every traversal even if concurrent InsertEdge calls publish
// newer snapshots — the Manager only ever swaps its own current pointer,
// never the contents of a Snapshot already handed out.
func (e *Engine) Snapshot() *snapshot.Snapshot {
	return e.snap.Current()
}

func (e *Engine) InsertNode(spec gstore.NodeSpec) (gstore.NodeID, error) {
	if spec.Kind == "" || spec.Name == "" {
		return 0, fmt.Errorf("sqlengine: %w: kind and name are required", gstore.ErrInvalidInput)
	}
	data := spec.Data
	if data == nil {
		data = json.RawMessage("{}")
	}
	res, err := e.conn().Exec(`INSERT INTO graph_entities(kind, name, file_path, data) VALUES (?, ?, ?, ?)`,
		spec.Kind, spec.Name, spec.FilePath, string(data))
	if err != nil {
		return 0, fmt.Errorf("sqlengine: insert node: %w: %v", gstore.ErrQueryFailure, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlengine: insert node id: %w: %v", gstore.ErrQueryFailure, err)
	}
	return gstore.NodeID(id), nil
}

func (e *Engine) GetNode(id gstore.NodeID) (gstore.Node, error) {
	var n gstore.Node
	var data string
	var filePath sql.NullString
	n.ID = id
	row := e.conn().QueryRow(`SELECT kind, name, file_path, data FROM graph_entities WHERE id = ?`, int64(id))
	if err := row.Scan(&n.Kind, &n.Name, &filePath, &data); err != nil {
		if err == sql.ErrNoRows {
			return gstore.Node{}, fmt.Errorf("sqlengine: node %d: %w", id, gstore.ErrNotFound)
		}
		return gstore.Node{}, fmt.Errorf("sqlengine: get node: %w: %v", gstore.ErrQueryFailure, err)
	}
	if filePath.Valid {
		n.FilePath = &filePath.String
	}
	n.Data = json.RawMessage(data)
	return n, nil
}

func (e *Engine) InsertEdge(spec gstore.EdgeSpec) (gstore.EdgeID, error) {
	if spec.EdgeType == "" {
		return 0, fmt.Errorf("sqlengine: %w: edge type is required", gstore.ErrInvalidInput)
	}
	data := spec.Data
	if data == nil {
		data = json.RawMessage("{}")
	}
	res, err := e.conn().Exec(`INSERT INTO graph_edges(from_id, to_id, edge_type, data) VALUES (?, ?, ?, ?)`,
		int64(spec.From), int64(spec.To), spec.EdgeType, string(data))
	if err != nil {
		return 0, fmt.Errorf("sqlengine: insert edge: %w: %v", gstore.ErrQueryFailure, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sqlengine: insert edge id: %w: %v", gstore.ErrQueryFailure, err)
	}
	e.invalidateCaches()
	from, to := spec.From, spec.To
	e.snap.PublishBoth(
		func(o map[gstore.NodeID][]gstore.NodeID) { o[from] = append(o[from], to) },
		func(i map[gstore.NodeID][]gstore.NodeID) { i[to] = append(i[to], from) },
	)
	return gstore.EdgeID(id), nil
}

// Neighbors queries graph_edges directly for filtered lookups, and
// consults (or fills) the unfiltered-neighbor cache otherwise. Ordering is
// `ORDER BY target_id, id` for outgoing and `ORDER BY source_id, id` for
// incoming per spec.md §4.B — here "target_id"/"source_id" refer to the
// *opposite* endpoint column, i.e. the value actually returned.
func (e *Engine) Neighbors(node gstore.NodeID, q gstore.NeighborQuery) ([]gstore.NodeID, error) {
	if q.EdgeType == "" {
		if cached, ok := e.cachedNeighbors(node, q.Direction); ok {
			return cached, nil
		}
	}

	var rows *sql.Rows
	var err error
	if q.Direction == gstore.Outgoing {
		if q.EdgeType != "" {
			rows, err = e.conn().Query(`SELECT to_id FROM graph_edges WHERE from_id = ? AND edge_type = ? ORDER BY to_id, id`, int64(node), q.EdgeType)
		} else {
			rows, err = e.conn().Query(`SELECT to_id FROM graph_edges WHERE from_id = ? ORDER BY to_id, id`, int64(node))
		}
	} else {
		if q.EdgeType != "" {
			rows, err = e.conn().Query(`SELECT from_id FROM graph_edges WHERE to_id = ? AND edge_type = ? ORDER BY from_id, id`, int64(node), q.EdgeType)
		} else {
			rows, err = e.conn().Query(`SELECT from_id FROM graph_edges WHERE to_id = ? ORDER BY from_id, id`, int64(node))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("sqlengine: neighbors: %w: %v", gstore.ErrQueryFailure, err)
	}
	defer rows.Close()

	var out []gstore.NodeID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlengine: scan neighbor: %w: %v", gstore.ErrQueryFailure, err)
		}
		out = append(out, gstore.NodeID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlengine: neighbors rows: %w: %v", gstore.ErrQueryFailure, err)
	}

	if q.EdgeType == "" {
		e.fillNeighborCache(node, q.Direction, out)
	}
	return out, nil
}

func (e *Engine) cachedNeighbors(node gstore.NodeID, dir gstore.Direction) ([]gstore.NodeID, bool) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	cache := e.outCache
	if dir == gstore.Incoming {
		cache = e.inCache
	}
	v, ok := cache[node]
	return v, ok
}

func (e *Engine) fillNeighborCache(node gstore.NodeID, dir gstore.Direction, neighbors []gstore.NodeID) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	cache := e.outCache
	if dir == gstore.Incoming {
		cache = e.inCache
	}
	cache[node] = append([]gstore.NodeID(nil), neighbors...)
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

func (e *Engine) PatternSearch(start gstore.NodeID, p gstore.Pattern) ([][]gstore.NodeID, error) {
	return pattern.Search(e, start, p, e.patternCache)
}

// NodeDegree returns (0,0) for absent nodes per spec.md §4.B, rather than
// an error — traversal ergonomics over strictness, matching Neighbors.
func (e *Engine) NodeDegree(node gstore.NodeID) (int, int, error) {
	var out, in int
	row := e.conn().QueryRow(`SELECT COUNT(*) FROM graph_edges WHERE from_id = ?`, int64(node))
	if err := row.Scan(&out); err != nil {
		return 0, 0, fmt.Errorf("sqlengine: node degree out: %w: %v", gstore.ErrQueryFailure, err)
	}
	row = e.conn().QueryRow(`SELECT COUNT(*) FROM graph_edges WHERE to_id = ?`, int64(node))
	if err := row.Scan(&in); err != nil {
		return 0, 0, fmt.Errorf("sqlengine: node degree in: %w: %v", gstore.ErrQueryFailure, err)
	}
	return out, in, nil
}

func (e *Engine) AllNodeIDs() ([]gstore.NodeID, error) {
	rows, err := e.conn().Query(`SELECT id FROM graph_entities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlengine: all node ids: %w: %v", gstore.ErrQueryFailure, err)
	}
	defer rows.Close()
	var ids []gstore.NodeID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlengine: scan node id: %w: %v", gstore.ErrQueryFailure, err)
		}
		ids = append(ids, gstore.NodeID(id))
	}
	return ids, rows.Err()
}

func (e *Engine) AllEdges() ([]gstore.Edge, error) {
	rows, err := e.conn().Query(`SELECT id, from_id, to_id, edge_type, data FROM graph_edges ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlengine: all edges: %w: %v", gstore.ErrQueryFailure, err)
	}
	defer rows.Close()
	var out []gstore.Edge
	for rows.Next() {
		var ed gstore.Edge
		var id, from, to int64
		var data string
		if err := rows.Scan(&id, &from, &to, &ed.Type, &data); err != nil {
			return nil, fmt.Errorf("sqlengine: scan edge: %w: %v", gstore.ErrQueryFailure, err)
		}
		ed.ID = gstore.EdgeID(id)
		ed.Source = gstore.NodeID(from)
		ed.Target = gstore.NodeID(to)
		ed.Data = json.RawMessage(data)
		out = append(out, ed)
	}
	return out, rows.Err()
}

func (e *Engine) Labels(node gstore.NodeID) ([]string, error) {
	rows, err := e.conn().Query(`SELECT label FROM graph_labels WHERE entity_id = ? ORDER BY label`, int64(node))
	if err != nil {
		return nil, fmt.Errorf("sqlengine: labels: %w: %v", gstore.ErrQueryFailure, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, fmt.Errorf("sqlengine: scan label: %w: %v", gstore.ErrQueryFailure, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (e *Engine) Properties(node gstore.NodeID) (map[string]string, error) {
	rows, err := e.conn().Query(`SELECT key, value FROM graph_properties WHERE entity_id = ?`, int64(node))
	if err != nil {
		return nil, fmt.Errorf("sqlengine: properties: %w: %v", gstore.ErrQueryFailure, err)
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("sqlengine: scan property: %w: %v", gstore.ErrQueryFailure, err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// AllLabelRefs returns every graph_labels row, including ones whose
// entity_id no longer resolves (the safety validator's orphan-label check
// depends on this raw view).
func (e *Engine) AllLabelRefs() ([]gstore.LabelRef, error) {
	rows, err := e.conn().Query(`SELECT entity_id, label FROM graph_labels ORDER BY entity_id, label`)
	if err != nil {
		return nil, fmt.Errorf("sqlengine: all label refs: %w: %v", gstore.ErrQueryFailure, err)
	}
	defer rows.Close()
	var out []gstore.LabelRef
	for rows.Next() {
		var id int64
		var label string
		if err := rows.Scan(&id, &label); err != nil {
			return nil, fmt.Errorf("sqlengine: scan label ref: %w: %v", gstore.ErrQueryFailure, err)
		}
		out = append(out, gstore.LabelRef{NodeID: gstore.NodeID(id), Label: label})
	}
	return out, rows.Err()
}

// AllPropertyRefs returns every graph_properties row, including ones whose
// entity_id no longer resolves.
func (e *Engine) AllPropertyRefs() ([]gstore.PropertyRef, error) {
	rows, err := e.conn().Query(`SELECT entity_id, key, value FROM graph_properties ORDER BY entity_id, key`)
	if err != nil {
		return nil, fmt.Errorf("sqlengine: all property refs: %w: %v", gstore.ErrQueryFailure, err)
	}
	defer rows.Close()
	var out []gstore.PropertyRef
	for rows.Next() {
		var id int64
		var key, value string
		if err := rows.Scan(&id, &key, &value); err != nil {
			return nil, fmt.Errorf("sqlengine: scan property ref: %w: %v", gstore.ErrQueryFailure, err)
		}
		out = append(out, gstore.PropertyRef{NodeID: gstore.NodeID(id), Key: key, Value: value})
	}
	return out, rows.Err()
}

// AddLabel and SetProperty are not part of gstore.Engine's capability set
// (spec.md §4.D enumerates insert-node/get-node/insert-edge plus query
// primitives only) but are needed to populate graph_labels/graph_properties
// for the safety validator and pattern engine to exercise; exposed as
// sqlengine-specific extensions, the way the teacher exposes
// backend-specific helpers beyond the common interface.
func (e *Engine) AddLabel(node gstore.NodeID, label string) error {
	_, err := e.conn().Exec(`INSERT OR IGNORE INTO graph_labels(entity_id, label) VALUES (?, ?)`, int64(node), label)
	if err != nil {
		return fmt.Errorf("sqlengine: add label: %w: %v", gstore.ErrQueryFailure, err)
	}
	e.invalidateCaches()
	return nil
}

func (e *Engine) SetProperty(node gstore.NodeID, key, value string) error {
	_, err := e.conn().Exec(`INSERT INTO graph_properties(entity_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(entity_id, key) DO UPDATE SET value = excluded.value`, int64(node), key, value)
	if err != nil {
		return fmt.Errorf("sqlengine: set property: %w: %v", gstore.ErrQueryFailure, err)
	}
	e.invalidateCaches()
	return nil
}

// WithTransaction runs fn with every Engine method it calls wrapped in a
// single SQLite transaction, committing on success and rolling back if fn
// returns an error — the single-transaction replay spec.md §6's recovery
// dump format calls for. Callers must not invoke WithTransaction
// concurrently with other mutating calls on the same Engine (matching the
// single-writer discipline already enforced by SetMaxOpenConns(1)).
func (e *Engine) WithTransaction(fn func() error) error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlengine: begin transaction: %w: %v", gstore.ErrIOFailure, err)
	}

	e.connMu.Lock()
	e.tx = tx
	e.connMu.Unlock()
	defer func() {
		e.connMu.Lock()
		e.tx = nil
		e.connMu.Unlock()
	}()

	if err := fn(); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlengine: commit transaction: %w: %v", gstore.ErrIOFailure, err)
	}
	return nil
}

// conn returns the active transaction's handle when WithTransaction has
// one open, else the Engine's plain *sql.DB. Every query method goes
// through this instead of touching e.db directly, so WithTransaction's
// wrapping is transparent to them.
func (e *Engine) conn() queryable {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	if e.tx != nil {
		return e.tx
	}
	return e.db
}

// queryable is the subset of *sql.DB / *sql.Tx every Engine method needs.
type queryable interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

func (e *Engine) SchemaVersion() (int, error) {
	return e.currentSchemaVersion()
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// DB exposes the underlying *sql.DB for the safety validator's "direct
// table write" test fixture (spec.md Scenario 5 inserts an orphan edge via
// a raw table write bypassing InsertEdge) and for migration tooling.
func (e *Engine) DB() *sql.DB {
	return e.db
}
