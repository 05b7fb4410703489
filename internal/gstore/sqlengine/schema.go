package sqlengine

// ddl creates the five-table-plus-history layout from spec.md §4.A/§6:
// graph_entities, graph_edges, graph_labels, graph_properties, graph_meta,
// graph_meta_history, plus the indexes the spec names. Grounded on
// BeadsLog's internal/storage/sqlite/schema.go: a single const DDL string
// applied with CREATE TABLE IF NOT EXISTS, indexes declared alongside their
// table.
const ddl = `
CREATE TABLE IF NOT EXISTS graph_entities (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	kind      TEXT NOT NULL,
	name      TEXT NOT NULL,
	file_path TEXT,
	data      TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_entities_kind_id ON graph_entities(kind, id);

CREATE TABLE IF NOT EXISTS graph_edges (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	from_id   INTEGER NOT NULL,
	to_id     INTEGER NOT NULL,
	edge_type TEXT NOT NULL,
	data      TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_edges_from ON graph_edges(from_id);
CREATE INDEX IF NOT EXISTS idx_edges_to ON graph_edges(to_id);
CREATE INDEX IF NOT EXISTS idx_edges_type ON graph_edges(edge_type);

CREATE TABLE IF NOT EXISTS graph_labels (
	entity_id INTEGER NOT NULL,
	label     TEXT NOT NULL,
	PRIMARY KEY (entity_id, label)
);
CREATE INDEX IF NOT EXISTS idx_labels_label ON graph_labels(label);

CREATE TABLE IF NOT EXISTS graph_properties (
	entity_id INTEGER NOT NULL,
	key       TEXT NOT NULL,
	value     TEXT NOT NULL,
	PRIMARY KEY (entity_id, key)
);
CREATE INDEX IF NOT EXISTS idx_properties_key_value ON graph_properties(key, value);

CREATE TABLE IF NOT EXISTS graph_meta (
	schema_version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS graph_meta_history (
	version    INTEGER NOT NULL,
	applied_at DATETIME NOT NULL
);
`
