// Package sqlengine implements the SQL-backed storage engine of spec.md
// §4.A/§4.B: five tables (graph_entities, graph_edges, graph_labels,
// graph_properties, graph_meta) plus the graph_meta_history migration
// ledger, behind a *sql.DB opened
// against the pure-Go, cgo-free ncruces/go-sqlite3 driver.
//
// Grounded on untoldecay-BeadsLog's internal/storage/sqlite package: the
// driver import pair (driver + embed, blank-imported for side-effect
// registration), the DSN-as-query-string PRAGMA convention demonstrated in
// freshness_test.go, and the schema.go/migrations.go split between a single
// DDL const and an ordered list of named, idempotent steps.
package sqlengine

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/orneryd/sqlitegraph/internal/gstore"
	"github.com/orneryd/sqlitegraph/internal/gstore/snapshot"
	"github.com/orneryd/sqlitegraph/internal/pattern"
)

// Options configures Open. PragmaSettings mirrors spec.md §6's
// `pragma_settings: map<string,string>` configuration option; entries are
// appended to the DSN as additional `_pragma=` params after the engine's
// own WAL/synchronous defaults.
type Options struct {
	WithoutMigrations bool
	CacheSize         int
	PragmaSettings    map[string]string
}

// Open opens (creating if absent) a SQLite database at path and applies any
// pending schema migrations unless opts.WithoutMigrations is set.
func Open(path string, opts Options) (*Engine, error) {
	dsn := buildDSN(path, opts)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlengine: open %s: %w", path, gstore.ErrIOFailure)
	}
	db.SetMaxOpenConns(1) // single-writer discipline per spec.md §5

	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlengine: apply schema: %w: %v", gstore.ErrIOFailure, err)
	}

	e := &Engine{
		db:           db,
		outCache:     map[gstore.NodeID][]gstore.NodeID{},
		inCache:      map[gstore.NodeID][]gstore.NodeID{},
		patternCache: pattern.NewCache(),
		snap:         snapshot.New(),
	}

	if err := e.ensureMeta(); err != nil {
		db.Close()
		return nil, err
	}
	if !opts.WithoutMigrations {
		if err := e.applyPendingMigrations(); err != nil {
			db.Close()
			return nil, err
		}
	}
	if err := e.checkSchemaVersion(); err != nil {
		db.Close()
		return nil, err
	}
	if err := e.rebuildSnapshot(); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

func buildDSN(path string, opts Options) string {
	var b strings.Builder
	b.WriteString("file:")
	b.WriteString(path)
	b.WriteString("?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if opts.CacheSize != 0 {
		fmt.Fprintf(&b, "&_pragma=cache_size(%d)", opts.CacheSize)
	}
	for k, v := range opts.PragmaSettings {
		fmt.Fprintf(&b, "&_pragma=%s(%s)", k, v)
	}
	return b.String()
}
