package sqlengine

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/orneryd/sqlitegraph/internal/gstore"
	"github.com/orneryd/sqlitegraph/internal/gstore/schema"
)

// migrationStep is one named, idempotent DDL step, applied in order, each
// inside its own transaction — the shape of BeadsLog's migrationsList.
type migrationStep struct {
	name          string
	targetVersion int
	apply         func(*sql.Tx) error
}

// migrationSteps is the ordered list of all migrations this binary knows.
// Steps are additive only (new nullable columns / new tables), per spec.md
// §1's non-goal on destructive migrations.
var migrationSteps = []migrationStep{
	{
		name:          "meta_history_table",
		targetVersion: 2,
		apply: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS graph_meta_history (
				version    INTEGER NOT NULL,
				applied_at DATETIME NOT NULL
			);`)
			return err
		},
	},
}

// ensureMeta seeds graph_meta with the compiled schema version on a brand
// new database (no migration history needed — there is nothing to migrate
// from).
func (e *Engine) ensureMeta() error {
	var count int
	if err := e.db.QueryRow(`SELECT COUNT(*) FROM graph_meta`).Scan(&count); err != nil {
		return fmt.Errorf("sqlengine: read graph_meta: %w: %v", gstore.ErrQueryFailure, err)
	}
	if count > 0 {
		return nil
	}
	if _, err := e.db.Exec(`INSERT INTO graph_meta(schema_version) VALUES (?)`, schema.CurrentVersion); err != nil {
		return fmt.Errorf("sqlengine: seed graph_meta: %w: %v", gstore.ErrQueryFailure, err)
	}
	return nil
}

func (e *Engine) currentSchemaVersion() (int, error) {
	var v int
	if err := e.db.QueryRow(`SELECT schema_version FROM graph_meta LIMIT 1`).Scan(&v); err != nil {
		return 0, fmt.Errorf("sqlengine: read schema_version: %w: %v", gstore.ErrQueryFailure, err)
	}
	return v, nil
}

func (e *Engine) checkSchemaVersion() error {
	v, err := e.currentSchemaVersion()
	if err != nil {
		return err
	}
	if err := schema.CheckOpenable(v); err != nil {
		return fmt.Errorf("sqlengine: %w: %v", gstore.ErrMigration, err)
	}
	return nil
}

// applyPendingMigrations runs every step whose targetVersion exceeds the
// database's recorded schema_version, each inside its own transaction,
// appending a graph_meta_history row and bumping graph_meta.schema_version
// on success.
func (e *Engine) applyPendingMigrations() error {
	v, err := e.currentSchemaVersion()
	if err != nil {
		return err
	}
	ledger := schema.NewLedger(v, nil)

	for _, step := range ledger.Pending(toSchemaSteps(migrationSteps)) {
		ms := findStep(step.Name)
		tx, err := e.db.Begin()
		if err != nil {
			return fmt.Errorf("sqlengine: begin migration %s: %w", step.Name, gstore.ErrMigration)
		}
		if err := ms.apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlengine: apply migration %s: %w: %v", step.Name, gstore.ErrMigration, err)
		}
		if _, err := tx.Exec(`UPDATE graph_meta SET schema_version = ?`, step.TargetVersion); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlengine: bump schema_version for %s: %w", step.Name, gstore.ErrMigration)
		}
		if _, err := tx.Exec(`INSERT INTO graph_meta_history(version, applied_at) VALUES (?, ?)`, step.TargetVersion, time.Now().UTC()); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlengine: record migration %s: %w", step.Name, gstore.ErrMigration)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("sqlengine: commit migration %s: %w", step.Name, gstore.ErrMigration)
		}
		ledger.Record(step.TargetVersion, time.Now().UTC())
	}
	return nil
}

func toSchemaSteps(steps []migrationStep) []schema.Step {
	out := make([]schema.Step, len(steps))
	for i, s := range steps {
		out[i] = schema.Step{Name: s.name, TargetVersion: s.targetVersion}
	}
	return out
}

func findStep(name string) migrationStep {
	for _, s := range migrationSteps {
		if s.name == name {
			return s
		}
	}
	panic("sqlengine: unknown migration step " + name)
}
