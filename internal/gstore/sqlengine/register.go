package sqlengine

import (
	"github.com/orneryd/sqlitegraph/internal/gstore"
)

func init() {
	gstore.RegisterBackend(gstore.BackendSQL, openFromConfig)
}

func openFromConfig(cfg gstore.OpenConfig) (gstore.Engine, error) {
	e, err := Open(cfg.Path, Options{
		WithoutMigrations: cfg.WithoutMigrations,
		CacheSize:         cfg.CacheSize,
		PragmaSettings:    cfg.PragmaSettings,
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}
