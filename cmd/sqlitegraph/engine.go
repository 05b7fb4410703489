package main

import (
	"fmt"

	"github.com/orneryd/sqlitegraph/internal/gconfig"
	"github.com/orneryd/sqlitegraph/internal/gstore"
)

// openEngine resolves the layered config (file + env, with the --db/
// --backend CLI flags taking final precedence) and opens the
// corresponding engine through the gstore factory.
func openEngine() (gstore.Engine, error) {
	cfg, err := gconfig.LoadFromEnv(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if flagDBPath != "" {
		cfg.Database.Path = flagDBPath
	}
	if flagBackend != "" {
		cfg.Database.Backend = flagBackend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pragmas := map[string]string{}
	for _, kv := range cfg.Database.PragmaOverrides {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				pragmas[kv[:i]] = kv[i+1:]
				break
			}
		}
	}

	return gstore.Open(gstore.OpenConfig{
		Backend:         gstore.Backend(cfg.Database.Backend),
		Path:            cfg.Database.Path,
		PragmaSettings:  pragmas,
		CreateIfMissing: true,
	})
}
