package native

import (
	"os"

	"github.com/orneryd/sqlitegraph/internal/gstore"
)

func init() {
	gstore.RegisterBackend(gstore.BackendNative, openFromConfig)
}

// openFromConfig maps gstore.OpenConfig onto the package's Create/Open
// pair, dispatched through gstore.Open. It honours CreateIfMissing only;
// ReserveNodeCapacity and ReserveEdgeCapacity are not read, so no file
// space is pre-allocated.
func openFromConfig(cfg gstore.OpenConfig) (gstore.Engine, error) {
	if cfg.CreateIfMissing {
		if _, err := os.Stat(cfg.Path); os.IsNotExist(err) {
			return Create(cfg.Path)
		}
	}
	return Open(cfg.Path)
}
