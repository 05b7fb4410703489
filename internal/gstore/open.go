package gstore

// Backend selects which concrete engine Open dispatches to.
type Backend string

const (
	BackendSQL    Backend = "sql"
	BackendNative Backend = "native"
)

// OpenConfig carries every option either concrete engine's own Open
// function accepts, collapsed into one shape so callers depend only on
// gstore, never on sqlengine/native directly — spec.md §9's "factory
// returning an opaque engine value must support dynamic selection by
// configuration without imposing allocation on the hot traversal paths."
type OpenConfig struct {
	Backend Backend
	Path    string

	// SQL-only.
	WithoutMigrations bool
	CacheSize         int
	PragmaSettings    map[string]string

	// Native-only.
	CreateIfMissing      bool
	ReserveNodeCapacity  int
	ReserveEdgeCapacity  int
}

// openers is populated by sqlengine's and native's init() functions via
// RegisterBackend, keeping this package free of a direct import cycle back
// to either concrete engine package (both import gstore for the Engine
// contract; gstore cannot import them back).
var openers = map[Backend]func(OpenConfig) (Engine, error){}

// RegisterBackend is called from a concrete engine package's init() to
// install its Open function under a Backend name. Re-registering the same
// name replaces the prior entry, which only matters in tests.
func RegisterBackend(name Backend, open func(OpenConfig) (Engine, error)) {
	openers[name] = open
}

// Open dispatches to the engine registered for cfg.Backend. Defaults to
// BackendSQL when cfg.Backend is empty, matching spec.md §6's "backend ∈
// {sql, native}" option defaulting to prior (SQL) behaviour.
func Open(cfg OpenConfig) (Engine, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = BackendSQL
	}
	open, ok := openers[backend]
	if !ok {
		return nil, &UnknownBackend{Backend: string(backend)}
	}
	return open(cfg)
}

// UnknownBackend reports an OpenConfig.Backend value no engine package has
// registered.
type UnknownBackend struct {
	Backend string
}

func (e *UnknownBackend) Error() string {
	return "gstore: unknown backend " + e.Backend
}

func (e *UnknownBackend) Unwrap() error { return ErrInvalidInput }
