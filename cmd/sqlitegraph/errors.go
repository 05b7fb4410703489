package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/orneryd/sqlitegraph/internal/gstore"
)

// errorEnvelope is the JSON shape spec.md §7 mandates for CLI-level
// errors: {"error": kind, "detail": …}.
type errorEnvelope struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// failJSON prints err as a JSON error envelope to stderr and returns a
// non-nil error so cobra's Execute exits non-zero, per spec.md §6's "exit
// codes: 0 success, non-zero on any error."
func failJSON(err error) error {
	env := errorEnvelope{Error: errorKind(err), Detail: err.Error()}
	data, marshalErr := json.Marshal(env)
	if marshalErr != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	fmt.Fprintln(os.Stderr, string(data))
	return err
}

// errorKind maps a wrapped sentinel error to the taxonomy name spec.md §7
// lists, falling back to the generic kind "Error" when none match.
func errorKind(err error) string {
	switch {
	case errors.Is(err, gstore.ErrInvalidInput):
		return "InvalidInput"
	case errors.Is(err, gstore.ErrNotFound):
		return "NotFound"
	case errors.Is(err, gstore.ErrFormat):
		return "FormatMismatch"
	case errors.Is(err, gstore.ErrUnsupported):
		return "UnsupportedVersion"
	case errors.Is(err, gstore.ErrCorruptHeader):
		return "CorruptHeader"
	case errors.Is(err, gstore.ErrIOFailure):
		return "IoFailure"
	case errors.Is(err, gstore.ErrQueryFailure):
		return "QueryFailure"
	case errors.Is(err, gstore.ErrMigration):
		return "MigrationError"
	default:
		return "Error"
	}
}
