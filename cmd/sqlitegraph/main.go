// Package main provides the sqlitegraph CLI entry point: the external
// collaborator spec.md §6 describes for completeness, sitting entirely
// outside the core's capability set and talking to it only through
// gstore.Engine, internal/reason, internal/safety, internal/bench, and
// internal/migrate.
//
// Grounded on the teacher's cmd/nornicdb/main.go: a cobra root command,
// one subcommand per operation, emoji-prefixed progress lines on the
// happy path, and a JSON error envelope on failure.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// Blank-imported so each backend's init() registers itself with
	// gstore.Open before any subcommand calls it.
	_ "github.com/orneryd/sqlitegraph/internal/gstore/native"
	_ "github.com/orneryd/sqlitegraph/internal/gstore/sqlengine"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// global flags shared by every subcommand that needs to open an engine.
var (
	flagDBPath  string
	flagBackend string
	flagConfig  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sqlitegraph",
		Short: "sqlitegraph - an embedded, dual-backend graph store with a reasoning DSL",
		Long: `sqlitegraph stores a typed, labeled multigraph over either a SQLite-backed
or a native binary-format engine, and exposes traversal, pattern search, and
a small reasoning pipeline DSL on top of either backend interchangeably.`,
	}

	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "./sqlitegraph.db", "database file path")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "sql", "backend: sql or native")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "optional TOML/YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sqlitegraph v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newSubgraphCmd())
	rootCmd.AddCommand(newPipelineCmd())
	rootCmd.AddCommand(newExplainPipelineCmd())
	rootCmd.AddCommand(newDslParseCmd())
	rootCmd.AddCommand(newSafetyCheckCmd())
	rootCmd.AddCommand(newMetricsCmd())
	rootCmd.AddCommand(newMigrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
