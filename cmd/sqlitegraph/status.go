package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print engine kind and entity count",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return failJSON(err)
			}
			defer e.Close()

			ids, err := e.AllNodeIDs()
			if err != nil {
				return failJSON(err)
			}
			schemaVersion, err := e.SchemaVersion()
			if err != nil {
				return failJSON(err)
			}

			fmt.Printf("📊 sqlitegraph status\n")
			fmt.Printf("   Backend:        %s\n", flagBackend)
			fmt.Printf("   Path:           %s\n", flagDBPath)
			fmt.Printf("   Schema version: %d\n", schemaVersion)
			fmt.Printf("   Entity count:   %d\n", len(ids))
			return nil
		},
	}
}
