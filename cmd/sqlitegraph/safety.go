package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orneryd/sqlitegraph/internal/safety"
)

func newSafetyCheckCmd() *cobra.Command {
	var strict, deep, sweep bool

	cmd := &cobra.Command{
		Use:   "safety-check",
		Short: "Sweep the graph for orphans, duplicates, and invalid references",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return failJSON(err)
			}
			defer e.Close()

			// --sweep requests the same deep-sweep pass as --deep; kept as a
			// distinct flag per spec.md §6's CLI surface since a caller may
			// reasonably expect "sweep" as the more memorable name.
			opts := safety.Options{Strict: strict, Deep: deep || sweep}

			report, err := safety.Check(context.Background(), e, opts)
			var safetyErr *safety.SafetyError
			if err != nil && !errors.As(err, &safetyErr) {
				return failJSON(err)
			}

			fmt.Printf("orphan_edges:          %d\n", report.OrphanEdges)
			fmt.Printf("duplicate_edges:       %d\n", report.DuplicateEdges)
			fmt.Printf("invalid_label_refs:    %d\n", report.InvalidLabelRefs)
			fmt.Printf("invalid_property_refs: %d\n", report.InvalidPropertyRefs)
			if report.DeepSweep != nil {
				fmt.Printf("out_of_order_nodes:    %d\n", report.DeepSweep.OutOfOrderNodeIDs)
				fmt.Printf("out_of_order_edges:    %d\n", report.DeepSweep.OutOfOrderEdgeIDs)
				fmt.Printf("malformed_node_json:   %d\n", report.DeepSweep.MalformedNodePayload)
				fmt.Printf("malformed_edge_json:   %d\n", report.DeepSweep.MalformedEdgePayload)
				fmt.Printf("duplicate_label_pairs: %d\n", report.DeepSweep.DuplicateLabelPairs)
				fmt.Printf("duplicate_prop_keys:   %d\n", report.DeepSweep.DuplicatePropertyKeys)
			}

			if err != nil {
				return failJSON(err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "fail with a non-zero exit if any violation is found")
	cmd.Flags().BoolVar(&deep, "deep", false, "run the deep sweep in addition to the core checks")
	cmd.Flags().BoolVar(&sweep, "sweep", false, "alias for --deep")
	return cmd
}
